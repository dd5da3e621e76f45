package main

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/foodfinderyyc/smsbot/internal/api"
	"github.com/foodfinderyyc/smsbot/internal/lockfile"
	"github.com/foodfinderyyc/smsbot/internal/messaging"
	"github.com/foodfinderyyc/smsbot/internal/metrics"
	"github.com/foodfinderyyc/smsbot/internal/scheduler"
	"github.com/foodfinderyyc/smsbot/internal/store"
	"github.com/foodfinderyyc/smsbot/internal/twiliosms"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the SMS bot and its HTTP API",
		Long:  "Receives SMS through the Twilio webhook, runs one dialogue per sender and serves /stats, /test_convo, /health and /metrics.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&cfg.APIAddr, "api-addr", cfg.APIAddr, "API server address (overrides $API_ADDR)")
	cmd.Flags().BoolVar(&cfg.ValidateSignature, "validate-signature", cfg.ValidateSignature, "reject webhooks without a valid X-Twilio-Signature (overrides $TWILIO_VALIDATE_SIGNATURE)")
	cmd.Flags().StringVar(&cfg.PublicURL, "public-url", cfg.PublicURL, "externally visible base URL used for signature checks (overrides $PUBLIC_URL)")
	cmd.Flags().StringVar(&cfg.StatsCron, "stats-cron", cfg.StatsCron, "cron schedule for refreshing stats gauges (overrides $STATS_CRON)")
	return cmd
}

func runServe(ctx context.Context, cfg *Config) error {
	slog.Info("Bootstrapping Food Finder", "state_dir", cfg.StateDir, "api_addr", cfg.APIAddr)

	lock, err := lockfile.AcquireLock(cfg.StateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	metrics.InitMetrics()

	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	smsClient, err := twiliosms.NewClient(
		twiliosms.WithAccountSID(cfg.TwilioAccountSID),
		twiliosms.WithAuthToken(cfg.TwilioAuthToken),
		twiliosms.WithFrom(cfg.TwilioFrom),
	)
	if err != nil {
		return err
	}
	var smsOpts []messaging.TwilioOption
	if cfg.ValidateSignature {
		if cfg.PublicURL == "" {
			return errors.New("signature validation requires --public-url")
		}
		smsOpts = append(smsOpts, messaging.WithSignatureValidation(cfg.TwilioAuthToken, cfg.PublicURL))
	}
	sms := messaging.NewTwilioService(smsClient, smsOpts...)

	var routerOpts []messaging.RouterOption
	if dedup, ok := rt.base.(store.InboundDedup); ok {
		routerOpts = append(routerOpts, messaging.WithDeduplicator(dedup))
	}
	router := messaging.NewConversationRouter(sms, rt.engine, rt.resolver, routerOpts...)

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sched.ScheduleStatsRefresh(ctx, cfg.StatsCron, rt.log, rt.def.StatsQuery(cfg.TestUser)); err != nil {
		return err
	}

	server := api.NewServer(sms.TwilioWebhookHandler, rt.log, rt.engine, rt.resolver, router,
		api.WithAddr(cfg.APIAddr),
		api.WithTranscriptDir(cfg.TranscriptDir()),
		api.WithTestUser(cfg.TestUser),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		router.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return server.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		return sms.Stop()
	})
	err = g.Wait()
	slog.Info("Food Finder stopped", "error", err)
	return err
}
