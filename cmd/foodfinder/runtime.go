package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/foodfinderyyc/smsbot/internal/convo"
	"github.com/foodfinderyyc/smsbot/internal/geocode"
	"github.com/foodfinderyyc/smsbot/internal/places"
	"github.com/foodfinderyyc/smsbot/internal/search"
	"github.com/foodfinderyyc/smsbot/internal/store"
)

// runtime holds the dialogue components shared by serve and test-convo.
type runtime struct {
	def *convo.Definition
	// base is the backend itself; log may wrap it with the Redis cache.
	base     store.EventLog
	log      store.EventLog
	engine   *convo.Engine
	resolver *convo.SessionResolver
	closers  []func() error
}

// loadDefinition returns the configured conversation definition.
func loadDefinition(cfg *Config) (*convo.Definition, error) {
	var def *convo.Definition
	var err error
	if cfg.ConvoFile != "" {
		def, err = convo.LoadDefinition(cfg.ConvoFile)
	} else {
		def, err = convo.DefaultDefinition()
	}
	if err != nil {
		return nil, err
	}
	if cfg.Locality != "" {
		def.Locality = cfg.Locality
	}
	return def, nil
}

// openEventLog opens the configured backend and, when Redis is configured, the
// session-number cache in front of it.
func openEventLog(cfg *Config, def *convo.Definition, rt *runtime) error {
	base, err := store.Open(cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to open event log: %w", err)
	}
	rt.base, rt.log = base, base
	rt.closers = append(rt.closers, base.Close)

	if cfg.RedisAddr == "" {
		return nil
	}
	cache, err := store.NewRedisSessionCache(store.RedisConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err != nil {
		return err
	}
	rt.closers = append(rt.closers, cache.Close)
	rt.log = store.NewCachedEventLog(base, cache, def.Step(convo.StepGreeting).EventCode)
	slog.Info("Session-number cache enabled", "redis_addr", cfg.RedisAddr)
	return nil
}

// buildSearcher selects the local catalog when configured and Parse Server otherwise.
func buildSearcher(cfg *Config) (convo.Searcher, error) {
	if cfg.CatalogFile != "" {
		slog.Info("Using local location catalog", "path", cfg.CatalogFile)
		catalog, err := search.LoadCatalog(cfg.CatalogFile)
		if err != nil {
			return nil, err
		}
		return catalog, nil
	}
	client, err := search.NewParseClient(search.ParseConfig{
		ServerURL: cfg.ParseServerURL,
		AppID:     cfg.ParseAppID,
		RESTKey:   cfg.ParseRESTKey,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

// buildRuntime wires the definition, event log, providers and engine.
func buildRuntime(cfg *Config) (*runtime, error) {
	def, err := loadDefinition(cfg)
	if err != nil {
		return nil, err
	}
	rt := &runtime{def: def}
	if err := openEventLog(cfg, def, rt); err != nil {
		rt.Close()
		return nil, err
	}

	geocoder, err := geocode.NewGoogleGeocoder(cfg.GoogleAPIKey)
	if err != nil {
		rt.Close()
		return nil, err
	}
	searcher, err := buildSearcher(cfg)
	if err != nil {
		rt.Close()
		return nil, err
	}

	// A nil *places.Table must not reach the engine as a non-nil interface.
	var lookup convo.PlaceLookup
	if table, err := places.Load(cfg.DataDir); err != nil {
		slog.Warn("Place tables unavailable, place lookups will fail", "error", err, "data_dir", cfg.DataDir)
	} else {
		if report := table.Validate(); !report.OK() {
			slog.Warn("Place tables have problems; run validate-data", "missing_geocodings", len(report.MissingGeocodings))
		}
		lookup = table
	}

	rt.engine = convo.NewEngine(def, geocoder, searcher, lookup, convo.WithEventRecorder(rt.log))
	rt.resolver = convo.NewSessionResolver(rt.log, def.Step(convo.StepGreeting).EventCode)
	return rt, nil
}

// Close releases everything the runtime opened, in reverse order.
func (rt *runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
