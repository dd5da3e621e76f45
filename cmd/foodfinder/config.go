package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/foodfinderyyc/smsbot/internal/api"
	"github.com/foodfinderyyc/smsbot/internal/scheduler"
	"github.com/foodfinderyyc/smsbot/internal/util"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for the SQLite database and transcripts
	DefaultStateDir = "/var/lib/foodfinder"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "foodfinder.db"
	// DefaultDataDir holds the place, address and geocoding tables
	DefaultDataDir = "./data"
	// TranscriptDirName is the state directory subfolder for test-run transcripts
	TranscriptDirName = "tests"
)

// Config holds environment configuration, overridden by command line flags.
type Config struct {
	StateDir    string
	DatabaseURL string
	APIAddr     string
	LogLevel    string

	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioFrom        string
	ValidateSignature bool
	PublicURL         string

	GoogleAPIKey string
	Locality     string

	ParseServerURL string
	ParseAppID     string
	ParseRESTKey   string
	CatalogFile    string

	DataDir   string
	ConvoFile string

	RedisAddr     string
	RedisPassword string

	StatsCron string
	TestUser  string
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:          util.GetEnv("FOODFINDER_STATE_DIR", DefaultStateDir),
		DatabaseURL:       util.GetEnv("DATABASE_URL", ""),
		APIAddr:           util.GetEnv("API_ADDR", api.DefaultAddr),
		LogLevel:          util.GetEnv("LOG_LEVEL", "info"),
		TwilioAccountSID:  util.GetEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:   util.GetEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFrom:        util.GetEnv("TWILIO_PHONE_NUMBER", ""),
		ValidateSignature: util.ParseBoolEnv("TWILIO_VALIDATE_SIGNATURE", false),
		PublicURL:         util.GetEnv("PUBLIC_URL", ""),
		GoogleAPIKey:      util.GetEnv("GOOGLE_APIKEY", ""),
		Locality:          util.GetEnv("GEOCODE_LOCALITY", ""),
		ParseServerURL:    util.GetEnv("PARSE_SERVERURL", ""),
		ParseAppID:        util.GetEnv("PARSE_APPID", ""),
		ParseRESTKey:      util.GetEnv("PARSE_RESTKEY", ""),
		CatalogFile:       util.GetEnv("CATALOG_FILE", ""),
		DataDir:           util.GetEnv("DATA_DIR", DefaultDataDir),
		ConvoFile:         util.GetEnv("CONVO_FILE", ""),
		RedisAddr:         util.GetEnv("REDIS_ADDR", ""),
		RedisPassword:     util.GetEnv("REDIS_PASSWORD", ""),
		StatsCron:         util.GetEnv("STATS_CRON", scheduler.DefaultStatsCron),
		TestUser:          util.GetEnv("TEST_USER", api.DefaultTestUser),
	}

	slog.Debug("environment variables loaded",
		"FOODFINDER_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"API_ADDR", config.APIAddr,
		"TWILIO_ACCOUNT_SID_SET", config.TwilioAccountSID != "",
		"GOOGLE_APIKEY_SET", config.GoogleAPIKey != "",
		"PARSE_SERVERURL", config.ParseServerURL,
		"CATALOG_FILE", config.CatalogFile,
		"REDIS_ADDR", config.RedisAddr)
	return config
}

// bindFlags registers the persistent flags on root, defaulting to the environment.
func bindFlags(root *cobra.Command, cfg *Config) {
	f := root.PersistentFlags()
	f.StringVar(&cfg.StateDir, "state-dir", cfg.StateDir, "state directory for the database and transcripts (overrides $FOODFINDER_STATE_DIR)")
	f.StringVar(&cfg.DatabaseURL, "db-dsn", cfg.DatabaseURL, "Postgres URL or SQLite path; defaults to <state-dir>/"+DefaultDBFileName+" (overrides $DATABASE_URL)")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn or error (overrides $LOG_LEVEL)")
	f.StringVar(&cfg.GoogleAPIKey, "google-api-key", cfg.GoogleAPIKey, "Google Geocoding API key (overrides $GOOGLE_APIKEY)")
	f.StringVar(&cfg.Locality, "locality", cfg.Locality, "locality geocoding is restricted to (overrides $GEOCODE_LOCALITY)")
	f.StringVar(&cfg.CatalogFile, "catalog", cfg.CatalogFile, "local location catalog used instead of Parse Server (overrides $CATALOG_FILE)")
	f.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "directory of the place tables (overrides $DATA_DIR)")
	f.StringVar(&cfg.ConvoFile, "convo", cfg.ConvoFile, "conversation definition YAML; the built-in one when empty (overrides $CONVO_FILE)")
	f.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis address for the session-number cache (overrides $REDIS_ADDR)")
	f.StringVar(&cfg.TestUser, "test-user", cfg.TestUser, "identifier of scripted runs, excluded from stats (overrides $TEST_USER)")
}

// DSN returns the database DSN, defaulting to SQLite in the state directory.
func (c Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return filepath.Join(c.StateDir, DefaultDBFileName)
}

// TranscriptDir is where test-run transcripts are written.
func (c Config) TranscriptDir() string {
	return filepath.Join(c.StateDir, TranscriptDirName)
}

// parseLogLevel maps a level name to its slog level.
func parseLogLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return l, nil
}

// initializeLogger installs a text handler at level as the default logger.
func initializeLogger(w io.Writer, level string) error {
	l, err := parseLogLevel(level)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l})))
	return nil
}

func init() {
	// Until flags are parsed, only warnings reach stderr.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
}
