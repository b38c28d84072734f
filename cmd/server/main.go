package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/org/gitgateway/internal/api"
	"github.com/org/gitgateway/internal/audit"
	"github.com/org/gitgateway/internal/execer"
	"github.com/org/gitgateway/internal/ghtoken"
	"github.com/org/gitgateway/internal/policy"
	"github.com/org/gitgateway/internal/session"
	"github.com/org/gitgateway/internal/storage"
	"github.com/org/gitgateway/internal/visibility"
	"github.com/org/gitgateway/pkg/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// identityConfig configures one credential identity. App-backed identities
// set app_id/installation_id/private_key_file; static identities set
// token_env (the token itself never lives in the config file).
type identityConfig struct {
	AppID          int64  `yaml:"app_id"`
	InstallationID int64  `yaml:"installation_id"`
	PrivateKeyFile string `yaml:"private_key_file"`
	TokenEnv       string `yaml:"token_env"`
	BaseURL        string `yaml:"base_url"`
}

type config struct {
	ListenAddr         string                    `yaml:"listen_addr"`
	TLSCertFile        string                    `yaml:"tls_cert"`
	TLSKeyFile         string                    `yaml:"tls_key"`
	DBUrl              string                    `yaml:"db_url"`
	MigrationsDir      string                    `yaml:"migrations_dir"`
	LogLevel           string                    `yaml:"log_level"`
	LauncherSecretHash string                    `yaml:"launcher_secret_hash"`
	SessionTTL         string                    `yaml:"session_ttl"`
	RulesFile          string                    `yaml:"rules_file"`
	WorkDir            string                    `yaml:"work_dir"`
	GitPath            string                    `yaml:"git_path"`
	GhPath             string                    `yaml:"gh_path"`
	CommandTimeout     string                    `yaml:"command_timeout"`
	VisibilityCacheTTL string                    `yaml:"visibility_cache_ttl"`
	Identities         map[string]identityConfig `yaml:"identities"`
}

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load config
	cfgFile := "config.yaml"
	if v := os.Getenv("GATEWAY_CONFIG"); v != "" {
		cfgFile = v
	}

	cfg := config{
		ListenAddr:    ":8400",
		MigrationsDir: "migrations",
		LogLevel:      "info",
	}

	if data, err := os.ReadFile(cfgFile); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatal().Err(err).Msg("failed to parse config")
		}
	} else {
		log.Warn().Str("file", cfgFile).Msg("config file not found, using defaults")
	}

	// Env overrides
	if v := os.Getenv("GATEWAY_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DBUrl = v
	}
	if v := os.Getenv("GATEWAY_LAUNCHER_SECRET_HASH"); v != "" {
		cfg.LauncherSecretHash = v
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LauncherSecretHash == "" {
		log.Fatal().Msg("launcher_secret_hash must be configured (or GATEWAY_LAUNCHER_SECRET_HASH env var)")
	}

	ctx := context.Background()

	// Audit store: Postgres when configured, in-memory ring buffer otherwise.
	var store storage.AuditStore
	if cfg.DBUrl != "" {
		pg, err := storage.NewPostgresStore(ctx, cfg.DBUrl)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		if err := storage.RunMigrations(cfg.DBUrl, cfg.MigrationsDir); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations")
		}
		log.Info().Msg("migrations applied")
		store = pg
	} else {
		log.Warn().Msg("db_url not configured, audit events held in memory only")
		store = storage.NewMemoryStore(0)
	}
	defer store.Close()

	// Credential identities
	tokens := ghtoken.NewRefresher(0, 0)
	for name, ic := range cfg.Identities {
		switch {
		case ic.TokenEnv != "":
			token := os.Getenv(ic.TokenEnv)
			if token == "" {
				log.Fatal().Str("identity", name).Str("env", ic.TokenEnv).Msg("identity token env var is empty")
			}
			tokens.AddStaticIdentity(name, token)
		case ic.AppID != 0:
			pem, err := os.ReadFile(ic.PrivateKeyFile)
			if err != nil {
				log.Fatal().Err(err).Str("identity", name).Msg("failed to read app private key")
			}
			if err := tokens.AddAppIdentity(name, ic.AppID, ic.InstallationID, pem, ic.BaseURL); err != nil {
				log.Fatal().Err(err).Str("identity", name).Msg("failed to register app identity")
			}
		default:
			log.Fatal().Str("identity", name).Msg("identity needs app_id or token_env")
		}
		log.Info().Str("identity", name).Msg("credential identity registered")
	}

	// Visibility resolver: bot credential first, then the user credential.
	var creds []visibility.Credential
	for _, name := range []string{models.IdentityBot, models.IdentityUser} {
		ic, ok := cfg.Identities[name]
		if !ok {
			continue
		}
		creds = append(creds, visibility.NewGithubCredential(name, tokens, ic.BaseURL))
	}
	if len(creds) == 0 {
		log.Fatal().Msg("at least one of the bot or user identities must be configured")
	}
	resolver := visibility.NewResolver(creds, parseDuration(cfg.VisibilityCacheTTL, 0))

	// Policy engine
	rules := policy.DefaultRules()
	if cfg.RulesFile != "" {
		rules, err = policy.LoadRules(cfg.RulesFile)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load rules file")
		}
	}
	var prs policy.PRChecker
	if ic, ok := cfg.Identities[models.IdentityBot]; ok {
		prs = policy.NewGithubPRChecker(models.IdentityBot, tokens, ic.BaseURL)
	}
	engine := policy.NewEngine(rules, resolver, prs)

	// Sessions, subprocess runner, audit pipeline
	sessions := session.NewManager(cfg.LauncherSecretHash, parseDuration(cfg.SessionTTL, 0))
	runner := execer.NewRunner(cfg.GitPath, cfg.GhPath, parseDuration(cfg.CommandTimeout, 0))
	auditor := audit.NewLogger(store)
	defer auditor.Close()

	go purgeLoop(sessions)

	srv := api.NewServer(sessions, engine, resolver, tokens, runner, auditor, api.Config{
		ListenAddr:  cfg.ListenAddr,
		TLSCertFile: cfg.TLSCertFile,
		TLSKeyFile:  cfg.TLSKeyFile,
		WorkDir:     cfg.WorkDir,
		RulesFile:   cfg.RulesFile,
	})

	// Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	log.Info().Str("addr", cfg.ListenAddr).Msg("gateway started")
	<-quit

	log.Info().Msg("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	log.Info().Msg("gateway stopped")
}

// parseDuration returns fallback on empty or malformed input; callers pass
// zero to select the component's own default.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		log.Warn().Str("value", s).Msg("invalid duration in config, using default")
		return fallback
	}
	return d
}

func purgeLoop(sessions *session.Manager) {
	t := time.NewTicker(10 * time.Minute)
	defer t.Stop()
	for range t.C {
		if n := sessions.PurgeExpired(); n > 0 {
			log.Info().Int("purged", n).Msg("expired sessions removed")
		}
	}
}
