package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/morannon-ai/morannon/internal/audit"
	"github.com/morannon-ai/morannon/internal/auth"
	"github.com/morannon-ai/morannon/internal/corpus"
	"github.com/morannon-ai/morannon/internal/gate"
	"github.com/morannon-ai/morannon/internal/platform/config"
	"github.com/morannon-ai/morannon/internal/platform/database"
	"github.com/morannon-ai/morannon/internal/platform/server"
	"github.com/morannon-ai/morannon/internal/platform/telemetry"
	"github.com/morannon-ai/morannon/internal/policy"
	"github.com/morannon-ai/morannon/internal/retrieval"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logging
	logger := telemetry.NewLogger(cfg.Log.Level, cfg.Log.Format)
	telemetry.SetDefault(logger)

	slog.Info("morannon starting",
		"version", "0.1.0",
		"port", cfg.Server.Port,
	)

	// Connect to database (optional for startup)
	ctx := context.Background()
	var pool *database.Pool

	if cfg.Database.URL != "" {
		slog.Info("connecting to database")
		p, err := database.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			slog.Warn("database connection failed, starting without DB", "error", err)
		} else {
			pool = p
			defer pool.Close()

			migrationsURL := fmt.Sprintf("file://%s", cfg.Database.MigrationsPath)
			if err := database.RunMigrations(cfg.Database.URL, migrationsURL); err != nil {
				return fmt.Errorf("running migrations: %w", err)
			}
			slog.Info("migrations complete")
		}
	}

	// Auth
	tokenSvc := auth.NewTokenService(
		cfg.Auth.JWT.SigningKey,
		cfg.Auth.JWT.Issuer,
		cfg.Auth.JWT.ExpiryHours,
	)

	// Policy engine — loaded once at startup; a bad bundle is fatal here,
	// never deferred to request time.
	var engineOpts []policy.EngineOption
	initial := policy.DefaultSnapshot()
	if cfg.Policy.BundlePath != "" {
		loader := &policy.FileLoader{Path: cfg.Policy.BundlePath}
		snap, err := loader.Load()
		if err != nil {
			return fmt.Errorf("loading policy bundle: %w", err)
		}
		initial = snap
		engineOpts = append(engineOpts, policy.WithLoader(loader))
	} else {
		slog.Warn("no policy bundle configured, using built-in default policy")
	}
	engine := policy.NewEngine(initial, engineOpts...)
	slog.Info("policy loaded", "version", engine.Current().Version())

	// Audit
	broadcaster := audit.NewBroadcaster()
	var auditLogger audit.Logger = audit.NopLogger{}
	if pool != nil {
		auditStore := audit.NewStore()
		auditLogger = audit.NewAsyncLogger(pool, auditStore, audit.LoggerConfig{
			BufferSize:    cfg.Audit.BufferSize,
			BatchSize:     cfg.Audit.BatchSize,
			FlushInterval: time.Duration(cfg.Audit.FlushInterval) * time.Millisecond,
		}, audit.WithBroadcaster(broadcaster))
		defer auditLogger.Close()
		slog.Info("audit logger started")
	}
	// The live tail carries the same role requirement as the REST
	// events route.
	auditHandler := audit.NewHandler(pool, broadcaster, tokenSvc, policy.RoleFunc(engine, "dept_admin"))

	// Access-control pipeline
	builder := policy.NewBuilder(engine, auditLogger)
	retrievalGate := gate.New(auditLogger)
	verifier := gate.NewVerifier(auditLogger)
	policyHandler := policy.NewHandler(engine, builder, auditLogger)

	// Corpus (ingestion) and retrieval
	tagger := corpus.NewTagger(engine, auditLogger)
	var corpusStore *corpus.Store
	var searcher retrieval.Searcher = retrieval.NopSearcher{}
	if pool != nil {
		corpusStore = corpus.NewStore(pool)
		searcher = corpusStore
	}
	corpusHandler := corpus.NewHandler(tagger, corpusStore)
	retrievalHandler := retrieval.NewHandler(builder, searcher, retrieval.StubGenerator{}, retrievalGate, verifier)

	// Dev mode principal
	var devPrincipal *auth.Principal
	var devHandler *auth.DevHandler
	if cfg.Auth.DevMode {
		slog.Warn("running in dev mode — authentication bypassed with 'Bearer dev'")
		devPrincipal = &auth.Principal{
			Subject:   "dev-user",
			Tenant:    "dev-tenant",
			Roles:     []string{"admin"},
			StepUp:    true,
			TokenType: "access",
		}
		devHandler = auth.NewDevHandler(tokenSvc)
	}

	// Create and start server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := server.New(addr, server.Dependencies{
		Pool:               pool,
		Auth:               tokenSvc,
		DevHandler:         devHandler,
		PolicyEngine:       engine,
		PolicyHandler:      policyHandler,
		RetrievalHandler:   retrievalHandler,
		CorpusHandler:      corpusHandler,
		AuditHandler:       auditHandler,
		AuditLogger:        auditLogger,
		DevMode:            cfg.Auth.DevMode,
		DevPrincipal:       devPrincipal,
		Logger:             logger,
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
	})

	// Graceful shutdown on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("server ready", "addr", addr, "dev_mode", cfg.Auth.DevMode)
	return srv.Start(ctx)
}
