// Dialogd is the conversation orchestration daemon.
//
// It serves the conversation API over HTTP, persisting sessions, budget
// usage and confidence scores to SQLite and retrieving knowledge from
// an embedded or remote vector store.
//
// Usage:
//
//	# Start with defaults (memory store, static analysis provider)
//	dialogd serve
//
//	# Configure via file and environment
//	dialogd serve --config ~/.config/dialogd/config.yaml
//	DIALOGD_SERVER_PORT=9090 dialogd serve
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/fyrsmithlabs/dialogd/internal/analysis"
	"github.com/fyrsmithlabs/dialogd/internal/budget"
	"github.com/fyrsmithlabs/dialogd/internal/confidence"
	"github.com/fyrsmithlabs/dialogd/internal/config"
	dialogdhttp "github.com/fyrsmithlabs/dialogd/internal/http"
	"github.com/fyrsmithlabs/dialogd/internal/knowledge"
	"github.com/fyrsmithlabs/dialogd/internal/logging"
	"github.com/fyrsmithlabs/dialogd/internal/orchestrator"
	"github.com/fyrsmithlabs/dialogd/internal/policy"
	"github.com/fyrsmithlabs/dialogd/internal/session"
	"github.com/fyrsmithlabs/dialogd/internal/telemetry"
	"github.com/fyrsmithlabs/dialogd/internal/usage"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:     "dialogd",
	Short:   "Conversation orchestration daemon",
	Version: version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dialogd HTTP server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return serve(cmd.Context())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(*cobra.Command, []string) {
		fmt.Printf("dialogd by Fyrsmith Labs\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "", "path to config.yaml (default ~/.config/dialogd/config.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// serve wires every service and blocks until the context is cancelled.
func serve(ctx context.Context) error {
	if err := config.EnsureConfigDir(); err != nil {
		return err
	}
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("starting dialogd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("store", cfg.Store.Provider),
		zap.String("llm_provider", cfg.LLM.Provider))

	tel, err := telemetry.New(ctx, &cfg.Telemetry, logger)
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	// Persistence. The sqlite provider shares one handle between the
	// session store, budget ledger, confidence scores and usage records.
	var (
		store          session.Store
		ledger         budget.Ledger
		confidenceRepo confidence.Repository
		sinks          []usage.Sink
	)
	switch cfg.Store.Provider {
	case "sqlite":
		db, err := openDatabase(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer db.Close()

		if store, err = session.NewSQLiteStore(db); err != nil {
			return fmt.Errorf("session store: %w", err)
		}
		if ledger, err = budget.NewSQLiteLedger(db); err != nil {
			return fmt.Errorf("budget ledger: %w", err)
		}
		if confidenceRepo, err = confidence.NewSQLiteRepository(db); err != nil {
			return fmt.Errorf("confidence repository: %w", err)
		}
		sqliteSink, err := usage.NewSQLiteSink(db)
		if err != nil {
			return fmt.Errorf("usage sink: %w", err)
		}
		sinks = append(sinks, sqliteSink)
	default:
		store = session.NewMemoryStore()
		ledger = budget.NewMemoryLedger()
		confidenceRepo = confidence.NewMemoryRepository()
		sinks = append(sinks, usage.NewMemorySink())
	}
	defer store.Close()

	if cfg.NATS.Enabled {
		nc, err := usage.Connect(cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("connect to nats: %w", err)
		}
		defer nc.Close()

		natsSink, err := usage.NewNATSSink(nc, cfg.NATS.SubjectPrefix)
		if err != nil {
			return fmt.Errorf("nats usage sink: %w", err)
		}
		sinks = append(sinks, natsSink)
		logger.Info("publishing usage events to nats", zap.String("url", cfg.NATS.URL))
	}

	// Knowledge store, seeded with the built-in concept corpus. A
	// failed store degrades the turn to no enrichment, not an outage.
	var knowledgeSvc knowledge.Service
	if svc, err := knowledge.New(ctx, cfg.Knowledge, logger); err != nil {
		logger.Warn("knowledge store unavailable, enrichment disabled", zap.Error(err))
	} else {
		knowledgeSvc = svc
		defer knowledgeSvc.Close()
		if err := knowledgeSvc.AddConcepts(ctx, knowledge.DefaultConcepts()); err != nil {
			logger.Warn("seeding knowledge concepts failed", zap.Error(err))
		}
	}

	analysisSvc, err := newAnalysisService(cfg, logger)
	if err != nil {
		return fmt.Errorf("analysis service: %w", err)
	}

	orch, err := orchestrator.New(orchestrator.Deps{
		Store:         store,
		Policy:        policy.NewRuleBased(logger),
		Budget:        budget.NewController(logger, budget.WithDailyBudget(cfg.Budget.DailyBudgetUSD), budget.WithLedger(ledger)),
		Analysis:      analysisSvc,
		Knowledge:     knowledgeSvc,
		Confidence:    confidence.NewEvaluator(confidenceRepo, logger),
		Usage:         usage.NewTracker(logger, sinks...),
		Logger:        logger,
		KnowledgeTopK: cfg.Knowledge.TopK,
	})
	if err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}

	srv, err := dialogdhttp.NewServer(orch, dialogdhttp.NewMetrics(nil), logger, cfg.Server.HTTPConfig())
	if err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("dialogd shutdown complete")
	return nil
}

// openDatabase opens the shared SQLite handle in WAL mode.
func openDatabase(path string) (*sql.DB, error) {
	dsn := path + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// newAnalysisService builds the configured analysis provider.
func newAnalysisService(cfg *config.Config, logger *zap.Logger) (analysis.Service, error) {
	switch cfg.LLM.Provider {
	case "openai":
		opts := []openai.Option{
			openai.WithToken(cfg.LLM.APIKey),
			openai.WithModel(cfg.LLM.Model),
		}
		if cfg.LLM.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.LLM.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("openai client: %w", err)
		}
		return analysis.NewLLMService(llm, logger)
	default:
		return &analysis.StaticService{
			Content: "Thanks for your message. Please share your birth date and time so I can prepare your chart.",
		}, nil
	}
}
