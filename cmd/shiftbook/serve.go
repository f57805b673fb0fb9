package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/shiftbook/internal/anthropic"
	"github.com/MikeSquared-Agency/shiftbook/internal/api"
	"github.com/MikeSquared-Agency/shiftbook/internal/archive"
	"github.com/MikeSquared-Agency/shiftbook/internal/catalog"
	"github.com/MikeSquared-Agency/shiftbook/internal/config"
	"github.com/MikeSquared-Agency/shiftbook/internal/gemini"
	"github.com/MikeSquared-Agency/shiftbook/internal/hermes"
	"github.com/MikeSquared-Agency/shiftbook/internal/importer"
	"github.com/MikeSquared-Agency/shiftbook/internal/llm"
	"github.com/MikeSquared-Agency/shiftbook/internal/qa"
	"github.com/MikeSquared-Agency/shiftbook/internal/ratelimit"
	"github.com/MikeSquared-Agency/shiftbook/internal/store"
	"github.com/MikeSquared-Agency/shiftbook/internal/structuring"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		migrate, _ := cmd.Flags().GetBool("migrate")
		return serve(migrate)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Bool("migrate", true, "apply database migrations before serving")
}

func serve(migrate bool) error {
	slog.Info("shiftbook starting", "port", cfg.Port)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	db, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer db.Close()
	if migrate {
		if err := db.Migrate(ctx); err != nil {
			return err
		}
	}
	slog.Info("database connected")

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	// LLM providers
	guard, err := newGuard(ctx, cfg)
	if err != nil {
		return err
	}

	// Bulletin archive (optional)
	var arch archive.Archiver = archive.Inline{}
	mcfg := archive.Config{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	}
	if mcfg.Enabled() {
		m, err := archive.NewMinIO(ctx, mcfg)
		if err != nil {
			return fmt.Errorf("connect archive: %w", err)
		}
		arch = m
		slog.Info("bulletin archive ready", "endpoint", cfg.MinioEndpoint, "bucket", cfg.MinioBucket)
	} else {
		slog.Warn("MINIO_ENDPOINT not set, bulletins are not archived")
	}

	// NATS/Hermes (optional)
	var pub hermes.Publisher
	if cfg.NatsURL != "" {
		hermesClient, err := hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer hermesClient.Close()
		pub = hermesClient
		slog.Info("NATS connected", "url", cfg.NatsURL)
	} else {
		slog.Warn("NATS_URL not set, import events are not published")
	}

	loc := cfg.Location()
	answers := qa.NewExecutor(db, cat, cfg.QANextLimit, slog.Default())
	imp := importer.New(importer.Deps{
		Sessions:   db.Sessions(),
		Schedule:   db,
		Directory:  db,
		Reader:     guard,
		Structurer: structuring.New(guard, cat, slog.Default()),
		Catalog:    cat,
		Archive:    arch,
		Events:     hermes.NewEmitter(pub, slog.Default()),
		QA:         answers,
		Location:   loc,
		Logger:     slog.Default(),
	})

	srv := api.NewServer(api.Options{
		Port:     cfg.Port,
		Turns:    imp,
		Sessions: db.Sessions(),
		QA:       answers,
		Limiter:  ratelimit.New(cfg.HTTPRatePerSecond, cfg.HTTPRatePerSecond*2, slog.Default()),
		Location: loc,
		Logger:   slog.Default(),
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	slog.Info("shiftbook ready", "port", cfg.Port, "provider", cfg.LLMProvider, "timezone", loc.String())

	// Graceful shutdown
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", "error", err)
	}
	slog.Info("shiftbook stopped")
	return nil
}

func openStore(ctx context.Context) (*store.Store, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return db, nil
}

// newGuard builds the structuring model and document reader for the
// configured provider. A Gemini key, when present, always serves document
// reading.
func newGuard(ctx context.Context, cfg config.Config) (*llm.Guard, error) {
	var completer llm.Completer
	var reader llm.DocumentReader

	var gem *gemini.Client
	if cfg.GeminiAPIKey != "" {
		g, err := gemini.NewClient(ctx, gemini.Options{APIKey: cfg.GeminiAPIKey, Model: cfg.GeminiModel})
		if err != nil {
			return nil, err
		}
		gem = g
		reader = g
	}

	switch cfg.LLMProvider {
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return nil, errors.New("ANTHROPIC_API_KEY is required")
		}
		c := anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
		completer = c
		if reader == nil {
			reader = c
		}
		slog.Info("anthropic client ready", "model", cfg.AnthropicModel)
	case "gemini":
		if gem == nil {
			return nil, errors.New("GEMINI_API_KEY is required")
		}
		completer = gem
		slog.Info("gemini client ready", "model", cfg.GeminiModel)
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q", cfg.LLMProvider)
	}

	return llm.NewGuard(completer, reader, llm.GuardConfig{
		Timeout:       cfg.AdapterTimeout,
		RatePerMinute: cfg.LLMRatePerMinute,
		MaxAttempts:   cfg.RetryMaxAttempts,
		BaseDelay:     cfg.RetryBaseDelay,
		MaxDelay:      10 * time.Second,
	}, slog.Default()), nil
}

