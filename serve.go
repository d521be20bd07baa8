package main

import (
	"PromptBot/config"
	"PromptBot/handler"
	"PromptBot/metrics"
	"PromptBot/model"
	"PromptBot/repo"
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Telegram bot",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := appConfig
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx := cmd.Context()

	h, err := newPromptBotHandler(ctx, cfg)
	if err != nil {
		return err
	}

	b, err := bot.New(cfg.Telegram.Token, bot.WithDefaultHandler(h.Handler))
	if err != nil {
		return fmt.Errorf("error creating bot: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b.Start(ctx)
		return nil
	})
	if cfg.Metrics.Addr != "" {
		g.Go(func() error {
			return metrics.Serve(ctx, cfg.Metrics.Addr)
		})
	}

	log.Info().
		Str("backend", cfg.Backend.Kind).
		Str("backend_url", cfg.Backend.URL).
		Str("metrics_addr", cfg.Metrics.Addr).
		Msg("bot started")

	err = g.Wait()
	h.Wait()
	log.Info().Msg("bot stopped")
	return err
}

func newGenerator(cfg *config.Config) (repo.Generator, error) {
	if err := cfg.ValidateBackend(); err != nil {
		return nil, err
	}
	return repo.NewGenerator(cfg.Backend.Kind, cfg.Backend.URL, repo.ClientOptions{
		Timeout:    cfg.Backend.Timeout,
		MaxRetries: cfg.Backend.MaxRetries,
		RetryDelay: cfg.Backend.RetryDelay,
	})
}

// newPromptBotHandler wires the handler with whichever optional stores are configured.
func newPromptBotHandler(ctx context.Context, cfg *config.Config) (*handler.PromptBotHandler, error) {
	catalog, err := model.LoadCatalog(cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("error loading catalog: %w", err)
	}
	gen, err := newGenerator(cfg)
	if err != nil {
		return nil, err
	}
	h := handler.NewPromptBotHandler(catalog, gen, cfg.Backend.Kind)

	if cfg.FirebaseEnabled() {
		fc, err := repo.NewFirebaseConnector(ctx, cfg.Firebase.ServiceAccountKeyPath, cfg.Firebase.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("error initializing Firebase: %w", err)
		}
		h.Archive = fc
		log.Info().Msg("generation history enabled")
	}

	if cfg.StorageEnabled() {
		store, err := repo.NewImageStore(ctx, repo.StoreOptions{
			Endpoint:  cfg.Storage.Endpoint,
			Region:    cfg.Storage.Region,
			Bucket:    cfg.Storage.Bucket,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			URLExpiry: cfg.Storage.URLExpiry,
			PathStyle: cfg.Storage.PathStyle,
		})
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		h.Mirror = store
		log.Info().Str("bucket", cfg.Storage.Bucket).Msg("image mirror enabled")
	} else {
		h.Files = repo.NewImageService(cfg.Telegram.Token)
	}

	return h, nil
}
