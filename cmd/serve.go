package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/couchmongo/bridge/pkg/config"
	"github.com/couchmongo/bridge/pkg/couchdb"
	"github.com/couchmongo/bridge/pkg/logger"
	"github.com/couchmongo/bridge/pkg/metrics"
	"github.com/couchmongo/bridge/pkg/mongoadapter"
	"github.com/couchmongo/bridge/pkg/views"
	"github.com/couchmongo/bridge/web"
)

// shutdownTimeout bounds graceful shutdown, matching the teacher's
// serveCmd's two-minute grace period, scaled down for a much smaller
// proxy with no long-lived uploads to drain.
const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP proxy",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	if err := logger.Configure(cfg.LogLevel, os.Stderr); err != nil {
		return fmt.Errorf("configure logger: %w", err)
	}
	log := logger.WithNamespace("cmd")

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		return fmt.Errorf("connect to mongo: %w", err)
	}

	registry := prometheus.NewRegistry()
	recorder := metrics.NewPrometheus(registry)

	adapter := mongoadapter.New(client, cfg.Mongo.Database, recorder)

	// docEngine is constructed without a view delegate first: DesignRepo's
	// stored-design-document fallback and UpdateRunner's read-modify-write
	// both need a DocReader/DocWriter, which only docEngine provides, while
	// docEngine itself needs the view delegate built from them. SetViews
	// closes the loop once every other piece exists.
	docEngine := couchdb.NewDocEngine(adapter, nil)

	repo := views.NewDesignRepo(cfg.DesignRepo.ViewsDir, cfg.DesignRepo.UpdatesDir, cfg.DesignRepo.PollInterval, docEngine)
	if err := repo.Start(); err != nil {
		return fmt.Errorf("start design repo: %w", err)
	}
	defer repo.Close()

	viewEngine := views.NewViewEngine(&views.AdapterStream{Adapter: adapter}, repo, recorder)
	updateRunner := views.NewUpdateRunner(repo, docEngine)
	docEngine.SetViews(views.NewEngine(viewEngine, updateRunner))

	server := web.NewServer(docEngine, adapter, recorder, cfg.AllowDBDelete)

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Bind.Addr()).Info("couchmongo-bridge: listening")
		if err := server.Start(cfg.Bind.Addr()); err != nil {
			errCh <- err
		}
	}()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	select {
	case err := <-errCh:
		return err
	case <-sigCtx.Done():
		log.Info("couchmongo-bridge: shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithField("error", err).Warn("graceful shutdown did not complete cleanly")
	}
	return client.Disconnect(shutdownCtx)
}
