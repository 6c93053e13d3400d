package cli

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"storepulse/api/aggregator"
	"storepulse/api/channel"
	"storepulse/api/config"
	"storepulse/api/database"
	"storepulse/api/handlers"
	"storepulse/api/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ingestion and metrics server",
	Long: `Start the storepulse HTTP server.

The server provides:
  - /tracker.js, the injectable storefront script
  - /api/track, the beacon ingestion endpoint
  - /api/stats/:storeId, live metrics per store
  - /health

Example:
  storepulse serve --port 8080`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// App is the wired server: channel, registry and router.
type App struct {
	Bus      *channel.Bus
	Registry *aggregator.Registry
	Router   *gin.Engine
	closers  []func()
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// NewApp connects the optional catalog and backfill databases and builds the
// router. Missing databases degrade to the demo catalog and synthetic seeding.
func NewApp(cfg config.Config) *App {
	app := &App{Bus: channel.NewBus(channel.DefaultTopic)}

	var catalog aggregator.Catalog
	if cfg.DatabaseURL != "" {
		dbClient, err := database.NewPostgresDB(cfg.DatabaseURL)
		if err != nil {
			log.Printf("Catalog database unavailable, using demo catalog: %v", err)
		} else {
			app.closers = append(app.closers, dbClient.Close)
			catalog = store.NewCatalogStore(dbClient.DB)
		}
	}
	if catalog == nil {
		static := store.NewStaticCatalog()
		static.Set("*", store.DemoProducts())
		catalog = static
	}

	opts := []aggregator.Option{
		aggregator.WithSeedPeriods(cfg.SeedMonths),
		aggregator.WithConversionMode(aggregator.ParseConversionMode(cfg.ConversionMode)),
	}
	if cfg.ClickHouse.Enabled() {
		chClient, err := database.NewClickHouseDB(cfg.ClickHouse)
		if err != nil {
			log.Printf("ClickHouse unavailable, seeding synthetically: %v", err)
		} else {
			app.closers = append(app.closers, chClient.Close)
			opts = append(opts, aggregator.WithBackfill(store.NewAnalyticsStore(chClient)))
		}
	}

	app.Registry = aggregator.NewRegistry(aggregator.RegistryConfig{
		DefaultStoreID: cfg.DefaultStoreID,
		TTL:            cfg.TenantTTL,
		Catalog:        catalog,
		Options:        opts,
	})
	app.closers = append(app.closers, app.Bus.Subscribe(app.Registry.Handler()))

	analyticsHandlers := handlers.NewAnalyticsHandlers(app.Registry, app.Bus, handlers.ScriptConfig{
		Endpoint: cfg.Endpoint,
		StoreID:  cfg.DefaultStoreID,
		Platform: cfg.Platform,
		QueueFn:  cfg.QueueFn,
		Topic:    app.Bus.Topic(),
	})

	app.Router = gin.Default()
	handlers.RegisterRoutes(app.Router, analyticsHandlers, cfg.FrontendOrigin, cfg.DefaultStoreID)
	return app
}

func runServe(cmd *cobra.Command, args []string) error {
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	app := NewApp(cfg)
	defer app.Close()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go app.Registry.Run(ctx, cfg.SweepInterval)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: app.Router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("storepulse server starting on http://localhost:%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return err
	}
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	log.Println("Server exiting.")
	return nil
}
