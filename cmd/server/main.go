package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/document-export-api/internal/api"
	"github.com/document-export-api/internal/config"
	"github.com/document-export-api/internal/database"
	"github.com/document-export-api/internal/delivery"
	"github.com/document-export-api/internal/exportconfig"
	"github.com/document-export-api/internal/exporter"
	"github.com/document-export-api/internal/metrics"
	"github.com/document-export-api/internal/pdfdoc"
	"github.com/document-export-api/internal/repository"
	"github.com/document-export-api/internal/service"
	"github.com/document-export-api/pkg/logger"
	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/zerolog"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New(logger.Options{})
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger
	log := logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	log.Info().Msg("Starting Document Export API server...")

	// Initialize database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	// Run migrations
	if err := db.RunMigrations(cfg.Database.MigrationsPath); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	if err := pdfdoc.SetupFonts(cfg.Export.PDFFontRegular, cfg.Export.PDFFontBold); err != nil {
		log.Warn().Err(err).Msg("PDF fonts unavailable, falling back to Helvetica")
	}

	defaults, err := exportconfig.LoadDefaultsFile(cfg.Export.DefaultsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load export defaults")
	}
	defaults.SetLocale(cfg.Export.Locale)

	m := metrics.New(nil)

	deliverer, links, err := newDeliverer(context.Background(), cfg, m, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure file delivery")
	}
	if links != nil {
		defer links.Close()
	}

	exp := exporter.New(exporter.NewRegistry(log), defaults, deliverer, log)

	// Initialize repositories
	repos := repository.New(db)

	// Initialize services
	services := service.NewServices(repos, exp, m, cfg, log)

	// Start background job processor
	go services.Job.StartProcessor(context.Background())
	log.Info().Msg("Background job processor started")

	// Initialize router
	router := api.NewRouter(services, api.Options{
		Metrics: m,
		Links:   links,
		Health:  db.HealthCheck,
	}, cfg, log)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.ReadTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("port", cfg.Server.Port).Str("blob_mode", cfg.Storage.BlobMode).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop job processor
	services.Job.StopProcessor()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
		return
	}

	log.Info().Msg("Server exited gracefully")
}

// newDeliverer builds the sinks for the configured blob mode. The link
// registry is returned when files are kept locally so the router can serve
// them.
func newDeliverer(ctx context.Context, cfg *config.Config, m *metrics.Metrics, log zerolog.Logger) (*delivery.Deliverer, *delivery.LinkRegistry, error) {
	var (
		primary, fallback delivery.Sink
		links             *delivery.LinkRegistry
	)

	if cfg.Storage.BlobMode == config.BlobModeLocal || cfg.Storage.BlobMode == config.BlobModeAuto {
		store, err := delivery.NewLocalSink(cfg.Storage.OutputDir)
		if err != nil {
			return nil, nil, err
		}
		links = delivery.NewLinkRegistry(cfg.Server.PublicURL, cfg.Storage.DownloadLinkTTL, log)
		fallback = metrics.InstrumentSink("link", delivery.NewLinkSink(store, links), m)
	}

	if cfg.Storage.BlobMode == config.BlobModeS3 || cfg.Storage.BlobMode == config.BlobModeAuto {
		s3cfg := cfg.Storage.S3
		sink, err := delivery.NewS3Sink(ctx, delivery.S3Options{
			Endpoint:        s3cfg.Endpoint,
			Region:          s3cfg.Region,
			Bucket:          s3cfg.Bucket,
			Prefix:          s3cfg.Prefix,
			AccessKeyID:     s3cfg.AccessKeyID,
			SecretAccessKey: s3cfg.SecretAccessKey,
			UsePathStyle:    s3cfg.UsePathStyle,
			PresignTTL:      s3cfg.PresignTTL,
		})
		if err != nil {
			return nil, nil, err
		}
		primary = metrics.InstrumentSink("s3", sink, m)
	}

	// local mode has no object store, the link sink does the work
	if primary == nil {
		primary, fallback = fallback, nil
	}

	return delivery.NewDeliverer(primary, fallback, log), links, nil
}
