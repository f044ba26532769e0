package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/clubsite/internal/blobs"
	"github.com/MarcoPoloResearchLab/clubsite/internal/cache"
	"github.com/MarcoPoloResearchLab/clubsite/internal/changes"
	"github.com/MarcoPoloResearchLab/clubsite/internal/config"
	"github.com/MarcoPoloResearchLab/clubsite/internal/database"
	"github.com/MarcoPoloResearchLab/clubsite/internal/forms"
	"github.com/MarcoPoloResearchLab/clubsite/internal/gallery"
	"github.com/MarcoPoloResearchLab/clubsite/internal/logging"
	"github.com/MarcoPoloResearchLab/clubsite/internal/records"
	"github.com/MarcoPoloResearchLab/clubsite/internal/server"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "clubsite",
		Short: "Club website with project and event galleries",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("site-name", defaults.GetString("site.name"), "Club name shown on every page")
	cmd.PersistentFlags().String("blobs-backend", defaults.GetString("blobs.backend"), "Image store backend (filesystem, s3)")
	cmd.PersistentFlags().String("blobs-directory", defaults.GetString("blobs.directory"), "Image directory for the filesystem backend")
	cmd.PersistentFlags().String("s3-bucket", "", "Image bucket for the s3 backend")
	cmd.PersistentFlags().String("s3-endpoint", "", "S3-compatible endpoint URL")
	cmd.PersistentFlags().String("nats-url", "", "NATS URL for change notices (disabled when empty)")
	cmd.PersistentFlags().String("signing-secret", "", "Delete confirmation signing secret (overrides env)")
	cmd.PersistentFlags().Int64("uploads-max-bytes", defaults.GetInt64("uploads.max_bytes"), "Maximum image upload size in bytes")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "site.name", "site-name")
	bindFlag(cmd, "blobs.backend", "blobs-backend")
	bindFlag(cmd, "blobs.directory", "blobs-directory")
	bindFlag(cmd, "s3.bucket", "s3-bucket")
	bindFlag(cmd, "s3.endpoint", "s3-endpoint")
	bindFlag(cmd, "nats.url", "nats-url")
	bindFlag(cmd, "confirm.signing_secret", "signing-secret")
	bindFlag(cmd, "uploads.max_bytes", "uploads-max-bytes")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.SiteName)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	gin.SetMode(gin.ReleaseMode)

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	rows, err := records.NewService(records.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: records.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	blobStore, blobsDirectory, err := openBlobStore(ctx, appConfig, logger)
	if err != nil {
		return err
	}

	publisher, err := openPublisher(appConfig, logger)
	if err != nil {
		return err
	}
	defer publisher.Close() //nolint:errcheck

	dispatcher := changes.NewDispatcher()
	hub := changes.NewHub(publisher, logger, dispatcher.Publish)

	listCache, err := cache.New(cache.Config{Lister: rows, Logger: logger})
	if err != nil {
		return err
	}

	confirmer, err := gallery.NewConfirmer(gallery.ConfirmerConfig{
		SigningSecret: []byte(appConfig.ConfirmSecret),
		TTL:           appConfig.ConfirmTTL,
	})
	if err != nil {
		return err
	}

	formDeps := forms.Dependencies{
		Rows:     rows,
		Blobs:    blobStore,
		Notifier: hub,
		Logger:   logger,
	}
	projects, err := gallery.New(gallery.Config{
		Table:     records.TableProjects,
		Cache:     listCache,
		Forms:     formDeps,
		Confirmer: confirmer,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	events, err := gallery.New(gallery.Config{
		Table:     records.TableEvents,
		Cache:     listCache,
		Forms:     formDeps,
		Confirmer: confirmer,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	contact, err := forms.NewContactService(rows, hub, logger)
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Projects:        projects,
		Events:          events,
		Contact:         contact,
		Cache:           listCache,
		Changes:         dispatcher,
		Site:            server.DefaultSite(appConfig.SiteName),
		BlobsDirectory:  blobsDirectory,
		BlobsPublicPath: appConfig.BlobsPublicURL,
		MaxUploadBytes:  appConfig.UploadsMaxBytes,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// openBlobStore returns the configured image store and, for the filesystem
// backend, the directory the HTTP server should expose.
func openBlobStore(ctx context.Context, appConfig config.AppConfig, logger *zap.Logger) (blobs.Store, string, error) {
	switch appConfig.BlobsBackend {
	case config.BlobsBackendS3:
		store, err := blobs.NewS3Store(ctx, blobs.S3Config{
			Bucket:        appConfig.S3Bucket,
			Region:        appConfig.S3Region,
			Endpoint:      appConfig.S3Endpoint,
			Namespace:     appConfig.BlobsNamespace,
			PublicBaseURL: s3PublicBaseURL(appConfig),
		})
		if err != nil {
			return nil, "", err
		}
		logger.Info("image store ready", zap.String("backend", "s3"), zap.String("bucket", appConfig.S3Bucket))
		return store, "", nil
	default:
		store, err := blobs.NewFileSystemStore(blobs.FileSystemConfig{
			Directory:     appConfig.BlobsDirectory,
			Namespace:     appConfig.BlobsNamespace,
			PublicBaseURL: appConfig.BlobsPublicURL,
			Logger:        logger,
		})
		if err != nil {
			return nil, "", err
		}
		logger.Info("image store ready", zap.String("backend", "filesystem"), zap.String("directory", store.Directory()))
		return store, store.Directory(), nil
	}
}

// s3PublicBaseURL keeps the filesystem default of /blobs from leaking into S3 URLs.
func s3PublicBaseURL(appConfig config.AppConfig) string {
	if appConfig.BlobsPublicURL == "/blobs" {
		return ""
	}
	return appConfig.BlobsPublicURL
}

func openPublisher(appConfig config.AppConfig, logger *zap.Logger) (changes.Publisher, error) {
	if appConfig.NATSURL == "" {
		return changes.NoopPublisher{}, nil
	}
	publisher, err := changes.NewNATSPublisher(appConfig.NATSURL, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("change notices publishing to NATS", zap.String("url", appConfig.NATSURL))
	return publisher, nil
}
