package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix              = "CLUBSITE"
	defaultHTTPAddress     = "0.0.0.0:8080"
	defaultDatabasePath    = "clubsite.db"
	defaultLogLevel        = "info"
	defaultBlobsBackend    = BlobsBackendFileSystem
	defaultBlobsDirectory  = "blobs"
	defaultBlobsPublicURL  = "/blobs"
	defaultBlobsNamespace  = "project-images"
	defaultConfirmTTL      = 600
	defaultUploadsMaxBytes = 5 << 20
	defaultSiteName        = "EyeQ Club"
)

// Blob backends.
const (
	BlobsBackendFileSystem = "filesystem"
	BlobsBackendS3         = "s3"
)

// AppConfig captures runtime configuration for the site.
type AppConfig struct {
	HTTPAddress     string
	DatabasePath    string
	LogLevel        string
	SiteName        string
	BlobsBackend    string
	BlobsDirectory  string
	BlobsPublicURL  string
	BlobsNamespace  string
	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	NATSURL         string
	ConfirmSecret   string
	ConfirmTTL      time.Duration
	UploadsMaxBytes int64
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("site.name", defaultSiteName)
	configViper.SetDefault("blobs.backend", defaultBlobsBackend)
	configViper.SetDefault("blobs.directory", defaultBlobsDirectory)
	configViper.SetDefault("blobs.public_base_url", defaultBlobsPublicURL)
	configViper.SetDefault("blobs.namespace", defaultBlobsNamespace)
	configViper.SetDefault("confirm.ttl_seconds", defaultConfirmTTL)
	configViper.SetDefault("uploads.max_bytes", defaultUploadsMaxBytes)
	// Keys without defaults are read from the environment as well.
	for _, key := range []string{"s3.bucket", "s3.region", "s3.endpoint", "nats.url", "confirm.signing_secret"} {
		_ = configViper.BindEnv(key)
	}
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:     configViper.GetString("http.address"),
		DatabasePath:    configViper.GetString("database.path"),
		LogLevel:        configViper.GetString("log.level"),
		SiteName:        configViper.GetString("site.name"),
		BlobsBackend:    strings.ToLower(strings.TrimSpace(configViper.GetString("blobs.backend"))),
		BlobsDirectory:  configViper.GetString("blobs.directory"),
		BlobsPublicURL:  configViper.GetString("blobs.public_base_url"),
		BlobsNamespace:  configViper.GetString("blobs.namespace"),
		S3Bucket:        configViper.GetString("s3.bucket"),
		S3Region:        configViper.GetString("s3.region"),
		S3Endpoint:      configViper.GetString("s3.endpoint"),
		NATSURL:         configViper.GetString("nats.url"),
		ConfirmSecret:   configViper.GetString("confirm.signing_secret"),
		ConfirmTTL:      time.Duration(configViper.GetInt("confirm.ttl_seconds")) * time.Second,
		UploadsMaxBytes: configViper.GetInt64("uploads.max_bytes"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.ConfirmSecret) == "" {
		return fmt.Errorf("confirm.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.ConfirmTTL <= 0 {
		return fmt.Errorf("confirm.ttl_seconds must be positive")
	}
	if c.UploadsMaxBytes <= 0 {
		return fmt.Errorf("uploads.max_bytes must be positive")
	}
	switch c.BlobsBackend {
	case BlobsBackendFileSystem:
		if strings.TrimSpace(c.BlobsDirectory) == "" {
			return fmt.Errorf("blobs.directory is required for the filesystem backend")
		}
		publicURL, err := url.Parse(c.BlobsPublicURL)
		if err != nil || strings.Trim(publicURL.Path, "/") == "" {
			return fmt.Errorf("blobs.public_base_url must name a path for the filesystem backend, got %q", c.BlobsPublicURL)
		}
	case BlobsBackendS3:
		if strings.TrimSpace(c.S3Bucket) == "" {
			return fmt.Errorf("s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("blobs.backend must be %q or %q, got %q", BlobsBackendFileSystem, BlobsBackendS3, c.BlobsBackend)
	}
	return nil
}
