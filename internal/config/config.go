package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config holds all configuration for the application
type Config struct {
	// Server settings
	ServerHost   string        `env:"REEL_HOST"`
	ServerPort   int           `env:"PORT" envDefault:"8080"`
	TeamPassword string        `env:"TEAM_PASSWORD"`
	RequireAuth  bool          `env:"REEL_REQUIRE_AUTH" envDefault:"false"`
	CORSOrigins  []string      `env:"REEL_CORS_ORIGINS" envDefault:"*" envSeparator:","`
	WriteTimeout time.Duration `env:"REEL_WRITE_TIMEOUT" envDefault:"10m"`

	// Database settings
	DBDriver string `env:"REEL_DB_DRIVER" envDefault:"sqlite3"`
	DBPath   string `env:"REEL_DB_PATH" envDefault:"./reels.db"`
	DBDSN    string `env:"REEL_DB_DSN"`

	// Object storage settings
	StorageBackend   string `env:"REEL_STORAGE_BACKEND" envDefault:"s3"`
	S3Endpoint       string `env:"REEL_S3_ENDPOINT"`
	S3Region         string `env:"REEL_S3_REGION" envDefault:"us-east-1"`
	S3Bucket         string `env:"REEL_S3_BUCKET" envDefault:"reels_videos"`
	S3AccessKeyID    string `env:"REEL_S3_ACCESS_KEY_ID"`
	S3SecretKey      string `env:"REEL_S3_SECRET_ACCESS_KEY"`
	S3UsePathStyle   bool   `env:"REEL_S3_USE_PATH_STYLE" envDefault:"true"`
	PublicBaseURL    string `env:"REEL_PUBLIC_BASE_URL"`
	LocalStoragePath string `env:"REEL_LOCAL_STORAGE_PATH" envDefault:"./media"`

	// Extraction settings
	YTDLPPath       string        `env:"REEL_YTDLP_PATH" envDefault:"yt-dlp"`
	YTDLPCookies    string        `env:"REEL_YTDLP_COOKIES"`
	ScratchDir      string        `env:"REEL_SCRATCH_DIR"`
	ExtractTimeout  time.Duration `env:"REEL_EXTRACT_TIMEOUT" envDefault:"60s"`
	DownloadTimeout time.Duration `env:"REEL_DOWNLOAD_TIMEOUT" envDefault:"5m"`
	UploadTimeout   time.Duration `env:"REEL_UPLOAD_TIMEOUT" envDefault:"2m"`

	// Import settings
	ImportCSVPath string
	ImportWorkers int `env:"REEL_IMPORT_WORKERS" envDefault:"2"`

	// Log settings
	LogLevel zerolog.Level `env:"REEL_LOG_LEVEL" envDefault:"info"`
}

// ListenAddr returns the formatted listen address for the HTTP server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// IsLocalStorage reports whether media is kept on the local filesystem.
func (c *Config) IsLocalStorage() bool {
	return strings.EqualFold(strings.TrimSpace(c.StorageBackend), StorageLocal)
}

// LocalPublicBaseURL is the URL prefix under which the server itself serves
// locally stored media.
func (c *Config) LocalPublicBaseURL() string {
	if c.PublicBaseURL != "" {
		return c.PublicBaseURL
	}
	host := c.ServerHost
	if host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d%s", host, c.ServerPort, strings.TrimSuffix(LocalMediaRoute, "/"))
}

// Validate checks the settings every command depends on.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			return errors.New("REEL_DB_PATH is required for the sqlite3 driver")
		}
	case DriverPostgres:
		if c.DBDSN == "" {
			return errors.New("REEL_DB_DSN is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported REEL_DB_DRIVER %q (use %s or %s)", c.DBDriver, DriverSQLite, DriverPostgres)
	}

	switch strings.ToLower(c.StorageBackend) {
	case StorageS3:
		if c.S3Bucket == "" || c.S3AccessKeyID == "" || c.S3SecretKey == "" {
			return errors.New("REEL_S3_BUCKET, REEL_S3_ACCESS_KEY_ID and REEL_S3_SECRET_ACCESS_KEY are required for the s3 backend")
		}
		if c.PublicBaseURL == "" {
			return errors.New("REEL_PUBLIC_BASE_URL is required for the s3 backend")
		}
	case StorageLocal:
		if c.LocalStoragePath == "" {
			return errors.New("REEL_LOCAL_STORAGE_PATH is required for the local backend")
		}
	default:
		return fmt.Errorf("unsupported REEL_STORAGE_BACKEND %q (use %s or %s)", c.StorageBackend, StorageS3, StorageLocal)
	}

	if c.ExtractTimeout <= 0 || c.DownloadTimeout <= 0 || c.UploadTimeout <= 0 {
		return errors.New("extract, download and upload timeouts must be positive")
	}
	return nil
}

// ValidateServer additionally requires the shared team password.
// There is no fallback value.
func (c *Config) ValidateServer() error {
	if strings.TrimSpace(c.TeamPassword) == "" {
		return errors.New("TEAM_PASSWORD must be set")
	}
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("invalid PORT %d", c.ServerPort)
	}
	return c.Validate()
}
