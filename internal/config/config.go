package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/chatwire/sh-msg-platform/internal/log"
)

// Configuration holds the project configuration
type Configuration struct {
	ServerUrl  string
	ServerPort int
	Database   Database `mapstructure:"Database"`
	Cache      Cache    `mapstructure:"Cache"`
	Blob       Blob     `mapstructure:"Blob"`
	Sessions   Sessions `mapstructure:"Sessions"`
	Log        Log      `mapstructure:"Log"`
}

// Database has the database configuration.
// URL: The database connection string. When empty the platform runs in
// filesystem-only mode and the session catalog and credentials are kept
// under Sessions.DataDir.
type Database struct {
	URL string `mapstructure:"Url" tip:"The Datasource name locator"`
}

// Cache configurations
type Cache struct {
	RedisUrl string `mapstructure:"RedisUrl" tip:"The redis url to use as a cache"`
}

// Blob holds the media object storage configuration. Any S3 compatible
// service works; Endpoint may point to a MinIO deployment.
type Blob struct {
	Endpoint  string        `mapstructure:"Endpoint" tip:"S3 compatible endpoint. Empty for AWS"`
	Region    string        `mapstructure:"Region" tip:"Bucket region"`
	AccessKey string        `mapstructure:"AccessKey" tip:"Access key id"`
	SecretKey string        `mapstructure:"SecretKey" tip:"Secret access key"`
	Bucket    string        `mapstructure:"Bucket" tip:"Bucket holding session media"`
	URLExpiry time.Duration `mapstructure:"URLExpiry" tip:"Validity window for signed media urls"`
}

// Sessions groups the session orchestration settings
type Sessions struct {
	DataDir string `mapstructure:"DataDir" tip:"Local root for legacy session directories and filesystem-only mode"`
}

// Log holds runtime configurations
//
// Level: The minimum log level to show on logs. Values can be
//
//	 -4: Debug
//		0: Info
//		4: Warning
//		8: Error
//
// Mode: Log mode is the format of the log. It can be text or json
// 1: JSON
// 2: Text
type Log struct {
	Level int `mapstructure:"Level" tip:"Minimum level to log: (-4:Debug, 0:Info, 4:Warning, 8:Error)"`
	Mode  int `mapstructure:"Mode" tip:"Log format (1: JSON, 2:Structured text)"`
}

const (
	defaultServerPort = 3000
	defaultDataDir    = "./sessions"
	defaultURLExpiry  = 3600 * time.Second
)

// Sanitize performs some basic checks and sanitizations in the configuration.
// Returns nil if config is acceptable, error otherwise.
func (c *Configuration) Sanitize() error {
	if c.ServerPort == 0 {
		c.ServerPort = defaultServerPort
	}
	if c.Sessions.DataDir == "" {
		c.Sessions.DataDir = defaultDataDir
	}
	if c.Blob.URLExpiry <= 0 {
		c.Blob.URLExpiry = defaultURLExpiry
	}
	if c.ServerUrl != "" {
		sUrl, err := c.validateServerUrl()
		if err != nil {
			return fmt.Errorf("serverUrl is not a valid URL <%s>: %w", c.ServerUrl, err)
		}
		c.ServerUrl = sUrl
	}
	return nil
}

// FilesystemOnly tells whether the platform runs without a durable catalog
func (c *Configuration) FilesystemOnly() bool {
	return c.Database.URL == ""
}

func (c *Configuration) validateServerUrl() (string, error) {
	sUrl, err := url.ParseRequestURI(c.ServerUrl)
	if err != nil {
		return c.ServerUrl, err
	}
	if sUrl.Scheme == "" {
		return c.ServerUrl, fmt.Errorf("server URL must be an absolute URL")
	}
	sUrl.RawQuery = ""
	return strings.Trim(strings.Trim(sUrl.String(), "/"), "?"), nil
}

// Load loads the configuration from a file and the GATEWAY_* environment
// variables. A .env file in the working directory is honored when present.
func Load(fileName string) (*Configuration, error) {
	_ = godotenv.Load()
	bindEnv()
	pathFlag := viper.GetString("config")
	if _, err := os.Stat(pathFlag); err == nil {
		ext := filepath.Ext(pathFlag)
		if len(ext) > 1 {
			ext = ext[1:]
		}
		name := strings.Split(filepath.Base(pathFlag), ".")[0]
		viper.AddConfigPath(".")
		viper.SetConfigName(name)
		viper.SetConfigType(ext)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("toml")
		if fileName == "" {
			viper.SetConfigName("config")
		} else {
			viper.SetConfigName(fileName)
		}
	}

	config := &Configuration{
		Log: Log{
			Level: log.LevelDebug,
			Mode:  log.OutputText,
		},
	}
	ctx := context.Background()
	if err := viper.ReadInConfig(); err != nil {
		log.Debug(ctx, "config file not loaded, relying on environment", "err", err)
	}
	if err := viper.Unmarshal(config); err != nil {
		log.Error(ctx, "error unmarshalling config file", "err", err)
	}
	checkEnvVars(ctx, config)
	if err := config.Sanitize(); err != nil {
		return nil, err
	}
	return config, nil
}

func bindEnv() {
	viper.SetEnvPrefix("GATEWAY")
	_ = viper.BindEnv("ServerUrl", "GATEWAY_SERVER_URL")
	_ = viper.BindEnv("ServerPort", "GATEWAY_SERVER_PORT")

	_ = viper.BindEnv("Database.URL", "GATEWAY_DATABASE_URL")

	_ = viper.BindEnv("Cache.RedisUrl", "GATEWAY_REDIS_URL")

	_ = viper.BindEnv("Blob.Endpoint", "GATEWAY_BLOB_ENDPOINT")
	_ = viper.BindEnv("Blob.Region", "GATEWAY_BLOB_REGION")
	_ = viper.BindEnv("Blob.AccessKey", "GATEWAY_BLOB_ACCESS_KEY")
	_ = viper.BindEnv("Blob.SecretKey", "GATEWAY_BLOB_SECRET_KEY")
	_ = viper.BindEnv("Blob.Bucket", "GATEWAY_BLOB_BUCKET")
	_ = viper.BindEnv("Blob.URLExpiry", "GATEWAY_BLOB_URL_EXPIRY")

	_ = viper.BindEnv("Sessions.DataDir", "GATEWAY_SESSIONS_DATA_DIR")

	_ = viper.BindEnv("Log.Level", "GATEWAY_LOG_LEVEL")
	_ = viper.BindEnv("Log.Mode", "GATEWAY_LOG_MODE")

	viper.AutomaticEnv()
}

func checkEnvVars(ctx context.Context, cfg *Configuration) {
	if cfg.Database.URL == "" {
		log.Info(ctx, "GATEWAY_DATABASE_URL value is missing. Running in filesystem-only mode")
	}

	if cfg.Cache.RedisUrl == "" {
		log.Info(ctx, "GATEWAY_REDIS_URL value is missing")
	}

	if cfg.Blob.Bucket == "" {
		log.Info(ctx, "GATEWAY_BLOB_BUCKET value is missing. Media storage disabled")
	}

	if cfg.Blob.Bucket != "" && cfg.Blob.AccessKey == "" {
		log.Info(ctx, "GATEWAY_BLOB_ACCESS_KEY value is missing")
	}

	if cfg.Blob.Bucket != "" && cfg.Blob.SecretKey == "" {
		log.Info(ctx, "GATEWAY_BLOB_SECRET_KEY value is missing")
	}
}
