// backend-go/internal/config/config.go
package config

import (
	"log"
	"os"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Store    StoreConfig
	Ingest   IngestConfig
	Biorxiv  BiorxivConfig
}

type ServerConfig struct {
	Port           string
	Mode           string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	URL      string // full connection URL, wins over the discrete fields
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type CacheConfig struct {
	Enabled            bool
	RedisURL           string
	RedisHost          string
	RedisPort          string
	RedisPassword      string
	RedisDB            int
	ManifestTTLSeconds int
}

// StoreConfig describes the remote object store holding the archive corpus.
type StoreConfig struct {
	Backend       string // "s3" or "local"
	Endpoint      string
	Bucket        string
	Region        string
	AccessKey     string
	SecretKey     string
	UseSSL        bool
	RequesterPays bool
	LocalRoot     string // root dir when Backend == "local"
}

type IngestConfig struct {
	Prefix         string
	Concurrency    int
	ScratchDir     string
	MaxAttempts    int
	RetryBackoffMS int
	MaxBackoffMS   int
	StaleAfterMin  int
}

type BiorxivConfig struct {
	BaseURL   string
	TimeoutMS int
}

var (
	once     sync.Once
	instance *Config
)

func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		// Set default values
		viper.SetDefault("SERVER_PORT", "8080")
		viper.SetDefault("SERVER_MODE", "debug")
		viper.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})
		viper.SetDefault("DATABASE_URL", "")
		viper.SetDefault("DB_HOST", "localhost")
		viper.SetDefault("DB_PORT", "5432")
		viper.SetDefault("DB_USER", "postgres")
		viper.SetDefault("DB_PASSWORD", "postgres")
		viper.SetDefault("DB_NAME", "paperview")
		viper.SetDefault("DB_SSLMODE", "disable")
		viper.SetDefault("CACHE_ENABLED", false)
		viper.SetDefault("REDIS_URL", "")
		viper.SetDefault("REDIS_HOST", "127.0.0.1")
		viper.SetDefault("REDIS_PORT", "6379")
		viper.SetDefault("REDIS_PASSWORD", "")
		viper.SetDefault("REDIS_DB", 0)
		viper.SetDefault("CACHE_MANIFEST_TTL_SECONDS", 86400)
		viper.SetDefault("STORE_BACKEND", "s3")
		viper.SetDefault("STORE_ENDPOINT", "s3.amazonaws.com")
		viper.SetDefault("STORE_BUCKET", "biorxiv-src-monthly")
		viper.SetDefault("STORE_REGION", "us-east-1")
		viper.SetDefault("STORE_ACCESS_KEY", "")
		viper.SetDefault("STORE_SECRET_KEY", "")
		viper.SetDefault("STORE_USE_SSL", true)
		viper.SetDefault("STORE_REQUESTER_PAYS", true)
		viper.SetDefault("STORE_LOCAL_ROOT", "./data/store")
		viper.SetDefault("INGEST_PREFIX", "")
		viper.SetDefault("INGEST_CONCURRENCY", 4)
		viper.SetDefault("INGEST_SCRATCH_DIR", "./data/scratch")
		viper.SetDefault("INGEST_MAX_ATTEMPTS", 3)
		viper.SetDefault("INGEST_RETRY_BACKOFF_MS", 500)
		viper.SetDefault("INGEST_MAX_BACKOFF_MS", 10000)
		viper.SetDefault("INGEST_STALE_AFTER_MIN", 120)
		viper.SetDefault("BIORXIV_BASE_URL", "https://api.biorxiv.org")
		viper.SetDefault("BIORXIV_TIMEOUT_MS", 15000)

		// Read from environment variables
		viper.AutomaticEnv()

		// Scratch space must exist before any run starts
		ensureDir(viper.GetString("INGEST_SCRATCH_DIR"))

		instance = &Config{
			Server: ServerConfig{
				Port:           viper.GetString("SERVER_PORT"),
				Mode:           viper.GetString("SERVER_MODE"),
				ReadTimeout:    viper.GetInt("SERVER_READ_TIMEOUT"),
				WriteTimeout:   viper.GetInt("SERVER_WRITE_TIMEOUT"),
				AllowedOrigins: viper.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
			},
			Database: DatabaseConfig{
				URL:      viper.GetString("DATABASE_URL"),
				Host:     viper.GetString("DB_HOST"),
				Port:     viper.GetString("DB_PORT"),
				User:     viper.GetString("DB_USER"),
				Password: viper.GetString("DB_PASSWORD"),
				DBName:   viper.GetString("DB_NAME"),
				SSLMode:  viper.GetString("DB_SSLMODE"),
			},
			Cache: CacheConfig{
				Enabled:            viper.GetBool("CACHE_ENABLED"),
				RedisURL:           viper.GetString("REDIS_URL"),
				RedisHost:          viper.GetString("REDIS_HOST"),
				RedisPort:          viper.GetString("REDIS_PORT"),
				RedisPassword:      viper.GetString("REDIS_PASSWORD"),
				RedisDB:            viper.GetInt("REDIS_DB"),
				ManifestTTLSeconds: viper.GetInt("CACHE_MANIFEST_TTL_SECONDS"),
			},
			Store: StoreConfig{
				Backend:       viper.GetString("STORE_BACKEND"),
				Endpoint:      viper.GetString("STORE_ENDPOINT"),
				Bucket:        viper.GetString("STORE_BUCKET"),
				Region:        viper.GetString("STORE_REGION"),
				AccessKey:     viper.GetString("STORE_ACCESS_KEY"),
				SecretKey:     viper.GetString("STORE_SECRET_KEY"),
				UseSSL:        viper.GetBool("STORE_USE_SSL"),
				RequesterPays: viper.GetBool("STORE_REQUESTER_PAYS"),
				LocalRoot:     viper.GetString("STORE_LOCAL_ROOT"),
			},
			Ingest: IngestConfig{
				Prefix:         viper.GetString("INGEST_PREFIX"),
				Concurrency:    viper.GetInt("INGEST_CONCURRENCY"),
				ScratchDir:     viper.GetString("INGEST_SCRATCH_DIR"),
				MaxAttempts:    viper.GetInt("INGEST_MAX_ATTEMPTS"),
				RetryBackoffMS: viper.GetInt("INGEST_RETRY_BACKOFF_MS"),
				MaxBackoffMS:   viper.GetInt("INGEST_MAX_BACKOFF_MS"),
				StaleAfterMin:  viper.GetInt("INGEST_STALE_AFTER_MIN"),
			},
			Biorxiv: BiorxivConfig{
				BaseURL:   viper.GetString("BIORXIV_BASE_URL"),
				TimeoutMS: viper.GetInt("BIORXIV_TIMEOUT_MS"),
			},
		}
	})

	return instance
}

func ensureDir(dir string) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to create directory %s: %v", dir, err)
		}
	}
}
