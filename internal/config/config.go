package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// BackendKind selects the persistence backend at startup. Exactly one
// backend serves a deployment; the kind is validated once at load time so an
// unknown value is a startup error, not a nil handle discovered on first use.
type BackendKind string

const (
	BackendFileSystem BackendKind = "filesystem"
	BackendRedis      BackendKind = "redis"
	BackendSQLite     BackendKind = "sqlite"
	BackendMongo      BackendKind = "mongo"
)

// Config holds application configuration
type Config struct {
	Server  ServerConfig
	Store   StoreConfig
	FS      FSConfig
	Redis   RedisConfig
	SQLite  SQLiteConfig
	MongoDB MongoDBConfig
	Archive ArchiveConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type StoreConfig struct {
	Backend       BackendKind
	OpTimeout     time.Duration
	ReservedSlugs []string
}

type FSConfig struct {
	DocsDir string
}

type RedisConfig struct {
	Host      string
	Port      string
	Password  string
	DB        int
	KeyPrefix string
}

type SQLiteConfig struct {
	Path string
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type ArchiveConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// Enabled reports whether trash archival is configured.
func (a ArchiveConfig) Enabled() bool { return a.Endpoint != "" }

// Addr returns host:port for the Redis client.
func (r RedisConfig) Addr() string { return r.Host + ":" + r.Port }

// LoadConfig loads configuration from environment variables and .env file
// and validates it. Configuration problems surface here, once, as errors.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env")

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "5020")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_ENVIRONMENT", "development")
	viper.SetDefault("STORE_BACKEND", "filesystem")
	viper.SetDefault("STORE_OP_TIMEOUT", 10)
	viper.SetDefault("STORE_RESERVED_SLUGS", "api,health,ready,metrics,swagger,trash,versions")
	viper.SetDefault("DOCS_DIR", "./docs")
	viper.SetDefault("SQLITE_PATH", "./mdvault.db")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_KEY_PREFIX", "mdvault:")
	viper.SetDefault("MONGODB_DATABASE", "mdvault")
	viper.SetDefault("MONGODB_TIMEOUT", 10)
	viper.SetDefault("MINIO_BUCKET", "mdvault")

	cfg := &Config{
		Server: ServerConfig{
			Port:         viper.GetString("SERVER_PORT"),
			Host:         viper.GetString("SERVER_HOST"),
			Environment:  viper.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Store: StoreConfig{
			Backend:       BackendKind(strings.ToLower(viper.GetString("STORE_BACKEND"))),
			OpTimeout:     time.Duration(viper.GetInt("STORE_OP_TIMEOUT")) * time.Second,
			ReservedSlugs: splitList(viper.GetString("STORE_RESERVED_SLUGS")),
		},
		FS: FSConfig{
			DocsDir: viper.GetString("DOCS_DIR"),
		},
		Redis: RedisConfig{
			Host:      viper.GetString("REDIS_HOST"),
			Port:      viper.GetString("REDIS_PORT"),
			Password:  os.Getenv("REDIS_PASSWORD"),
			DB:        viper.GetInt("REDIS_DB"),
			KeyPrefix: viper.GetString("REDIS_KEY_PREFIX"),
		},
		SQLite: SQLiteConfig{
			Path: viper.GetString("SQLITE_PATH"),
		},
		MongoDB: MongoDBConfig{
			URI:      viper.GetString("MONGODB_URI"),
			Database: viper.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(viper.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Archive: ArchiveConfig{
			Endpoint:  viper.GetString("MINIO_ENDPOINT"),
			AccessKey: viper.GetString("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			UseSSL:    viper.GetString("MINIO_USE_SSL") == "true",
			Bucket:    viper.GetString("MINIO_BUCKET"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case BackendFileSystem:
		if c.FS.DocsDir == "" {
			return fmt.Errorf("DOCS_DIR is required for the filesystem backend")
		}
	case BackendRedis:
		if c.Redis.Host == "" {
			return fmt.Errorf("REDIS_HOST is required for the redis backend")
		}
	case BackendSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite backend")
		}
	case BackendMongo:
		if c.MongoDB.URI == "" {
			return fmt.Errorf("MONGODB_URI is required for the mongo backend")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q (want filesystem, redis, sqlite or mongo)", c.Store.Backend)
	}
	if c.Store.OpTimeout <= 0 {
		return fmt.Errorf("STORE_OP_TIMEOUT must be positive")
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
