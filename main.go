package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/mdvault/mdvault/handlers"
	"github.com/mdvault/mdvault/internal/archive"
	"github.com/mdvault/mdvault/internal/config"
	"github.com/mdvault/mdvault/internal/database"
	"github.com/mdvault/mdvault/internal/docstore/repository"
	"github.com/mdvault/mdvault/internal/docstore/service"
	"github.com/mdvault/mdvault/pkg/logger"
	"github.com/mdvault/mdvault/pkg/metrics"
)

var startTime = time.Now()

func main() {
	// initialize logging (can be controlled with LOG_LEVEL env: debug|info|warn|error|fatal)
	logger.Init(os.Getenv("LOG_LEVEL"))
	logger.Debugf("startup: LOG_LEVEL=%s", logger.LevelString())

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: backend=%s archive=%v", cfg.Store.Backend, cfg.Archive.Enabled())

	ctx := context.Background()
	backend, cleanup, err := buildBackend(ctx, cfg)
	if err != nil {
		logger.Fatalf("failed to initialize %s backend: %v", cfg.Store.Backend, err)
	}
	defer cleanup()

	var archiver service.Archiver
	if cfg.Archive.Enabled() {
		a, err := archive.NewMinIOArchiver(archive.Config{
			Endpoint:  cfg.Archive.Endpoint,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			UseSSL:    cfg.Archive.UseSSL,
			Bucket:    cfg.Archive.Bucket,
		})
		if err != nil {
			logger.Fatalf("failed to initialize trash archiver: %v", err)
		}
		archiver = a
		logger.Infof("trash archival enabled: bucket=%s", cfg.Archive.Bucket)
	}

	svc := service.New(backend, service.Options{
		Backend:       string(cfg.Store.Backend),
		Timeout:       cfg.Store.OpTimeout,
		ReservedSlugs: cfg.Store.ReservedSlugs,
		Archiver:      archiver,
	})
	defer svc.Close()

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	// Lightweight CORS middleware for dev/test: set common headers and respond to OPTIONS.
	// (Keep this intentionally simple — production should use a stricter policy.)
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	})

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	// readiness: report 200 only when the configured backend answers a ping
	r.GET("/ready", func(c *gin.Context) {
		if err := svc.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"backend": svc.Backend(),
				"error":   err.Error(),
				"uptime":  time.Since(startTime).String(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "ready",
			"backend": svc.Backend(),
			"uptime":  time.Since(startTime).String(),
		})
	})

	handlers.NewDocumentHandler(svc).Register(r)
	handlers.RegisterSwagger(r)

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	logger.Infof("starting document service on %s (backend=%s)", addr, svc.Backend())
	if err := r.Run(addr); err != nil {
		logger.Fatalf("server failed: %v", err)
	}
}

// buildBackend constructs the configured persistence backend. Remote backends
// are connected and pinged here so misconfiguration fails at startup with a
// typed error instead of on first use.
func buildBackend(ctx context.Context, cfg *config.Config) (repository.Backend, func(), error) {
	noop := func() {}
	switch cfg.Store.Backend {
	case config.BackendFileSystem:
		b, err := repository.NewFSStore(cfg.FS.DocsDir)
		return b, noop, err

	case config.BackendSQLite:
		b, err := repository.NewSQLStore(cfg.SQLite.Path)
		return b, noop, err

	case config.BackendRedis:
		client, err := database.ConnectRedis(ctx, cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB, cfg.Store.OpTimeout)
		if err != nil {
			return nil, noop, err
		}
		return repository.NewRedisStore(client, cfg.Redis.KeyPrefix), noop, nil

	case config.BackendMongo:
		// Retry/backoff when connecting to MongoDB to tolerate startup races
		const maxAttempts = 5
		backoff := time.Second
		var client *mongo.Client
		var errConn error
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			client, errConn = database.ConnectMongo(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout)
			if errConn == nil {
				break
			}
			logger.Warnf("attempt %d/%d: failed to connect to MongoDB: %v", attempt, maxAttempts, errConn)
			if attempt < maxAttempts {
				time.Sleep(backoff)
				backoff *= 2
			}
		}
		if errConn != nil {
			return nil, noop, errConn
		}
		cleanup := func() { _ = client.Disconnect(context.Background()) }
		return repository.NewMongoStore(client.Database(cfg.MongoDB.Database)), cleanup, nil

	default:
		return nil, noop, fmt.Errorf("unknown backend %q", cfg.Store.Backend)
	}
}
