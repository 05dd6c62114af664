package main

import (
	"context"

	"github.com/DracoZBA/Watana/internal/advisor"
	"github.com/DracoZBA/Watana/internal/alerts"
	"github.com/DracoZBA/Watana/internal/broker"
	"github.com/DracoZBA/Watana/internal/handlers"
	"github.com/DracoZBA/Watana/internal/hub"
	"github.com/DracoZBA/Watana/internal/ingest"
	"github.com/DracoZBA/Watana/internal/metrics"
	"github.com/DracoZBA/Watana/internal/store"
	"github.com/DracoZBA/Watana/internal/stream"
	"github.com/DracoZBA/Watana/pkg/auth"
	"github.com/DracoZBA/Watana/pkg/config"
	"github.com/DracoZBA/Watana/pkg/database"
	"github.com/DracoZBA/Watana/pkg/llm"
	"github.com/DracoZBA/Watana/pkg/logging"
	"github.com/DracoZBA/Watana/pkg/monitoring"
	"github.com/DracoZBA/Watana/pkg/redis"
	"github.com/DracoZBA/Watana/pkg/server"
	"github.com/DracoZBA/Watana/pkg/version"

	"github.com/gin-gonic/gin"
)

const serviceName = "vigia"

func main() {
	logger := logging.NewLoggerWithService(serviceName)
	config.LoadEnv(logger)

	logger.WithFields(logging.Fields{
		"version": version.Version,
		"commit":  version.GetShortCommit(),
	}).Info("Starting vigia")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	healthChecker := monitoring.NewHealthChecker(serviceName, version.Version)
	metricsCollector := monitoring.NewMetricsCollector(serviceName, version.Version, version.GetShortCommit())
	m := metrics.New(metricsCollector)

	// Postgres is mandatory; there is no point serving the API without it.
	dbCfg := database.DefaultConfig()
	dbCfg.URL = config.RequireEnv("DATABASE_URL")
	db := database.MustConnect(dbCfg, logger)
	defer db.Close()
	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))

	st := store.NewPostgresStore(db, logger, m)

	// Redis is optional. Without it latest-reading lookups hit Postgres.
	var latestCache *store.LatestCache
	var latestSource handlers.LatestSource
	if redisURL := config.GetEnv("REDIS_URL", ""); redisURL != "" {
		client, err := redis.NewClientFromURL(ctx, redisURL)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, continuing without cache")
		} else {
			defer client.Close()
			latestCache = store.NewLatestCache(client, config.GetEnvDuration("CACHE_TTL", 0))
			latestSource = latestCache
			healthChecker.AddCheck("redis", monitoring.RedisHealthCheck(client))
		}
	}

	eventHub := hub.New(logger, config.GetEnvInt("HUB_BUFFER_SIZE", 64))
	defer eventHub.Close()

	classifier := alerts.NewClassifier(alerts.DefaultRules()...)

	pipelineOpts := []ingest.Option{
		ingest.WithClassifier(classifier),
		ingest.WithMetrics(m),
	}
	if latestCache != nil {
		pipelineOpts = append(pipelineOpts, ingest.WithCache(latestCache))
	}
	pipeline := ingest.NewPipeline(st, eventHub, logger, pipelineOpts...)

	// Ingestion source: the MQTT broker when configured, the synthetic
	// generator otherwise (demo mode).
	brokerCfg := broker.LoadConfig(logger)
	synthetic := config.GetEnvBool("SYNTHETIC_STREAMS", false) || brokerCfg.BrokerURL == ""

	requiredConfig := map[string]string{"DATABASE_URL": dbCfg.URL}
	if !synthetic {
		requiredConfig["MQTT_BROKER_URL"] = brokerCfg.BrokerURL
	}
	healthChecker.AddCheck("configuration", monitoring.ConfigurationHealthCheck(requiredConfig))

	if synthetic {
		logger.Info("No broker configured, running synthetic event generator")
		gen := stream.NewSynthetic(eventHub, logger, stream.SyntheticConfig{
			ReadingInterval:      config.GetEnvDuration("SYNTHETIC_READING_INTERVAL", 0),
			NotificationInterval: config.GetEnvDuration("SYNTHETIC_NOTIFICATION_INTERVAL", 0),
			DeviceCount:          config.GetEnvInt("SYNTHETIC_DEVICE_COUNT", 0),
		})
		go gen.Run(ctx)
	} else {
		consumer := broker.NewConsumer(brokerCfg, pipeline.Handle, logger, m)
		healthChecker.AddCheck("broker", monitoring.BrokerHealthCheck(consumer))
		go func() {
			if err := consumer.Start(ctx); err != nil {
				logger.WithError(err).Error("Broker consumer stopped")
			}
		}()
		defer consumer.Stop()
	}

	router := server.SetupServiceRouter(logger, serviceName, healthChecker, metricsCollector)

	sse := stream.NewSSEHandler(eventHub, logger, m)
	router.GET("/api/sse/realtime-data", sse.RealtimeData)
	router.GET("/api/sse/notifications", sse.Notifications)

	ws := stream.NewWSHandler(eventHub, logger, m)
	router.GET("/api/ws", ws.ServeWS)

	// The registry and query APIs sit behind auth when a secret is set.
	var api gin.IRouter = router
	if secret := config.GetEnv("JWT_SECRET", ""); secret != "" {
		api = router.Group("", auth.RequireAuth([]byte(secret)))
	} else {
		logger.Warn("JWT_SECRET not set, API endpoints are unauthenticated")
	}
	handlers.NewDeviceHandler(st, logger).RegisterRoutes(api)
	handlers.NewReadingsHandler(st, latestSource, logger).RegisterRoutes(api)

	llmCfg := llm.LoadConfig()
	if llmCfg.Model != "" {
		provider, err := llm.NewProvider(llmCfg)
		if err != nil {
			logger.WithError(err).Warn("Advisor disabled, invalid LLM configuration")
		} else {
			advisor.NewHandler(advisor.NewService(provider, logger), logger).RegisterRoutes(api)
			logger.WithField("provider", llmCfg.Provider).Info("Advisor enabled")
		}
	}

	if err := server.Start(server.DefaultConfig(serviceName, "8080"), router, logger); err != nil {
		logger.WithError(err).Fatal("Server exited with error")
	}
}
