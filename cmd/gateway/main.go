// Command gateway runs the overwatch ingestion HTTP server together
// with its background consumer and retention workers.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/overwatch/ingestion-gateway/internal/apperr"
	"github.com/overwatch/ingestion-gateway/internal/auth"
	"github.com/overwatch/ingestion-gateway/internal/config"
	"github.com/overwatch/ingestion-gateway/internal/consumer"
	"github.com/overwatch/ingestion-gateway/internal/ingest"
	"github.com/overwatch/ingestion-gateway/internal/logger"
	"github.com/overwatch/ingestion-gateway/internal/producer"
	"github.com/overwatch/ingestion-gateway/internal/ratelimit"
	"github.com/overwatch/ingestion-gateway/internal/retention"
	"github.com/overwatch/ingestion-gateway/internal/store"
)

func main() {
	cfg, err := config.Load(os.Getenv("INGESTION_CONFIG_FILE"))
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	logger.Initialize(cfg.LogLevel, !cfg.LogJSON)
	log := logger.Log

	log.Info().Msg("starting overwatch ingestion gateway")

	// Redis-backed auth cache (optional; falls back to in-process).
	var redisClient *redis.Client
	if cfg.CacheEnabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisHost + ":" + cfg.RedisPort,
			Password: cfg.RedisPass,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Warn().Err(err).Msg("redis unavailable, falling back to in-process auth cache")
			redisClient = nil
		}
		cancel()
	}

	authCache := auth.NewCache(redisClient)
	gateway := auth.NewGateway(cfg.AuthEndpoint, authCache)

	limiter := ratelimit.New(cfg.RateLimit.DefaultRatePerSecond, cfg.RateLimit.DefaultBurst)
	defer limiter.Stop()

	// Broker connection for the producer/consumer pair; absent in mock
	// mode so the gateway can run without a live broker in dev.
	var brokerConn *nats.Conn
	if len(cfg.BrokerURLs) > 0 {
		conn, err := producer.Connect(cfg.BrokerURLs, cfg.BrokerUser, cfg.BrokerPassword)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to broker")
		}
		brokerConn = conn
		defer brokerConn.Close()
	} else {
		log.Warn().Msg("no broker URLs configured, running with an in-process producer stub")
	}

	prodCfg := producer.DefaultConfig()
	prodCfg.Compression = producer.Compression(cfg.Producer.Compression)
	prodCfg.MaxBatchSize = cfg.Producer.MaxBatchSize
	prodCfg.MaxBatchAge = cfg.Producer.MaxBatchAge
	prodCfg.FlushTick = cfg.Producer.FlushTick

	prod := producer.New(brokerConn, prodCfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	prod.StartFlushTask(ctx)
	defer prod.Stop()

	var sink *store.PQSink
	if cfg.StoreURL != "" {
		pqSink, err := store.NewPQSink(cfg.StoreURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to analytics store")
		}
		sink = pqSink
		defer pqSink.Close()
	}

	if sink != nil && brokerConn != nil {
		consCfg := consumer.DefaultConfig()
		consCfg.BatchSize = cfg.Consumer.BatchSize
		consCfg.BatchTimeout = cfg.Consumer.BatchTimeout
		consCfg.MaxRetries = cfg.Consumer.MaxRetries
		consCfg.RetryBackoff = cfg.Consumer.RetryBackoff
		consCfg.SkipOnFailure = cfg.Consumer.SkipOnFailure
		consCfg.ReconnectPause = cfg.Consumer.ReconnectPause

		cons := consumer.New(brokerConn, sink, consCfg)
		go func() {
			if err := cons.Run(ctx); err != nil {
				log.Error().Err(err).Msg("consumer loop exited")
			}
		}()
	}

	if sink != nil {
		startRetentionCron(ctx, cfg, sink)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(apperr.Middleware())

	ingest.RegisterHealth(router)
	ingest.NewHandler(gateway, limiter, prod).Register(router)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down gracefully")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
		os.Exit(1)
	}
	cancel()
}

// startRetentionCron schedules the partition-retention sweep on the
// configured cron expression, defaulting to a nightly run.
func startRetentionCron(ctx context.Context, cfg *config.Config, sink *store.PQSink) {
	enforcer := retention.New(sink.DB(), cfg.Retention.DataRetentionMonths, cfg.Retention.MetricsRetentionMonths)
	c := cron.New()
	_, err := c.AddFunc(cfg.Retention.CronSchedule, func() {
		if err := enforcer.Run(ctx, time.Now()); err != nil {
			logger.Retention().Error().Err(err).Msg("retention run failed")
		}
	})
	if err != nil {
		logger.Retention().Error().Err(err).Msg("failed to schedule retention cron")
		return
	}
	c.Start()
	go func() {
		<-ctx.Done()
		c.Stop()
	}()
}
