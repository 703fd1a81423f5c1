package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clinsight-ai/insight/pkg/agent"
	"github.com/clinsight-ai/insight/pkg/collab"
	"github.com/clinsight-ai/insight/pkg/common/config"
	"github.com/clinsight-ai/insight/pkg/common/database"
	"github.com/clinsight-ai/insight/pkg/common/kafka"
	"github.com/clinsight-ai/insight/pkg/common/logger"
	"github.com/clinsight-ai/insight/pkg/common/models"
	"github.com/clinsight-ai/insight/pkg/extractor"
	"github.com/clinsight-ai/insight/pkg/insight"
	"github.com/clinsight-ai/insight/pkg/middleware"
	"github.com/clinsight-ai/insight/pkg/observability/metrics"
	"github.com/clinsight-ai/insight/pkg/observability/status"
	"github.com/clinsight-ai/insight/pkg/portfolio"
	"github.com/clinsight-ai/insight/pkg/scoring"
	"github.com/gorilla/mux"
)

func main() {
	logger.Init()
	metrics.Init()
	cfg := config.Load()

	scoringCfg, err := scoring.LoadConfig(cfg.ScoringConfigPath)
	if err != nil {
		logger.Log.WithError(err).Fatal("invalid scoring configuration")
	}

	intents, err := agent.LoadIntents(cfg.AgentConfigPath)
	if err != nil {
		logger.Log.WithError(err).Warn("failed to load agent intents, using defaults")
		intents = agent.DefaultIntents()
	}

	catalog, err := extractor.LoadCatalog(cfg.SourceCatalogPath)
	if err != nil {
		logger.Log.WithError(err).Warn("failed to load source catalog, using defaults")
	}
	agentRouter, err := agent.NewRouter(intents)
	if err != nil {
		logger.Log.WithError(err).Fatal("invalid agent intent configuration")
	}

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}
	defer database.ClosePostgres()

	extractRepo := extractor.NewRepository(db)
	if err := extractRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate extract tables")
	}

	summaryRepo := insight.NewRepository(db)
	if err := summaryRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate summary tables")
	}

	runRepo := insight.NewRunRepository(db)
	if err := runRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate refresh run tables")
	}

	collabRepo := collab.NewRepository(db)
	if err := collabRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate collab tables")
	}

	cache := insight.NewSnapshotCache(database.GetRedis(), cfg.SnapshotCacheTTL)
	defer database.CloseRedis()

	var extractProducer, refreshProducer, alertProducer *kafka.Producer
	if cfg.KafkaEnabled {
		extractProducer = kafka.NewProducer(cfg.ExtractTopic)
		defer extractProducer.Close()

		refreshProducer = kafka.NewProducer(cfg.RefreshTopic)
		defer refreshProducer.Close()

		alertProducer = kafka.NewProducer(cfg.AlertTopic)
		defer alertProducer.Close()
	}

	extracts := extractor.NewService(extractor.NewValidator(nil), extractRepo, extractProducer)

	engine, err := portfolio.NewEngine(scoringCfg, cfg.RefreshWorkers)
	if err != nil {
		logger.Log.WithError(err).Fatal("invalid scoring configuration")
	}

	snapshots := portfolio.NewSnapshotStore()
	refresher := portfolio.NewRefresher(engine, extracts, snapshots, runRepo)

	insightSvc := insight.NewService(snapshots, engine, summaryRepo, cache)
	collabSvc := collab.NewService(collabRepo, alertProducer)

	refresher.AddHook(insight.PersistHook(summaryRepo))
	refresher.AddHook(insight.CacheHook(cache))
	if refreshProducer != nil {
		refresher.AddHook(insight.EventHook(refreshProducer))
	}
	refresher.AddHook(collabSvc.AlertHook())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Serve the last published portfolio immediately after a restart.
	if err := insightSvc.WarmStart(ctx); err != nil {
		logger.Log.WithError(err).Warn("warm start failed, first refresh will publish the snapshot")
	}

	var feed *extractor.FeedClient
	if cfg.FeedBaseURL != "" {
		feed = extractor.NewFeedClient(cfg.FeedBaseURL, cfg.FeedTimeout, cfg.FeedRetries)
	}

	router := mux.NewRouter()
	router.Use(middleware.Logging)
	router.Use(middleware.Recovery)
	router.Use(middleware.CORS)
	router.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	router.Use(middleware.BodyLimit(cfg.MaxRequestBody))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if snapshots.Current() == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"waiting for first snapshot"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w)
	}).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	extractor.NewHTTPHandler(extracts, catalog, cfg.MaxRequestBody).Register(api)
	insight.NewHandler(insightSvc, refresher).Register(api)
	agent.NewHandler(agentRouter, snapshots).Register(api)
	collab.NewHandler(collabSvc).Register(api)
	status.NewHandler(db, snapshots, cfg.RefreshInterval).Register(api)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Insight Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	// Extract batches announce themselves on the bus; each one triggers a
	// recompute so pushed data shows up without waiting for the schedule.
	if cfg.KafkaEnabled {
		consumer := kafka.NewConsumer(cfg.ExtractTopic, cfg.KafkaGroupID)
		defer consumer.Close()

		go func() {
			err := consumer.Consume(ctx, func(ctx context.Context, event models.Event) error {
				if event.Type != "extract.received" {
					return nil
				}
				_, err := refresher.Enqueue(ctx, "event:"+event.Source)
				return err
			})
			if err != nil && ctx.Err() == nil {
				logger.Log.WithError(err).Error("extract consumer stopped")
			}
		}()
	}

	go func() {
		runRefresh := func(requestedBy string) {
			if feed != nil {
				if pulled := feed.PullAll(ctx, extracts); pulled > 0 {
					logger.Log.WithField("batches", pulled).Info("Pulled extract feed")
				}
			}
			if _, err := refresher.RefreshNow(ctx, requestedBy); err != nil {
				logger.Log.WithError(err).Error("scheduled refresh failed")
			}
		}

		runRefresh("startup")

		ticker := time.NewTicker(cfg.RefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				runRefresh("scheduler")
			case <-ctx.Done():
				return
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Insight Service...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	logger.Log.Info("Insight Service stopped")
}
