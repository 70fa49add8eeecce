package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/otalk/mod-muc-focus/internal/bridge"
	"github.com/otalk/mod-muc-focus/internal/bus"
	"github.com/otalk/mod-muc-focus/internal/config"
	"github.com/otalk/mod-muc-focus/internal/focus"
	"github.com/otalk/mod-muc-focus/internal/health"
	"github.com/otalk/mod-muc-focus/internal/logging"
	"github.com/otalk/mod-muc-focus/internal/middleware"
	"github.com/otalk/mod-muc-focus/internal/stanza"
	"github.com/otalk/mod-muc-focus/internal/tracing"
)

func main() {
	envPaths := []string{".env", "../../.env", "../.env"}
	var envLoaded bool
	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			envLoaded = true
			break
		}
	}

	cfg, err := config.ValidateEnv()
	if err != nil {
		panic(err)
	}

	if err := logging.Initialize("mod-muc-focus", cfg.GoEnv != "production"); err != nil {
		panic(err)
	}
	log := logging.GetLogger()
	defer log.Sync()

	if !envLoaded {
		log.Warn("no .env file found in any expected location, relying on environment variables")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.OtelCollectorAddr != "" {
		tp, err := tracing.InitTracer(ctx, "mod-muc-focus", cfg.OtelCollectorAddr)
		if err != nil {
			log.Error("failed to initialize tracer", zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				if err := tp.Shutdown(shutdownCtx); err != nil {
					log.Error("tracer shutdown failed", zap.Error(err))
				}
			}()
		}
	}

	var redisService *bus.Service
	if cfg.RedisEnabled {
		redisService, err = bus.NewService(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer redisService.Close()
	}

	selector := bridge.NewSelector(cfg.BridgeLiveliness, bridge.ID(cfg.MediaBridge))
	correlation := bridge.NewCorrelationTable()

	var wg sync.WaitGroup
	if redisService != nil && cfg.PubsubService != "" {
		ingester := bridge.NewStatsIngester(redisService, cfg.PubsubNode, selector)
		ingester.Start(ctx, 5*time.Second, &wg)
	}

	sender, bridgeClient, err := newXMPPSender(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to establish component connection", zap.Error(err))
	}

	registry := focus.NewRegistry()
	codecs := stanza.DefaultCodecConfig(cfg.FeatureRTX)
	focusCfg := focus.Config{
		UseBundle:       cfg.FeatureBundle,
		UseDataChannels: cfg.FeatureDataChan,
		UseRTX:          cfg.FeatureRTX,
		MinParticipants: cfg.MinParticipants,
		LingerTime:      cfg.LingerTime,
	}
	controller := focus.NewController(registry, selector, correlation, bridgeClient, sender.transport(), codecs, focusCfg)

	if err := sender.attach(ctx, controller, log); err != nil {
		log.Fatal("failed to attach component session", zap.Error(err))
	}

	healthHandler := health.NewHandler(redisService, bridgeClient)

	router := gin.Default()
	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	router.Use(cors.New(corsCfg))
	router.Use(otelgin.Middleware("mod-muc-focus"))
	router.Use(middleware.CorrelationID())
	router.Use(gin.Recovery())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", healthHandler.Liveness)
	router.GET("/readyz", healthHandler.Readiness)

	srv := &http.Server{
		Addr:    cfg.AdminAddr,
		Handler: router,
	}

	go func() {
		log.Info("admin server starting", zap.String("addr", cfg.AdminAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("admin server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	cancel()
	sender.close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("admin server forced to shutdown", zap.Error(err))
	}

	wg.Wait()
	log.Info("exiting")
}
