package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/richharvestCC/ScoreBoard-sub001/internal/auth"
	"github.com/richharvestCC/ScoreBoard-sub001/internal/config"
	"github.com/richharvestCC/ScoreBoard-sub001/internal/gateway"
	"github.com/richharvestCC/ScoreBoard-sub001/internal/handler"
	"github.com/richharvestCC/ScoreBoard-sub001/internal/hub"
	"github.com/richharvestCC/ScoreBoard-sub001/internal/kafka"
	"github.com/richharvestCC/ScoreBoard-sub001/internal/pubsub"
	"github.com/richharvestCC/ScoreBoard-sub001/internal/stats"
	"github.com/richharvestCC/ScoreBoard-sub001/internal/store"
	"github.com/richharvestCC/ScoreBoard-sub001/pkg/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Log)
	l := log.L()
	l.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("starting live service")

	matchStore, err := store.Open(cfg.Database)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to connect to database")
	}
	l.Info().Str("driver", cfg.Database.Driver).Msg("connected to database")

	var producer kafka.DeltaProducer
	if cfg.Kafka.Enabled {
		p, err := kafka.NewConfluentProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions)
		if err != nil {
			l.Fatal().Err(err).Msg("failed to initialize kafka producer")
		}
		producer = p
		l.Info().Str("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("connected to kafka")
	}

	var lifecycle pubsub.LifecyclePublisher
	if cfg.Redis.Enabled {
		pub, err := pubsub.NewRedisPublisher(cfg.Redis)
		if err != nil {
			l.Fatal().Err(err).Msg("failed to connect to redis")
		}
		lifecycle = pub
		l.Info().Str("address", cfg.Redis.Address).Msg("connected to redis")
	}

	validator, err := auth.NewJWTValidator(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to initialize credential validator")
	}

	liveHub := hub.New(cfg.Room, matchStore, producer, lifecycle)
	gw := gateway.New(validator, liveHub, cfg.WebSocket, cfg.Auth)
	aggregator := stats.New(liveHub)

	wsHandler := handler.NewWSHandler(gw, liveHub)
	httpHandler := handler.NewHTTPHandler(aggregator)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(log.GinMiddleware(l), gin.Recovery())

	router.GET("/ws/live", gin.WrapF(wsHandler.HandleLive))
	router.GET("/ws/feed", gin.WrapF(wsHandler.HandleFeed))
	httpHandler.RegisterRoutes(router)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		l.Info().Str("addr", server.Addr).Msg("live service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info().Msg("shutting down live service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		l.Warn().Err(err).Msg("server forced to shutdown")
	}

	gw.CloseAll()

	if err := liveHub.Shutdown(shutdownCtx); err != nil {
		l.Warn().Err(err).Msg("hub drain incomplete")
	}

	if producer != nil {
		if err := producer.Close(); err != nil {
			l.Warn().Err(err).Msg("failed to close kafka producer")
		}
	}
	if lifecycle != nil {
		if err := lifecycle.Close(); err != nil {
			l.Warn().Err(err).Msg("failed to close redis publisher")
		}
	}

	l.Info().Msg("live service stopped")
}
