package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"log"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/gin-gonic/gin"

	"github.com/layer-3/tokenstore"
	"github.com/layer-3/tokenstore/adapters/events"
	"github.com/layer-3/tokenstore/adapters/tokenizer"
	"github.com/layer-3/tokenstore/config"
	"github.com/layer-3/tokenstore/ports"
	"github.com/layer-3/tokenstore/service"
	"github.com/layer-3/tokenstore/transport/http"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := watermill.NewStdLogger(cfg.Debug, false)
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// Generate a new ECDSA key pair (you would normally load this from somewhere secure)
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		log.Fatalf("Failed to generate signing key: %v", err)
	}

	backend, err := tokenstore.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open %s backend: %v", cfg.Backend, err)
	}
	defer backend.Close()

	// Events go out over Redis streams whenever a Redis client is available
	var eventPub ports.EventPublisher = events.NopPublisher{}
	if backend.Redis != nil {
		publisher, err := redisstream.NewPublisher(
			redisstream.PublisherConfig{
				Client: backend.Redis,
			},
			logger,
		)
		if err != nil {
			log.Fatalf("Failed to create Redis publisher: %v", err)
		}
		defer publisher.Close()
		eventPub = events.NewWatermillPublisher(publisher, cfg.EventsTopic)
	}

	tokens := tokenstore.NewStore(backend, cfg, logger)
	authService := service.NewAuthService(
		tokenizer.NewJWTTokenizer(privateKey),
		tokens,
		eventPub,
		service.AuthConfig{
			ChallengeTTL: cfg.ChallengeTTL,
			AccessTTL:    cfg.AccessTTL,
			RefreshTTL:   cfg.RefreshTTL,
		},
		logger,
	)

	router := http.SetupRouter(authService)

	logger.Info("Starting token store", watermill.LogFields{
		"addr":    cfg.Addr,
		"backend": string(cfg.Backend),
		"scope":   string(cfg.PullScope),
	})
	if err := router.Run(cfg.Addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
