package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	authsvc "campusmarket/internal/app/services/auth"
	chatsvc "campusmarket/internal/app/services/chat"
	listingsvc "campusmarket/internal/app/services/listings"
	domainauth "campusmarket/internal/domain/auth"
	domainchat "campusmarket/internal/domain/chat"
	domainlisting "campusmarket/internal/domain/listing"
	domainuser "campusmarket/internal/domain/user"
	"campusmarket/internal/infra/broker/kafka"
	"campusmarket/internal/infra/config"
	mongodb "campusmarket/internal/infra/db/mongo"
	ginserver "campusmarket/internal/infra/http/gin"
	"campusmarket/internal/infra/obs"
	"campusmarket/internal/infra/outbox"
	"campusmarket/internal/infra/security"
	"campusmarket/internal/infra/storage/memory"
	"campusmarket/internal/infra/storage/s3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger := obs.NewLogger("dev")
		logger.Error("configuration invalid", "error", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.Env)

	app, cleanup, err := buildApplication(ctx, cfg, logger)
	if err != nil {
		logger.Error("application bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{
		Ready: app.ready,
	}, app.handlers)

	if app.worker != nil {
		go func() {
			if err := app.worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("outbox worker stopped", "error", err)
			}
		}()
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("HTTP server starting", "addr", cfg.HTTPAddr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("HTTP server stopped")
}

type application struct {
	handlers ginserver.Handlers
	worker   *outbox.Worker
	ready    func() error
}

type stores struct {
	users    domainuser.Repository
	sessions domainauth.SessionStore
	listings domainlisting.Repository
	saves    domainlisting.SaveStore
	chat     domainchat.Store
	outbox   outbox.Store
}

func buildApplication(ctx context.Context, cfg config.Config, logger *slog.Logger) (application, func(), error) {
	cleanup := func() {}
	ready := func() error { return nil }

	var st stores
	if cfg.MongoURI != "" {
		client, err := mongodb.New(cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return application{}, cleanup, err
		}
		cleanup = func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := client.Close(closeCtx); err != nil {
				logger.Warn("mongo close failed", "error", err)
			}
		}
		ready = func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return client.Ping(pingCtx)
		}

		users := mongodb.NewUserRepository(client.DB)
		sessions := mongodb.NewSessionStore(client.DB)
		listings := mongodb.NewListingRepository(client.DB)
		saves := mongodb.NewSaveStore(client.DB)
		chatStore := mongodb.NewChatStore(client.DB)
		outboxStore := mongodb.NewOutboxStore(client.DB)
		for _, ensure := range []func(context.Context) error{
			users.EnsureIndexes,
			sessions.EnsureIndexes,
			listings.EnsureIndexes,
			saves.EnsureIndexes,
			chatStore.EnsureIndexes,
			outboxStore.EnsureIndexes,
		} {
			if err := ensure(ctx); err != nil {
				cleanup()
				return application{}, func() {}, err
			}
		}
		st = stores{
			users:    users,
			sessions: sessions,
			listings: listings,
			saves:    saves,
			chat:     chatStore,
			outbox:   outboxStore,
		}
		logger.Info("mongo storage configured", "database", cfg.MongoDB)
	} else {
		st = stores{
			users:    memory.NewUserRepository(),
			sessions: memory.NewSessionStore(),
			listings: memory.NewListingRepository(),
			saves:    memory.NewSaveStore(),
			chat:     memory.NewChatStore(),
			outbox:   memory.NewOutboxStore(),
		}
		logger.Warn("MONGO_URI not set, using in-memory storage")
	}

	var uploader s3.Uploader = s3.NoopUploader{}
	if cfg.S3Endpoint != "" {
		client, err := s3.NewClient(cfg.S3Endpoint, cfg.S3UseSSL, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, cfg.S3PublicEndpoint, logger)
		if err != nil {
			logger.Warn("s3 uploader unavailable", "error", err)
		} else {
			uploader = client
		}
	}

	recorder := outbox.Recorder{Store: st.outbox}

	var worker *outbox.Worker
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, nil)
		if err != nil {
			logger.Error("kafka producer unavailable", "error", err)
		} else {
			prevCleanup := cleanup
			cleanup = func() {
				if err := producer.Close(); err != nil {
					logger.Warn("kafka close failed", "error", err)
				}
				prevCleanup()
			}
			worker = &outbox.Worker{
				Store:       st.outbox,
				Producer:    producer,
				Logger:      logger,
				Interval:    cfg.OutboxPollInterval,
				TopicPrefix: cfg.KafkaTopicPrefix,
				Backoff:     cfg.RetryBackoff,
			}
			logger.Info("outbox worker configured", "brokers", cfg.KafkaBrokers)
		}
	} else {
		logger.Warn("KAFKA_BROKERS not set, events stay in the outbox")
	}

	authService := &authsvc.Service{
		Users:       st.users,
		Sessions:    st.sessions,
		Passwords:   security.BcryptHasher{},
		Tokens:      security.RandomTokenGenerator{},
		SessionTTL:  cfg.SessionTTL,
		EmailDomain: cfg.EmailDomain,
		Logger:      logger,
	}
	chatService := &chatsvc.Service{
		Store:    st.chat,
		Listings: st.listings,
		Users:    st.users,
		Events:   recorder,
		Logger:   logger,
	}
	listingService := &listingsvc.Service{
		Listings: st.listings,
		Saves:    st.saves,
		Users:    st.users,
		Images:   uploader,
		Threads:  chatService,
		Events:   recorder,
		Logger:   logger,
	}

	handlers := ginserver.Handlers{
		Auth:           ginserver.AuthHandler{Service: authService, Logger: logger},
		Listing:        ginserver.ListingHandler{Service: listingService, Logger: logger},
		Chat:           ginserver.ChatHandler{Service: chatService, Logger: logger},
		AuthMiddleware: ginserver.AuthMiddleware{Service: authService, Logger: logger}.Handle,
	}

	return application{handlers: handlers, worker: worker, ready: ready}, cleanup, nil
}
