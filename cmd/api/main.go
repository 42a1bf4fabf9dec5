package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/propio/chat-server/internal/auth"
	"github.com/propio/chat-server/internal/chat"
	"github.com/propio/chat-server/internal/config"
	"github.com/propio/chat-server/internal/data"
	"github.com/propio/chat-server/internal/db"
	"github.com/propio/chat-server/internal/middleware"
	"github.com/propio/chat-server/internal/push"
	"github.com/propio/chat-server/internal/registry"
	"github.com/propio/chat-server/internal/relay"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("configuration invalid")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database.
	dbClient, err := db.New(ctx, cfg.MongoURI, cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("mongodb connect failed")
	}
	defer dbClient.Close(context.Background())

	if err := dbClient.CreateIndexes(ctx); err != nil {
		log.WithError(err).Fatal("index creation failed")
	}

	// Stores.
	users := data.NewUsersStore(dbClient.UsersCollection())
	rooms := data.NewRoomsStore(dbClient.RoomsCollection())
	sessions := data.NewSessionsStore(dbClient.ChatsCollection())
	messages := data.NewMessagesStore(dbClient.MessagesCollection())
	listings := data.NewListingsStore(dbClient.ListingsCollection())
	notifications := data.NewNotificationsStore(dbClient.NotificationsCollection())

	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL)

	// Connection registries, one pair per instance.
	roomConns := registry.NewRoomRegistry()
	contactConns := registry.NewContactRegistry()
	defer roomConns.CloseAll()
	defer contactConns.CloseAll()

	// Push is optional; without a server key offline receivers simply get
	// nothing until they reconnect.
	var notifier chat.Notifier
	if cfg.FCMServerKey != "" {
		notifier = &auditedNotifier{
			inner: push.NewClient(cfg.FCMEndpoint, cfg.FCMServerKey, logrus.NewEntry(log)),
			store: notifications,
			log:   logrus.NewEntry(log),
		}
	} else {
		log.Warn("FCM_SERVER_KEY not set, push notifications disabled")
	}

	// Cross-instance relay is optional too; a single instance needs none.
	var publisher chat.Publisher
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.WithError(err).Fatal("redis connect failed")
		}
		rl := relay.New(rdb, roomConns, contactConns, logrus.NewEntry(log))
		publisher = rl
		go func() {
			if err := rl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("relay stopped")
			}
		}()
	}

	dispatcher := chat.NewDispatcher(rooms, sessions, messages, users, notifier,
		roomConns, contactConns, publisher, logrus.NewEntry(log))

	if cfg.MessageTTL > 0 {
		go dispatcher.RunExpiry(ctx, time.Minute, cfg.MessageTTL)
	}

	roomSvc := chat.NewRoomService(rooms, sessions, messages, users, listings,
		dispatcher, cfg.PageSize, logrus.NewEntry(log))

	// Register/login share one limiter keyed by client IP.
	limiter := middleware.NewLimiterStore(cfg.RateLimitRPM, 3, time.Minute)
	defer limiter.Stop()

	srv := newServer(jwtMgr, users, dispatcher, roomSvc, roomConns, contactConns, logrus.NewEntry(log))

	httpSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.routes(limiter),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // websockets hold the response open
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("addr", httpSrv.Addr).Info("server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server exit")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown incomplete")
	}
}
