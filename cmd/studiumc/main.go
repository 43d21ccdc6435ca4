package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/studiumhq/studium-go/internal/api"
	"github.com/studiumhq/studium-go/internal/logging"
	"github.com/studiumhq/studium-go/internal/model"
	"github.com/studiumhq/studium-go/internal/realtime"
	"github.com/studiumhq/studium-go/internal/session"
	"github.com/studiumhq/studium-go/internal/store"
)

func main() {
	configPath := flag.String("config", model.DefaultConfigPath(), "path to config file")
	flag.Parse()

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	client := api.NewClient(cfg.API.BaseURL, nil)

	sess := session.NewManager(client, session.Config{
		RefreshInterval: time.Duration(cfg.Session.RefreshIntervalSec) * time.Second,
		ExpiryMargin:    time.Duration(cfg.Session.ExpiryMarginSec) * time.Second,
		Logger:          logger.Named("session"),
	})
	defer sess.Close()

	// The session both uses the client and supplies its bearer token.
	client.SetTokenSource(sess)

	var cache store.NotificationCache
	if cfg.Cache.Enabled {
		sqliteCache, err := store.NewSQLiteCache(cfg.Cache.Path)
		if err != nil {
			logger.Warn("notification cache unavailable", zap.Error(err))
		} else {
			cache = sqliteCache
			defer sqliteCache.Close()
		}
	}

	rt := realtime.NewManager(realtime.Config{
		SocketURL: cfg.API.SocketURL,
		History:   client,
		Cache:     cache,
		Logger:    logger.Named("realtime"),
	})
	defer rt.Close()

	rt.Attach(sess)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cache != nil {
		if cached, err := cache.List(ctx); err == nil && len(cached) > 0 {
			rt.Hydrate(cached)
			logger.Info("hydrated notifications from cache", zap.Int("count", len(cached)))
		}
	}

	if email, password := os.Getenv("STUDIUM_EMAIL"), os.Getenv("STUDIUM_PASSWORD"); email != "" {
		if err := sess.Login(ctx, email, password); err != nil {
			logger.Fatal("login failed", zap.Error(err))
		}
	} else if err := sess.Restore(ctx); err != nil {
		logger.Warn("session restore failed", zap.Error(err))
	}

	logger.Info("studium client running",
		zap.String("state", rt.State().String()),
		zap.Int("unread", rt.UnreadCount()),
	)

	<-ctx.Done()
	logger.Info("shutting down")
}
