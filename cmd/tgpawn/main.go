package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/immanelg/tgpawn/internal/cache"
	appcfg "github.com/immanelg/tgpawn/internal/config"
	"github.com/immanelg/tgpawn/internal/engine"
	"github.com/immanelg/tgpawn/internal/msgcat"
	"github.com/immanelg/tgpawn/internal/namecache"
	"github.com/immanelg/tgpawn/internal/obslog"
	"github.com/immanelg/tgpawn/internal/store"
	"github.com/immanelg/tgpawn/internal/telegram"
	"github.com/immanelg/tgpawn/internal/web"
)

func main() {
	_ = godotenv.Load()

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	logger.Info("startup")

	st, err := store.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("store init error", zap.Error(err))
	}

	var names engine.Names
	if cfg.RedisURL != "" {
		nc, err := namecache.New(cfg.RedisURL)
		if err != nil {
			logger.Fatal("name cache init error", zap.Error(err))
		}
		defer func() { _ = nc.Close() }()
		names = nc
	}

	cat, err := msgcat.New(cfg.MessageDir)
	if err != nil {
		logger.Fatal("message catalog error", zap.Error(err))
	}

	tr, err := telegram.New(cfg.TelegramToken)
	if err != nil {
		logger.Fatal("telegram init error", zap.Error(err))
	}

	eng := engine.New(st, cache.New(), tr, names, cat, engine.Commands{
		Join:   cfg.JoinCommands,
		Resign: cfg.ResignCommands,
	})
	tr.OnEvent(eng.HandleEvent)

	srv := web.New(cfg.HTTPAddr, st)
	srv.Start()

	ctx, cancel := context.WithCancel(context.Background())
	go tr.Run(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down")

	tr.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = st.Close()

	logger.Info("exiting")
}
