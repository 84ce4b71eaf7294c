// Command server runs a single Dobble session behind a websocket endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"dobble/internal/bot"
	"dobble/internal/config"
	"dobble/internal/ports"
	"dobble/internal/ports/redisstore"
	"dobble/internal/ports/wsserver"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	debug := flag.Bool("debug", false, "development logging")
	flag.Parse()

	var logger *zap.Logger
	var err error
	if *debug {
		logger, err = zap.NewDevelopment()
	} else {
		gin.SetMode(gin.ReleaseMode)
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := run(*configPath, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(configPath string, logger *zap.Logger) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if cfg.Bots.IdentitiesPath != "" {
		if err := bot.LoadIdentities(cfg.Bots.IdentitiesPath); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var score ports.ScorePort = ports.NopScore{}
	var board ports.LeaderboardPort = ports.NopScore{}
	if cfg.Redis.Addr != "" {
		store, err := redisstore.Dial(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer store.Close()
		score, board = store, store
		logger.Info("recording results in redis", zap.String("addr", cfg.Redis.Addr))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	hub := wsserver.NewHub(wsserver.HubOptions{
		Config:  cfg,
		Logger:  logger,
		Metrics: wsserver.NewMetrics(reg),
		Score:   score,
	})
	hubDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(hubDone)
	}()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           wsserver.NewRouter(hub, reg, board, cfg.Server, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Server.Addr),
			zap.Int("symbols_per_card", cfg.Game.SymbolsPerCard),
			zap.Bool("bots", cfg.Bots.Enabled))
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	<-hubDone
	return err
}
