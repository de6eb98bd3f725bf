package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bess-intraday/internal/api"
	"bess-intraday/internal/app"
	"bess-intraday/internal/config"
	"bess-intraday/internal/logger"
	"bess-intraday/internal/metrics"

	"github.com/gin-gonic/gin"
)

func main() {
	cfgPath := flag.String("config", os.Getenv("BESS_CONFIG"), "Path to YAML config")
	flag.Parse()

	if err := config.LoadEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	var (
		cfg *config.Config
		err error
	)
	if *cfgPath != "" {
		cfg, err = config.Load(*cfgPath)
	} else {
		cfg = config.Default()
		cfg.ApplyEnv()
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log, err := logger.New("bess-api", logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	port := os.Getenv("API_PORT")
	if port == "" {
		port = "8080"
	}
	if os.Getenv("API_ENV") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := app.Open(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open services", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	var origins []string
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		origins = strings.Split(v, ",")
	}

	// A dedicated metrics listener replaces the /metrics route.
	var ms *metrics.Server
	if cfg.Metrics.Addr != "" {
		ms = metrics.NewServer(cfg.Metrics.Addr, svc.Metrics, log)
		ms.Start()
	}

	router, sims := api.NewRouter(ctx, svc, api.RouterOptions{
		AllowedOrigins: origins,
		ServeMetrics:   ms == nil,
	})

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("api listening", "addr", srv.Addr, "driver", cfg.Data.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("api server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("api shutdown", "error", err)
	}
	// runs observe ctx and stop at the next step
	sims.Wait()
	if ms != nil {
		if err := ms.Stop(shutdownCtx); err != nil {
			log.Warn("metrics shutdown", "error", err)
		}
	}
}
