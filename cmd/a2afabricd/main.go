// Command a2afabricd runs the A2A communication fabric as a standalone
// daemon: it loads configuration, wires the Transport, Registry, Router,
// and Health Shell together via internal/app, serves Prometheus metrics,
// and shuts down cleanly on SIGINT/SIGTERM. Modeled on the teacher's
// cmd/sprintd entrypoint (env-driven config, zap logging, signal-driven
// graceful shutdown) but kept to a single small file rather than the
// teacher's monolithic server file.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/PayRpc/a2a-fabric/internal/app"
	"github.com/PayRpc/a2a-fabric/internal/config"
	"github.com/PayRpc/a2a-fabric/internal/lifecycle"
	"github.com/PayRpc/a2a-fabric/internal/transport"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger := newLogger()
	defer logger.Sync()

	promReg := prometheus.NewRegistry()
	sink := lifecycle.NewRecordingSink()

	fabric := app.New(cfg, logger, promReg, sink)
	fabric.Start(func(msg transport.Message) {
		logger.Debug("unsolicited inbound message", zap.String("method", msg.Method), zap.String("from", msg.From))
	})

	metricsAddr := fmt.Sprintf(":%s", getEnv("METRICS_PORT", "9090"))
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: metricsAddr, Handler: mux}

	go func() {
		logger.Info("metrics server listening", zap.String("addr", metricsAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("metrics server failed", zap.Error(err))
		}
	}()

	logger.Info("a2a fabric daemon up",
		zap.String("node_id", cfg.NodeID),
		zap.String("routing_strategy", string(cfg.RoutingStrategy)),
	)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	<-sigs

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("metrics server shutdown error", zap.Error(err))
	}

	fabric.Shutdown()
	logger.Info("shutdown complete")
}

func newLogger() *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if getEnv("ENV", "development") == "production" {
		zcfg := zap.NewProductionConfig()
		zcfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		logger, err = zcfg.Build()
	} else {
		zcfg := zap.NewDevelopmentConfig()
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		logger, err = zcfg.Build()
	}
	if err != nil {
		logger = zap.NewNop()
	}
	return logger
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
