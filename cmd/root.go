/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jeluard/otel-ui-backend/internal/appstate"
	"github.com/jeluard/otel-ui-backend/internal/evictor"
	"github.com/jeluard/otel-ui-backend/internal/ingest"
	"github.com/jeluard/otel-ui-backend/internal/wsserver"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "otel-ui-backend",
	Short: "Real-time OTLP trace aggregation and topology fan-out backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

var otlpAddr string
var httpAddr string

func init() {
	rootCmd.Flags().StringVar(&otlpAddr, "otlp-addr", "[::]:4317", "OTLP gRPC bind address")
	rootCmd.Flags().StringVar(&httpAddr, "http-addr", "0.0.0.0:8081", "HTTP/WebSocket bind address")
}

func run() error {
	log, err := newLogger()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync()

	state := appstate.New(log)

	grpcSrv := ingest.NewServer(otlpAddr, ingest.NewTraceServer(state, log), log)
	if err := grpcSrv.Start(); err != nil {
		return fmt.Errorf("start OTLP server: %w", err)
	}
	log.Info("OTLP gRPC server listening", zap.String("addr", grpcSrv.Addr()))

	ev := evictor.New(state, evictor.DefaultInterval, evictor.DefaultMaxAge, log)
	ev.Start()

	httpSrv := wsserver.New(httpAddr, state, log)
	if err := httpSrv.Start(); err != nil {
		ev.Stop()
		grpcSrv.Stop()
		return fmt.Errorf("start HTTP server: %w", err)
	}
	log.Info("HTTP/WebSocket server listening", zap.String("addr", httpSrv.Addr()))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	received := <-sig
	log.Info("shutting down", zap.String("signal", received.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Stop(ctx); err != nil {
		log.Warn("HTTP server shutdown error", zap.Error(err))
	}
	ev.Stop()
	grpcSrv.Stop()

	return nil
}

// newLogger builds a zap logger. OTELUI_LOG_LEVEL selects the level
// (debug/info/warn/error) for a production (JSON) config; with it unset, a
// development (console, debug-level) config is used.
func newLogger() (*zap.Logger, error) {
	levelStr := os.Getenv("OTELUI_LOG_LEVEL")
	if levelStr == "" {
		return zap.NewDevelopment()
	}

	var level zapcore.Level
	if err := level.Set(levelStr); err != nil {
		return nil, fmt.Errorf("parse OTELUI_LOG_LEVEL=%q: %w", levelStr, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}
