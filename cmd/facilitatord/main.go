package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	facilitator "github.com/vitwit/x402-facilitator"
	"github.com/vitwit/x402-facilitator/config"
	"github.com/vitwit/x402-facilitator/logger"
	"github.com/vitwit/x402-facilitator/metrics"
)

func main() {
	app := &cli.App{
		Name:  "facilitatord",
		Usage: "x402 payment verification and settlement facilitator",
		Action: func(_ *cli.Context) error {
			return run()
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.NewZapLogger(cfg.LogLevel)

	f, err := facilitator.New(cfg,
		facilitator.WithLogger(log),
		facilitator.WithMetrics(metrics.NewPrometheusRecorder()),
	)
	if err != nil {
		return fmt.Errorf("build facilitator: %w", err)
	}
	defer f.Close()

	server := facilitator.NewServer(f, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run(cfg.Port)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info("shutting down", map[string]any{"signal": sig.String()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}
