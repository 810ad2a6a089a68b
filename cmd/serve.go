// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/bissmon/pkg/link"
	"github.com/Thermoquad/bissmon/pkg/publish"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Publish snapshots over WebSocket and expose metrics",
	Long: `Connect the configured links and serve:

  /ws       CBOR frames with both link snapshots at a fixed cadence
  /metrics  Prometheus metrics

Frames omit a link's fields until it has produced a sample, so clients can
tell "no data yet" apart from a zero position.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config, :8080)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveAddr != "" {
		settings.Serve.Addr = serveAddr
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	linkMetrics, err := link.NewMetrics(reg)
	if err != nil {
		return err
	}
	publishMetrics, err := publish.NewMetrics(reg)
	if err != nil {
		return err
	}

	l, err := openLinks(linkMetrics)
	if err != nil {
		return err
	}
	defer l.close()

	// nil links must reach the publisher as untyped nil
	var primary publish.PrimarySource
	if l.primary != nil {
		primary = l.primary
	}
	var secondary publish.SecondarySource
	if l.secondary != nil {
		secondary = l.secondary
	}
	pub := publish.New(primary, secondary,
		publish.WithInterval(settings.Serve.Interval),
		publish.WithLogger(logger),
		publish.WithMetrics(publishMetrics),
	)

	mux := http.NewServeMux()
	mux.Handle("/ws", pub.Handler())
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	server := &http.Server{
		Addr:              settings.Serve.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := pub.Run(ctx); err != nil {
			logger.Error("publisher stopped", "error", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	for _, line := range l.describe() {
		logger.Info("link", "connection", line)
	}
	logger.Info("serving", "addr", settings.Serve.Addr, "interval", settings.Serve.Interval)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown", "error", err)
	}
	logger.Info("stopped")
	return nil
}
