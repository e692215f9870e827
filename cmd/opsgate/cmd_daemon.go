package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/opsgate/opsgate/telemetry"
)

var (
	daemonMetricsPort int
	daemonSweepEvery  time.Duration
	daemonOTEL        string
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the gateway as a long-lived process",
	Long: `Run opsgate as a long-lived process.

Keeps one audit session open, serves Prometheus metrics, and sweeps
expired confirmation tokens. Shuts down gracefully on SIGTERM/SIGINT.`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)

	daemonCmd.Flags().IntVar(&daemonMetricsPort, "metrics-port", 2112, "Metrics HTTP server port")
	daemonCmd.Flags().DurationVar(&daemonSweepEvery, "sweep-interval", time.Minute, "Expired-token sweep interval")
	daemonCmd.Flags().StringVar(&daemonOTEL, "otel-endpoint", "", "OTLP trace endpoint (empty disables tracing)")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	c, err := newCore(ctx)
	if err != nil {
		return err
	}
	defer c.close()

	if daemonOTEL != "" {
		shutdown, err := telemetry.InitOTEL(ctx, telemetry.Config{
			ServiceName:    "opsgate",
			ServiceVersion: version,
			OTELEndpoint:   daemonOTEL,
			Insecure:       true,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		defer func() { _ = shutdown(context.Background()) }()
	}

	fmt.Printf("opsgate daemon starting (session %s, metrics :%d)\n",
		c.audit.SessionID(), daemonMetricsPort)

	var group run.Group

	// Signal handling.
	group.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	// Metrics endpoint.
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", daemonMetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	group.Add(func() error {
		return server.ListenAndServe()
	}, func(error) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	})

	// Expired-token sweep.
	sweepStop := make(chan struct{})
	group.Add(func() error {
		ticker := time.NewTicker(daemonSweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if dropped := c.guards.SweepExpired(); dropped > 0 {
					fmt.Printf("swept %d expired confirmation tokens\n", dropped)
				}
			case <-sweepStop:
				return nil
			}
		}
	}, func(error) {
		close(sweepStop)
	})

	err = group.Run()
	if _, ok := err.(run.SignalError); ok {
		fmt.Println("shutting down")
		return nil
	}
	return err
}
