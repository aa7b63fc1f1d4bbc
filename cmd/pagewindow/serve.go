package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/pagewindow/internal/backend"
	"github.com/Sternrassler/pagewindow/pkg/logging"
	"github.com/Sternrassler/pagewindow/pkg/metrics"
)

var serveOpts struct {
	addr        string
	size        int64
	maxPageSize int64
	hideTotal   bool
	latency     time.Duration
	maxAge      time.Duration
	budget      int
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a synthetic paged collection",
	Long: `Serve a synthetic collection at the configured endpoint, plus /health
and /metrics. Use it as a backend for the view command.`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveOpts.addr, "addr", ":8080", "listen address")
	f.Int64Var(&serveOpts.size, "size", 1000, "number of records in the collection")
	f.Int64Var(&serveOpts.maxPageSize, "max-page-size", 0, "reject requests with a larger limit (0 = no cap)")
	f.BoolVar(&serveOpts.hideTotal, "hide-total", false, "omit the X-Total-Count header")
	f.DurationVar(&serveOpts.latency, "latency", 0, "artificial latency per request")
	f.DurationVar(&serveOpts.maxAge, "max-age", 30*time.Second, "Cache-Control max-age for pages")
	f.IntVar(&serveOpts.budget, "budget", 0, "requests per minute reported in X-RateLimit headers (0 = off)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logging.Setup(cfg.LoggingConfig())
	logger := logging.NewLogger("serve")

	collection := backend.New(backend.Options{
		Size:        serveOpts.size,
		MaxPageSize: serveOpts.maxPageSize,
		HideTotal:   serveOpts.hideTotal,
		Latency:     serveOpts.latency,
		MaxAge:      serveOpts.maxAge,
		Budget:      serveOpts.budget,
	}, logger)

	server := &http.Server{
		Addr:              serveOpts.addr,
		Handler:           newServeMux(cfg.Backend.Endpoint, collection),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info().
		Str("addr", serveOpts.addr).
		Str("endpoint", cfg.Backend.Endpoint).
		Int64("size", serveOpts.size).
		Msg("Serving paged collection")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newServeMux(endpoint string, collection http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle(endpoint, collection)
	return mux
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}
