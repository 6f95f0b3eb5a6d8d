package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Server is the HTTP server receiving CDEK webhooks.
type Server struct {
	port        int
	webhookPath string
	webhook     http.Handler
	gatherer    prometheus.Gatherer
	logger      *otelzap.Logger
}

// Config holds server configuration.
type Config struct {
	Port        int
	WebhookPath string
}

// New creates a new server instance. webhook receives provider callbacks on
// cfg.WebhookPath and gatherer backs /metrics.
func New(cfg Config, webhook http.Handler, gatherer prometheus.Gatherer, logger *otelzap.Logger) *Server {
	path := cfg.WebhookPath
	if path == "" {
		path = "/webhook"
	}
	return &Server{
		port:        cfg.Port,
		webhookPath: path,
		webhook:     webhook,
		gatherer:    gatherer,
		logger:      logger,
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	// CDEK webhook callbacks
	mux.Handle(s.webhookPath, s.webhook)

	return mux
}

// Run starts the HTTP server and blocks until context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server",
			zap.Int("port", s.port),
			zap.String("webhook_path", s.webhookPath),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
