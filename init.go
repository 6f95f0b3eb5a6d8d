package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"
	"github.com/tournevent/cdek/internal/config"
	"github.com/tournevent/cdek/internal/forward"
	"github.com/tournevent/cdek/internal/telemetry"
	"github.com/tournevent/cdek/pkg/cdek"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

func loadConfig() (*config.Config, error) {
	return config.Load()
}

// initLogger builds the service logger. One-shot commands log to stderr so
// stdout carries only their output.
func initLogger(cfg *config.Config, output string) (*otelzap.Logger, error) {
	return telemetry.NewLogger(cfg.LogLevel, cfg.ServiceName, output)
}

func initTracer(ctx context.Context, cfg *config.Config) (trace.Tracer, func(context.Context) error, error) {
	if !cfg.OTELEnabled {
		return nil, func(context.Context) error { return nil }, nil
	}

	return telemetry.InitTracer(ctx, cfg.OTELEndpoint, cfg.ServiceName, cfg.Version, cfg.Attributes()...)
}

// initTokenStore returns a Redis-backed token store when REDIS_ADDR is set.
func initTokenStore(ctx context.Context, cfg *config.Config, logger *otelzap.Logger) (cdek.TokenStore, func()) {
	if cfg.RedisAddr == "" {
		return nil, func() {}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis unreachable, tokens will not be shared", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}

	store := cdek.NewRedisTokenStore(rdb, cfg.Account)
	logger.Info("Sharing CDEK token through Redis", zap.String("key", store.Key()))
	return store, func() { _ = rdb.Close() }
}

func initClient(cfg *config.Config, store cdek.TokenStore, logger *otelzap.Logger, tracer trace.Tracer, recorder cdek.Recorder) (*cdek.Client, error) {
	clientCfg := cfg.Client()
	clientCfg.TokenStore = store

	opts := []cdek.Option{cdek.WithLogger(logger)}
	if tracer != nil {
		opts = append(opts, cdek.WithTracer(tracer))
	}
	if recorder != nil {
		opts = append(opts, cdek.WithRecorder(recorder))
	}

	client, err := cdek.New(clientCfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating cdek client: %w", err)
	}
	return client, nil
}

// initForwarder publishes webhook events to NATS when NATS_URL is set.
func initForwarder(cfg *config.Config, router *cdek.Router, logger *otelzap.Logger) (func(), error) {
	if cfg.NATSURL == "" {
		return func() {}, nil
	}

	nc, err := forward.Connect(cfg.NATSURL, cfg.ServiceName, logger)
	if err != nil {
		return nil, err
	}

	fwd := forward.New(nc, cfg.NATSSubjectPrefix, logger)
	fwd.Attach(router)
	logger.Info("Forwarding webhooks to NATS", zap.String("prefix", cfg.NATSSubjectPrefix))

	return func() {
		if err := nc.Drain(); err != nil {
			logger.Warn("Failed to drain NATS connection", zap.Error(err))
		}
	}, nil
}

// warmToken acquires the first token at startup so misconfigured
// credentials show up in the logs before the first call.
func warmToken(ctx context.Context, client *cdek.Client, logger *otelzap.Logger) {
	if _, err := client.Auth().EnsureValidToken(ctx); err != nil {
		logger.Ctx(ctx).Warn("Initial CDEK token request failed", zap.Error(err))
	}
}

func logEvent(logger *otelzap.Logger) cdek.Listener {
	return func(ctx context.Context, e *cdek.Event) error {
		logger.Ctx(ctx).Info("Received CDEK webhook",
			zap.String("type", string(e.Type)),
			zap.String("uuid", e.UUID),
			zap.String("date_time", e.DateTime),
		)
		return nil
	}
}

func writeOutput(w io.Writer, format string, v interface{}) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		// Round trip through JSON so keys match the API field names.
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var generic interface{}
		if err := json.Unmarshal(data, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(generic)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}
