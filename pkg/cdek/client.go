// Package cdek is a typed client for the CDEK v2 delivery API.
//
// A Client owns three collaborators: an AuthGate that keeps an OAuth bearer
// token alive, a dispatcher that performs authenticated calls and classifies
// failures, and a Router that turns webhook notifications into typed events.
package cdek

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	// ProductionURL is the production API host.
	ProductionURL = "https://api.cdek.ru/v2"

	// SandboxURL is the test ("edu") API host.
	SandboxURL = "https://api.edu.cdek.ru/v2"

	// DefaultGrantType is the OAuth grant used when none is configured.
	DefaultGrantType = "client_credentials"

	defaultTimeout = 30 * time.Second
	tracerName     = "github.com/tournevent/cdek/pkg/cdek"
)

// Config holds client configuration.
type Config struct {
	Account   string
	Password  string
	GrantType string // default "client_credentials"
	BaseURL   string // default ProductionURL

	// OnError switches the client into error-interception mode: every failure
	// is handed to OnError and the call returns a zero result with a nil error.
	// Callers that set it must check results instead of errors.
	OnError func(error)

	Timeout      time.Duration // per attempt, default 30s
	RetryMax     int           // 0 disables retries
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	// TokenLeeway refreshes the token this long before it expires.
	TokenLeeway time.Duration
	// TokenStore shares the token between clients; nil keeps it private.
	TokenStore TokenStore

	HTTPClient *http.Client     // optional base transport
	Clock      func() time.Time // default time.Now
}

// Client is the CDEK API client.
type Client struct {
	config     Config
	auth       *AuthGate
	dispatcher *dispatcher
	router     *Router
	logger     *otelzap.Logger
}

// Option customizes a Client.
type Option func(*options)

type options struct {
	logger   *otelzap.Logger
	tracer   trace.Tracer
	recorder Recorder
}

// WithLogger sets the logger.
func WithLogger(logger *otelzap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithTracer sets the tracer used for request spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) { o.tracer = tracer }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(recorder Recorder) Option {
	return func(o *options) { o.recorder = recorder }
}

// New creates a new CDEK client.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.Account == "" || cfg.Password == "" {
		return nil, ErrMissingCredentials
	}
	if cfg.GrantType == "" {
		cfg.GrantType = DefaultGrantType
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = ProductionURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if u, err := url.Parse(cfg.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, cfg.BaseURL)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = otelzap.New(zap.NewNop())
	}
	if o.tracer == nil {
		o.tracer = otel.GetTracerProvider().Tracer(tracerName)
	}
	if o.recorder == nil {
		o.recorder = nopRecorder{}
	}

	transport := newTransport(&cfg, o.logger)
	auth := newAuthGate(&cfg, transport.StandardClient(), o.logger, o.tracer, o.recorder)

	return &Client{
		config:     cfg,
		auth:       auth,
		dispatcher: newDispatcher(&cfg, transport, auth, o.logger, o.tracer, o.recorder),
		router:     NewRouter(o.logger, o.recorder),
		logger:     o.logger,
	}, nil
}

// BaseURL returns the API base URL the client talks to.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// Auth returns the token gate.
func (c *Client) Auth() *AuthGate {
	return c.auth
}

// Router returns the webhook router.
func (c *Client) Router() *Router {
	return c.router
}

// On subscribes listener to webhook events of type t.
func (c *Client) On(t EventType, listener Listener) Subscription {
	return c.router.On(t, listener)
}

// Off removes a subscription made with On.
func (c *Client) Off(s Subscription) {
	c.router.Off(s)
}

// WebhookHandler returns the HTTP handler that receives provider callbacks.
func (c *Client) WebhookHandler() http.Handler {
	return c.router
}

func newTransport(cfg *Config, logger *otelzap.Logger) *retryablehttp.Client {
	rc := retryablehttp.NewClient()
	if cfg.HTTPClient != nil {
		base := *cfg.HTTPClient
		rc.HTTPClient = &base
	}
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.RetryMax = cfg.RetryMax
	if cfg.RetryWaitMin > 0 {
		rc.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		rc.RetryWaitMax = cfg.RetryWaitMax
	}
	rc.CheckRetry = retryablehttp.DefaultRetryPolicy
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = leveledLogger{s: logger.Logger.Sugar()}
	return rc
}

// leveledLogger adapts zap to retryablehttp.LeveledLogger.
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, keysAndValues...)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.s.Warnw(msg, keysAndValues...)
}

var _ retryablehttp.LeveledLogger = leveledLogger{}

// Recorder receives client metrics.
type Recorder interface {
	RecordRequest(operation, status string, duration float64)
	RecordError(errorType string)
	RecordTokenRefresh(outcome string)
	RecordWebhook(eventType, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordRequest(string, string, float64) {}
func (nopRecorder) RecordError(string)                    {}
func (nopRecorder) RecordTokenRefresh(string)             {}
func (nopRecorder) RecordWebhook(string, string)          {}
