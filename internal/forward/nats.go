// Package forward republishes webhook events onto a NATS subject tree so
// other services can consume them without exposing an HTTP endpoint.
package forward

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/tournevent/cdek/pkg/cdek"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Header keys set on forwarded messages.
const (
	HeaderEventType = "Cdek-Event-Type"
	HeaderEventUUID = "Cdek-Event-Uuid"
)

// Publisher sends NATS messages. *nats.Conn satisfies it.
type Publisher interface {
	PublishMsg(m *nats.Msg) error
}

// Forwarder publishes every webhook event to <prefix>.<event type>.
type Forwarder struct {
	pub    Publisher
	prefix string
	logger *otelzap.Logger
}

// New creates a forwarder.
func New(pub Publisher, prefix string, logger *otelzap.Logger) *Forwarder {
	return &Forwarder{
		pub:    pub,
		prefix: strings.TrimSuffix(prefix, "."),
		logger: logger,
	}
}

// Subject returns the subject events of type t are published on.
func (f *Forwarder) Subject(t cdek.EventType) string {
	return f.prefix + "." + strings.ToLower(string(t))
}

// Forward publishes e. It has the cdek.Listener signature.
func (f *Forwarder) Forward(ctx context.Context, e *cdek.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	msg := nats.NewMsg(f.Subject(e.Type))
	msg.Data = data
	msg.Header.Set(HeaderEventType, string(e.Type))
	msg.Header.Set(HeaderEventUUID, e.UUID)
	msg.Header.Set(nats.MsgIdHdr, string(e.Type)+":"+e.UUID+":"+e.DateTime)

	if err := f.pub.PublishMsg(msg); err != nil {
		return fmt.Errorf("publishing to %s: %w", msg.Subject, err)
	}

	f.logger.Ctx(ctx).Debug("Forwarded webhook",
		zap.String("subject", msg.Subject),
		zap.String("uuid", e.UUID),
	)
	return nil
}

// Attach subscribes the forwarder to every event type on r.
func (f *Forwarder) Attach(r *cdek.Router) []cdek.Subscription {
	subs := make([]cdek.Subscription, 0, len(cdek.EventTypes))
	for _, t := range cdek.EventTypes {
		subs = append(subs, r.On(t, f.Forward))
	}
	return subs
}

// Connect dials NATS with reconnects enabled and connection events logged.
func Connect(url, name string, logger *otelzap.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	return nc, nil
}
