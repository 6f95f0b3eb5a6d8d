package cdek

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"
)

const tokenPath = "/oauth/token?parameters"

// AuthGate keeps a live bearer token for the dispatcher. Concurrent callers
// that find the token expired share a single acquisition.
type AuthGate struct {
	oauth      clientcredentials.Config
	httpClient *http.Client
	store      TokenStore
	leeway     time.Duration
	now        func() time.Time

	current atomic.Pointer[Token]
	group   singleflight.Group

	logger   *otelzap.Logger
	tracer   trace.Tracer
	recorder Recorder
}

func newAuthGate(cfg *Config, httpClient *http.Client, logger *otelzap.Logger, tracer trace.Tracer, recorder Recorder) *AuthGate {
	return &AuthGate{
		oauth: clientcredentials.Config{
			ClientID:       cfg.Account,
			ClientSecret:   cfg.Password,
			TokenURL:       cfg.BaseURL + tokenPath,
			AuthStyle:      oauth2.AuthStyleInParams,
			EndpointParams: url.Values{"grant_type": {cfg.GrantType}},
		},
		httpClient: httpClient,
		store:      cfg.TokenStore,
		leeway:     cfg.TokenLeeway,
		now:        cfg.Clock,
		logger:     logger,
		tracer:     tracer,
		recorder:   recorder,
	}
}

// Token returns the cached token without checking its expiry.
func (a *AuthGate) Token() *Token {
	return a.current.Load()
}

// EnsureValidToken returns the cached token while it is live and acquires a
// new one otherwise. It is safe to call before every request.
func (a *AuthGate) EnsureValidToken(ctx context.Context) (*Token, error) {
	if tok := a.current.Load(); tok.ValidAt(a.now(), a.leeway) {
		return tok, nil
	}
	return a.refresh(ctx, nil, false)
}

// ForceRefresh acquires a new token ahead of its expiry, e.g. after a 401
// caused by clock skew. The current token stays in use until the new one
// replaces it, and concurrent callers share the same acquisition.
func (a *AuthGate) ForceRefresh(ctx context.Context) (*Token, error) {
	return a.refresh(ctx, a.current.Load(), true)
}

// Invalidate drops the cached token so the next call acquires a fresh one.
func (a *AuthGate) Invalidate(ctx context.Context) {
	a.current.Store(nil)
	if a.store == nil {
		return
	}
	if err := a.store.Clear(ctx); err != nil {
		a.logger.Ctx(ctx).Warn("Failed to clear shared token", zap.Error(err))
	}
}

// refresh acquires a token through the shared flight. A forced refresh
// accepts a token only if it replaced stale; otherwise any live token does.
func (a *AuthGate) refresh(ctx context.Context, stale *Token, force bool) (*Token, error) {
	// The shared fetch must outlive a single caller's cancellation; each
	// caller still stops waiting when its own context is done.
	fetchCtx := context.WithoutCancel(ctx)
	ch := a.group.DoChan("token", func() (interface{}, error) {
		tok := a.current.Load()
		if tok.ValidAt(a.now(), a.leeway) && (!force || tok != stale) {
			return tok, nil
		}
		if !force {
			if tok := a.loadShared(fetchCtx); tok.ValidAt(a.now(), a.leeway) {
				a.current.Store(tok)
				return tok, nil
			}
		}

		tok, err := a.acquire(fetchCtx)
		if err != nil {
			return nil, err
		}
		a.current.Store(tok)
		a.saveShared(fetchCtx, tok)
		return tok, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Token), nil
	}
}

func (a *AuthGate) acquire(ctx context.Context) (*Token, error) {
	ctx, span := a.tracer.Start(ctx, "cdek.oauth.token")
	defer span.End()

	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	issued, err := a.oauth.Token(ctx)
	if err != nil {
		authErr := toAuthError(err)
		span.RecordError(authErr)
		span.SetStatus(codes.Error, authErr.Error())
		a.recorder.RecordTokenRefresh("error")
		a.logger.Ctx(ctx).Error("CDEK token request failed",
			zap.Int("status_code", authErr.StatusCode),
			zap.Error(authErr),
		)
		return nil, authErr
	}

	lifetime := DefaultTokenLifetime
	if !issued.Expiry.IsZero() {
		lifetime = time.Until(issued.Expiry).Round(time.Second)
	}

	tok := &Token{
		AccessToken: issued.AccessToken,
		TokenType:   issued.TokenType,
		ExpiresIn:   int(lifetime / time.Second),
		ExpiresAt:   a.now().Add(lifetime),
	}
	if scope, ok := issued.Extra("scope").(string); ok {
		tok.Scope = scope
	}
	if id, ok := issued.Extra("jti").(string); ok {
		tok.ID = id
	}

	span.SetAttributes(attribute.Int("cdek.token.expires_in", tok.ExpiresIn))
	a.recorder.RecordTokenRefresh("success")
	a.logger.Ctx(ctx).Info("Acquired CDEK token",
		zap.String("token_id", tok.ID),
		zap.Time("expires_at", tok.ExpiresAt),
	)
	return tok, nil
}

func (a *AuthGate) loadShared(ctx context.Context) *Token {
	if a.store == nil {
		return nil
	}
	tok, err := a.store.Load(ctx)
	if err != nil {
		a.logger.Ctx(ctx).Warn("Failed to load shared token", zap.Error(err))
		return nil
	}
	return tok
}

func (a *AuthGate) saveShared(ctx context.Context, tok *Token) {
	if a.store == nil {
		return
	}
	if err := a.store.Save(ctx, tok); err != nil {
		a.logger.Ctx(ctx).Warn("Failed to save shared token", zap.Error(err))
	}
}

func toAuthError(err error) *AuthError {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		return &AuthError{
			StatusCode: retrieveErr.Response.StatusCode,
			Status:     retrieveErr.Response.Status,
			Body:       string(retrieveErr.Body),
		}
	}
	return &AuthError{Err: err}
}
