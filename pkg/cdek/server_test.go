package cdek_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tournevent/cdek/pkg/cdek"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

const (
	testAccount  = "EMscd6r9JnFiQ3bLoyjJY6eM78JrJceI"
	testPassword = "PjLZkKBHEiLK3YsjtNrt3TGNG0ahs3kG"
)

// fakeAPI is an httptest stand-in for the CDEK API rooted at /v2.
type fakeAPI struct {
	server     *httptest.Server
	mux        *http.ServeMux
	tokenCalls atomic.Int32
	expiresIn  atomic.Int32
	tokenDelay time.Duration
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()

	f := &fakeAPI{mux: http.NewServeMux()}
	f.expiresIn.Store(3600)
	f.mux.HandleFunc("POST /v2/oauth/token", f.token)
	f.server = httptest.NewServer(f.mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeAPI) baseURL() string {
	return f.server.URL + "/v2"
}

func (f *fakeAPI) handle(pattern string, h http.HandlerFunc) {
	f.mux.HandleFunc(pattern, h)
}

func (f *fakeAPI) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("grant_type") != "client_credentials" ||
		r.PostForm.Get("client_id") != testAccount ||
		r.PostForm.Get("client_secret") != testPassword {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_client","error_description":"Bad client credentials"}`))
		return
	}
	if f.tokenDelay > 0 {
		time.Sleep(f.tokenDelay)
	}

	n := f.tokenCalls.Add(1)
	body := map[string]interface{}{
		"access_token": fmt.Sprintf("token-%d", n),
		"token_type":   "bearer",
		"scope":        "order:all payment:all",
		"jti":          fmt.Sprintf("jti-%d", n),
	}
	if exp := f.expiresIn.Load(); exp > 0 {
		body["expires_in"] = exp
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// testClock is a settable clock safe for concurrent reads.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestClient(t *testing.T, api *fakeAPI, mutate ...func(*cdek.Config)) *cdek.Client {
	t.Helper()

	cfg := cdek.Config{
		Account:  testAccount,
		Password: testPassword,
		BaseURL:  api.baseURL(),
		Timeout:  5 * time.Second,
	}
	for _, m := range mutate {
		m(&cfg)
	}

	client, err := cdek.New(cfg, cdek.WithLogger(otelzap.New(zap.NewNop())))
	require.NoError(t, err)
	return client
}

// recorder captures metrics calls.
type recorder struct {
	mu       sync.Mutex
	requests []string
	errors   []string
	refresh  []string
	webhooks []string
}

func (r *recorder) RecordRequest(operation, status string, _ float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, operation+" "+status)
}

func (r *recorder) RecordError(errorType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, errorType)
}

func (r *recorder) RecordTokenRefresh(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refresh = append(r.refresh, outcome)
}

func (r *recorder) RecordWebhook(eventType, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.webhooks = append(r.webhooks, eventType+" "+outcome)
}
