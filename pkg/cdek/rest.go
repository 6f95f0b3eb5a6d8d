package cdek

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Request describes one API call. It is built per call and not retained.
type Request struct {
	Method string
	Path   string
	Query  Query
	Body   interface{}
}

// Query holds query parameters. Scalars are sent in their textual form,
// pointers are dereferenced and slices are joined with commas; nil values,
// including nil pointers, are omitted. Nested structures
// must be flattened by the caller.
type Query map[string]interface{}

// Encode returns the URL-encoded query, sorted by key.
func (q Query) Encode() string {
	values := url.Values{}
	for key, raw := range q {
		if s, ok := queryValue(raw); ok {
			values.Set(key, s)
		}
	}
	return values.Encode()
}

func queryValue(raw interface{}) (string, bool) {
	if rv := reflect.ValueOf(raw); rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return "", false
		}
		if _, ok := raw.(fmt.Stringer); !ok {
			return queryValue(rv.Elem().Interface())
		}
	}

	switch v := raw.(type) {
	case nil:
		return "", false
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case []string:
		return strings.Join(v, ","), true
	case []int:
		parts := make([]string, len(v))
		for i, n := range v {
			parts[i] = strconv.Itoa(n)
		}
		return strings.Join(parts, ","), true
	case fmt.Stringer:
		return v.String(), true
	default:
		return fmt.Sprint(v), true
	}
}

type dispatcher struct {
	baseURL  string
	http     *retryablehttp.Client
	auth     *AuthGate
	onError  func(error)
	logger   *otelzap.Logger
	tracer   trace.Tracer
	recorder Recorder
}

func newDispatcher(cfg *Config, transport *retryablehttp.Client, auth *AuthGate, logger *otelzap.Logger, tracer trace.Tracer, recorder Recorder) *dispatcher {
	return &dispatcher{
		baseURL:  cfg.BaseURL,
		http:     transport,
		auth:     auth,
		onError:  cfg.OnError,
		logger:   logger,
		tracer:   tracer,
		recorder: recorder,
	}
}

// intercept hands err to the OnError sink when one is configured.
func (d *dispatcher) intercept(err error) error {
	if err == nil || d.onError == nil {
		return err
	}
	d.onError(err)
	return nil
}

// invoke executes req and decodes the response into a fresh T.
func invoke[T any](ctx context.Context, d *dispatcher, req *Request) (T, error) {
	var out T
	if err := d.execute(ctx, req, &out); err != nil {
		var zero T
		return zero, d.intercept(err)
	}
	return out, nil
}

func (d *dispatcher) execute(ctx context.Context, req *Request, out interface{}) error {
	tok, err := d.auth.EnsureValidToken(ctx)
	if err != nil {
		d.recorder.RecordError("auth")
		return err
	}

	target := d.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body interface{}
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("encoding %s %s body: %w", req.Method, req.Path, err)
		}
		body = data
	}

	ctx, span := d.tracer.Start(ctx, "cdek.request", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", req.Method),
		attribute.String("cdek.path", req.Path),
	)

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := d.send(ctx, span, req.Method+" "+req.Path, httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return d.fail(ctx, span, resp, target)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decoding %s %s response: %w", req.Method, req.Path, err)
	}
	return nil
}

// download fetches target. The bearer token is attached only when authorize
// is set, so it never reaches hosts other than the API.
func (d *dispatcher) download(ctx context.Context, target string, authorize bool) (io.ReadCloser, error) {
	var tok *Token
	if authorize {
		var err error
		if tok, err = d.auth.EnsureValidToken(ctx); err != nil {
			d.recorder.RecordError("auth")
			return nil, err
		}
	}

	ctx, span := d.tracer.Start(ctx, "cdek.download", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if tok != nil {
		httpReq.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	}
	httpReq.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := d.send(ctx, span, "GET download", httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, d.fail(ctx, span, resp, target)
	}
	return resp.Body, nil
}

func (d *dispatcher) send(ctx context.Context, span trace.Span, operation string, req *retryablehttp.Request) (*http.Response, error) {
	started := time.Now()
	resp, err := d.http.Do(req)
	elapsed := time.Since(started).Seconds()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.recorder.RecordRequest(operation, "transport_error", elapsed)
		d.recorder.RecordError("transport")
		d.logger.Ctx(ctx).Error("CDEK request failed",
			zap.String("operation", operation),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%s: %w", operation, err)
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	d.recorder.RecordRequest(operation, strconv.Itoa(resp.StatusCode), elapsed)
	return resp, nil
}

// fail classifies a non-2xx response: JSON bodies become *APIError, anything
// else *HTTPError.
func (d *dispatcher) fail(ctx context.Context, span trace.Span, resp *http.Response, target string) error {
	data, _ := io.ReadAll(resp.Body)

	var err error
	if isJSON(resp.Header.Get("Content-Type")) {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			URL:        target,
			Body:       string(data),
		}
		_ = json.Unmarshal(data, &apiErr.Response)
		d.recorder.RecordError("api")
		err = apiErr
	} else {
		d.recorder.RecordError("http")
		err = &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			URL:        target,
			Body:       string(data),
		}
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, resp.Status)
	d.logger.Ctx(ctx).Warn("CDEK API rejected request",
		zap.Int("status_code", resp.StatusCode),
		zap.String("url", target),
		zap.Error(err),
	)
	return err
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/json"
}

// Do performs req and decodes a successful JSON response into out, which may
// be nil to discard the body.
func (c *Client) Do(ctx context.Context, req *Request, out interface{}) error {
	return c.dispatcher.intercept(c.dispatcher.execute(ctx, req, out))
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, query Query, out interface{}) error {
	return c.Do(ctx, &Request{Method: http.MethodGet, Path: path, Query: query}, out)
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body, out interface{}) error {
	return c.Do(ctx, &Request{Method: http.MethodPost, Path: path, Body: body}, out)
}

// Put performs a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body, out interface{}) error {
	return c.Do(ctx, &Request{Method: http.MethodPut, Path: path, Body: body}, out)
}

// Patch performs a PATCH request with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body, out interface{}) error {
	return c.Do(ctx, &Request{Method: http.MethodPatch, Path: path, Body: body}, out)
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string, out interface{}) error {
	return c.Do(ctx, &Request{Method: http.MethodDelete, Path: path}, out)
}

// Download fetches a binary document, such as a PDF receipt, from a path
// relative to the base URL. The caller must close the returned reader.
func (c *Client) Download(ctx context.Context, path string) (io.ReadCloser, error) {
	return c.downloadTarget(ctx, c.config.BaseURL+path, true)
}

// DownloadURL fetches a binary document from an absolute URL returned by an
// earlier call. The bearer token is sent only when the URL points at the
// API host.
func (c *Client) DownloadURL(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return c.interceptDownload(fmt.Errorf("%w: %q", ErrInvalidDownloadURL, rawURL))
	}
	return c.downloadTarget(ctx, rawURL, c.sameOrigin(u))
}

func (c *Client) sameOrigin(u *url.URL) bool {
	base, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Scheme, base.Scheme) && strings.EqualFold(u.Host, base.Host)
}

func (c *Client) downloadTarget(ctx context.Context, target string, authorize bool) (io.ReadCloser, error) {
	body, err := c.dispatcher.download(ctx, target, authorize)
	if err != nil {
		return c.interceptDownload(err)
	}
	return body, nil
}

func (c *Client) interceptDownload(err error) (io.ReadCloser, error) {
	if err := c.dispatcher.intercept(err); err != nil {
		return nil, err
	}
	return http.NoBody, nil
}
