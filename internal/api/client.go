package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// Observer is notified about the lifecycle of every call. The state store
// implements it to drive the global loading and error fields.
type Observer interface {
	RequestStarted()
	RequestSucceeded()
	RequestFailed(message string)
}

// Recorder receives per-call measurements.
type Recorder interface {
	RecordRequest(method, route string, status int, elapsed time.Duration)
}

// Request describes a single outbound call.
type Request struct {
	Method string
	Path   string
	// Route is the templated path used for metrics and span names, e.g.
	// "/posts/:id". Path is used when empty.
	Route string
	Query url.Values
	Body  any
}

// Client talks to the publishing HTTP API.
type Client struct {
	baseURL     *url.URL
	http        *http.Client
	userAgent   string
	partnerCode string
	observer    Observer
	recorder    Recorder
	limiter     *rate.Limiter
	tracer      trace.Tracer
	logger      *slog.Logger

	mu    sync.RWMutex
	token string
}

const (
	defaultBaseURL   = "http://apis.imooc.com/api/"
	defaultUserAgent = "zheye/0.1"
	requestTimeout   = 10 * time.Second
	maxResponseBytes = 8 << 20
	tracerName       = "github.com/five82/zheye/internal/api"

	// PartnerCodeField is the parameter carrying the partner identification code.
	PartnerCodeField = "icode"
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithPartnerCode stamps every request with the partner identification code.
func WithPartnerCode(code string) Option {
	return func(c *Client) {
		c.partnerCode = strings.TrimSpace(code)
	}
}

// WithObserver registers the request lifecycle observer.
func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// WithRecorder registers a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Client) {
		c.recorder = r
	}
}

// WithRateLimit caps outbound calls to rps per second. Zero disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithTracerProvider overrides the global OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		if tp != nil {
			c.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if strings.TrimSpace(ua) != "" {
			c.userAgent = ua
		}
	}
}

// WithLogger sets the logger used for failed calls.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient builds a Client for the given base URL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL:   base,
		http:      &http.Client{Timeout: requestTimeout},
		userAgent: defaultUserAgent,
		tracer:    otel.GetTracerProvider().Tracer(tracerName),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetToken makes token the default bearer credential of all later calls.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// ClearToken drops the default bearer credential.
func (c *Client) ClearToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
}

// Token returns the current bearer credential.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// BaseURL returns the resolved API root.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Call issues req and decodes the response envelope into dest.
func (c *Client) Call(ctx context.Context, req Request, dest any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	var (
		body        []byte
		contentType string
	)
	if req.Body != nil {
		encoded, err := c.encodeBody(req.Body)
		if err != nil {
			return err
		}
		body = encoded
		contentType = "application/json"
	}
	return c.send(ctx, req, contentType, body, dest)
}

// Upload posts a file as multipart form data to /upload.
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (*Envelope[Image], error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	if r == nil {
		return nil, fmt.Errorf("upload %q: no content", filename)
	}
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("copy upload: %w", err)
	}
	if c.partnerCode != "" {
		if err := form.WriteField(PartnerCodeField, c.partnerCode); err != nil {
			return nil, fmt.Errorf("write form field: %w", err)
		}
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("close form: %w", err)
	}

	var env Envelope[Image]
	req := Request{Method: http.MethodPost, Path: "/upload"}
	if err := c.send(ctx, req, form.FormDataContentType(), buf.Bytes(), &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// encodeBody marshals v and, when it is a JSON object, merges the partner code into it.
func (c *Client) encodeBody(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	if c.partnerCode == "" {
		return data, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil || obj == nil {
		return data, nil
	}
	code, err := json.Marshal(c.partnerCode)
	if err != nil {
		return nil, fmt.Errorf("encode partner code: %w", err)
	}
	obj[PartnerCodeField] = code
	merged, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	return merged, nil
}

func (c *Client) send(ctx context.Context, req Request, contentType string, body []byte, dest any) error {
	route := req.Route
	if route == "" {
		route = req.Path
	}

	ctx, span := c.tracer.Start(ctx, "api "+req.Method+" "+route,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("http.route", route),
		),
	)
	defer span.End()

	if c.observer != nil {
		c.observer.RequestStarted()
	}

	start := time.Now()
	status, err := c.roundTrip(ctx, req, contentType, body, dest)
	elapsed := time.Since(start)

	if c.recorder != nil {
		c.recorder.RecordRequest(req.Method, route, status, elapsed)
	}
	if status > 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", status))
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("api call failed",
			slog.String("method", req.Method),
			slog.String("route", route),
			slog.Int("status", status),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()),
		)
		if c.observer != nil {
			c.observer.RequestFailed(err.Error())
		}
		return err
	}
	if c.observer != nil {
		c.observer.RequestSucceeded()
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, req Request, contentType string, body []byte, dest any) (int, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, fmt.Errorf("rate limit: %w", err)
		}
	}

	reqURL := c.resolve(req.Path, req.Query)
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, reqURL, reader)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("X-Request-ID", uuid.NewString())
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if token := c.Token(); token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		route := req.Route
		if route == "" {
			route = req.Path
		}
		return resp.StatusCode, &RemoteError{
			StatusCode: resp.StatusCode,
			Route:      route,
			Message:    errorMessage(resp.StatusCode, payload),
		}
	}
	if dest == nil || len(bytes.TrimSpace(payload)) == 0 {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}

// resolve joins path onto the base URL, keeping the base path prefix.
func (c *Client) resolve(path string, query url.Values) string {
	rel := &url.URL{Path: strings.TrimPrefix(path, "/")}
	values := url.Values{}
	for k, vs := range query {
		values[k] = append([]string(nil), vs...)
	}
	if c.partnerCode != "" {
		values.Set(PartnerCodeField, c.partnerCode)
	}
	if len(values) > 0 {
		rel.RawQuery = values.Encode()
	}
	return c.baseURL.ResolveReference(rel).String()
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = defaultBaseURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", raw, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse base url %q: missing host", raw)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
