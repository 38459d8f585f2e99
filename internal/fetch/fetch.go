package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "kemote"
	maxResponseBytes = 32 << 20
)

// ErrorKind classifies a NetworkError.
type ErrorKind int

const (
	// KindUnreachable covers DNS, connection and transport failures.
	KindUnreachable ErrorKind = iota
	// KindStatus is a response with a non-2xx status code.
	KindStatus
	// KindTimeout is a deadline hit while waiting for the remote side.
	KindTimeout
	// KindTooLarge is a body exceeding the client's size limit.
	KindTooLarge
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnreachable:
		return "unreachable"
	case KindStatus:
		return "status"
	case KindTimeout:
		return "timeout"
	case KindTooLarge:
		return "too large"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// NetworkError reports a failed outbound request.
type NetworkError struct {
	Kind       ErrorKind
	URL        string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	switch e.Kind {
	case KindStatus:
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	case KindTimeout:
		return fmt.Sprintf("fetch %s: timed out: %v", e.URL, e.Err)
	case KindTooLarge:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsNetworkError checks if an error is a network error.
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// Options configures a Client.
type Options struct {
	// Timeout bounds each request. Zero means 30s.
	Timeout time.Duration
	// RequestsPerSecond limits outbound requests. Zero means unlimited.
	RequestsPerSecond float64
	// UserAgent is sent with every request.
	UserAgent string
	// MaxBytes caps a response body. Zero means 32 MiB.
	MaxBytes int64
	// HTTPClient overrides the underlying client (tests use httptest clients).
	HTTPClient *http.Client
}

// Client performs outbound reads. It is safe for concurrent use and reuses
// connections across requests.
type Client struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	maxBytes  int64
	tracer    trace.Tracer
}

// New creates a Client.
func New(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = maxResponseBytes
	}
	c := &Client{
		client:    hc,
		userAgent: ua,
		maxBytes:  maxBytes,
		tracer:    otel.Tracer("github.com/dshills/kemote/internal/fetch"),
	}
	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return c
}

// Get retrieves the body at url.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, "fetch.get", trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.url", url)))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, endSpan(span, fmt.Errorf("creating request: %w", err))
	}
	body, err := c.do(ctx, req)
	return body, endSpan(span, err)
}

// PostJSON submits doc as a JSON body to url and returns the response body.
func (c *Client) PostJSON(ctx context.Context, url string, doc any) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, "fetch.post", trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.url", url)))
	defer span.End()

	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, endSpan(span, fmt.Errorf("marshaling request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, endSpan(span, fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	body, err := c.do(ctx, req)
	return body, endSpan(span, err)
}

func (c *Client) do(ctx context.Context, req *http.Request) ([]byte, error) {
	url := req.URL.String()
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, classify(url, err)
		}
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classify(url, err)
	}
	defer resp.Body.Close()

	// One extra byte tells a body of exactly maxBytes from a longer one.
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, classify(url, err)
	}
	if int64(len(body)) > c.maxBytes {
		return nil, &NetworkError{
			Kind:       KindTooLarge,
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("response body exceeds %d bytes", c.maxBytes),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &NetworkError{
			Kind:       KindStatus,
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", bytes.TrimSpace(body)),
		}
	}
	return body, nil
}

func classify(url string, err error) error {
	kind := KindUnreachable
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		kind = KindTimeout
	}
	return &NetworkError{Kind: kind, URL: url, Err: err}
}

func endSpan(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
