package request

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	crerr "github.com/cockroachdb/errors"
	"github.com/riskibarqy/baduk-client/internal/platform/logging"
	"github.com/riskibarqy/baduk-client/internal/platform/resilience"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultCSRFCookie   = "csrftoken"
	DefaultCSRFHeader   = "X-CSRFToken"
	defaultTimeout      = 20 * time.Second
	defaultMaxBodyBytes = 6 << 20
)

type HTTPTransportConfig struct {
	BaseURL        string
	HTTPClient     *http.Client
	Timeout        time.Duration
	CSRFCookie     string
	CSRFHeader     string
	MaxBodyBytes   int64
	Logger         *logging.Logger
	CircuitBreaker resilience.CircuitBreakerConfig
}

// HTTPTransport sends coordinator requests to the REST backend. State-changing methods
// carry the CSRF header read from the cookie jar.
type HTTPTransport struct {
	httpClient     *http.Client
	baseURL        *url.URL
	csrfCookie     string
	csrfHeader     string
	maxBodyBytes   int64
	logger         *logging.Logger
	breaker        *resilience.CircuitBreaker
	circuitEnabled bool
}

func NewHTTPTransport(cfg HTTPTransportConfig) (*HTTPTransport, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"))
	if err != nil {
		return nil, crerr.Wrap(err, "parse api base url")
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, crerr.Newf("api base url must be http or https, got %q", cfg.BaseURL)
	}
	if base.Host == "" {
		return nil, crerr.Newf("api base url has no host: %q", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if httpClient.Timeout <= 0 {
		httpClient.Timeout = defaultTimeout
	}
	if httpClient.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, crerr.Wrap(err, "create cookie jar")
		}
		httpClient.Jar = jar
	}
	if _, ok := httpClient.Transport.(*otelhttp.Transport); !ok {
		rt := httpClient.Transport
		if rt == nil {
			rt = http.DefaultTransport
		}
		httpClient.Transport = otelhttp.NewTransport(rt)
	}

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	breakerCfg := cfg.CircuitBreaker.WithDefaults()
	breaker := resilience.NewCircuitBreaker(breakerCfg)
	transportLogger := logger.Named("transport")
	transportLogger.Debug("api transport configured", append([]any{"base_url", base.String()}, breakerCfg.LogFields()...)...)
	breaker.OnTransition(func(from, to resilience.CircuitState) {
		transportLogger.Warn("api circuit breaker state changed", "from", from, "to", to)
	})

	return &HTTPTransport{
		httpClient:     httpClient,
		baseURL:        base,
		csrfCookie:     firstNonEmpty(cfg.CSRFCookie, DefaultCSRFCookie),
		csrfHeader:     firstNonEmpty(cfg.CSRFHeader, DefaultCSRFHeader),
		maxBodyBytes:   maxBody,
		logger:         transportLogger,
		breaker:        breaker,
		circuitEnabled: breakerCfg.Enabled,
	}, nil
}

// SetCookie stores a cookie for the backend origin, e.g. a session or CSRF token
// obtained out of band.
func (t *HTTPTransport) SetCookie(cookie *http.Cookie) {
	if cookie == nil {
		return
	}
	t.httpClient.Jar.SetCookies(t.baseURL, []*http.Cookie{cookie})
}

func (t *HTTPTransport) Do(ctx context.Context, req *Request) (*Response, error) {
	if t.circuitEnabled {
		if err := t.breaker.Allow(); err != nil {
			t.logger.WarnContext(ctx, "api circuit breaker rejected request", "state", t.breaker.State(), "url", req.URL)
			return nil, fmt.Errorf("%w: %s %s", ErrDependencyUnavailable, req.Method, req.URL)
		}
	}

	resp, err := t.execute(ctx, req)
	if t.circuitEnabled {
		t.breaker.Record(isCircuitFailure(err))
	}
	return resp, err
}

func (t *HTTPTransport) execute(ctx context.Context, req *Request) (*Response, error) {
	target, err := t.target(req)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, crerr.Wrap(err, "build request")
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	if !req.Multipart {
		httpReq.Header.Set("Accept", "application/json")
	}
	if needsCSRF(req.Method) {
		if token := t.csrfToken(); token != "" {
			httpReq.Header.Set(t.csrfHeader, token)
		}
	}

	httpResp, err := t.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &AbortError{Method: req.Method, URL: req.URL, Cause: ctx.Err()}
		}
		return nil, crerr.Wrapf(err, "send %s %s", req.Method, req.URL)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, t.maxBodyBytes))
	if err != nil {
		if ctx.Err() != nil {
			return nil, &AbortError{Method: req.Method, URL: req.URL, Cause: ctx.Err()}
		}
		return nil, crerr.Wrapf(err, "read %s %s response", req.Method, req.URL)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, &StatusError{Method: req.Method, URL: req.URL, Status: httpResp.StatusCode, Body: raw}
	}
	return &Response{Status: httpResp.StatusCode, Header: httpResp.Header, Body: raw}, nil
}

func (t *HTTPTransport) target(req *Request) (string, error) {
	var u *url.URL
	if isAbsoluteURL(req.URL) {
		parsed, err := url.Parse(req.URL)
		if err != nil {
			return "", crerr.Wrapf(err, "parse request url %q", req.URL)
		}
		u = parsed
	} else {
		ref, err := url.Parse(req.URL)
		if err != nil {
			return "", crerr.Wrapf(err, "parse request path %q", req.URL)
		}
		u = t.baseURL.ResolveReference(ref)
	}

	if len(req.Query) > 0 {
		query := u.Query()
		for key, values := range req.Query {
			for _, value := range values {
				query.Add(key, value)
			}
		}
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

func (t *HTTPTransport) csrfToken() string {
	for _, cookie := range t.httpClient.Jar.Cookies(t.baseURL) {
		if cookie.Name == t.csrfCookie {
			return cookie.Value
		}
	}
	return ""
}

func needsCSRF(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false
	default:
		return true
	}
}

// isCircuitFailure counts transport failures and overload statuses; aborts and client
// errors say nothing about backend health.
func isCircuitFailure(err error) bool {
	if err == nil || IsAbort(err) {
		return false
	}
	var statusErr *StatusError
	if stderrors.As(err, &statusErr) {
		return statusErr.Status >= http.StatusInternalServerError || statusErr.Status == http.StatusTooManyRequests
	}
	return true
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
