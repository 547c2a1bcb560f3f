package request

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/riskibarqy/baduk-client/internal/platform/future"
	"github.com/riskibarqy/baduk-client/internal/platform/logging"
	"github.com/riskibarqy/baduk-client/internal/platform/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	DefaultAPIRoot = "/api/v1/"
	placeholder    = "%%"
)

var ErrClosed = stderrors.New("request coordinator closed")

type Config struct {
	// APIRoot prefixes every relative URL template. Defaults to DefaultAPIRoot.
	APIRoot string
	Logger  *logging.Logger
}

// Coordinator issues calls through a Transport and shares one network call between
// concurrent callers asking for the same method, URL and payload.
type Coordinator struct {
	transport Transport
	apiRoot   string
	logger    *logging.Logger

	seq atomic.Uint64

	mu       sync.Mutex
	inflight map[string]*inflight
	closed   bool
}

type inflight struct {
	seq     uint64
	key     string
	method  string
	url     string
	started time.Time
	future  *future.Future[*Response]
	cancel  context.CancelFunc
	aborted atomic.Bool
}

// InFlightInfo describes one outstanding call.
type InFlightInfo struct {
	Seq     uint64
	Method  string
	URL     string
	Started time.Time
}

func NewCoordinator(transport Transport, cfg Config) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	return &Coordinator{
		transport: transport,
		apiRoot:   normalizeAPIRoot(cfg.APIRoot),
		logger:    logger.Named("request"),
		inflight:  make(map[string]*inflight),
	}
}

func normalizeAPIRoot(root string) string {
	root = strings.TrimSpace(root)
	if root == "" {
		return DefaultAPIRoot
	}
	if !isAbsoluteURL(root) && !strings.HasPrefix(root, "/") {
		root = "/" + root
	}
	if !strings.HasSuffix(root, "/") {
		root += "/"
	}
	return root
}

// Go starts (or joins) a call and returns its shared future.
//
// args follow the placeholder convention: an integer or string first argument replaces
// the single %% in urlTemplate and an optional second argument is the payload; any
// other first argument is the payload itself. ctx contributes values such as the trace
// parent; cancelling it does not abort the shared call, use Wait(ctx) to stop waiting
// and CancelAll to abort.
func (c *Coordinator) Go(ctx context.Context, method, urlTemplate string, args ...any) *future.Future[*Response] {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodGet
	}

	id, hasID, payload := splitArgs(args)
	resolved := c.Resolve(c.substitute(urlTemplate, id, hasID))

	req, canonical, err := encodeRequest(method, resolved, payload)
	if err != nil {
		c.logger.ErrorContext(ctx, "encode request failed", "method", method, "url", resolved, "error", err)
		return future.Rejected[*Response](err)
	}
	key := dedupKey(method, resolved, canonical)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return future.Rejected[*Response](ErrClosed)
	}
	if existing, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		metrics.RequestsDeduplicated.WithLabelValues(method).Inc()
		return existing.future
	}

	reqCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	entry := &inflight{
		seq:     c.seq.Add(1),
		key:     key,
		method:  method,
		url:     resolved,
		started: time.Now(),
		future:  future.New[*Response](),
		cancel:  cancel,
	}
	c.inflight[key] = entry
	c.mu.Unlock()

	metrics.RequestsInFlight.Inc()
	go c.run(reqCtx, entry, req)
	return entry.future
}

// Call is Go followed by Wait(ctx).
func (c *Coordinator) Call(ctx context.Context, method, urlTemplate string, args ...any) (*Response, error) {
	return c.Go(ctx, method, urlTemplate, args...).Wait(ctx)
}

// CancelAll aborts every in-flight call to url, restricted to the given methods when any
// are passed. url is resolved like a call's template. It returns the number of calls
// aborted.
func (c *Coordinator) CancelAll(rawURL string, methods ...string) int {
	resolved := c.Resolve(rawURL)
	allowed := make(map[string]struct{}, len(methods))
	for _, method := range methods {
		allowed[strings.ToUpper(strings.TrimSpace(method))] = struct{}{}
	}

	c.mu.Lock()
	matched := make([]*inflight, 0, 1)
	for key, entry := range c.inflight {
		if entry.url != resolved {
			continue
		}
		if len(allowed) > 0 {
			if _, ok := allowed[entry.method]; !ok {
				continue
			}
		}
		delete(c.inflight, key)
		matched = append(matched, entry)
	}
	c.mu.Unlock()

	for _, entry := range matched {
		entry.aborted.Store(true)
		entry.cancel()
	}
	if len(matched) > 0 {
		c.logger.Debug("cancelled in-flight requests", "url", resolved, "count", len(matched))
	}
	return len(matched)
}

// InFlight returns the outstanding calls ordered by sequence id.
func (c *Coordinator) InFlight() []InFlightInfo {
	c.mu.Lock()
	out := make([]InFlightInfo, 0, len(c.inflight))
	for _, entry := range c.inflight {
		out = append(out, InFlightInfo{
			Seq:     entry.seq,
			Method:  entry.method,
			URL:     entry.url,
			Started: entry.started,
		})
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Close aborts every outstanding call and rejects later calls with ErrClosed.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	pending := make([]*inflight, 0, len(c.inflight))
	for key, entry := range c.inflight {
		delete(c.inflight, key)
		pending = append(pending, entry)
	}
	c.mu.Unlock()

	for _, entry := range pending {
		entry.aborted.Store(true)
		entry.cancel()
	}
}

// Resolve joins a path to the API root. Absolute URLs and paths already under the root
// are returned unchanged.
func (c *Coordinator) Resolve(path string) string {
	path = strings.TrimSpace(path)
	if isAbsoluteURL(path) || strings.HasPrefix(path, c.apiRoot) {
		return path
	}
	return c.apiRoot + strings.TrimLeft(path, "/")
}

func (c *Coordinator) substitute(urlTemplate, id string, hasID bool) string {
	hasPlaceholder := strings.Contains(urlTemplate, placeholder)
	switch {
	case hasID && !hasPlaceholder:
		c.logger.Error("id supplied for url without placeholder", "url", urlTemplate, "id", id)
		return urlTemplate
	case !hasID && hasPlaceholder:
		c.logger.Error("url placeholder without id", "url", urlTemplate)
		return urlTemplate
	case hasID:
		return strings.Replace(urlTemplate, placeholder, url.PathEscape(id), 1)
	default:
		return urlTemplate
	}
}

func (c *Coordinator) run(ctx context.Context, entry *inflight, req *Request) {
	defer entry.cancel()

	ctx, span := startRequestSpan(ctx, req.Method+" "+req.URL)
	defer span.End()
	span.SetAttributes(
		attribute.String("http.request.method", req.Method),
		attribute.String("url.path", req.URL),
		attribute.Int64("request.seq", int64(entry.seq)),
	)

	resp, err := c.transport.Do(ctx, req)
	if entry.aborted.Load() {
		cause := err
		if cause == nil {
			cause = context.Canceled
		}
		if !IsAbort(cause) {
			cause = &AbortError{Method: req.Method, URL: req.URL, Cause: cause}
		}
		resp, err = nil, cause
	}

	c.release(entry)
	elapsed := time.Since(entry.started)
	metrics.RequestsInFlight.Dec()
	metrics.RequestDuration.WithLabelValues(req.Method).Observe(float64(elapsed.Milliseconds()))

	if err != nil {
		outcome := "error"
		if IsAbort(err) {
			outcome = "aborted"
			c.logger.DebugContext(ctx, "request aborted", "method", req.Method, "url", req.URL, "seq", entry.seq)
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.logger.WarnContext(ctx, "request failed",
				"method", req.Method,
				"url", req.URL,
				"status", StatusOf(err),
				"duration", elapsed,
				"error", err,
			)
		}
		metrics.RequestsTotal.WithLabelValues(req.Method, outcome).Inc()
		entry.future.Reject(err)
		return
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.Status))
	metrics.RequestsTotal.WithLabelValues(req.Method, "ok").Inc()
	entry.future.Resolve(resp)
}

// release drops entry from the registry unless it was already replaced or cancelled.
func (c *Coordinator) release(entry *inflight) {
	c.mu.Lock()
	if current, ok := c.inflight[entry.key]; ok && current == entry {
		delete(c.inflight, entry.key)
	}
	c.mu.Unlock()
}

func isAbsoluteURL(raw string) bool {
	return strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://")
}
