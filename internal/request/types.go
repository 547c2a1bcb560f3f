package request

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
)

// ErrAborted marks a request that was cancelled before it settled. Aborts carry
// status zero and are an intentional outcome, not a fault.
var ErrAborted = stderrors.New("request aborted")

// ErrDependencyUnavailable is returned without I/O while the backend circuit is open.
var ErrDependencyUnavailable = stderrors.New("dependency unavailable")

// Transport performs one network call. Implementations must return an error matching
// ErrAborted when ctx is cancelled and a *StatusError for non-2xx responses.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// Request is a fully encoded call, ready for a Transport.
type Request struct {
	Method string
	// URL is the resolved path (or absolute URL) after placeholder substitution.
	URL         string
	Query       url.Values
	Body        []byte
	ContentType string
	// Multipart disables JSON content negotiation.
	Multipart bool
}

type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Decode parses the JSON body into v.
func (r *Response) Decode(v any) error {
	if r == nil || len(r.Body) == 0 {
		return crerr.New("empty response body")
	}
	if err := sonic.Unmarshal(r.Body, v); err != nil {
		return crerr.Wrap(err, "decode response body")
	}
	return nil
}

// Blob is a binary payload; a Blob or a slice of Blobs is sent as multipart form data.
type Blob struct {
	Name        string
	ContentType string
	Data        []byte
}

type StatusError struct {
	Method string
	URL    string
	Status int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status=%d body=%s", e.Method, e.URL, e.Status, abbreviateBody(e.Body))
}

// Decode parses the error body into v.
func (e *StatusError) Decode(v any) error {
	if len(e.Body) == 0 {
		return crerr.New("empty error body")
	}
	return sonic.Unmarshal(e.Body, v)
}

type AbortError struct {
	Method string
	URL    string
	Cause  error
}

func (e *AbortError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s %s: request aborted", e.Method, e.URL)
	}
	return fmt.Sprintf("%s %s: request aborted: %v", e.Method, e.URL, e.Cause)
}

func (e *AbortError) Unwrap() error {
	return e.Cause
}

func (e *AbortError) Is(target error) bool {
	return target == ErrAborted
}

func IsAbort(err error) bool {
	return stderrors.Is(err, ErrAborted)
}

// StatusOf returns the HTTP status carried by err, or zero for aborts and transport
// failures.
func StatusOf(err error) int {
	var statusErr *StatusError
	if stderrors.As(err, &statusErr) {
		return statusErr.Status
	}
	return 0
}

func abbreviateBody(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) <= 240 {
		return text
	}
	return text[:240] + "..."
}
