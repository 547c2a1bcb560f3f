package request

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/riskibarqy/baduk-client/internal/platform/logging"
	"github.com/riskibarqy/baduk-client/internal/platform/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTransport(t *testing.T, srv *httptest.Server, breaker resilience.CircuitBreakerConfig) *HTTPTransport {
	t.Helper()
	transport, err := NewHTTPTransport(HTTPTransportConfig{
		BaseURL:        srv.URL,
		Timeout:        2 * time.Second,
		Logger:         logging.NewNop(),
		CircuitBreaker: breaker,
	})
	require.NoError(t, err)
	return transport
}

func TestHTTPTransport_GetSendsQueryWithoutCSRF(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		if r.URL.Path != "/api/v1/players" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("ids"); got != "1.2.3" {
			t.Fatalf("unexpected ids: %s", got)
		}
		if got := r.Header.Get(DefaultCSRFHeader); got != "" {
			t.Fatalf("GET must not carry csrf header, got %q", got)
		}
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Fatalf("unexpected accept header: %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":1}]`))
	}))
	defer srv.Close()

	transport := newTestTransport(t, srv, resilience.CircuitBreakerConfig{Enabled: false})
	transport.SetCookie(&http.Cookie{Name: DefaultCSRFCookie, Value: "tok"})
	coord := NewCoordinator(transport, Config{Logger: logging.NewNop()})

	resp, err := coord.Call(context.Background(), http.MethodGet, "players", map[string]string{"ids": "1.2.3"})
	require.NoError(t, err)

	var out []map[string]int
	require.NoError(t, resp.Decode(&out))
	assert.Equal(t, 1, out[0]["id"])
}

func TestHTTPTransport_StateChangingMethodCarriesCSRF(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get(DefaultCSRFHeader); got != "csrf-123" {
			t.Fatalf("unexpected csrf header: %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Fatalf("unexpected content type: %q", got)
		}
		var body map[string]string
		raw, _ := io.ReadAll(r.Body)
		if err := sonic.Unmarshal(raw, &body); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		if body["text"] != "hi" {
			t.Fatalf("unexpected body: %v", body)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	transport := newTestTransport(t, srv, resilience.CircuitBreakerConfig{Enabled: false})
	transport.SetCookie(&http.Cookie{Name: DefaultCSRFCookie, Value: "csrf-123"})
	coord := NewCoordinator(transport, Config{Logger: logging.NewNop()})

	resp, err := coord.Call(context.Background(), http.MethodPost, "games/%%/chat", 5, map[string]string{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Status)
}

func TestHTTPTransport_MultipartUpload(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		files := r.MultipartForm.File["file"]
		if len(files) != 2 {
			t.Fatalf("expected two file parts, got %d", len(files))
		}
		if files[0].Filename != "a.png" || files[1].Filename != "b.png" {
			t.Fatalf("unexpected filenames: %s %s", files[0].Filename, files[1].Filename)
		}
		if got := r.Header.Get("Accept"); got != "" {
			t.Fatalf("multipart upload must not negotiate json, got accept %q", got)
		}
		_, _ = w.Write([]byte(`{"icon":"https://cdn.test/a.png"}`))
	}))
	defer srv.Close()

	transport := newTestTransport(t, srv, resilience.CircuitBreakerConfig{Enabled: false})
	coord := NewCoordinator(transport, Config{Logger: logging.NewNop()})

	_, err := coord.Call(context.Background(), http.MethodPost, "me/icon", []*Blob{
		{Name: "a.png", ContentType: "image/png", Data: []byte{0x89, 0x50}},
		{Name: "b.png", ContentType: "image/png", Data: []byte{0x4e, 0x47}},
	})
	require.NoError(t, err)
}

func TestHTTPTransport_NonSuccessStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"Player 12 not found","player_id":12}`))
	}))
	defer srv.Close()

	transport := newTestTransport(t, srv, resilience.CircuitBreakerConfig{Enabled: false})
	_, err := transport.Do(context.Background(), &Request{Method: http.MethodGet, URL: "/api/v1/players/12"})
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.Status)

	var body struct {
		PlayerID int64 `json:"player_id"`
	}
	require.NoError(t, statusErr.Decode(&body))
	assert.EqualValues(t, 12, body.PlayerID)
}

func TestHTTPTransport_CircuitOpensOnServerErrors(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	transport := newTestTransport(t, srv, resilience.CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: 1,
		OpenTimeout:      time.Minute,
		HalfOpenMaxReq:   1,
	})

	req := &Request{Method: http.MethodGet, URL: "/api/v1/me"}
	_, err := transport.Do(context.Background(), req)
	require.Equal(t, http.StatusBadGateway, StatusOf(err))

	_, err = transport.Do(context.Background(), req)
	require.ErrorIs(t, err, ErrDependencyUnavailable)
	assert.EqualValues(t, 1, hits.Load(), "open circuit must not reach the backend")
}

func TestHTTPTransport_ClientErrorsDoNotTripCircuit(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	transport := newTestTransport(t, srv, resilience.CircuitBreakerConfig{Enabled: true, FailureThreshold: 1})
	req := &Request{Method: http.MethodGet, URL: "/api/v1/me"}
	for i := 0; i < 3; i++ {
		_, err := transport.Do(context.Background(), req)
		require.Equal(t, http.StatusBadRequest, StatusOf(err))
	}
}

func TestHTTPTransport_CancelledContextIsAbort(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	transport := newTestTransport(t, srv, resilience.CircuitBreakerConfig{Enabled: false})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := transport.Do(ctx, &Request{Method: http.MethodGet, URL: "/api/v1/slow"})
	require.Error(t, err)
	assert.True(t, IsAbort(err))
	assert.Zero(t, StatusOf(err))
}

func TestNewHTTPTransport_RejectsInvalidBaseURL(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "ftp://example.com", "http://"} {
		_, err := NewHTTPTransport(HTTPTransportConfig{BaseURL: raw})
		require.Error(t, err, raw)
	}
}
