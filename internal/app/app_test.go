package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/riskibarqy/baduk-client/internal/config"
	"github.com/riskibarqy/baduk-client/internal/domain/player"
	"github.com/riskibarqy/baduk-client/internal/game"
	"github.com/riskibarqy/baduk-client/internal/platform/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySnapshots struct {
	mu      sync.Mutex
	loaded  []player.Patch
	saved   []*player.Record
	loadLim int
}

func (m *memorySnapshots) LoadAll(_ context.Context, limit int) ([]player.Patch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadLim = limit
	return m.loaded, nil
}

func (m *memorySnapshots) UpsertMany(_ context.Context, records []*player.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, records...)
	return nil
}

func testConfig(baseURL string) config.Config {
	return config.Config{
		AppEnv:                   config.EnvDev,
		APIBaseURL:               baseURL,
		APIRoot:                  "/api/v1/",
		APITimeout:               2 * time.Second,
		APICSRFCookie:            "csrftoken",
		APICSRFHeader:            "X-CSRFToken",
		APICircuitEnabled:        true,
		APICircuitFailureCount:   5,
		APICircuitOpenTimeout:    time.Second,
		APICircuitHalfOpenMaxReq: 1,
		PlayerBulkPath:           "players/bulk",
		PlayerSearchPath:         "players",
		PlayerChunkSize:          100,
		PlayerBatchWindow:        time.Millisecond,
		PlayerFetchWorkers:       2,
		AutoplayDelay:            time.Second,
		SnapshotLoadLimit:        10,
	}
}

func TestNew_FetchesPlayersThroughCoordinator(t *testing.T) {
	t.Parallel()

	var hits int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		if r.URL.Path != "/api/v1/players/bulk" || r.URL.Query().Get("ids") != "5" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":5,"username":"cho","ranking":30}]`))
	}))
	defer srv.Close()

	a, err := New(context.Background(), testConfig(srv.URL), logging.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rec, err := a.Players.Fetch(ctx, 5, player.FieldUsername)
	require.NoError(t, err)
	assert.Equal(t, "cho", rec.Username)
	assert.Same(t, rec, a.Players.Lookup(5))

	_, err = a.Players.Fetch(ctx, 5, player.FieldUsername)
	require.NoError(t, err)
	mu.Lock()
	assert.Equal(t, 1, hits, "second fetch is served from the cache")
	mu.Unlock()

	require.NoError(t, a.Close(ctx))
}

func TestNew_RejectsInvalidBaseURL(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), testConfig("ftp://example.com"), logging.NewNop())
	assert.Error(t, err)
}

func TestApp_WarmAndPersistSnapshots(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	a, err := New(context.Background(), testConfig(srv.URL), logging.NewNop())
	require.NoError(t, err)

	id := int64(42)
	name := "lee"
	store := &memorySnapshots{loaded: []player.Patch{{ID: &id, Username: &name}}}
	a.snapshots = store

	a.warm(context.Background())
	assert.Equal(t, 10, store.loadLim)
	rec := a.Players.Lookup(42)
	require.NotNil(t, rec)
	assert.Equal(t, "lee", rec.Username)
	assert.Same(t, rec, a.Players.LookupByUsername("lee"))

	a.Players.Update(player.Patch{ID: &id, Country: ptr("kr")}, false)
	require.NoError(t, a.Close(context.Background()))

	require.Len(t, store.saved, 1)
	assert.Equal(t, "kr", store.saved[0].Country)
}

func TestApp_NewGameControllerUsesConfiguredDelay(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	a, err := New(context.Background(), testConfig(srv.URL), logging.NewNop())
	require.NoError(t, err)
	defer func() { _ = a.Close(context.Background()) }()

	ctrl := a.NewGameController(stillEngine{}, nil)
	defer ctrl.Close()
	assert.False(t, ctrl.Autoplay())
}

func ptr[T any](v T) *T { return &v }

// stillEngine is an engine with no moves that never emits events.
type stillEngine struct{}

func (stillEngine) On(string, func(any)) func() { return func() {} }
func (stillEngine) Mode() game.Mode             { return game.ModePlay }
func (stillEngine) SetMode(game.Mode)           {}
func (stillEngine) ShowNext() bool              { return false }
func (stillEngine) ComputeScore()               {}
func (stillEngine) ShowScore()                  {}
func (stillEngine) HideScore()                  {}
func (stillEngine) EstimateScore()              {}
func (stillEngine) StopEstimatingScore()        {}
