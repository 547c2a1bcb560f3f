// Package playercache keeps an id- and username-indexed cache of player records,
// coalesces individual fetches into bulk lookups and notifies subscribers of changes.
package playercache

import (
	"context"
	"sort"
	"strings"
	"sync"

	crerr "github.com/cockroachdb/errors"
	"github.com/panjf2000/ants/v2"
	"github.com/riskibarqy/baduk-client/internal/domain/player"
	"github.com/riskibarqy/baduk-client/internal/platform/batch"
	"github.com/riskibarqy/baduk-client/internal/platform/future"
	"github.com/riskibarqy/baduk-client/internal/platform/logging"
	"github.com/riskibarqy/baduk-client/internal/platform/metrics"
	"github.com/riskibarqy/baduk-client/internal/platform/pubsub"
	"github.com/riskibarqy/baduk-client/internal/platform/resilience"
	"github.com/riskibarqy/baduk-client/internal/request"
)

const (
	DefaultBulkPath   = "players/bulk"
	DefaultSearchPath = "players"
	DefaultChunkSize  = 100
	defaultWorkers    = 4
)

// Requester is the part of request.Coordinator the cache needs.
type Requester interface {
	Go(ctx context.Context, method, urlTemplate string, args ...any) *future.Future[*request.Response]
}

type Config struct {
	BulkPath   string
	SearchPath string
	// ChunkSize caps the ids sent in one bulk lookup.
	ChunkSize int
	// Scheduler decides when queued fetches are drained. Defaults to a short timer.
	Scheduler batch.Scheduler
	// MaxQueued drains immediately once this many fetches are waiting. Zero disables it.
	MaxQueued int
	// Workers bounds concurrent bulk lookups.
	Workers          int
	NotFoundDetector NotFoundDetector
	Logger           *logging.Logger
}

type Cache struct {
	api    Requester
	cfg    Config
	logger *logging.Logger

	mu     sync.RWMutex
	byID   map[int64]*player.Record
	byName map[string]*player.Record
	active map[int64]*pendingFetch
	// outbox holds stored records awaiting publication in store order; delivering is set
	// while one goroutine drains it.
	outbox     []*player.Record
	delivering bool

	pub      *pubsub.Publisher[*player.Record]
	queue    *batch.Batcher[*pendingFetch]
	pool     *ants.Pool
	chunks   sync.WaitGroup
	searches resilience.SingleFlight[*player.Record]

	ctx    context.Context
	cancel context.CancelFunc
}

func New(api Requester, cfg Config) (*Cache, error) {
	if api == nil {
		return nil, crerr.New("player cache requires a requester")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.Named("playercache")

	cfg.BulkPath = strings.TrimSpace(cfg.BulkPath)
	if cfg.BulkPath == "" {
		cfg.BulkPath = DefaultBulkPath
	}
	cfg.SearchPath = strings.TrimSpace(cfg.SearchPath)
	if cfg.SearchPath == "" {
		cfg.SearchPath = DefaultSearchPath
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.NotFoundDetector == nil {
		cfg.NotFoundDetector = DetectNotFound
	}

	pool, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return nil, crerr.Wrap(err, "create player fetch pool")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		api:    api,
		cfg:    cfg,
		logger: logger,
		byID:   make(map[int64]*player.Record),
		byName: make(map[string]*player.Record),
		active: make(map[int64]*pendingFetch),
		pub:    pubsub.NewPublisher[*player.Record](logger),
		pool:   pool,
		ctx:    ctx,
		cancel: cancel,
	}
	c.queue = batch.New(c.drain, batch.Config{
		Name:      "player_fetch",
		MaxItems:  cfg.MaxQueued,
		Scheduler: cfg.Scheduler,
		Logger:    logger,
	})
	return c, nil
}

// Lookup returns the cached record for id, or nil. It never performs I/O.
func (c *Cache) Lookup(id int64) *player.Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byID[id]
}

// LookupByUsername returns the cached record for username, or nil.
func (c *Cache) LookupByUsername(username string) *player.Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byName[username]
}

// Update merges p into the cached record for its id and publishes the result, handing
// it to a drain already in progress when there is one. With dontOverwrite only fields
// the cached record lacks are filled. Anonymous, id-less or
// malformed input is logged and ignored.
func (c *Cache) Update(p player.Patch, dontOverwrite bool) *player.Record {
	if p.Anonymous || p.PlayerID() <= 0 {
		c.logger.Debug("ignoring player update without id", "anonymous", p.Anonymous)
		return nil
	}
	if err := p.Validate(); err != nil {
		c.logger.Warn("ignoring malformed player update", "player_id", p.PlayerID(), "error", err)
		return nil
	}

	c.mu.Lock()
	rec, _ := c.storeLocked(p, dontOverwrite, nil)
	c.mu.Unlock()

	c.deliver()
	return rec
}

// UpdateMany applies Update element-wise and returns the stored records, skipping
// ignored input.
func (c *Cache) UpdateMany(patches []player.Patch, dontOverwrite bool) []*player.Record {
	out := make([]*player.Record, 0, len(patches))
	for _, p := range patches {
		if rec := c.Update(p, dontOverwrite); rec != nil {
			out = append(out, rec)
		}
	}
	return out
}

// Warm seeds the cache without overwriting anything already known.
func (c *Cache) Warm(patches []player.Patch) int {
	return len(c.UpdateMany(patches, true))
}

// Records returns every cached id-keyed record ordered by id.
func (c *Cache) Records() []*player.Record {
	c.mu.RLock()
	out := make([]*player.Record, 0, len(c.byID))
	for _, rec := range c.byID {
		out = append(out, rec)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}

// Close drains queued fetches, waits for running bulk lookups and releases the pool.
func (c *Cache) Close() {
	c.queue.Stop()
	c.chunks.Wait()
	c.cancel()
	c.pool.Release()
}

// storeLocked merges p into the cache, filling required fields that are still missing
// with the error sentinel. c.mu must be held.
func (c *Cache) storeLocked(p player.Patch, dontOverwrite bool, required []player.Field) (*player.Record, []player.Field) {
	id := p.PlayerID()
	base := c.byID[id]

	if p.Pro == nil && p.Professional == nil && !base.Has(player.FieldPro) {
		p.Pro = new(bool)
	}

	next := player.Merge(base, p, dontOverwrite)
	next, filled := player.FillMissing(next, required)
	c.byID[id] = next

	if base != nil && base.Username != next.Username && c.byName[base.Username] == base {
		delete(c.byName, base.Username)
	}
	if next.Username != "" && !next.Errored(player.FieldUsername) {
		c.byName[next.Username] = next
	}

	c.outbox = append(c.outbox, next)
	metrics.PlayerCacheSize.Set(float64(len(c.byID)))
	return next, filled
}

// deliver publishes queued records in the order they were stored. Only one goroutine
// drains at a time, so a subscriber's last callback for an id always carries the record
// stored last. Updates made while another goroutine drains are handed to that drain,
// including updates made from inside a subscriber callback.
func (c *Cache) deliver() {
	c.mu.Lock()
	if c.delivering {
		c.mu.Unlock()
		return
	}
	c.delivering = true
	for len(c.outbox) > 0 {
		rec := c.outbox[0]
		c.outbox[0] = nil
		c.outbox = c.outbox[1:]
		c.mu.Unlock()

		c.pub.Publish(rec.Key(), rec)

		c.mu.Lock()
	}
	c.delivering = false
	c.mu.Unlock()
}

// storeByNameLocked caches a record reachable only by username, unless a real account
// already holds that name. c.mu must be held.
func (c *Cache) storeByNameLocked(rec *player.Record) *player.Record {
	if existing := c.byName[rec.Username]; existing != nil && existing.ID != 0 {
		return existing
	}
	c.byName[rec.Username] = rec
	return rec
}
