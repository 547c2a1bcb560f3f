package playercache

import (
	"context"
	"net/http"
	"strings"

	crerr "github.com/cockroachdb/errors"
	"github.com/riskibarqy/baduk-client/internal/domain/player"
	"github.com/riskibarqy/baduk-client/internal/platform/future"
	"github.com/riskibarqy/baduk-client/internal/platform/metrics"
	"github.com/riskibarqy/baduk-client/internal/request"
)

type pendingFetch struct {
	id       int64
	required []player.Field
	future   *future.Future[*player.Record]
}

type searchEnvelope struct {
	Results []player.Patch `json:"results"`
}

// FetchAsync returns the cached record when it already carries every required field,
// and otherwise queues id for the next bulk lookup. Concurrent fetches of one id share
// a single future.
func (c *Cache) FetchAsync(id int64, required ...player.Field) *future.Future[*player.Record] {
	if id <= 0 {
		return future.Rejected[*player.Record](ErrInvalidID)
	}
	if err := checkFields(required); err != nil {
		return future.Rejected[*player.Record](err)
	}

	c.mu.Lock()
	if rec := c.byID[id]; rec != nil && rec.HasAll(required...) {
		c.mu.Unlock()
		metrics.PlayerCacheLookups.WithLabelValues("hit").Inc()
		return future.Resolved(rec)
	}
	if pending, ok := c.active[id]; ok {
		pending.required = appendMissingFields(pending.required, required)
		c.mu.Unlock()
		metrics.PlayerCacheLookups.WithLabelValues("joined").Inc()
		return pending.future
	}

	pending := &pendingFetch{
		id:       id,
		required: appendMissingFields(nil, required),
		future:   future.New[*player.Record](),
	}
	c.active[id] = pending
	c.mu.Unlock()

	metrics.PlayerCacheLookups.WithLabelValues("queued").Inc()
	if !c.queue.Enqueue(pending) {
		c.mu.Lock()
		delete(c.active, id)
		c.mu.Unlock()
		pending.future.Reject(ErrClosed)
	}
	return pending.future
}

// Fetch is FetchAsync followed by Wait(ctx).
func (c *Cache) Fetch(ctx context.Context, id int64, required ...player.Field) (*player.Record, error) {
	return c.FetchAsync(id, required...).Wait(ctx)
}

// FetchByUsername resolves username through the cache or a search, then fetches the id.
// A search without results caches a provisional record for the name and fails with
// ErrInvalidPlayerName.
func (c *Cache) FetchByUsername(ctx context.Context, username string, required ...player.Field) (*player.Record, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrInvalidPlayerName
	}
	if err := checkFields(required); err != nil {
		return nil, err
	}

	if rec := c.LookupByUsername(username); rec != nil && rec.ID > 0 {
		return c.Fetch(ctx, rec.ID, required...)
	}

	rec, err, _ := c.searches.Do(username, func() (*player.Record, error) {
		return c.search(ctx, username)
	})
	if err != nil {
		return nil, err
	}
	return c.Fetch(ctx, rec.ID, required...)
}

func (c *Cache) search(ctx context.Context, username string) (*player.Record, error) {
	// Joined callers share this search, so it waits on the cache lifetime rather than on
	// the first caller's ctx.
	resp, err := c.api.Go(ctx, http.MethodGet, c.cfg.SearchPath, map[string]string{"username": username}).Wait(c.ctx)
	if err != nil {
		return nil, err
	}

	var envelope searchEnvelope
	if err := resp.Decode(&envelope); err != nil {
		return nil, err
	}

	if len(envelope.Results) == 0 {
		c.mu.Lock()
		c.storeByNameLocked(player.ProvisionalForUsername(username))
		c.mu.Unlock()
		c.logger.Debug("player search found no account", "username", username)
		return nil, ErrInvalidPlayerName
	}

	rec := c.Update(envelope.Results[0], false)
	if rec == nil {
		c.logger.Warn("player search returned an unusable result", "username", username)
		return nil, ErrInvalidPlayerName
	}
	return rec, nil
}

// drain splits the queued fetches into chunks and runs one bulk lookup per chunk on
// the worker pool.
func (c *Cache) drain(items []*pendingFetch) {
	size := c.cfg.ChunkSize
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunk := items[start:end]

		c.chunks.Add(1)
		if err := c.pool.Submit(func() {
			defer c.chunks.Done()
			c.fetchChunk(chunk)
		}); err != nil {
			c.logger.Warn("player fetch pool rejected chunk, running inline", "size", len(chunk), "error", err)
			c.fetchChunk(chunk)
			c.chunks.Done()
		}
	}
}

func (c *Cache) fetchChunk(chunk []*pendingFetch) {
	ids := make([]string, 0, len(chunk))
	for _, item := range chunk {
		ids = append(ids, player.Key(item.id))
	}

	ctx := c.ctx
	resp, err := c.api.Go(ctx, http.MethodGet, c.cfg.BulkPath, map[string]string{"ids": strings.Join(ids, ".")}).Wait(ctx)
	if err != nil {
		c.failChunk(chunk, err)
		return
	}

	var rows []*player.Patch
	if err := resp.Decode(&rows); err != nil {
		c.failChunk(chunk, err)
		return
	}

	for i, item := range chunk {
		p := player.Patch{}
		if i < len(rows) && rows[i] != nil {
			p = *rows[i]
		}
		p = c.positionalPatch(item.id, p)

		c.mu.Lock()
		required := item.required
		rec, filled := c.storeLocked(p, false, required)
		if c.active[item.id] == item {
			delete(c.active, item.id)
		}
		c.mu.Unlock()

		if len(filled) > 0 {
			c.logger.Warn("bulk player lookup omitted required fields", "player_id", item.id, "fields", filled)
		}
		c.deliver()
		item.future.Resolve(rec)
	}
}

// positionalPatch pins a bulk row to the id queued at its position.
func (c *Cache) positionalPatch(id int64, p player.Patch) player.Patch {
	if p.ID != nil && *p.ID != id {
		c.logger.Warn("bulk player lookup returned a different id", "player_id", id, "returned_id", *p.ID)
		p = player.Patch{}
	}
	if err := p.Validate(); err != nil {
		c.logger.Warn("bulk player lookup returned a malformed row", "player_id", id, "error", err)
		p = player.Patch{}
	}
	p.ID = &id
	p.Anonymous = false
	return p
}

func (c *Cache) failChunk(chunk []*pendingFetch, err error) {
	missingID, notFound := c.cfg.NotFoundDetector(err)
	if !request.IsAbort(err) {
		c.logger.Warn("bulk player lookup failed", "size", len(chunk), "error", err)
	}

	for _, item := range chunk {
		c.mu.Lock()
		if c.active[item.id] == item {
			delete(c.active, item.id)
		}
		c.mu.Unlock()

		if notFound && item.id == missingID {
			c.Update(player.ProvisionalForID(item.id), false)
			item.future.Reject(&NotFoundError{ID: item.id, Err: err})
			continue
		}
		item.future.Reject(err)
	}
}

// checkFields rejects required fields no bulk row can ever carry. They would never
// become present and every fetch would go back to the network.
func checkFields(fields []player.Field) error {
	for _, f := range fields {
		if !player.KnownField(f) {
			return crerr.Wrapf(ErrInvalidField, "%q", string(f))
		}
	}
	return nil
}

func appendMissingFields(dst []player.Field, fields []player.Field) []player.Field {
	for _, f := range fields {
		found := false
		for _, existing := range dst {
			if existing == f {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, f)
		}
	}
	return dst
}
