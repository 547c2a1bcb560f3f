package resilience

import (
	"sync"

	"github.com/riskibarqy/baduk-client/internal/platform/future"
)

// SingleFlight deduplicates concurrent calls for the same key. The zero value is ready
// to use.
type SingleFlight[T any] struct {
	mu    sync.Mutex
	calls map[string]*future.Future[T]
}

// Do runs fn once per key at a time; concurrent callers with the same key wait for and
// share its result. shared reports whether the result came from another caller's run.
func (g *SingleFlight[T]) Do(key string, fn func() (T, error)) (val T, err error, shared bool) {
	g.mu.Lock()
	if g.calls == nil {
		g.calls = make(map[string]*future.Future[T])
	}

	if f, ok := g.calls[key]; ok {
		g.mu.Unlock()
		<-f.Done()
		val, err = f.Result()
		return val, err, true
	}

	f := future.New[T]()
	g.calls[key] = f
	g.mu.Unlock()

	val, err = fn()

	g.mu.Lock()
	delete(g.calls, key)
	g.mu.Unlock()

	if err != nil {
		f.Reject(err)
	} else {
		f.Resolve(val)
	}
	return val, err, false
}

// InFlight reports whether a call for key is currently running.
func (g *SingleFlight[T]) InFlight(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.calls[key]
	return ok
}
