// Package pubsub fans keyed events out to subscribers that registered interest in
// those keys.
package pubsub

import (
	"sort"
	"sync"

	"github.com/riskibarqy/baduk-client/internal/platform/logging"
	"github.com/sourcegraph/conc/panics"
)

type Publisher[V any] struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscriber[V]]struct{}
	logger *logging.Logger
}

func NewPublisher[V any](logger *logging.Logger) *Publisher[V] {
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher[V]{
		subs:   make(map[string]map[*Subscriber[V]]struct{}),
		logger: logger,
	}
}

// Subscriber is one observer. It receives a callback once per Publish for every key it
// is currently subscribed to.
type Subscriber[V any] struct {
	pub  *Publisher[V]
	cb   func(key string, v V)
	mu   sync.Mutex
	keys map[string]struct{}
}

func (p *Publisher[V]) NewSubscriber(cb func(key string, v V)) *Subscriber[V] {
	return &Subscriber[V]{
		pub:  p,
		cb:   cb,
		keys: make(map[string]struct{}),
	}
}

// Publish invokes every subscriber of key with v. Callbacks run on the caller's
// goroutine, outside the publisher lock; a panicking callback is logged and skipped.
func (p *Publisher[V]) Publish(key string, v V) int {
	p.mu.RLock()
	set := p.subs[key]
	targets := make([]*Subscriber[V], 0, len(set))
	for sub := range set {
		targets = append(targets, sub)
	}
	p.mu.RUnlock()

	for _, sub := range targets {
		if sub.cb == nil {
			continue
		}
		var catcher panics.Catcher
		catcher.Try(func() { sub.cb(key, v) })
		if r := catcher.Recovered(); r != nil {
			p.logger.Error("subscriber callback panicked", "key", key, "error", r.AsError())
		}
	}
	return len(targets)
}

// Subscribers reports how many subscribers currently listen on key.
func (p *Publisher[V]) Subscribers(key string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subs[key])
}

func (s *Subscriber[V]) On(keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pub.mu.Lock()
	defer s.pub.mu.Unlock()
	for _, key := range keys {
		s.keys[key] = struct{}{}
		set, ok := s.pub.subs[key]
		if !ok {
			set = make(map[*Subscriber[V]]struct{})
			s.pub.subs[key] = set
		}
		set[s] = struct{}{}
	}
}

func (s *Subscriber[V]) Off(keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offLocked(keys)
}

func (s *Subscriber[V]) offLocked(keys []string) {
	s.pub.mu.Lock()
	defer s.pub.mu.Unlock()
	for _, key := range keys {
		delete(s.keys, key)
		set, ok := s.pub.subs[key]
		if !ok {
			continue
		}
		delete(set, s)
		if len(set) == 0 {
			delete(s.pub.subs, key)
		}
	}
}

// Keys returns the subscribed keys in sorted order.
func (s *Subscriber[V]) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.keys))
	for key := range s.keys {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// Close drops every subscription so the publisher no longer references s.
func (s *Subscriber[V]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.keys))
	for key := range s.keys {
		keys = append(keys, key)
	}
	s.offLocked(keys)
}
