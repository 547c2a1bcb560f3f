package playercache

import (
	"sort"
	"strconv"

	"github.com/riskibarqy/baduk-client/internal/domain/player"
	"github.com/riskibarqy/baduk-client/internal/platform/pubsub"
)

// Subscriber receives the fresh record every time a subscribed player is updated.
type Subscriber struct {
	sub *pubsub.Subscriber[*player.Record]
}

func (c *Cache) NewSubscriber(cb func(rec *player.Record)) *Subscriber {
	return &Subscriber{
		sub: c.pub.NewSubscriber(func(_ string, rec *player.Record) {
			if cb != nil {
				cb(rec)
			}
		}),
	}
}

func (s *Subscriber) On(ids ...int64) {
	s.sub.On(keysForIDs(ids)...)
}

func (s *Subscriber) OnPlayers(recs ...*player.Record) {
	s.sub.On(keysForRecords(recs)...)
}

func (s *Subscriber) Off(ids ...int64) {
	s.sub.Off(keysForIDs(ids)...)
}

func (s *Subscriber) OffPlayers(recs ...*player.Record) {
	s.sub.Off(keysForRecords(recs)...)
}

// Players returns the subscribed ids in ascending order.
func (s *Subscriber) Players() []int64 {
	keys := s.sub.Keys()
	out := make([]int64, 0, len(keys))
	for _, key := range keys {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *Subscriber) Close() {
	s.sub.Close()
}

func keysForIDs(ids []int64) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id > 0 {
			out = append(out, player.Key(id))
		}
	}
	return out
}

func keysForRecords(recs []*player.Record) []string {
	out := make([]string, 0, len(recs))
	for _, rec := range recs {
		if rec != nil && rec.ID > 0 {
			out = append(out, rec.Key())
		}
	}
	return out
}
