package feed

import (
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"plant-diagnostics-web/pkg/predict"

	"github.com/patrickmn/go-cache"
)

// Store keeps the recent cross-user broadcast predictions for the live
// feed. Entries age out on their own; the feed is display-only and is
// never correlated with any local request.
type Store struct {
	entries *cache.Cache
	seq     atomic.Uint64
}

func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Store{
		entries: cache.New(ttl, ttl/2),
	}
}

// Add records one broadcast prediction.
func (s *Store) Add(entry predict.FeedEntry) {
	if entry.PredictedAt.IsZero() {
		entry.PredictedAt = time.Now()
	}
	key := fmt.Sprintf("%d", s.seq.Add(1))
	s.entries.Set(key, entry, cache.DefaultExpiration)
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(limit int) []predict.FeedEntry {
	items := s.entries.Items()
	entries := make([]predict.FeedEntry, 0, len(items))
	for _, item := range items {
		if entry, ok := item.Object.(predict.FeedEntry); ok {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].PredictedAt.After(entries[j].PredictedAt)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}
