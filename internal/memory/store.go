package memory

import (
	"encoding/json"
	"log"
	"sort"
	"sync"
	"time"
)

type record struct {
	entry Entry
	timer Timer
}

// Store is the tiered key→entry map with per-tier TTL and expiry.
// All public operations degrade instead of failing: a bookkeeping error
// must never interrupt chat responsiveness.
type Store struct {
	mu    sync.Mutex
	clock Clock
	tiers map[Tier]map[string]*record
}

// NewStore creates a Store using the given clock. Pass SystemClock()
// outside tests.
func NewStore(clock Clock) *Store {
	if clock == nil {
		clock = SystemClock()
	}
	return &Store{
		clock: clock,
		tiers: map[Tier]map[string]*record{
			TierShort:    {},
			TierMedium:   {},
			TierLong:     {},
			TierUnscoped: {},
		},
	}
}

// Add stores an entry, overwriting any existing entry with the same key in
// that tier and scheduling its expiry. An invalid tier falls back to
// TierUnscoped. Returns false (and logs) when the value cannot be stored.
func (s *Store) Add(tier Tier, key string, value any, ctx EntryContext) bool {
	if key == "" {
		log.Printf("[memstore] add rejected: empty key")
		return false
	}
	if !tier.valid() {
		log.Printf("[memstore] unknown tier %q for key %s, queueing as unscoped", tier, key)
		tier = TierUnscoped
	}
	if _, err := json.Marshal(value); err != nil {
		log.Printf("[memstore] add %s/%s rejected: value not serializable: %v", tier, key, err)
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if old, ok := s.tiers[tier][key]; ok && old.timer != nil {
		old.timer.Stop()
	}

	rec := &record{entry: Entry{
		Key:        key,
		Value:      value,
		Context:    ctx,
		Tier:       tier,
		InsertedAt: now,
	}}
	rec.timer = s.scheduleExpiry(tier, key, now, tier.MaxAge())
	s.tiers[tier][key] = rec
	return true
}

// scheduleExpiry arms a deferred delete for one specific insertion. The
// stamp check keeps a stale timer from removing a newer entry written
// under the same key after the timer was armed.
func (s *Store) scheduleExpiry(tier Tier, key string, stamp time.Time, after time.Duration) Timer {
	return s.clock.AfterFunc(after, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		rec, ok := s.tiers[tier][key]
		if !ok || !rec.entry.InsertedAt.Equal(stamp) {
			return
		}
		delete(s.tiers[tier], key)
	})
}

// Get returns the entry stored under (tier, key), or nil if absent or
// already past its tier's max age.
func (s *Store) Get(tier Tier, key string) *Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tiers[tier][key]
	if !ok {
		return nil
	}
	if s.clock.Now().Sub(rec.entry.InsertedAt) > tier.MaxAge() {
		return nil
	}
	e := rec.entry
	return &e
}

// Delete removes the entry under (tier, key) and cancels its expiry timer.
func (s *Store) Delete(tier Tier, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(tier, key)
}

func (s *Store) deleteLocked(tier Tier, key string) bool {
	rec, ok := s.tiers[tier][key]
	if !ok {
		return false
	}
	if rec.timer != nil {
		rec.timer.Stop()
	}
	delete(s.tiers[tier], key)
	return true
}

// GetRelevantMemories scans all tiers, drops entries past their tier's max
// age, scores the survivors against the query and returns them sorted by
// descending score, ties broken by more recent insertion. Duplicate keys
// across tiers keep only the higher-scoring entry. Never fails: internal
// problems yield an empty slice.
func (s *Store) GetRelevantMemories(query EntryContext) []Entry {
	s.mu.Lock()
	now := s.clock.Now()
	candidates := make([]Entry, 0, 16)
	for tier, entries := range s.tiers {
		maxAge := tier.MaxAge()
		for _, rec := range entries {
			if now.Sub(rec.entry.InsertedAt) > maxAge {
				continue
			}
			e := rec.entry
			e.Score = Score(e, query, now)
			candidates = append(candidates, e)
		}
	}
	s.mu.Unlock()

	byKey := make(map[string]int, len(candidates))
	deduped := make([]Entry, 0, len(candidates))
	for _, e := range candidates {
		if i, ok := byKey[e.Key]; ok {
			if e.Score > deduped[i].Score {
				deduped[i] = e
			}
			continue
		}
		byKey[e.Key] = len(deduped)
		deduped = append(deduped, e)
	}

	sort.SliceStable(deduped, func(i, j int) bool {
		if deduped[i].Score == deduped[j].Score {
			return deduped[i].InsertedAt.After(deduped[j].InsertedAt)
		}
		return deduped[i].Score > deduped[j].Score
	})
	return deduped
}

// Promote atomically moves the entry under (from, key) into the dst tier:
// it is removed from its source tier and re-inserted under the same key,
// never copied. InsertedAt is preserved so the entry's age carries over.
func (s *Store) Promote(from Tier, key string, dst Tier) bool {
	if !from.valid() || !dst.valid() || from == dst {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tiers[from][key]
	if !ok {
		return false
	}
	if rec.timer != nil {
		rec.timer.Stop()
	}
	delete(s.tiers[from], key)

	now := s.clock.Now()
	age := now.Sub(rec.entry.InsertedAt)
	remaining := dst.MaxAge() - age
	if remaining <= 0 {
		// Already older than the destination allows; let it die.
		return false
	}

	if old, exists := s.tiers[dst][key]; exists && old.timer != nil {
		old.timer.Stop()
	}
	moved := &record{entry: rec.entry}
	moved.entry.Tier = dst
	moved.timer = s.scheduleExpiry(dst, key, moved.entry.InsertedAt, remaining)
	s.tiers[dst][key] = moved
	return true
}

// EntriesByTier returns a copy of the live entries in one tier, oldest
// first. Used by the promotion scheduler and the dashboard.
func (s *Store) EntriesByTier(tier Tier) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	maxAge := tier.MaxAge()
	out := make([]Entry, 0, len(s.tiers[tier]))
	for _, rec := range s.tiers[tier] {
		if now.Sub(rec.entry.InsertedAt) > maxAge {
			continue
		}
		out = append(out, rec.entry)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].InsertedAt.Before(out[j].InsertedAt)
	})
	return out
}

// Cleanup sweeps every tier and deletes entries past their tier's max age.
// Idempotent and safe to run on a timer alongside Add: it only inspects
// committed insertion timestamps.
func (s *Store) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	removed := 0
	for tier, entries := range s.tiers {
		maxAge := tier.MaxAge()
		for key, rec := range entries {
			if now.Sub(rec.entry.InsertedAt) <= maxAge {
				continue
			}
			if rec.timer != nil {
				rec.timer.Stop()
			}
			delete(entries, key)
			removed++
		}
	}
	if removed > 0 {
		log.Printf("[memstore] cleanup removed %d expired entries", removed)
	}
}

// Stats counts live entries per tier.
func (s *Store) Stats() StoreStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	count := func(tier Tier) int {
		n := 0
		for _, rec := range s.tiers[tier] {
			if now.Sub(rec.entry.InsertedAt) <= tier.MaxAge() {
				n++
			}
		}
		return n
	}
	return StoreStats{
		Short:    count(TierShort),
		Medium:   count(TierMedium),
		Long:     count(TierLong),
		Unscoped: count(TierUnscoped),
	}
}
