package memory

import "time"

// Tier identifies one of the ordered memory lifetimes.
type Tier string

const (
	TierShort    Tier = "short"
	TierMedium   Tier = "medium"
	TierLong     Tier = "long"
	TierUnscoped Tier = "unscoped"
)

const (
	shortMaxAge    = 5 * time.Minute
	mediumMaxAge   = 30 * time.Minute
	longMaxAge     = 2 * time.Hour
	unscopedMaxAge = 10 * time.Minute
)

// MaxAge returns the fixed maximum entry age for the tier. Entries older
// than this must never be returned by a query and are purged by Cleanup.
func (t Tier) MaxAge() time.Duration {
	switch t {
	case TierShort:
		return shortMaxAge
	case TierMedium:
		return mediumMaxAge
	case TierLong:
		return longMaxAge
	default:
		return unscopedMaxAge
	}
}

func (t Tier) valid() bool {
	switch t {
	case TierShort, TierMedium, TierLong, TierUnscoped:
		return true
	}
	return false
}

// EntryContext describes why a memory exists and is the shape queries use.
type EntryContext struct {
	Type      string    `json:"type"`
	Channel   string    `json:"channel,omitempty"`
	User      string    `json:"user,omitempty"`
	Content   string    `json:"content,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Entry is one stored memory. Score is computed at query time and is only
// meaningful on entries returned by GetRelevantMemories.
type Entry struct {
	Key        string
	Value      any
	Context    EntryContext
	Tier       Tier
	InsertedAt time.Time
	Score      float64
}

// ThreadMessage is one bounded-history message inside a conversation thread.
type ThreadMessage struct {
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// Thread is the per (channel, participant) conversation state.
type Thread struct {
	ID           string
	Channel      string
	Participant  string
	Messages     []ThreadMessage
	LastActivity time.Time
	Metadata     map[string]any
}

// Key returns the composite thread key.
func (t *Thread) Key() string {
	return t.Channel + ":" + t.Participant
}

// ThreadArchive is the record handed to archival collaborators when an
// idle thread is evicted.
type ThreadArchive struct {
	ThreadID     string          `json:"threadId"`
	Channel      string          `json:"channel"`
	Participant  string          `json:"participant"`
	Messages     []ThreadMessage `json:"messages"`
	LastActivity time.Time       `json:"lastActivity"`
	EvictedAt    time.Time       `json:"evictedAt"`
}

// Archiver is an optional persistence collaborator for evicted threads.
// Failures are logged, never propagated.
type Archiver interface {
	ArchiveThread(rec ThreadArchive) error
}

// ChannelSignals carries externally computed per-channel mood/activity.
// The memory subsystem passes it through to snapshots unchanged.
type ChannelSignals struct {
	Mood        string  `json:"mood"`
	MessageRate float64 `json:"messageRate"`
	Hype        float64 `json:"hype"`
}

// ContextSnapshot is the immutable composite handed to the responder.
type ContextSnapshot struct {
	Channel     string
	Participant string
	Query       string
	History     []ThreadMessage
	Memories    []Entry
	Signals     ChannelSignals
	BuiltAt     time.Time
}

// StoreStats is a compact snapshot used by status reporting and the
// dashboard.
type StoreStats struct {
	Short    int `json:"short"`
	Medium   int `json:"medium"`
	Long     int `json:"long"`
	Unscoped int `json:"unscoped"`
}

// Total returns the entry count across all tiers.
func (s StoreStats) Total() int {
	return s.Short + s.Medium + s.Long + s.Unscoped
}
