package memory

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	threadMaxMessages = 25
	threadIdleTimeout = 5 * time.Minute
)

// ThreadManager tracks one bounded conversation thread per
// (channel, participant) composite key. Idle threads are evicted by Sweep
// and their history archived, best-effort, into the MEDIUM memory tier and
// the optional external archiver.
type ThreadManager struct {
	mu       sync.Mutex
	clock    Clock
	store    *Store
	archiver Archiver
	threads  map[string]*Thread
}

// NewThreadManager wires the manager to the store that receives archived
// thread history. archiver may be nil.
func NewThreadManager(store *Store, archiver Archiver, clock Clock) *ThreadManager {
	if clock == nil {
		clock = SystemClock()
	}
	return &ThreadManager{
		clock:    clock,
		store:    store,
		archiver: archiver,
		threads:  make(map[string]*Thread),
	}
}

// GetOrCreate returns the thread for (channel, participant), creating it
// on first access. Every access counts as activity.
func (m *ThreadManager) GetOrCreate(channel, participant string) *Thread {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := channel + ":" + participant
	now := m.clock.Now()
	if t, ok := m.threads[key]; ok {
		t.LastActivity = now
		return t
	}

	t := &Thread{
		ID:           uuid.NewString(),
		Channel:      channel,
		Participant:  participant,
		Messages:     make([]ThreadMessage, 0, threadMaxMessages),
		LastActivity: now,
		Metadata:     map[string]any{"messageCount": 0},
	}
	m.threads[key] = t
	return t
}

// Update appends a message to the thread, trims history to the most recent
// 25 entries and refreshes activity bookkeeping.
func (m *ThreadManager) Update(t *Thread, content string, meta map[string]any) {
	if t == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	msg := ThreadMessage{Content: content, Timestamp: now}
	if len(meta) > 0 {
		msg.Meta = make(map[string]any, len(meta))
		for k, v := range meta {
			msg.Meta[k] = v
		}
	}

	t.Messages = append(t.Messages, msg)
	if overflow := len(t.Messages) - threadMaxMessages; overflow > 0 {
		t.Messages = append(t.Messages[:0], t.Messages[overflow:]...)
	}
	t.LastActivity = now
	t.Metadata["messageCount"] = intMeta(t.Metadata, "messageCount") + 1
	if mt, ok := msg.Meta["type"]; ok {
		t.Metadata["lastMessageType"] = mt
	}
}

// History returns a copy of the most recent n messages of the thread.
func (m *ThreadManager) History(t *Thread, n int) []ThreadMessage {
	if t == nil || n <= 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	msgs := t.Messages
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	out := make([]ThreadMessage, len(msgs))
	copy(out, msgs)
	return out
}

// Sweep evicts every thread idle longer than the timeout and returns the
// evicted records. Each record is archived into the MEDIUM tier and, when
// configured, the external archiver; archival failure never blocks
// removal.
func (m *ThreadManager) Sweep() []ThreadArchive {
	m.mu.Lock()
	now := m.clock.Now()
	evicted := make([]ThreadArchive, 0)
	for key, t := range m.threads {
		if now.Sub(t.LastActivity) <= threadIdleTimeout {
			continue
		}
		msgs := make([]ThreadMessage, len(t.Messages))
		copy(msgs, t.Messages)
		evicted = append(evicted, ThreadArchive{
			ThreadID:     t.ID,
			Channel:      t.Channel,
			Participant:  t.Participant,
			Messages:     msgs,
			LastActivity: t.LastActivity,
			EvictedAt:    now,
		})
		delete(m.threads, key)
	}
	m.mu.Unlock()

	for _, rec := range evicted {
		m.archive(rec)
	}
	if len(evicted) > 0 {
		log.Printf("[threads] swept %d idle threads", len(evicted))
	}
	return evicted
}

func (m *ThreadManager) archive(rec ThreadArchive) {
	key := "thread:" + rec.Channel + ":" + rec.Participant
	ok := m.store.Add(TierMedium, key, rec, EntryContext{
		Type:      "thread-archive",
		Channel:   rec.Channel,
		User:      rec.Participant,
		Content:   joinThreadContent(rec.Messages),
		Timestamp: rec.EvictedAt,
	})
	if !ok {
		log.Printf("[threads] memory archive failed for %s", key)
	}

	if m.archiver == nil {
		return
	}
	if err := m.archiver.ArchiveThread(rec); err != nil {
		log.Printf("[threads] external archive failed for %s: %v", key, err)
	}
}

// Count returns the number of live threads.
func (m *ThreadManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.threads)
}

func joinThreadContent(msgs []ThreadMessage) string {
	total := 0
	for _, msg := range msgs {
		total += len(msg.Content) + 1
	}
	b := make([]byte, 0, total)
	for i, msg := range msgs {
		if i > 0 {
			b = append(b, '\n')
		}
		b = append(b, msg.Content...)
	}
	return string(b)
}

func intMeta(meta map[string]any, key string) int {
	if v, ok := meta[key].(int); ok {
		return v
	}
	return 0
}
