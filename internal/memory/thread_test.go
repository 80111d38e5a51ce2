package memory

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

type recordingArchiver struct {
	records []ThreadArchive
	err     error
}

func (a *recordingArchiver) ArchiveThread(rec ThreadArchive) error {
	a.records = append(a.records, rec)
	return a.err
}

func TestGetOrCreateReusesThread(t *testing.T) {
	clock := newFakeClock(testEpoch)
	m := NewThreadManager(NewStore(clock), nil, clock)

	t1 := m.GetOrCreate("x", "bob")
	t2 := m.GetOrCreate("x", "bob")
	if t1.ID != t2.ID {
		t.Fatal("same composite key must return the same thread")
	}
	if t3 := m.GetOrCreate("x", "alice"); t3.ID == t1.ID {
		t.Fatal("different participant must get a distinct thread")
	}
	if m.Count() != 2 {
		t.Fatalf("thread count = %d, want 2", m.Count())
	}
}

func TestAccessRefreshesActivity(t *testing.T) {
	clock := newFakeClock(testEpoch)
	m := NewThreadManager(NewStore(clock), nil, clock)

	m.GetOrCreate("x", "bob")
	clock.Advance(4 * time.Minute)
	m.GetOrCreate("x", "bob")
	clock.Advance(4 * time.Minute)

	// 8 minutes since creation but only 4 since last access.
	if evicted := m.Sweep(); len(evicted) != 0 {
		t.Fatalf("sweep evicted a recently accessed thread: %+v", evicted)
	}
}

func TestUpdateBoundsHistory(t *testing.T) {
	clock := newFakeClock(testEpoch)
	m := NewThreadManager(NewStore(clock), nil, clock)
	th := m.GetOrCreate("x", "bob")

	for i := 0; i < 30; i++ {
		m.Update(th, fmt.Sprintf("msg-%d", i), map[string]any{"type": "chat"})
	}

	if len(th.Messages) != 25 {
		t.Fatalf("history length = %d, want 25", len(th.Messages))
	}
	if th.Messages[0].Content != "msg-5" || th.Messages[24].Content != "msg-29" {
		t.Fatalf("history should keep the 25 most recent, got %s..%s",
			th.Messages[0].Content, th.Messages[24].Content)
	}
	if got := intMeta(th.Metadata, "messageCount"); got != 30 {
		t.Fatalf("messageCount = %d, want 30", got)
	}
	if th.Metadata["lastMessageType"] != "chat" {
		t.Fatalf("lastMessageType = %v", th.Metadata["lastMessageType"])
	}
}

func TestSweepEvictsIdleThreadsOnly(t *testing.T) {
	clock := newFakeClock(testEpoch)
	store := NewStore(clock)
	m := NewThreadManager(store, nil, clock)

	idle := m.GetOrCreate("x", "bob")
	m.Update(idle, "hello", nil)
	clock.Advance(3 * time.Minute)
	active := m.GetOrCreate("x", "alice")
	m.Update(active, "hi", nil)

	clock.Advance(3 * time.Minute)
	evicted := m.Sweep()

	if len(evicted) != 1 || evicted[0].Participant != "bob" {
		t.Fatalf("expected only bob's thread evicted, got %+v", evicted)
	}
	if m.Count() != 1 {
		t.Fatalf("thread count after sweep = %d, want 1", m.Count())
	}

	archived := store.Get(TierMedium, "thread:x:bob")
	if archived == nil {
		t.Fatal("evicted thread should be archived into the medium tier")
	}
	rec, ok := archived.Value.(ThreadArchive)
	if !ok || len(rec.Messages) != 1 || rec.Messages[0].Content != "hello" {
		t.Fatalf("unexpected archive payload: %+v", archived.Value)
	}
}

func TestSweepBoundary(t *testing.T) {
	clock := newFakeClock(testEpoch)
	m := NewThreadManager(NewStore(clock), nil, clock)
	m.GetOrCreate("x", "bob")

	clock.Advance(threadIdleTimeout)
	if evicted := m.Sweep(); len(evicted) != 0 {
		t.Fatal("thread exactly at the idle timeout must survive")
	}
	clock.Advance(time.Millisecond)
	if evicted := m.Sweep(); len(evicted) != 1 {
		t.Fatal("thread past the idle timeout must be evicted")
	}
}

func TestSweepArchiverFailureDoesNotBlockRemoval(t *testing.T) {
	clock := newFakeClock(testEpoch)
	arch := &recordingArchiver{err: errors.New("disk full")}
	m := NewThreadManager(NewStore(clock), arch, clock)

	th := m.GetOrCreate("x", "bob")
	m.Update(th, "hello", nil)
	clock.Advance(6 * time.Minute)

	evicted := m.Sweep()
	if len(evicted) != 1 {
		t.Fatalf("expected one eviction, got %d", len(evicted))
	}
	if len(arch.records) != 1 {
		t.Fatalf("archiver should have been attempted once, got %d", len(arch.records))
	}
	if m.Count() != 0 {
		t.Fatal("failed archive must not keep the thread alive")
	}
}

func TestHistoryReturnsCopy(t *testing.T) {
	clock := newFakeClock(testEpoch)
	m := NewThreadManager(NewStore(clock), nil, clock)
	th := m.GetOrCreate("x", "bob")
	m.Update(th, "original", nil)

	h := m.History(th, 10)
	h[0].Content = "mutated"
	if th.Messages[0].Content != "original" {
		t.Fatal("History must hand out a copy")
	}
}
