package memory

import (
	"fmt"
	"testing"
	"time"
)

func TestBuildSnapshot(t *testing.T) {
	clock := newFakeClock(testEpoch)
	store := NewStore(clock)
	threads := NewThreadManager(store, nil, clock)
	a := NewAssembler(store, threads, nil, clock)

	th := threads.GetOrCreate("x", "bob")
	for i := 0; i < 14; i++ {
		threads.Update(th, fmt.Sprintf("msg-%d", i), nil)
	}
	for i := 0; i < 8; i++ {
		store.Add(TierShort, fmt.Sprintf("mem-%d", i), i,
			chatContext("x", "bob", "raid plan", clock.Now()))
	}

	signals := ChannelSignals{Mood: "hyped", MessageRate: 12.5, Hype: 0.8}
	snap := a.Build("x", "bob", "what was the raid plan", signals)

	if len(snap.History) != snapshotHistoryLen {
		t.Fatalf("history length = %d, want %d", len(snap.History), snapshotHistoryLen)
	}
	if snap.History[0].Content != "msg-4" {
		t.Fatalf("history should hold the most recent messages, starts at %s", snap.History[0].Content)
	}
	if len(snap.Memories) != snapshotMemoryLimit {
		t.Fatalf("memories length = %d, want %d", len(snap.Memories), snapshotMemoryLimit)
	}
	if snap.Signals != signals {
		t.Fatalf("channel signals must pass through unchanged: %+v", snap.Signals)
	}
	if snap.Channel != "x" || snap.Participant != "bob" || snap.Query != "what was the raid plan" {
		t.Fatalf("unexpected snapshot identity: %+v", snap)
	}
}

func TestBuildCreatesThreadWhenAbsent(t *testing.T) {
	clock := newFakeClock(testEpoch)
	store := NewStore(clock)
	threads := NewThreadManager(store, nil, clock)
	a := NewAssembler(store, threads, nil, clock)

	snap := a.Build("x", "newcomer", "hello", ChannelSignals{})
	if len(snap.History) != 0 {
		t.Fatalf("fresh thread should have empty history, got %d", len(snap.History))
	}
	if threads.Count() != 1 {
		t.Fatal("Build must create the thread on first access")
	}
}

func TestBuildSnapshotIsNotAliasedToThread(t *testing.T) {
	clock := newFakeClock(testEpoch)
	store := NewStore(clock)
	threads := NewThreadManager(store, nil, clock)
	a := NewAssembler(store, threads, nil, clock)

	th := threads.GetOrCreate("x", "bob")
	threads.Update(th, "before", nil)

	snap := a.Build("x", "bob", "q", ChannelSignals{})
	threads.Update(th, "after", nil)

	if len(snap.History) != 1 || snap.History[0].Content != "before" {
		t.Fatalf("snapshot mutated by later thread updates: %+v", snap.History)
	}
}

func TestBuildPromotionPiggyback(t *testing.T) {
	clock := newFakeClock(testEpoch)
	store := NewStore(clock)
	threads := NewThreadManager(store, nil, clock)
	sched := NewScheduler(store, staticRelationships{"bob": 1.0})
	a := NewAssembler(store, threads, sched, clock)

	// Force the probabilistic trigger.
	a.randFn = func() float64 { return 0 }

	store.Add(TierUnscoped, "queued", "v", EntryContext{
		Type: "mention", User: "bob", Content: "please remember this", Timestamp: testEpoch,
	})

	a.Build("x", "bob", "q", ChannelSignals{})
	waitFor(t, func() bool { return store.Get(TierLong, "queued") != nil })

	if store.Get(TierUnscoped, "queued") != nil {
		t.Fatal("promotion must move, not copy")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
