package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/lumilinkco/mochi/internal/memory"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(filepath.Join(t.TempDir(), "mochi.db"))
	if err != nil {
		t.Fatalf("NewEngine error: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestAppendAndRecentMessages(t *testing.T) {
	e := newTestEngine(t)

	msgs := []Message{
		{Channel: "telegram", ChatID: "1", SenderID: "bob", Role: "user", Content: "first"},
		{Channel: "telegram", ChatID: "1", SenderID: "mochi", Role: "assistant", Content: "second"},
		{Channel: "dashboard", ChatID: "2", SenderID: "alice", Content: "other channel"},
	}
	for _, m := range msgs {
		if err := e.AppendMessage(m); err != nil {
			t.Fatalf("AppendMessage error: %v", err)
		}
	}

	got, err := e.RecentMessages("telegram", 10)
	if err != nil {
		t.Fatalf("RecentMessages error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2", len(got))
	}
	if got[0].Content != "second" || got[1].Content != "first" {
		t.Fatalf("messages not newest first: %+v", got)
	}
	if got[1].Role != "user" {
		t.Fatalf("role = %q, want user", got[1].Role)
	}

	total, err := e.MessageCount()
	if err != nil {
		t.Fatalf("MessageCount error: %v", err)
	}
	if total != 3 {
		t.Fatalf("MessageCount = %d, want 3", total)
	}
}

func TestEmptyRoleDefaultsToUser(t *testing.T) {
	e := newTestEngine(t)
	if err := e.AppendMessage(Message{Channel: "c", Content: "x"}); err != nil {
		t.Fatalf("AppendMessage error: %v", err)
	}
	got, err := e.RecentMessages("c", 1)
	if err != nil {
		t.Fatalf("RecentMessages error: %v", err)
	}
	if got[0].Role != "user" {
		t.Fatalf("role = %q, want user", got[0].Role)
	}
}

func TestArchiveThreadRoundTrip(t *testing.T) {
	e := newTestEngine(t)

	last := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	rec := memory.ThreadArchive{
		ThreadID:    "t-1",
		Channel:     "telegram",
		Participant: "bob",
		Messages: []memory.ThreadMessage{
			{Content: "hello", Timestamp: last},
			{Content: "bye", Timestamp: last.Add(time.Minute)},
		},
		LastActivity: last.Add(time.Minute),
		EvictedAt:    last.Add(10 * time.Minute),
	}
	if err := e.ArchiveThread(rec); err != nil {
		t.Fatalf("ArchiveThread error: %v", err)
	}

	got, err := e.ArchivedThreads("telegram", "bob", 5)
	if err != nil {
		t.Fatalf("ArchivedThreads error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d archives, want 1", len(got))
	}
	if got[0].ThreadID != "t-1" || len(got[0].Messages) != 2 {
		t.Fatalf("unexpected archive: %+v", got[0])
	}
	if got[0].Messages[1].Content != "bye" {
		t.Fatalf("message order lost: %+v", got[0].Messages)
	}
	if !got[0].EvictedAt.Equal(rec.EvictedAt) {
		t.Fatalf("evictedAt = %v, want %v", got[0].EvictedAt, rec.EvictedAt)
	}

	n, err := e.ArchiveCount()
	if err != nil {
		t.Fatalf("ArchiveCount error: %v", err)
	}
	if n != 1 {
		t.Fatalf("ArchiveCount = %d, want 1", n)
	}
}
