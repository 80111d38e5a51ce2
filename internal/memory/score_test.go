package memory

import (
	"testing"
	"time"
)

func TestScoreFullMatchExample(t *testing.T) {
	t0 := testEpoch
	entry := Entry{
		Key:        "a",
		Value:      "hi",
		Tier:       TierShort,
		InsertedAt: t0,
		Context:    chatContext("x", "bob", "hype moment", t0),
	}
	query := chatContext("x", "bob", "hype", t0.Add(time.Second))

	got := Score(entry, query, t0.Add(time.Second))
	if got <= 0.9 {
		t.Fatalf("full match one second in should score > 0.9, got %v", got)
	}
	if got > 1 {
		t.Fatalf("score exceeded 1: %v", got)
	}
}

func TestScoreAlwaysInUnitInterval(t *testing.T) {
	t0 := testEpoch
	cases := []struct {
		name  string
		entry Entry
		query EntryContext
		at    time.Time
	}{
		{"everything matches", Entry{Tier: TierShort, InsertedAt: t0, Context: chatContext("x", "bob", "hype build deploy", t0)}, chatContext("x", "bob", "hype build deploy", t0), t0},
		{"nothing matches", Entry{Tier: TierLong, InsertedAt: t0, Context: EntryContext{Type: "system"}}, chatContext("y", "alice", "", t0), t0.Add(time.Hour)},
		{"ancient entry", Entry{Tier: TierShort, InsertedAt: t0, Context: chatContext("x", "bob", "", t0)}, chatContext("x", "bob", "", t0), t0.Add(24 * time.Hour)},
		{"empty contexts", Entry{Tier: TierUnscoped, InsertedAt: t0}, EntryContext{}, t0},
		{"many overlaps", Entry{Tier: TierMedium, InsertedAt: t0, Context: EntryContext{Type: "chat", Content: "raid boss strategy discussion tonight"}}, EntryContext{Type: "chat", Content: "raid boss strategy discussion tonight"}, t0.Add(time.Minute)},
	}
	for _, tc := range cases {
		got := Score(tc.entry, tc.query, tc.at)
		if got < 0 || got > 1 {
			t.Fatalf("%s: score %v out of [0,1]", tc.name, got)
		}
	}
}

func TestScoreRecencyDecays(t *testing.T) {
	t0 := testEpoch
	entry := Entry{Tier: TierShort, InsertedAt: t0, Context: EntryContext{Type: "system"}}
	query := EntryContext{Type: "chat"}

	early := Score(entry, query, t0.Add(30*time.Second))
	late := Score(entry, query, t0.Add(4*time.Minute))
	if early <= late {
		t.Fatalf("recency should decay: early=%v late=%v", early, late)
	}
	if gone := Score(entry, query, t0.Add(6*time.Minute)); gone != 0 {
		t.Fatalf("entry past max age with no other match should score 0, got %v", gone)
	}
}

func TestScoreDeterministic(t *testing.T) {
	t0 := testEpoch
	entry := Entry{Tier: TierMedium, InsertedAt: t0, Context: chatContext("x", "bob", "remember the raid plan", t0)}
	query := chatContext("x", "bob", "what was the raid plan", t0.Add(time.Minute))

	first := Score(entry, query, t0.Add(time.Minute))
	for i := 0; i < 5; i++ {
		if got := Score(entry, query, t0.Add(time.Minute)); got != first {
			t.Fatalf("score not deterministic: %v vs %v", got, first)
		}
	}
}

func TestKeywords(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"Hype moment in the arena!", []string{"hype", "moment", "arena"}},
		{"THIS is about WHAT you know", []string{}},
		{"dup dup dup deploy", []string{"deploy"}},
		{"", nil},
		{"a an to of", []string{}},
	}
	for _, tc := range cases {
		got := Keywords(tc.in)
		if len(got) != len(tc.want) {
			t.Fatalf("Keywords(%q) = %v, want %v", tc.in, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("Keywords(%q) = %v, want %v", tc.in, got, tc.want)
			}
		}
	}
}

func TestKeywordOverlap(t *testing.T) {
	if got := keywordOverlap("raid boss strategy", "boss strategy tonight"); got != 2 {
		t.Fatalf("overlap = %d, want 2", got)
	}
	if got := keywordOverlap("", "anything here"); got != 0 {
		t.Fatalf("overlap with empty content = %d, want 0", got)
	}
}
