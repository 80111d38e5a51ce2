package persona

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	tr, err := Load(filepath.Join(t.TempDir(), "persona.yaml"))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if tr.Name() != "mochi" {
		t.Fatalf("default name = %q", tr.Name())
	}
	if got := tr.Familiarity("anyone"); got != 0 {
		t.Fatalf("unknown user familiarity = %v, want 0", got)
	}
}

func TestLoadParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persona.yaml")
	body := `name: pixel
style: deadpan
interests: [speedruns, chiptunes]
relationships:
  bob:
    rapport: 0.75
    interactions: 12
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write persona: %v", err)
	}

	tr, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if tr.Name() != "pixel" {
		t.Fatalf("name = %q", tr.Name())
	}
	if got := tr.Familiarity("bob"); got != 0.75 {
		t.Fatalf("familiarity = %v, want 0.75", got)
	}
	if got := tr.Familiarity("BOB"); got != 0.75 {
		t.Fatalf("familiarity should be case-insensitive, got %v", got)
	}
	desc := tr.Describe()
	if !strings.Contains(desc, "pixel") || !strings.Contains(desc, "speedruns") {
		t.Fatalf("Describe missing persona details: %q", desc)
	}
}

func TestRecordInteractionGrowsRapport(t *testing.T) {
	tr, err := Load(filepath.Join(t.TempDir(), "persona.yaml"))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	at := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	prev := 0.0
	for i := 0; i < 200; i++ {
		tr.RecordInteraction("bob", at)
		got := tr.Familiarity("bob")
		if got < prev {
			t.Fatalf("rapport decreased: %v -> %v", prev, got)
		}
		if got > 1 {
			t.Fatalf("rapport exceeded 1: %v", got)
		}
		prev = got
	}
	if prev < 0.9 {
		t.Fatalf("rapport after 200 interactions = %v, want near 1", prev)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "persona.yaml")
	tr, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	tr.RecordInteraction("alice", time.Now())
	if err := tr.Save(); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload error: %v", err)
	}
	if got := again.Familiarity("alice"); got <= 0 {
		t.Fatalf("persisted familiarity = %v, want > 0", got)
	}
}
