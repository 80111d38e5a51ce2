package command

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/lumilinkco/mochi/internal/memory"
)

func TestParse(t *testing.T) {
	r := NewRegistry("!")
	tests := []struct {
		content  string
		wantName string
		wantArgs string
		wantOK   bool
	}{
		{"!ping", "ping", "", true},
		{"!remember buy milk", "remember", "buy milk", true},
		{"!REMEMBER  spaced  ", "remember", "spaced", true},
		{"hello there", "", "", false},
		{"!", "", "", false},
		{"  !ping", "ping", "", true},
	}
	for _, tt := range tests {
		name, args, ok := r.Parse(tt.content)
		if name != tt.wantName || args != tt.wantArgs || ok != tt.wantOK {
			t.Errorf("Parse(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.content, name, args, ok, tt.wantName, tt.wantArgs, tt.wantOK)
		}
	}
}

func TestDispatchUnknownFallsThrough(t *testing.T) {
	r := NewRegistry("!")
	reply, handled, err := r.Dispatch(context.Background(), Request{Name: "nope"})
	if err != nil || handled || reply != "" {
		t.Fatalf("Dispatch = (%q, %v, %v), want fall-through", reply, handled, err)
	}
}

func TestDispatchHandlerError(t *testing.T) {
	r := NewRegistry("!")
	r.Register("boom", "", func(context.Context, Request) (string, error) {
		return "", errors.New("kaput")
	})
	_, handled, err := r.Dispatch(context.Background(), Request{Name: "boom"})
	if !handled || err == nil {
		t.Fatalf("want handled error, got handled=%v err=%v", handled, err)
	}
}

func TestPingAndHelp(t *testing.T) {
	r := NewRegistry("!")
	RegisterBuiltins(r, Deps{})

	reply, handled, err := r.Dispatch(context.Background(), Request{Name: "ping"})
	if err != nil || !handled || reply != "pong" {
		t.Fatalf("ping = (%q, %v, %v)", reply, handled, err)
	}

	help, _, _ := r.Dispatch(context.Background(), Request{Name: "help"})
	if !strings.Contains(help, "!ping") {
		t.Errorf("help missing ping: %q", help)
	}
	if strings.Contains(help, "!remember") {
		t.Errorf("help lists remember without a memory store: %q", help)
	}
}

func TestRememberAndForget(t *testing.T) {
	store := memory.NewStore(memory.SystemClock())
	r := NewRegistry("!")
	RegisterBuiltins(r, Deps{Memory: store})

	reply, handled, err := r.Dispatch(context.Background(), Request{
		Name: "remember", Args: "alice mains support", Channel: "general", Sender: "alice",
	})
	if err != nil || !handled {
		t.Fatalf("remember: handled=%v err=%v", handled, err)
	}
	idx := strings.LastIndex(reply, "note:")
	if idx < 0 {
		t.Fatalf("remember reply missing key: %q", reply)
	}
	key := reply[idx:]

	if e := store.Get(memory.TierLong, key); e == nil {
		t.Fatalf("note %s not stored in long tier", key)
	} else if e.Context.Content != "alice mains support" {
		t.Errorf("stored content %q", e.Context.Content)
	}

	reply, _, err = r.Dispatch(context.Background(), Request{Name: "forget", Args: key})
	if err != nil || !strings.Contains(reply, "forgot") {
		t.Fatalf("forget = (%q, %v)", reply, err)
	}
	if store.Get(memory.TierLong, key) != nil {
		t.Fatal("note survived forget")
	}

	reply, _, _ = r.Dispatch(context.Background(), Request{Name: "forget", Args: key})
	if !strings.Contains(reply, "no note") {
		t.Errorf("double forget reply %q", reply)
	}
}

func TestMemstats(t *testing.T) {
	store := memory.NewStore(memory.SystemClock())
	store.Add(memory.TierShort, "a", 1, memory.EntryContext{Type: "chat", Timestamp: time.Now()})
	r := NewRegistry("!")
	RegisterBuiltins(r, Deps{Memory: store})

	reply, _, err := r.Dispatch(context.Background(), Request{Name: "memstats"})
	if err != nil {
		t.Fatalf("memstats: %v", err)
	}
	if !strings.Contains(reply, "1 short") || !strings.Contains(reply, "1 total") {
		t.Errorf("memstats reply %q", reply)
	}
}

func TestRemind(t *testing.T) {
	var gotIn time.Duration
	var gotText string
	r := NewRegistry("!")
	RegisterBuiltins(r, Deps{
		Remind: func(_ context.Context, _, _ string, in time.Duration, text string) (string, error) {
			gotIn, gotText = in, text
			return "job-1", nil
		},
	})

	reply, _, err := r.Dispatch(context.Background(), Request{Name: "remind", Args: "10m stretch your legs"})
	if err != nil {
		t.Fatalf("remind: %v", err)
	}
	if gotIn != 10*time.Minute || gotText != "stretch your legs" {
		t.Errorf("scheduled (%v, %q)", gotIn, gotText)
	}
	if !strings.Contains(reply, "job-1") {
		t.Errorf("reply %q missing job id", reply)
	}

	reply, _, _ = r.Dispatch(context.Background(), Request{Name: "remind", Args: "soonish"})
	if !strings.Contains(reply, "usage") {
		t.Errorf("bad-args reply %q", reply)
	}
}
