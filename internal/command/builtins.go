package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lumilinkco/mochi/internal/lookup"
	"github.com/lumilinkco/mochi/internal/memory"
)

const rememberKeyPrefix = "note:"

// Deps are the services the builtin commands act on. Any nil field
// disables the commands that need it.
type Deps struct {
	Memory *memory.Store
	Lookup *lookup.Client
	Clock  memory.Clock

	// Remind schedules a one-shot reminder and returns its job ID.
	Remind func(ctx context.Context, channel, chatID string, in time.Duration, text string) (string, error)
}

// RegisterBuiltins wires the standard command set into the registry.
func RegisterBuiltins(r *Registry, d Deps) {
	r.Register("ping", "check that the bot is alive", func(_ context.Context, _ Request) (string, error) {
		return "pong", nil
	})

	r.Register("help", "list available commands", func(_ context.Context, _ Request) (string, error) {
		return r.Help(), nil
	})

	if d.Memory != nil {
		r.Register("remember", "store a long-lived note: !remember <text>", d.rememberHandler())
		r.Register("forget", "drop a stored note: !forget <key>", d.forgetHandler())
		r.Register("memstats", "show memory tier counts", d.memstatsHandler())
	}

	if d.Lookup != nil {
		r.Register("emote", "look up an emote: !emote <code>", d.emoteHandler())
		r.Register("game", "look up a game: !game <name>", d.gameHandler())
	}

	if d.Remind != nil {
		r.Register("remind", "schedule a reminder: !remind <duration> <text>", d.remindHandler())
	}
}

func (d Deps) rememberHandler() HandlerFunc {
	return func(_ context.Context, req Request) (string, error) {
		text := strings.TrimSpace(req.Args)
		if text == "" {
			return "tell me what to remember: !remember <text>", nil
		}
		key := rememberKeyPrefix + uuid.NewString()[:8]
		ok := d.Memory.Add(memory.TierLong, key, text, memory.EntryContext{
			Type:      "command",
			Channel:   req.Channel,
			User:      req.Sender,
			Content:   text,
			Timestamp: d.now(),
		})
		if !ok {
			return "", fmt.Errorf("store note")
		}
		return fmt.Sprintf("got it, remembered as %s", key), nil
	}
}

func (d Deps) forgetHandler() HandlerFunc {
	return func(_ context.Context, req Request) (string, error) {
		key := strings.TrimSpace(req.Args)
		if key == "" {
			return "which note? !forget <key>", nil
		}
		for _, tier := range []memory.Tier{memory.TierLong, memory.TierMedium, memory.TierShort, memory.TierUnscoped} {
			if d.Memory.Delete(tier, key) {
				return fmt.Sprintf("forgot %s", key), nil
			}
		}
		return fmt.Sprintf("no note named %s", key), nil
	}
}

func (d Deps) memstatsHandler() HandlerFunc {
	return func(_ context.Context, _ Request) (string, error) {
		stats := d.Memory.Stats()
		return fmt.Sprintf("memories: %d short, %d medium, %d long, %d unscoped (%d total)",
			stats.Short, stats.Medium, stats.Long, stats.Unscoped, stats.Total()), nil
	}
}

func (d Deps) emoteHandler() HandlerFunc {
	return func(ctx context.Context, req Request) (string, error) {
		code := strings.TrimSpace(req.Args)
		if code == "" {
			return "which emote? !emote <code>", nil
		}
		e, err := d.Lookup.Emote(ctx, code)
		if err != nil {
			return fmt.Sprintf("couldn't find emote %q", code), nil
		}
		kind := "static"
		if e.Animated {
			kind = "animated"
		}
		return fmt.Sprintf("%s (%s): %s", e.Code, kind, e.URL), nil
	}
}

func (d Deps) gameHandler() HandlerFunc {
	return func(ctx context.Context, req Request) (string, error) {
		name := strings.TrimSpace(req.Args)
		if name == "" {
			return "which game? !game <name>", nil
		}
		g, err := d.Lookup.Game(ctx, name)
		if err != nil {
			return fmt.Sprintf("couldn't find a game matching %q", name), nil
		}
		if g.Year > 0 {
			return fmt.Sprintf("%s (%d): %s", g.Name, g.Year, g.Summary), nil
		}
		return fmt.Sprintf("%s: %s", g.Name, g.Summary), nil
	}
}

func (d Deps) remindHandler() HandlerFunc {
	return func(ctx context.Context, req Request) (string, error) {
		parts := strings.SplitN(strings.TrimSpace(req.Args), " ", 2)
		if len(parts) < 2 {
			return "usage: !remind <duration> <text>, e.g. !remind 10m stretch", nil
		}
		in, err := time.ParseDuration(parts[0])
		if err != nil || in <= 0 {
			return fmt.Sprintf("can't parse duration %q", parts[0]), nil
		}
		text := strings.TrimSpace(parts[1])
		id, err := d.Remind(ctx, req.Channel, req.ChatID, in, text)
		if err != nil {
			return "", fmt.Errorf("schedule reminder: %w", err)
		}
		return fmt.Sprintf("will remind you in %s (job %s)", in, id), nil
	}
}

func (d Deps) now() time.Time {
	if d.Clock != nil {
		return d.Clock.Now()
	}
	return time.Now()
}
