package command

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Request carries one parsed chat command to its handler.
type Request struct {
	Channel string
	Sender  string
	ChatID  string
	Name    string
	Args    string
}

// HandlerFunc executes one command and returns the reply text.
type HandlerFunc func(ctx context.Context, req Request) (string, error)

// Registry maps command names to handlers. Messages that do not start
// with the configured prefix are not commands and fall through to the
// conversational path.
type Registry struct {
	prefix string

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	help     map[string]string
}

func NewRegistry(prefix string) *Registry {
	if prefix == "" {
		prefix = "!"
	}
	return &Registry{
		prefix:   prefix,
		handlers: make(map[string]HandlerFunc),
		help:     make(map[string]string),
	}
}

func (r *Registry) Register(name, help string, fn HandlerFunc) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || fn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = fn
	r.help[name] = help
}

// Parse splits message content into a command name and its argument
// string. ok is false when the content is not a command.
func (r *Registry) Parse(content string) (name, args string, ok bool) {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, r.prefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(content, r.prefix)
	if rest == "" {
		return "", "", false
	}
	parts := strings.SplitN(rest, " ", 2)
	name = strings.ToLower(parts[0])
	if len(parts) == 2 {
		args = strings.TrimSpace(parts[1])
	}
	return name, args, true
}

// Dispatch runs the handler for req.Name. handled is false when no
// handler is registered, letting the caller fall through to the LLM.
func (r *Registry) Dispatch(ctx context.Context, req Request) (reply string, handled bool, err error) {
	r.mu.RLock()
	fn, ok := r.handlers[req.Name]
	r.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	reply, err = fn(ctx, req)
	if err != nil {
		return "", true, fmt.Errorf("command %s: %w", req.Name, err)
	}
	return reply, true, nil
}

// Help lists registered commands, one per line, sorted by name.
func (r *Registry) Help() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.help))
	for name := range r.help {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "%s%s — %s\n", r.prefix, name, r.help[name])
	}
	return strings.TrimRight(b.String(), "\n")
}
