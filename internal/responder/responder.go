package responder

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/lumilinkco/mochi/internal/config"
	"github.com/lumilinkco/mochi/internal/memory"
)

const (
	defaultMaxTokens  = 1024
	promptMemoryLimit = 5
	hypeThreshold     = 0.7
)

// LLMClient produces a completion for an assembled prompt. The gateway
// depends on this interface so tests can substitute a canned client.
type LLMClient interface {
	Complete(ctx context.Context, system string, turns []Turn) (string, error)
}

// Turn is one prior exchange in the conversation being continued.
type Turn struct {
	Role    string // "user" or "assistant"
	Content string
}

// Responder turns a context snapshot into a chat reply via the LLM.
type Responder struct {
	client LLMClient
	system string
}

func New(client LLMClient, systemPrompt string) *Responder {
	return &Responder{client: client, system: systemPrompt}
}

// Reply builds the prompt from the snapshot and asks the model for a
// response to the current message.
func (r *Responder) Reply(ctx context.Context, snap memory.ContextSnapshot, message string) (string, error) {
	system := r.system
	if extra := describeSnapshot(snap); extra != "" {
		system = system + "\n\n" + extra
	}

	turns := historyTurns(snap.History)
	turns = append(turns, Turn{Role: "user", Content: message})

	reply, err := r.client.Complete(ctx, system, turns)
	if err != nil {
		return "", fmt.Errorf("complete: %w", err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", fmt.Errorf("empty completion")
	}
	return reply, nil
}

// describeSnapshot renders retrieved memories and channel signals as a
// system-prompt addendum. Empty when there is nothing to add.
func describeSnapshot(snap memory.ContextSnapshot) string {
	var b strings.Builder

	if len(snap.Memories) > 0 {
		b.WriteString("Relevant things you remember:\n")
		limit := len(snap.Memories)
		if limit > promptMemoryLimit {
			limit = promptMemoryLimit
		}
		for _, e := range snap.Memories[:limit] {
			fmt.Fprintf(&b, "- %s\n", e.Context.Content)
		}
	}

	if snap.Signals.Mood != "" || snap.Signals.MessageRate > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Channel mood: %s", snap.Signals.Mood)
		if snap.Signals.Hype > hypeThreshold {
			b.WriteString(" (chat is hyped)")
		}
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

func historyTurns(history []memory.ThreadMessage) []Turn {
	turns := make([]Turn, 0, len(history)+1)
	for _, m := range history {
		role := "user"
		if r, ok := m.Meta["role"].(string); ok && r == "assistant" {
			role = "assistant"
		}
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		turns = append(turns, Turn{Role: role, Content: content})
	}
	return turns
}

// anthropicClient is the production LLMClient backed by the Anthropic
// Messages API.
type anthropicClient struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicClient builds an LLMClient from provider config.
func NewAnthropicClient(provider config.ProviderConfig, model string, maxTokens int) (LLMClient, error) {
	apiKey := strings.TrimSpace(provider.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic api key required")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if provider.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(provider.BaseURL))
	}

	if model == "" {
		model = config.DefaultModel
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &anthropicClient{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: int64(maxTokens),
	}, nil
}

func (a *anthropicClient) Complete(ctx context.Context, system string, turns []Turn) (string, error) {
	msgs := make([]anthropic.MessageParam, 0, len(turns))
	for _, t := range turns {
		block := anthropic.NewTextBlock(t.Content)
		if t.Role == "assistant" {
			msgs = append(msgs, anthropic.NewAssistantMessage(block))
		} else {
			msgs = append(msgs, anthropic.NewUserMessage(block))
		}
	}
	if len(msgs) == 0 {
		return "", fmt.Errorf("no turns to complete")
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		Messages:  msgs,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic: %w", err)
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	if out.Len() == 0 {
		log.Printf("[responder] completion had no text blocks (stop=%s)", resp.StopReason)
	}
	return out.String(), nil
}
