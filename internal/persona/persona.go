package persona

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// rapportStep is how much one interaction nudges rapport toward 1.0.
const rapportStep = 0.02

// Persona describes the bot's voice plus its per-user relationship state.
// It backs the promotion scheduler's familiarity input.
type Persona struct {
	Name          string                   `yaml:"name"`
	Style         string                   `yaml:"style"`
	Interests     []string                 `yaml:"interests,omitempty"`
	Relationships map[string]*Relationship `yaml:"relationships,omitempty"`
}

// Relationship is the externally tracked rapport with one participant.
type Relationship struct {
	Rapport      float64   `yaml:"rapport"`
	Interactions int       `yaml:"interactions"`
	LastSeen     time.Time `yaml:"lastSeen,omitempty"`
}

// Tracker loads, mutates and persists the persona file.
type Tracker struct {
	mu      sync.Mutex
	path    string
	persona Persona
}

// Load reads the persona YAML at path. A missing file yields a default
// persona that is created on the first Save.
func Load(path string) (*Tracker, error) {
	t := &Tracker{path: path, persona: defaultPersona()}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return nil, fmt.Errorf("read persona: %w", err)
	}
	if err := yaml.Unmarshal(data, &t.persona); err != nil {
		return nil, fmt.Errorf("parse persona: %w", err)
	}
	if t.persona.Name == "" {
		t.persona.Name = "mochi"
	}
	if t.persona.Relationships == nil {
		t.persona.Relationships = make(map[string]*Relationship)
	}
	return t, nil
}

func defaultPersona() Persona {
	return Persona{
		Name:          "mochi",
		Style:         "playful, concise, a little mischievous",
		Relationships: make(map[string]*Relationship),
	}
}

// Familiarity returns the rapport score for a user in [0,1].
// Implements memory.RelationshipSource.
func (t *Tracker) Familiarity(user string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	rel, ok := t.persona.Relationships[normalizeUser(user)]
	if !ok {
		return 0
	}
	if rel.Rapport < 0 {
		return 0
	}
	if rel.Rapport > 1 {
		return 1
	}
	return rel.Rapport
}

// RecordInteraction nudges rapport upward and refreshes bookkeeping.
func (t *Tracker) RecordInteraction(user string, at time.Time) {
	user = normalizeUser(user)
	if user == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	rel, ok := t.persona.Relationships[user]
	if !ok {
		rel = &Relationship{}
		t.persona.Relationships[user] = rel
	}
	rel.Interactions++
	rel.LastSeen = at
	rel.Rapport += rapportStep * (1 - rel.Rapport)
	if rel.Rapport > 1 {
		rel.Rapport = 1
	}
}

// Describe renders the persona header used in responder prompts.
func (t *Tracker) Describe() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s.", t.persona.Name)
	if t.persona.Style != "" {
		fmt.Fprintf(&sb, " Your style: %s.", t.persona.Style)
	}
	if len(t.persona.Interests) > 0 {
		fmt.Fprintf(&sb, " You care about: %s.", strings.Join(t.persona.Interests, ", "))
	}
	return sb.String()
}

// Name returns the persona's display name.
func (t *Tracker) Name() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.persona.Name
}

// Save writes the persona file back to disk.
func (t *Tracker) Save() error {
	t.mu.Lock()
	data, err := yaml.Marshal(&t.persona)
	t.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal persona: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(t.path), 0755); err != nil {
		return fmt.Errorf("create persona dir: %w", err)
	}
	if err := os.WriteFile(t.path, data, 0644); err != nil {
		return fmt.Errorf("write persona: %w", err)
	}
	return nil
}

// SaveQuiet saves and only logs on failure, for shutdown paths.
func (t *Tracker) SaveQuiet() {
	if err := t.Save(); err != nil {
		log.Printf("[persona] save warning: %v", err)
	}
}

func normalizeUser(user string) string {
	return strings.ToLower(strings.TrimSpace(user))
}
