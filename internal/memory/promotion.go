package memory

import (
	"log"
	"strings"
)

// RelationshipSource supplies externally tracked participant familiarity
// in [0,1]. The persona package implements it.
type RelationshipSource interface {
	Familiarity(user string) float64
}

const (
	familiarityWeight = 0.4
	markerWeight      = 0.3
	typeWeight        = 0.3

	promoteLongThreshold   = 0.7
	promoteMediumThreshold = 0.4
)

// importanceMarkers are explicit keep-this phrases in entry content.
var importanceMarkers = []string{"important", "remember"}

// interactionWeights rank how memorable each interaction type is.
var interactionWeights = map[string]float64{
	"mention":        0.9,
	"command":        0.6,
	"response":       0.5,
	"chat":           0.4,
	"thread-archive": 0.4,
	"system":         0.2,
}

const defaultInteractionWeight = 0.3

// Scheduler evaluates queued (UNSCOPED) entries and moves the important
// ones into longer-lived tiers. Promotion is an atomic move: the entry
// leaves its source tier, it is never duplicated across tiers.
type Scheduler struct {
	store *Store
	rel   RelationshipSource
}

// NewScheduler wires the promotion scheduler. rel may be nil, in which
// case familiarity contributes zero.
func NewScheduler(store *Store, rel RelationshipSource) *Scheduler {
	return &Scheduler{store: store, rel: rel}
}

// RunCycle scores every queued entry and promotes by importance:
// above 0.7 to LONG, above 0.4 to MEDIUM, otherwise the entry stays
// queued for the next cycle or its natural expiry. Returns the number of
// entries moved.
func (p *Scheduler) RunCycle() int {
	promoted := 0
	for _, e := range p.store.EntriesByTier(TierUnscoped) {
		imp := p.Importance(e)
		var dst Tier
		switch {
		case imp > promoteLongThreshold:
			dst = TierLong
		case imp > promoteMediumThreshold:
			dst = TierMedium
		default:
			continue
		}
		if p.store.Promote(TierUnscoped, e.Key, dst) {
			promoted++
		}
	}
	if promoted > 0 {
		log.Printf("[promotion] cycle promoted %d entries", promoted)
	}
	return promoted
}

// Importance is the weighted sum of participant familiarity, explicit
// importance markers in the content, and the interaction-type weight.
func (p *Scheduler) Importance(e Entry) float64 {
	familiarity := 0.0
	if p.rel != nil && e.Context.User != "" {
		familiarity = clamp01(p.rel.Familiarity(e.Context.User))
	}

	marker := 0.0
	content := strings.ToLower(e.Context.Content)
	for _, m := range importanceMarkers {
		if strings.Contains(content, m) {
			marker = 1.0
			break
		}
	}

	w, ok := interactionWeights[e.Context.Type]
	if !ok {
		w = defaultInteractionWeight
	}

	return familiarityWeight*familiarity + markerWeight*marker + typeWeight*w
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
