package memory

import (
	"regexp"
	"strings"
	"time"
)

var wordRegex = regexp.MustCompile(`[a-z0-9_]+`)

// stopWords are tokens too common to signal topical overlap.
var stopWords = map[string]struct{}{
	"this": {}, "that": {}, "with": {}, "have": {}, "what": {},
	"when": {}, "where": {}, "your": {}, "from": {}, "about": {},
	"just": {}, "like": {}, "know": {}, "will": {}, "been": {},
	"they": {}, "them": {}, "then": {}, "than": {}, "were": {},
	"would": {}, "could": {}, "should": {}, "there": {}, "here": {},
	"really": {}, "because": {}, "going": {}, "want": {}, "dont": {},
}

const (
	typeMatchBonus    = 0.5
	channelMatchBonus = 0.3
	userMatchBonus    = 0.4
	overlapBonus      = 0.1
)

// Score compares a stored entry to a query context and returns a relevance
// value in [0,1]. Pure: all time dependence comes through now, so tests
// are free of wall-clock flakiness.
func Score(entry Entry, query EntryContext, now time.Time) float64 {
	age := now.Sub(entry.InsertedAt)
	maxAge := entry.Tier.MaxAge()

	score := 0.0
	if recency := 1 - age.Seconds()/maxAge.Seconds(); recency > 0 {
		score = recency
	}
	if entry.Context.Type != "" && entry.Context.Type == query.Type {
		score += typeMatchBonus
	}
	if entry.Context.Channel != "" && entry.Context.Channel == query.Channel {
		score += channelMatchBonus
	}
	if entry.Context.User != "" && entry.Context.User == query.User {
		score += userMatchBonus
	}
	score += overlapBonus * float64(keywordOverlap(entry.Context.Content, query.Content))

	if score > 1 {
		return 1
	}
	if score < 0 {
		return 0
	}
	return score
}

// Keywords extracts significant lowercase tokens: split on non-word
// boundaries, keep tokens longer than 3 runes that are not stop words.
func Keywords(content string) []string {
	content = strings.ToLower(strings.TrimSpace(content))
	if content == "" {
		return nil
	}

	out := make([]string, 0, 8)
	seen := map[string]struct{}{}
	for _, w := range wordRegex.FindAllString(content, -1) {
		if len(w) <= 3 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

func keywordOverlap(a, b string) int {
	ka := Keywords(a)
	if len(ka) == 0 {
		return 0
	}
	kb := Keywords(b)
	if len(kb) == 0 {
		return 0
	}

	set := make(map[string]struct{}, len(ka))
	for _, w := range ka {
		set[w] = struct{}{}
	}
	overlap := 0
	for _, w := range kb {
		if _, ok := set[w]; ok {
			overlap++
		}
	}
	return overlap
}
