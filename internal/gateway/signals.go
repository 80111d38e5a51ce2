package gateway

import (
	"sync"
	"time"

	"github.com/lumilinkco/mochi/internal/memory"
)

const (
	signalWindow  = time.Minute
	livelyRate    = 0.2 // messages per second
	wildRate      = 1.0
	hypeDivisor   = 2.0
	maxStampsKept = 256
)

// signalTracker derives per-channel mood from recent message volume.
// The memory subsystem treats the result as an opaque pass-through.
type signalTracker struct {
	mu     sync.Mutex
	clock  memory.Clock
	stamps map[string][]time.Time
}

func newSignalTracker(clock memory.Clock) *signalTracker {
	return &signalTracker{
		clock:  clock,
		stamps: make(map[string][]time.Time),
	}
}

// Observe records one message on the channel.
func (s *signalTracker) Observe(channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	stamps := append(s.stamps[channel], now)
	stamps = trimStamps(stamps, now.Add(-signalWindow))
	if len(stamps) > maxStampsKept {
		stamps = stamps[len(stamps)-maxStampsKept:]
	}
	s.stamps[channel] = stamps
}

// Snapshot computes the current signals for the channel.
func (s *signalTracker) Snapshot(channel string) memory.ChannelSignals {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	stamps := trimStamps(s.stamps[channel], now.Add(-signalWindow))
	s.stamps[channel] = stamps

	rate := float64(len(stamps)) / signalWindow.Seconds()

	mood := "quiet"
	switch {
	case rate >= wildRate:
		mood = "wild"
	case rate >= livelyRate:
		mood = "lively"
	case len(stamps) > 0:
		mood = "chill"
	}

	hype := rate / hypeDivisor
	if hype > 1 {
		hype = 1
	}

	return memory.ChannelSignals{
		Mood:        mood,
		MessageRate: rate,
		Hype:        hype,
	}
}

func trimStamps(stamps []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(stamps) && !stamps[idx].After(cutoff) {
		idx++
	}
	if idx == 0 {
		return stamps
	}
	return append(stamps[:0], stamps[idx:]...)
}
