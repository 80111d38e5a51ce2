package memory

import (
	"math/rand"
	"sync"
)

const (
	snapshotHistoryLen  = 10
	snapshotMemoryLimit = 5
	promoteProbability  = 0.1
)

// Assembler composes thread history, top relevant memories and external
// channel signals into an immutable ContextSnapshot. It never calls the
// responder; the snapshot is the whole contract.
type Assembler struct {
	store   *Store
	threads *ThreadManager
	clock   Clock

	promoter *Scheduler

	randMu sync.Mutex
	randFn func() float64
}

// NewAssembler builds an Assembler. promoter may be nil to disable the
// probabilistic promotion piggyback.
func NewAssembler(store *Store, threads *ThreadManager, promoter *Scheduler, clock Clock) *Assembler {
	if clock == nil {
		clock = SystemClock()
	}
	return &Assembler{
		store:    store,
		threads:  threads,
		clock:    clock,
		promoter: promoter,
		randFn:   rand.Float64,
	}
}

// Build assembles the context snapshot for one response. Channel signals
// are externally computed and pass through unchanged. On a small fraction
// of calls a promotion cycle runs piggybacked, bounding scheduler overhead
// without a dedicated hot timer.
func (a *Assembler) Build(channel, participant, queryContent string, signals ChannelSignals) ContextSnapshot {
	thread := a.threads.GetOrCreate(channel, participant)
	history := a.threads.History(thread, snapshotHistoryLen)

	query := EntryContext{
		Type:      "chat",
		Channel:   channel,
		User:      participant,
		Content:   queryContent,
		Timestamp: a.clock.Now(),
	}
	memories := a.store.GetRelevantMemories(query)
	if len(memories) > snapshotMemoryLimit {
		memories = memories[:snapshotMemoryLimit]
	}

	if a.promoter != nil && a.roll() < promoteProbability {
		go a.promoter.RunCycle()
	}

	return ContextSnapshot{
		Channel:     channel,
		Participant: participant,
		Query:       queryContent,
		History:     history,
		Memories:    memories,
		Signals:     signals,
		BuiltAt:     query.Timestamp,
	}
}

func (a *Assembler) roll() float64 {
	a.randMu.Lock()
	defer a.randMu.Unlock()
	return a.randFn()
}
