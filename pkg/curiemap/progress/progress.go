// Package progress exposes pipeline progress as a read-only, periodically
// queryable snapshot. Components bump atomic counters; monitors call
// Snapshot without touching pipeline state.
package progress

import (
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

// Phase names the pipeline stage a run is currently in.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseIngest     Phase = "ingest"
	PhasePass1      Phase = "pass1"
	PhasePass2      Phase = "pass2"
	PhaseFinalizing Phase = "finalizing"
	PhaseDone       Phase = "done"
)

// Tracker accumulates run counters. The zero value is not usable; create
// with NewTracker.
type Tracker struct {
	runID   string
	started time.Time
	phase   atomic.Value // Phase

	linesRead     atomic.Int64
	pairs         atomic.Int64
	parseErrors   atomic.Int64
	dropped       atomic.Int64
	storeEntries  atomic.Int64
	normalized    atomic.Int64
	normFailures  atomic.Int64
	batchesDone   atomic.Int64
	recordsOut    atomic.Int64
	entriesFolded atomic.Int64
}

// NewTracker starts a tracker for a fresh run.
func NewTracker() *Tracker {
	t := &Tracker{
		runID:   ulid.Make().String(),
		started: time.Now(),
	}
	t.phase.Store(PhaseIdle)
	return t
}

// RunID identifies this run; it also names the run's spill directory.
func (t *Tracker) RunID() string { return t.runID }

// SetPhase records the stage transition.
func (t *Tracker) SetPhase(p Phase) { t.phase.Store(p) }

func (t *Tracker) AddLines(n int64)         { t.linesRead.Add(n) }
func (t *Tracker) AddPairs(n int64)         { t.pairs.Add(n) }
func (t *Tracker) AddParseErrors(n int64)   { t.parseErrors.Add(n) }
func (t *Tracker) AddDropped(n int64)       { t.dropped.Add(n) }
func (t *Tracker) AddStoreEntries(n int64)  { t.storeEntries.Add(n) }
func (t *Tracker) AddNormalized(n int64)    { t.normalized.Add(n) }
func (t *Tracker) AddNormFailures(n int64)  { t.normFailures.Add(n) }
func (t *Tracker) AddBatchesDone(n int64)   { t.batchesDone.Add(n) }
func (t *Tracker) AddRecordsOut(n int64)    { t.recordsOut.Add(n) }
func (t *Tracker) AddEntriesFolded(n int64) { t.entriesFolded.Add(n) }

// Snapshot is a point-in-time copy of the run counters.
type Snapshot struct {
	RunID                 string
	Phase                 Phase
	Started               time.Time
	Elapsed               time.Duration
	LinesRead             int64
	PairsExtracted        int64
	ParseErrors           int64
	DroppedConcepts       int64
	StoreEntries          int64
	Normalized            int64
	NormalizationFailures int64
	BatchesCompleted      int64
	EntriesFolded         int64
	RecordsWritten        int64
}

// Snapshot returns the current counters. Safe to call from any goroutine.
func (t *Tracker) Snapshot() Snapshot {
	return Snapshot{
		RunID:                 t.runID,
		Phase:                 t.phase.Load().(Phase),
		Started:               t.started,
		Elapsed:               time.Since(t.started),
		LinesRead:             t.linesRead.Load(),
		PairsExtracted:        t.pairs.Load(),
		ParseErrors:           t.parseErrors.Load(),
		DroppedConcepts:       t.dropped.Load(),
		StoreEntries:          t.storeEntries.Load(),
		Normalized:            t.normalized.Load(),
		NormalizationFailures: t.normFailures.Load(),
		BatchesCompleted:      t.batchesDone.Load(),
		EntriesFolded:         t.entriesFolded.Load(),
		RecordsWritten:        t.recordsOut.Load(),
	}
}
