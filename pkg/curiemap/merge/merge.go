// Package merge is Pass 2: it re-streams the sorted store in bounded
// chunks, rewrites each raw CURIE through the Pass-1 mapping, and folds
// entries that collapse onto the same canonical identifier into one
// record. The store is ordered by raw CURIE, not canonical, so the
// accumulator persists across chunk boundaries; its memory bound is the
// number of distinct canonical identifiers still open, not the number of
// records. A record is emitted the moment its last contributor is folded
// in, freeing its accumulator slot.
package merge

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/cognicore/curiemap/pkg/curiemap/normalize"
	"github.com/cognicore/curiemap/pkg/curiemap/progress"
	"github.com/cognicore/curiemap/pkg/curiemap/store"
)

// DefaultChunkSize is the number of store entries per chunk; chunk
// boundaries are the pass's cancellation points.
const DefaultChunkSize = 50000

// Record is one merged canonical concept.
type Record struct {
	CURIE          string
	OriginalCURIEs []string
	Publications   []int64
	BiolinkTypes   []string
}

// Stats summarizes one Pass-2 run.
type Stats struct {
	EntriesProcessed int64
	RecordsEmitted   int64
	FailuresRouted   int64
}

// Merger folds store entries into canonical records.
type Merger struct {
	ChunkSize int
	Logger    *slog.Logger
	Tracker   *progress.Tracker
}

func (m *Merger) chunkSize() int {
	if m.ChunkSize > 0 {
		return m.ChunkSize
	}
	return DefaultChunkSize
}

func (m *Merger) logger() *slog.Logger {
	l := m.Logger
	if l == nil {
		l = slog.Default()
	}
	return l.With("component", "merge")
}

type accumulator struct {
	originals []string
	pmids     []int64
}

// Run streams the whole store once, emitting every canonical record via
// emit and every failed raw CURIE (with its publications) via fail. The
// store must be the same one the mapping was built from: a key without a
// mapping entry aborts the run as an invariant violation.
func (m *Merger) Run(
	ctx context.Context,
	st store.Store,
	mapping *normalize.Mapping,
	emit func(Record) error,
	fail func(curie string, pmids []int64) error,
) (Stats, error) {
	log := m.logger()
	var stats Stats
	if m.Tracker != nil {
		m.Tracker.SetPhase(progress.PhasePass2)
	}

	expected := mapping.ReverseIndex()
	open := make(map[string]*accumulator)
	log.Info("pass 2 started", "canonical_curies", len(expected), "chunk_size", m.chunkSize())

	finish := func(canonical string, acc *accumulator) error {
		sort.Strings(acc.originals)
		rec := Record{
			CURIE:          canonical,
			OriginalCURIEs: acc.originals,
			Publications:   acc.pmids,
			BiolinkTypes:   mapping.TypesFor(canonical),
		}
		if err := emit(rec); err != nil {
			return err
		}
		stats.RecordsEmitted++
		if m.Tracker != nil {
			m.Tracker.AddRecordsOut(1)
		}
		return nil
	}

	it, err := st.Iterate(ctx)
	if err != nil {
		return stats, err
	}
	defer it.Close()

	for it.Next() {
		stats.EntriesProcessed++
		if stats.EntriesProcessed%int64(m.chunkSize()) == 0 {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			if m.Tracker != nil {
				m.Tracker.AddEntriesFolded(int64(m.chunkSize()))
			}
		}

		e := it.Entry()
		entry, ok := mapping.Lookup(e.CURIE)
		if !ok {
			if !mapping.Covers(e.CURIE) {
				return stats, fmt.Errorf("merge: no mapping entry for %q", e.CURIE)
			}
			if err := fail(e.CURIE, e.PMIDs); err != nil {
				return stats, err
			}
			stats.FailuresRouted++
			continue
		}

		acc := open[entry.Canonical]
		if acc == nil {
			acc = &accumulator{}
			open[entry.Canonical] = acc
		}
		acc.originals = append(acc.originals, e.CURIE)
		acc.pmids = unionSorted(acc.pmids, e.PMIDs)

		if len(acc.originals) == len(expected[entry.Canonical]) {
			if err := finish(entry.Canonical, acc); err != nil {
				return stats, err
			}
			delete(open, entry.Canonical)
		}
	}
	if err := it.Err(); err != nil {
		return stats, err
	}

	// Every contributor of every open record has been seen by now; flush
	// whatever early emission did not close, in key order for determinism.
	if m.Tracker != nil {
		m.Tracker.SetPhase(progress.PhaseFinalizing)
	}
	leftovers := make([]string, 0, len(open))
	for canonical := range open {
		leftovers = append(leftovers, canonical)
	}
	sort.Strings(leftovers)
	for _, canonical := range leftovers {
		if err := finish(canonical, open[canonical]); err != nil {
			return stats, err
		}
	}

	if m.Tracker != nil {
		m.Tracker.SetPhase(progress.PhaseDone)
	}
	log.Info("pass 2 complete",
		"entries", stats.EntriesProcessed,
		"records", stats.RecordsEmitted,
		"failures", stats.FailuresRouted)
	return stats, nil
}

// unionSorted merges two ascending deduplicated slices into one.
func unionSorted(a, b []int64) []int64 {
	if len(a) == 0 {
		return append([]int64(nil), b...)
	}
	out := make([]int64, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			out = append(out, a[i])
			i++
		case a[i] > b[j]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}
