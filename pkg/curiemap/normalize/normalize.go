// Package normalize builds the complete raw→canonical identifier mapping
// (Pass 1). Every distinct CURIE in the store ends the pass with either a
// canonical identifier or a recorded failure; absence of a mapping entry
// is an invariant violation, never a signal.
package normalize

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/cognicore/curiemap/internal/nodenorm"
	"github.com/cognicore/curiemap/pkg/curiemap/progress"
	"github.com/cognicore/curiemap/pkg/curiemap/store"
)

// DefaultBatchSize respects the public service's request-size limit.
const DefaultBatchSize = 10000

// DefaultConcurrency bounds in-flight batches against the service.
const DefaultConcurrency = 4

// Outcome is the three-way normalization result. A CURIE that normalizes
// to itself is a success, never a failure; only OutcomeFailed routes to
// the failure log.
type Outcome int

const (
	OutcomeFailed Outcome = iota
	OutcomeUnchanged
	OutcomeChanged
)

// Entry is a successful mapping for one raw CURIE.
type Entry struct {
	Canonical string
	Label     string
}

// BatchNormalizer is the service dependency; *nodenorm.Client satisfies it.
type BatchNormalizer interface {
	NormalizeBatch(ctx context.Context, curies []string) (map[string]nodenorm.Result, error)
}

// Mapping is the complete Pass-1 result. Immutable once built; shared
// read-only by all of Pass 2.
type Mapping struct {
	entries map[string]Entry
	failed  map[string]struct{}
	// types holds the biolink classes reported for each canonical CURIE.
	types map[string][]string
}

// Lookup returns the mapping entry for a raw CURIE.
func (m *Mapping) Lookup(raw string) (Entry, bool) {
	e, ok := m.entries[raw]
	return e, ok
}

// Outcome classifies a raw CURIE's Pass-1 result.
func (m *Mapping) Outcome(raw string) Outcome {
	e, ok := m.entries[raw]
	switch {
	case !ok:
		return OutcomeFailed
	case e.Canonical == raw:
		return OutcomeUnchanged
	default:
		return OutcomeChanged
	}
}

// Covers reports whether the raw CURIE completed Pass 1 (success or failure).
func (m *Mapping) Covers(raw string) bool {
	if _, ok := m.entries[raw]; ok {
		return true
	}
	_, ok := m.failed[raw]
	return ok
}

// Successes is the number of raw CURIEs with a canonical identifier.
func (m *Mapping) Successes() int { return len(m.entries) }

// Failures is the number of raw CURIEs that never normalized.
func (m *Mapping) Failures() int { return len(m.failed) }

// FailedCURIEs returns the failure set in ascending order.
func (m *Mapping) FailedCURIEs() []string {
	out := make([]string, 0, len(m.failed))
	for c := range m.failed {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// TypesFor returns the biolink classes of a canonical CURIE.
func (m *Mapping) TypesFor(canonical string) []string { return m.types[canonical] }

// TypesByCanonical returns the full canonical→classes map.
func (m *Mapping) TypesByCanonical() map[string][]string { return m.types }

// ReverseIndex groups raw CURIEs by the canonical identifier they resolve
// to, each group in ascending order. Pass 2 uses it to know when a
// canonical record has seen every contributor.
func (m *Mapping) ReverseIndex() map[string][]string {
	rev := make(map[string][]string)
	for raw, e := range m.entries {
		rev[e.Canonical] = append(rev[e.Canonical], raw)
	}
	for _, raws := range rev {
		sort.Strings(raws)
	}
	return rev
}

// Options configures Pass 1.
type Options struct {
	BatchSize   int
	Concurrency int
	Logger      *slog.Logger
	Tracker     *progress.Tracker
}

func (o Options) batchSize() int {
	if o.BatchSize > 0 {
		return o.BatchSize
	}
	return DefaultBatchSize
}

func (o Options) concurrency() int {
	if o.Concurrency > 0 {
		return o.Concurrency
	}
	return DefaultConcurrency
}

// BuildMapping streams every key of the store through the normalizer in
// batches. Batches run concurrently up to Options.Concurrency; responses
// merge into the mapping keyed by CURIE, so completion order never affects
// the result. A batch whose retries are exhausted marks all of its CURIEs
// failed — results are never fabricated — and the pass continues.
func BuildMapping(ctx context.Context, st store.Store, client BatchNormalizer, opts Options) (*Mapping, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "normalize")
	if opts.Tracker != nil {
		opts.Tracker.SetPhase(progress.PhasePass1)
	}

	total, err := st.Count(ctx)
	if err != nil {
		return nil, err
	}
	log.Info("pass 1 started", "curies", total, "batch_size", opts.batchSize())

	m := &Mapping{
		entries: make(map[string]Entry),
		failed:  make(map[string]struct{}),
		types:   make(map[string][]string),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.concurrency())

	dispatch := func(batch []string) {
		g.Go(func() error {
			results, err := client.NormalizeBatch(gctx, batch)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.Warn("batch unconfirmed after retries, recording failures",
					"size", len(batch), "error", err)
				results = nil
			}
			mu.Lock()
			defer mu.Unlock()
			for _, raw := range batch {
				res, ok := results[raw]
				if !ok {
					m.failed[raw] = struct{}{}
					continue
				}
				m.entries[raw] = Entry{Canonical: res.Identifier, Label: res.Label}
				if len(res.Types) > 0 {
					m.types[res.Identifier] = res.Types
				}
			}
			if opts.Tracker != nil {
				opts.Tracker.AddBatchesDone(1)
			}
			return nil
		})
	}

	it, err := st.Iterate(ctx)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	batch := make([]string, 0, opts.batchSize())
	for it.Next() {
		batch = append(batch, it.Entry().CURIE)
		if len(batch) >= opts.batchSize() {
			dispatch(batch)
			batch = make([]string, 0, opts.batchSize())
		}
	}
	if err := it.Err(); err != nil {
		g.Wait()
		return nil, err
	}
	if len(batch) > 0 {
		dispatch(batch)
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Coverage invariant: every distinct key resolved or recorded failed.
	if covered := int64(len(m.entries) + len(m.failed)); covered != total {
		return nil, fmt.Errorf("normalize: mapping covers %d of %d curies", covered, total)
	}
	if opts.Tracker != nil {
		opts.Tracker.AddNormalized(int64(len(m.entries)))
		opts.Tracker.AddNormFailures(int64(len(m.failed)))
	}
	log.Info("pass 1 complete", "normalized", len(m.entries), "failed", len(m.failed))
	return m, nil
}

// NewMapping builds a mapping directly from literal results; tests and
// offline tools use it in place of BuildMapping.
func NewMapping(entries map[string]Entry, failed []string, types map[string][]string) *Mapping {
	m := &Mapping{
		entries: make(map[string]Entry, len(entries)),
		failed:  make(map[string]struct{}, len(failed)),
		types:   make(map[string][]string, len(types)),
	}
	for k, v := range entries {
		m.entries[k] = v
	}
	for _, f := range failed {
		m.failed[f] = struct{}{}
	}
	for k, v := range types {
		m.types[k] = v
	}
	return m
}
