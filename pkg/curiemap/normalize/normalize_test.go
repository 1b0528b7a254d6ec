package normalize

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/cognicore/curiemap/internal/nodenorm"
	"github.com/cognicore/curiemap/pkg/curiemap/store"
	"github.com/cognicore/curiemap/pkg/curiemap/store/memstore"
)

// fakeNormalizer resolves from a fixed table; CURIEs absent from the
// table fail. Batches listed in failBatches error wholesale.
type fakeNormalizer struct {
	mu      sync.Mutex
	table   map[string]nodenorm.Result
	batches [][]string
	err     error
}

func (f *fakeNormalizer) NormalizeBatch(_ context.Context, curies []string) (map[string]nodenorm.Result, error) {
	f.mu.Lock()
	f.batches = append(f.batches, append([]string(nil), curies...))
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]nodenorm.Result)
	for _, c := range curies {
		if r, ok := f.table[c]; ok {
			out[c] = r
		}
	}
	return out, nil
}

func TestBuildMappingCoversEveryKey(t *testing.T) {
	st := memstore.FromEntries([]store.Entry{
		{CURIE: "MESH:D1", PMIDs: []int64{1}},
		{CURIE: "CHEBI:2", PMIDs: []int64{2}},
		{CURIE: "BOGUS:3", PMIDs: []int64{3}},
	})
	fake := &fakeNormalizer{table: map[string]nodenorm.Result{
		"MESH:D1": {Identifier: "CHEBI:1", Types: []string{"biolink:ChemicalEntity"}},
		"CHEBI:2": {Identifier: "CHEBI:2"},
	}}

	m, err := BuildMapping(context.Background(), st, fake, Options{BatchSize: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Successes() != 2 || m.Failures() != 1 {
		t.Errorf("successes=%d failures=%d, want 2/1", m.Successes(), m.Failures())
	}
	for _, raw := range []string{"MESH:D1", "CHEBI:2", "BOGUS:3"} {
		if !m.Covers(raw) {
			t.Errorf("mapping does not cover %q", raw)
		}
	}
	if e, ok := m.Lookup("MESH:D1"); !ok || e.Canonical != "CHEBI:1" {
		t.Errorf("Lookup(MESH:D1) = %+v, %v", e, ok)
	}
	if got := m.TypesFor("CHEBI:1"); !reflect.DeepEqual(got, []string{"biolink:ChemicalEntity"}) {
		t.Errorf("TypesFor(CHEBI:1) = %v", got)
	}
}

func TestSelfNormalizationIsSuccess(t *testing.T) {
	st := memstore.FromEntries([]store.Entry{{CURIE: "CHEBI:2", PMIDs: []int64{1}}})
	fake := &fakeNormalizer{table: map[string]nodenorm.Result{
		"CHEBI:2": {Identifier: "CHEBI:2"},
	}}
	m, err := BuildMapping(context.Background(), st, fake, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Failures() != 0 {
		t.Errorf("self-normalization must not count as failure, got %d", m.Failures())
	}
	if got := m.Outcome("CHEBI:2"); got != OutcomeUnchanged {
		t.Errorf("outcome = %v, want OutcomeUnchanged", got)
	}
	if got := m.FailedCURIEs(); len(got) != 0 {
		t.Errorf("failure log must be empty, got %v", got)
	}
}

func TestFailedBatchMarksAllFailed(t *testing.T) {
	st := memstore.FromEntries([]store.Entry{
		{CURIE: "A:1", PMIDs: []int64{1}},
		{CURIE: "B:2", PMIDs: []int64{2}},
	})
	fake := &fakeNormalizer{err: errors.New("service unavailable")}

	m, err := BuildMapping(context.Background(), st, fake, Options{})
	if err != nil {
		t.Fatalf("a failed batch must not abort the pass: %v", err)
	}
	if m.Successes() != 0 || m.Failures() != 2 {
		t.Errorf("successes=%d failures=%d, want 0/2", m.Successes(), m.Failures())
	}
	want := []string{"A:1", "B:2"}
	if got := m.FailedCURIEs(); !reflect.DeepEqual(got, want) {
		t.Errorf("failed = %v, want %v", got, want)
	}
}

func TestBatchSizeRespected(t *testing.T) {
	st := memstore.FromEntries([]store.Entry{
		{CURIE: "A:1", PMIDs: []int64{1}},
		{CURIE: "B:2", PMIDs: []int64{1}},
		{CURIE: "C:3", PMIDs: []int64{1}},
		{CURIE: "D:4", PMIDs: []int64{1}},
		{CURIE: "E:5", PMIDs: []int64{1}},
	})
	fake := &fakeNormalizer{table: map[string]nodenorm.Result{}}
	if _, err := BuildMapping(context.Background(), st, fake, Options{BatchSize: 2, Concurrency: 1}); err != nil {
		t.Fatal(err)
	}
	if len(fake.batches) != 3 {
		t.Fatalf("batches = %d, want 3", len(fake.batches))
	}
	for i, b := range fake.batches[:2] {
		if len(b) != 2 {
			t.Errorf("batch %d size = %d, want 2", i, len(b))
		}
	}
	if len(fake.batches[2]) != 1 {
		t.Errorf("tail batch size = %d, want 1", len(fake.batches[2]))
	}
}

func TestReverseIndex(t *testing.T) {
	m := NewMapping(map[string]Entry{
		"A:1": {Canonical: "C:1"},
		"B:2": {Canonical: "C:1"},
		"D:3": {Canonical: "D:3"},
	}, nil, nil)
	rev := m.ReverseIndex()
	if !reflect.DeepEqual(rev["C:1"], []string{"A:1", "B:2"}) {
		t.Errorf("rev[C:1] = %v", rev["C:1"])
	}
	if !reflect.DeepEqual(rev["D:3"], []string{"D:3"}) {
		t.Errorf("rev[D:3] = %v", rev["D:3"])
	}
}

func TestEmptyStore(t *testing.T) {
	m, err := BuildMapping(context.Background(), memstore.New(), &fakeNormalizer{}, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Successes() != 0 || m.Failures() != 0 {
		t.Errorf("empty store must produce empty mapping")
	}
}
