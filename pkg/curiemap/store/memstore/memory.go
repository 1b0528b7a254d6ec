// Package memstore is an in-memory implementation of the store contracts,
// used by tests.
package memstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/cognicore/curiemap/pkg/curiemap/store"
)

// Store holds entries in memory, keyed and iterated in ascending CURIE order.
type Store struct {
	entries map[string][]int64
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{entries: make(map[string][]int64)}
}

// FromEntries builds a store from arbitrary-order entries, unioning
// duplicate keys.
func FromEntries(entries []store.Entry) *Store {
	s := New()
	for _, e := range entries {
		s.Add(e.CURIE, e.PMIDs...)
	}
	return s
}

// Add unions pmids into the entry for curie.
func (s *Store) Add(curie string, pmids ...int64) {
	merged := append(s.entries[curie], pmids...)
	sort.Slice(merged, func(i, j int) bool { return merged[i] < merged[j] })
	out := merged[:0]
	var prev int64 = -1
	for i, p := range merged {
		if i == 0 || p != prev {
			out = append(out, p)
		}
		prev = p
	}
	s.entries[curie] = out
}

// Iterate implements store.Store.
func (s *Store) Iterate(ctx context.Context) (store.Iterator, error) {
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return &iterator{ctx: ctx, s: s, keys: keys, pos: -1}, nil
}

// Count implements store.Store.
func (s *Store) Count(context.Context) (int64, error) {
	return int64(len(s.entries)), nil
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

type iterator struct {
	ctx  context.Context
	s    *Store
	keys []string
	pos  int
	err  error
}

func (it *iterator) Next() bool {
	if it.err != nil {
		return false
	}
	if err := it.ctx.Err(); err != nil {
		it.err = err
		return false
	}
	it.pos++
	return it.pos < len(it.keys)
}

func (it *iterator) Entry() store.Entry {
	k := it.keys[it.pos]
	pmids := make([]int64, len(it.s.entries[k]))
	copy(pmids, it.s.entries[k])
	return store.Entry{CURIE: k, PMIDs: pmids}
}

func (it *iterator) Err() error   { return it.err }
func (it *iterator) Close() error { return nil }

// Writer implements store.Writer on top of a memstore.
type Writer struct {
	s    *Store
	last string
}

// NewWriter creates a writer building into a fresh store.
func NewWriter() *Writer {
	return &Writer{s: New()}
}

// Append implements store.Writer.
func (w *Writer) Append(e store.Entry) error {
	if len(w.s.entries) > 0 && e.CURIE <= w.last {
		return fmt.Errorf("memstore: key order violation: %q after %q", e.CURIE, w.last)
	}
	pmids := make([]int64, len(e.PMIDs))
	copy(pmids, e.PMIDs)
	w.s.entries[e.CURIE] = pmids
	w.last = e.CURIE
	return nil
}

// Close implements store.Writer.
func (w *Writer) Close() error { return nil }

// Store returns the built store.
func (w *Writer) Store() *Store { return w.s }
