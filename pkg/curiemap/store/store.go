package store

import "context"

// Entry is one row of the sorted associative store: a raw CURIE and the
// ascending, deduplicated set of PMIDs it was observed with.
type Entry struct {
	CURIE string
	PMIDs []int64
}

// Iterator is a forward-only cursor over entries in ascending CURIE order.
// A fresh cursor is obtained from Store.Iterate; cursors are not restartable.
type Iterator interface {
	// Next advances the cursor. It returns false at end of stream or on
	// error; Err distinguishes the two.
	Next() bool
	Entry() Entry
	Err() error
	Close() error
}

// Store is a built associative store. It is immutable once built and can be
// re-read from the start any number of times.
type Store interface {
	// Iterate opens a fresh cursor positioned before the first entry.
	Iterate(ctx context.Context) (Iterator, error)
	// Count reports the number of distinct CURIEs in the store.
	Count(ctx context.Context) (int64, error)
	Close() error
}

// Writer builds a store from an already-sorted entry stream. Keys must be
// appended in strictly ascending order; duplicate keys are rejected.
type Writer interface {
	Append(e Entry) error
	// Close finalizes the store. The store is not valid until Close returns nil.
	Close() error
}
