// Package sqlitestore persists the associative store in the NGD-compatible
// SQLite schema: curie_to_pmids(curie TEXT PRIMARY KEY, pmids TEXT), with
// pmids serialized as a JSON array. Downstream consumers of the original
// NGD artifacts can read these databases unchanged.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/cognicore/curiemap/pkg/curiemap/store"
)

// commitEvery bounds transaction size during bulk writes.
const commitEvery = 50000

// Store is a SQLite-backed sorted store.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens an existing store database with WAL mode enabled.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := open(ctx, path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

func open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: enable WAL on %s: %w", path, err)
	}
	return db, nil
}

// Iterate implements store.Store. Entries come back in ascending CURIE order.
func (s *Store) Iterate(ctx context.Context) (store.Iterator, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT curie, pmids FROM curie_to_pmids ORDER BY curie")
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: query %s: %w", s.path, err)
	}
	return &iterator{rows: rows, path: s.path}, nil
}

// Count implements store.Store.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM curie_to_pmids").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlitestore: count %s: %w", s.path, err)
	}
	return n, nil
}

// Close implements store.Store.
func (s *Store) Close() error { return s.db.Close() }

type iterator struct {
	rows *sql.Rows
	path string
	cur  store.Entry
	err  error
}

func (it *iterator) Next() bool {
	if it.err != nil {
		return false
	}
	if !it.rows.Next() {
		if err := it.rows.Err(); err != nil {
			it.err = fmt.Errorf("sqlitestore: scan %s: %w", it.path, err)
		}
		return false
	}
	var curie, pmidsJSON string
	if err := it.rows.Scan(&curie, &pmidsJSON); err != nil {
		it.err = fmt.Errorf("sqlitestore: scan %s: %w", it.path, err)
		return false
	}
	var pmids []int64
	if err := json.Unmarshal([]byte(pmidsJSON), &pmids); err != nil {
		it.err = fmt.Errorf("sqlitestore: bad pmids for %s in %s: %w", curie, it.path, err)
		return false
	}
	it.cur = store.Entry{CURIE: curie, PMIDs: pmids}
	return true
}

func (it *iterator) Entry() store.Entry { return it.cur }
func (it *iterator) Err() error         { return it.err }
func (it *iterator) Close() error       { return it.rows.Close() }

// Writer bulk-loads a sorted entry stream into a fresh database, committing
// in bounded batches.
type Writer struct {
	db      *sql.DB
	path    string
	tx      *sql.Tx
	stmt    *sql.Stmt
	pending int
	last    string
	count   int64
}

// NewWriter creates (replacing) the store database at path.
func NewWriter(ctx context.Context, path string) (*Writer, error) {
	db, err := open(ctx, path)
	if err != nil {
		return nil, err
	}
	schema := `
CREATE TABLE IF NOT EXISTS curie_to_pmids (
	curie TEXT PRIMARY KEY,
	pmids TEXT
);
DELETE FROM curie_to_pmids;`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: init schema %s: %w", path, err)
	}
	w := &Writer{db: db, path: path}
	if err := w.begin(); err != nil {
		db.Close()
		return nil, err
	}
	return w, nil
}

func (w *Writer) begin() error {
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("sqlitestore: begin %s: %w", w.path, err)
	}
	stmt, err := tx.Prepare("INSERT INTO curie_to_pmids (curie, pmids) VALUES (?, ?)")
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlitestore: prepare %s: %w", w.path, err)
	}
	w.tx, w.stmt = tx, stmt
	return nil
}

func (w *Writer) commit() error {
	w.stmt.Close()
	if err := w.tx.Commit(); err != nil {
		return fmt.Errorf("sqlitestore: commit %s: %w", w.path, err)
	}
	w.tx, w.stmt = nil, nil
	w.pending = 0
	return nil
}

// Append implements store.Writer. Keys must arrive strictly ascending.
func (w *Writer) Append(e store.Entry) error {
	if w.count > 0 && e.CURIE <= w.last {
		return fmt.Errorf("sqlitestore: key order violation: %q after %q", e.CURIE, w.last)
	}
	pmidsJSON, err := json.Marshal(e.PMIDs)
	if err != nil {
		return fmt.Errorf("sqlitestore: marshal pmids for %s: %w", e.CURIE, err)
	}
	if _, err := w.stmt.Exec(e.CURIE, string(pmidsJSON)); err != nil {
		return fmt.Errorf("sqlitestore: insert %s into %s: %w", e.CURIE, w.path, err)
	}
	w.last = e.CURIE
	w.count++
	w.pending++
	if w.pending >= commitEvery {
		if err := w.commit(); err != nil {
			return err
		}
		return w.begin()
	}
	return nil
}

// Close commits the tail batch and closes the database.
func (w *Writer) Close() error {
	if w.tx != nil {
		if err := w.commit(); err != nil {
			w.db.Close()
			return err
		}
	}
	return w.db.Close()
}

// Finish closes the writer and reopens the result as a Store.
func (w *Writer) Finish(ctx context.Context) (*Store, error) {
	if err := w.Close(); err != nil {
		return nil, err
	}
	return Open(ctx, w.path)
}
