// Package filestore persists the associative store as a single key-sorted
// TSV file: one line per CURIE, PMIDs comma-joined in ascending order.
// The format is append-free and supports restartable forward-only reads.
package filestore

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cognicore/curiemap/pkg/curiemap/internalerr"
	"github.com/cognicore/curiemap/pkg/curiemap/store"
)

// Store is an on-disk sorted store backed by a single TSV file.
type Store struct {
	path   string
	count  int64
	closed bool
}

// Open opens an existing sorted store file. The entry count is established
// with one sequential scan so that Count is O(1) afterwards.
func Open(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("filestore: open %s: %w", path, err)
	}
	defer f.Close()

	var count int64
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		if len(sc.Bytes()) > 0 {
			count++
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("filestore: scan %s: %w", path, err)
	}
	return &Store{path: path, count: count}, nil
}

// Path returns the location of the backing file.
func (s *Store) Path() string { return s.path }

// Iterate implements store.Store.
func (s *Store) Iterate(ctx context.Context) (store.Iterator, error) {
	if s.closed {
		return nil, internalerr.ErrStoreClosed
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("filestore: open %s: %w", s.path, err)
	}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &iterator{ctx: ctx, f: f, sc: sc}, nil
}

// Count implements store.Store.
func (s *Store) Count(context.Context) (int64, error) {
	if s.closed {
		return 0, internalerr.ErrStoreClosed
	}
	return s.count, nil
}

// Close implements store.Store. The backing file is left in place.
func (s *Store) Close() error {
	s.closed = true
	return nil
}

// Entries with very large publication sets occur in real corpora
// (NCBITaxon:9606 appears in a large fraction of PubMed), so the line
// limit is generous.
const maxLineBytes = 256 * 1024 * 1024

type iterator struct {
	ctx  context.Context
	f    *os.File
	sc   *bufio.Scanner
	cur  store.Entry
	err  error
	done bool
}

func (it *iterator) Next() bool {
	if it.done || it.err != nil {
		return false
	}
	if err := it.ctx.Err(); err != nil {
		it.err = err
		return false
	}
	for it.sc.Scan() {
		line := it.sc.Text()
		if line == "" {
			continue
		}
		e, err := parseLine(line)
		if err != nil {
			it.err = err
			return false
		}
		it.cur = e
		return true
	}
	if err := it.sc.Err(); err != nil {
		it.err = fmt.Errorf("filestore: read %s: %w", it.f.Name(), err)
		return false
	}
	it.done = true
	return false
}

func (it *iterator) Entry() store.Entry { return it.cur }
func (it *iterator) Err() error         { return it.err }
func (it *iterator) Close() error       { return it.f.Close() }

func parseLine(line string) (store.Entry, error) {
	tab := strings.IndexByte(line, '\t')
	if tab < 1 {
		return store.Entry{}, fmt.Errorf("filestore: %w: %q", internalerr.ErrParse, truncate(line))
	}
	curie := line[:tab]
	rest := line[tab+1:]
	var pmids []int64
	if rest != "" {
		parts := strings.Split(rest, ",")
		pmids = make([]int64, 0, len(parts))
		for _, p := range parts {
			v, err := strconv.ParseInt(p, 10, 64)
			if err != nil {
				return store.Entry{}, fmt.Errorf("filestore: %w: bad pmid %q for %s", internalerr.ErrParse, p, curie)
			}
			pmids = append(pmids, v)
		}
	}
	return store.Entry{CURIE: curie, PMIDs: pmids}, nil
}

func truncate(s string) string {
	if len(s) > 80 {
		return s[:80] + "..."
	}
	return s
}

// Writer streams a sorted entry sequence into a new store file.
type Writer struct {
	path  string
	f     *os.File
	w     *bufio.Writer
	last  string
	count int64
}

// NewWriter creates (truncating) the store file at path.
func NewWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("filestore: create %s: %w", path, err)
	}
	return &Writer{path: path, f: f, w: bufio.NewWriterSize(f, 1<<20)}, nil
}

// Append implements store.Writer. Keys must arrive strictly ascending.
func (w *Writer) Append(e store.Entry) error {
	if w.count > 0 && e.CURIE <= w.last {
		return fmt.Errorf("filestore: key order violation: %q after %q", e.CURIE, w.last)
	}
	if _, err := w.w.WriteString(e.CURIE); err != nil {
		return fmt.Errorf("filestore: write %s: %w", w.path, err)
	}
	if err := w.w.WriteByte('\t'); err != nil {
		return fmt.Errorf("filestore: write %s: %w", w.path, err)
	}
	for i, p := range e.PMIDs {
		if i > 0 {
			if err := w.w.WriteByte(','); err != nil {
				return fmt.Errorf("filestore: write %s: %w", w.path, err)
			}
		}
		if _, err := w.w.WriteString(strconv.FormatInt(p, 10)); err != nil {
			return fmt.Errorf("filestore: write %s: %w", w.path, err)
		}
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("filestore: write %s: %w", w.path, err)
	}
	w.last = e.CURIE
	w.count++
	return nil
}

// Count reports the number of entries appended so far.
func (w *Writer) Count() int64 { return w.count }

// Close flushes and syncs the file.
func (w *Writer) Close() error {
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("filestore: flush %s: %w", w.path, err)
	}
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		return fmt.Errorf("filestore: sync %s: %w", w.path, err)
	}
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("filestore: close %s: %w", w.path, err)
	}
	return nil
}

// Finish closes the writer and opens the result as a Store without rescanning.
func (w *Writer) Finish() (*Store, error) {
	if err := w.Close(); err != nil {
		return nil, err
	}
	return &Store{path: w.path, count: w.count}, nil
}
