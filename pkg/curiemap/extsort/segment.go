package extsort

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/cognicore/curiemap/pkg/curiemap/internalerr"
)

// pair is one association held in the sort buffer or a spill segment.
type pair struct {
	curie string
	pmid  int64
}

func sortPairs(pairs []pair) {
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].curie != pairs[j].curie {
			return pairs[i].curie < pairs[j].curie
		}
		return pairs[i].pmid < pairs[j].pmid
	})
}

// spillSegment sorts the buffer and writes it as segment file n under dir.
func spillSegment(dir string, n int, pairs []pair) (string, error) {
	sortPairs(pairs)
	path := filepath.Join(dir, fmt.Sprintf("segment-%06d.tsv", n))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("extsort: create segment %s: %w", path, err)
	}
	w := bufio.NewWriterSize(f, 1<<20)
	for _, p := range pairs {
		if _, err := fmt.Fprintf(w, "%s\t%d\n", p.curie, p.pmid); err != nil {
			f.Close()
			return "", fmt.Errorf("extsort: write segment %s: %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return "", fmt.Errorf("extsort: flush segment %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("extsort: close segment %s: %w", path, err)
	}
	return path, nil
}

// segmentReader streams a spilled segment back in sorted order.
type segmentReader struct {
	path string
	f    *os.File
	sc   *bufio.Scanner
	cur  pair
	err  error
}

func openSegment(path string) (*segmentReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("extsort: open segment %s: %w", path, err)
	}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &segmentReader{path: path, f: f, sc: sc}, nil
}

func (r *segmentReader) next() bool {
	if r.err != nil {
		return false
	}
	for r.sc.Scan() {
		line := r.sc.Text()
		if line == "" {
			continue
		}
		tab := strings.IndexByte(line, '\t')
		if tab < 1 {
			r.err = fmt.Errorf("extsort: %w: segment line %q", internalerr.ErrParse, line)
			return false
		}
		pmid, err := strconv.ParseInt(line[tab+1:], 10, 64)
		if err != nil {
			r.err = fmt.Errorf("extsort: %w: segment pmid %q", internalerr.ErrParse, line[tab+1:])
			return false
		}
		r.cur = pair{curie: line[:tab], pmid: pmid}
		return true
	}
	if err := r.sc.Err(); err != nil {
		r.err = fmt.Errorf("extsort: read segment %s: %w", r.path, err)
	}
	return false
}

func (r *segmentReader) close() error { return r.f.Close() }
