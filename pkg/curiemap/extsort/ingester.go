// Package extsort builds the sorted associative store from raw source
// files using bounded memory: per-shard chunked sorts spill to disk, a
// k-way merge coalesces each shard, and a final fan-in merge unions the
// shards into one key-sorted store.
package extsort

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/sync/errgroup"

	"github.com/cognicore/curiemap/pkg/curiemap/adapters"
	"github.com/cognicore/curiemap/pkg/curiemap/progress"
	"github.com/cognicore/curiemap/pkg/curiemap/store"
	"github.com/cognicore/curiemap/pkg/curiemap/store/filestore"
)

// DefaultBufferSize is the number of pairs sorted in memory before a spill.
const DefaultBufferSize = 1_000_000

// unknownExampleLimit caps per-pattern warning noise in the log.
const unknownExampleLimit = 10

// Stats summarizes one ingestion run.
type Stats struct {
	FilesProcessed  int
	LinesProcessed  int64
	ValidPairs      int64
	ParseErrors     int64
	InvalidConcepts int64
	StoreEntries    int64
	// Patterns counts CURIE construction patterns, e.g. "Species->NCBITaxon".
	Patterns map[string]int64
	// UnknownPatterns are the distinct unresolved identifiers, sorted.
	UnknownPatterns []string

	unknownSet map[string]struct{}
}

func (s *Stats) merge(o shardStats) {
	s.LinesProcessed += o.lines
	s.ValidPairs += o.pairs
	s.ParseErrors += o.parseErrors
	s.InvalidConcepts += o.invalid
	for k, v := range o.patterns {
		s.Patterns[k] += v
	}
	for p := range o.unknown {
		s.unknownSet[p] = struct{}{}
	}
}

type shardStats struct {
	lines       int64
	pairs       int64
	parseErrors int64
	invalid     int64
	patterns    map[string]int64
	unknown     map[string]struct{}
}

// Ingester streams raw files through a source adapter into a sorted store.
type Ingester struct {
	// BufferSize is the in-memory sort buffer, in pairs.
	BufferSize int
	// TempDir roots the run's spill directory. Defaults to os.TempDir().
	TempDir string
	// ShardConcurrency bounds parallel per-shard sorts. Defaults to GOMAXPROCS.
	ShardConcurrency int
	Logger           *slog.Logger
	Tracker          *progress.Tracker
}

func (ing *Ingester) logger() *slog.Logger {
	l := ing.Logger
	if l == nil {
		l = slog.Default()
	}
	return l.With("component", "extsort")
}

func (ing *Ingester) bufferSize() int {
	if ing.BufferSize > 0 {
		return ing.BufferSize
	}
	return DefaultBufferSize
}

// Ingest builds the sorted store at outPath from the given raw files. Each
// path is processed as an independent shard; shards run in parallel and the
// final merge consumes their sorted outputs lazily. Malformed lines are
// counted and skipped; any write fault aborts the run.
func (ing *Ingester) Ingest(ctx context.Context, adapter adapters.Adapter, paths []string, outPath string) (*filestore.Store, Stats, error) {
	log := ing.logger()
	stats := Stats{
		FilesProcessed: len(paths),
		Patterns:       make(map[string]int64),
		unknownSet:     make(map[string]struct{}),
	}
	if ing.Tracker != nil {
		ing.Tracker.SetPhase(progress.PhaseIngest)
	}

	runDir, err := ing.makeRunDir()
	if err != nil {
		return nil, stats, err
	}
	defer os.RemoveAll(runDir)

	log.Info("ingestion started", "adapter", adapter.Name(), "files", len(paths), "spill_dir", runDir)

	shardFiles := make([]string, len(paths))
	shardResults := make([]shardStats, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ing.shardConcurrency())
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			shardDir := filepath.Join(runDir, fmt.Sprintf("shard-%04d", i))
			if err := os.MkdirAll(shardDir, 0o755); err != nil {
				return fmt.Errorf("extsort: create shard dir %s: %w", shardDir, err)
			}
			out, st, err := ing.processShard(gctx, adapter, path, shardDir)
			if err != nil {
				return err
			}
			shardFiles[i] = out
			shardResults[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, stats, err
	}
	for _, st := range shardResults {
		stats.merge(st)
	}

	// Final fan-in across shard outputs. Shards with no valid pairs have
	// no output file and are skipped.
	var its []store.Iterator
	var shards []*filestore.Store
	defer func() {
		for _, it := range its {
			it.Close()
		}
		for _, s := range shards {
			s.Close()
		}
	}()
	for _, sf := range shardFiles {
		if sf == "" {
			continue
		}
		shard, err := filestore.Open(sf)
		if err != nil {
			return nil, stats, err
		}
		shards = append(shards, shard)
		it, err := shard.Iterate(ctx)
		if err != nil {
			return nil, stats, err
		}
		its = append(its, it)
	}

	w, err := filestore.NewWriter(outPath)
	if err != nil {
		return nil, stats, err
	}
	entries, err := mergeStores(its, w)
	if err != nil {
		w.Close()
		return nil, stats, err
	}
	final, err := w.Finish()
	if err != nil {
		return nil, stats, err
	}
	stats.StoreEntries = entries
	stats.finalize()
	if ing.Tracker != nil {
		ing.Tracker.AddStoreEntries(entries)
	}

	log.Info("ingestion complete",
		"lines", stats.LinesProcessed,
		"valid_pairs", stats.ValidPairs,
		"parse_errors", stats.ParseErrors,
		"invalid_concepts", stats.InvalidConcepts,
		"store_entries", entries)
	return final, stats, nil
}

func (ing *Ingester) shardConcurrency() int {
	if ing.ShardConcurrency > 0 {
		return ing.ShardConcurrency
	}
	return runtime.GOMAXPROCS(0)
}

func (ing *Ingester) makeRunDir() (string, error) {
	base := ing.TempDir
	if base == "" {
		base = os.TempDir()
	}
	name := "curiemap-run"
	if ing.Tracker != nil {
		name = "curiemap-" + ing.Tracker.RunID()
	}
	dir := filepath.Join(base, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("extsort: create spill dir %s: %w", dir, err)
	}
	return dir, nil
}

// processShard sort-merges one raw file into a sorted entry file. Returns
// "" when the shard yielded no valid pairs.
func (ing *Ingester) processShard(ctx context.Context, adapter adapters.Adapter, path, shardDir string) (string, shardStats, error) {
	log := ing.logger().With("shard", filepath.Base(path))
	st := shardStats{
		patterns: make(map[string]int64),
		unknown:  make(map[string]struct{}),
	}

	f, err := os.Open(path)
	if err != nil {
		return "", st, fmt.Errorf("extsort: open input %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return "", st, fmt.Errorf("extsort: gzip %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	var segments []string
	buf := make([]pair, 0, ing.bufferSize())
	spill := func() error {
		if len(buf) == 0 {
			return nil
		}
		seg, err := spillSegment(shardDir, len(segments), buf)
		if err != nil {
			return err
		}
		segments = append(segments, seg)
		buf = buf[:0]
		return nil
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		st.lines++
		if st.lines%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return "", st, err
			}
		}
		if ing.Tracker != nil && st.lines%100000 == 0 {
			ing.Tracker.AddLines(100000)
		}
		line := strings.TrimRight(sc.Text(), "\r\n")
		if line == "" {
			continue
		}
		pairs, dropped, err := adapter.ParseLine(line)
		st.invalid += int64(dropped)
		if err != nil {
			st.parseErrors++
			continue
		}
		for _, p := range pairs {
			if p.Pattern != "" {
				st.patterns[p.Pattern]++
			}
			if p.Unknown != "" {
				if _, seen := st.unknown[p.Unknown]; !seen && len(st.unknown) < unknownExampleLimit {
					log.Warn("unknown identifier pattern", "pattern", p.Unknown)
				}
				st.unknown[p.Unknown] = struct{}{}
			}
			buf = append(buf, pair{curie: p.CURIE, pmid: p.PMID})
			st.pairs++
			if len(buf) >= ing.bufferSize() {
				if err := spill(); err != nil {
					return "", st, err
				}
			}
		}
	}
	if err := sc.Err(); err != nil {
		return "", st, fmt.Errorf("extsort: read input %s: %w", path, err)
	}
	if err := spill(); err != nil {
		return "", st, err
	}
	if ing.Tracker != nil {
		ing.Tracker.AddLines(st.lines % 100000)
		ing.Tracker.AddPairs(st.pairs)
		ing.Tracker.AddParseErrors(st.parseErrors)
		ing.Tracker.AddDropped(st.invalid)
	}
	if len(segments) == 0 {
		return "", st, nil
	}

	out := filepath.Join(shardDir, "shard.entries")
	w, err := filestore.NewWriter(out)
	if err != nil {
		return "", st, err
	}
	if _, err := mergeSegments(segments, w); err != nil {
		w.Close()
		return "", st, err
	}
	if err := w.Close(); err != nil {
		return "", st, err
	}
	for _, seg := range segments {
		os.Remove(seg)
	}
	log.Info("shard sorted", "lines", st.lines, "pairs", st.pairs, "segments", len(segments))
	return out, st, nil
}

func (s *Stats) finalize() {
	s.UnknownPatterns = make([]string, 0, len(s.unknownSet))
	for p := range s.unknownSet {
		s.UnknownPatterns = append(s.UnknownPatterns, p)
	}
	sort.Strings(s.UnknownPatterns)
	s.unknownSet = nil
}
