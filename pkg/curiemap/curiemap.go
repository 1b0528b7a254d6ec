// Package curiemap cleans literature-association datasets: raw
// identifier→publication links are external-sorted into a single
// deduplicated store, every identifier is rewritten to its canonical form
// via the node-normalization service, and records that collapse onto the
// same concept are merged into one canonical record.
package curiemap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/time/rate"

	"github.com/cognicore/curiemap/internal/nodenorm"
	"github.com/cognicore/curiemap/pkg/curiemap/adapters"
	"github.com/cognicore/curiemap/pkg/curiemap/config"
	"github.com/cognicore/curiemap/pkg/curiemap/extsort"
	"github.com/cognicore/curiemap/pkg/curiemap/merge"
	"github.com/cognicore/curiemap/pkg/curiemap/normalize"
	"github.com/cognicore/curiemap/pkg/curiemap/output"
	"github.com/cognicore/curiemap/pkg/curiemap/progress"
	"github.com/cognicore/curiemap/pkg/curiemap/store"
	"github.com/cognicore/curiemap/pkg/curiemap/store/sqlitestore"
)

// Options configures a Pipeline.
type Options struct {
	Config config.Config
	Logger *slog.Logger
	// Normalizer overrides the node-normalizer client; tests inject a
	// fake transport here.
	Normalizer normalize.BatchNormalizer
}

// Pipeline is the cleaning run facade.
type Pipeline struct {
	cfg     config.Config
	log     *slog.Logger
	client  normalize.BatchNormalizer
	tracker *progress.Tracker
}

// OutputPaths lists the files a run produced.
type OutputPaths struct {
	Canonical       string
	Failures        string
	ClassSummary    string
	UnknownPatterns string
	Store           string
	SQLiteStore     string
}

// Report summarizes a completed run.
type Report struct {
	Ingest                extsort.Stats
	Normalized            int
	NormalizationFailures int
	RecordsWritten        int64
	FailuresRouted        int64
	Outputs               OutputPaths
}

// New validates the configuration and assembles a pipeline.
func New(opts Options) (*Pipeline, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	p := &Pipeline{
		cfg:     opts.Config,
		log:     log,
		client:  opts.Normalizer,
		tracker: progress.NewTracker(),
	}
	if p.client == nil {
		p.client = p.buildClient()
	}
	return p, nil
}

func (p *Pipeline) buildClient() *nodenorm.Client {
	n := p.cfg.Norm
	c := nodenorm.New(n.BaseURL)
	c.Conflate = n.ConflateEnabled()
	c.DrugChemicalConflate = n.DrugChemicalConflateEnabled()
	c.Logger = p.log
	if n.MaxRetries > 0 {
		c.MaxRetries = n.MaxRetries
	}
	if n.BaseDelaySeconds > 0 {
		c.BaseDelay = n.BaseDelay()
	}
	if n.MaxDelaySeconds > 0 {
		c.MaxDelay = n.MaxDelay()
	}
	if n.RequestTimeoutSeconds > 0 {
		c.RequestTimeout = n.RequestTimeout()
	}
	if n.RequestsPerSecond > 0 {
		c.Limiter = rate.NewLimiter(rate.Limit(n.RequestsPerSecond), 1)
	}
	return c
}

// Progress returns a point-in-time snapshot of the run's counters; safe
// to call concurrently with Run.
func (p *Pipeline) Progress() progress.Snapshot { return p.tracker.Snapshot() }

// Run executes the full pipeline: ingest, Pass 1, Pass 2, outputs. The
// context is checked at every shard, batch, and chunk boundary; a
// cancelled run leaves no trusted intermediates and restarts from
// ingestion.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	var rep Report
	cfg := p.cfg

	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		return rep, fmt.Errorf("curiemap: create output dir %s: %w", cfg.Output.Dir, err)
	}
	rep.Outputs = OutputPaths{
		Canonical:       p.outPath("cleaned.jsonl"),
		Failures:        p.outPath("failed_normalizations.txt"),
		ClassSummary:    p.outPath("biolink_classes.json"),
		UnknownPatterns: p.outPath("unknown_patterns.txt"),
		Store:           cfg.Store.Path,
		SQLiteStore:     cfg.Store.SQLitePath,
	}

	adapter, err := adapters.ForFormat(cfg.Source.Format)
	if err != nil {
		return rep, err
	}

	// Ingest: external sort-merge into the sorted store.
	ing := &extsort.Ingester{
		BufferSize:       cfg.Ingest.BufferSize,
		TempDir:          cfg.Ingest.TempDir,
		ShardConcurrency: cfg.Ingest.ShardConcurrency,
		Logger:           p.log,
		Tracker:          p.tracker,
	}
	fileStore, ingStats, err := ing.Ingest(ctx, adapter, cfg.Source.Inputs, cfg.Store.Path)
	if err != nil {
		return rep, err
	}
	defer fileStore.Close()
	rep.Ingest = ingStats

	if err := output.WriteUnknownPatterns(rep.Outputs.UnknownPatterns, ingStats.UnknownPatterns); err != nil {
		return rep, err
	}

	// Optional NGD-schema SQLite artifact; the passes read from it when
	// the sqlite backend is selected.
	var st store.Store = fileStore
	if cfg.Store.SQLitePath != "" {
		sqlStore, err := p.exportSQLite(ctx, fileStore)
		if err != nil {
			return rep, err
		}
		defer sqlStore.Close()
		if cfg.Store.Backend == "sqlite" {
			st = sqlStore
		}
	}

	// Pass 1: complete raw→canonical mapping.
	mapping, err := normalize.BuildMapping(ctx, st, p.client, normalize.Options{
		BatchSize:   cfg.Norm.BatchSize,
		Concurrency: cfg.Norm.Concurrency,
		Logger:      p.log,
		Tracker:     p.tracker,
	})
	if err != nil {
		return rep, err
	}
	rep.Normalized = mapping.Successes()
	rep.NormalizationFailures = mapping.Failures()

	// Pass 2: streaming merge into canonical records.
	cw, err := output.NewCanonicalWriter(rep.Outputs.Canonical)
	if err != nil {
		return rep, err
	}
	var failed []string
	merger := &merge.Merger{
		ChunkSize: cfg.Merge.ChunkSize,
		Logger:    p.log,
		Tracker:   p.tracker,
	}
	mergeStats, err := merger.Run(ctx, st, mapping,
		cw.Write,
		func(curie string, _ []int64) error {
			failed = append(failed, curie)
			return nil
		})
	if err != nil {
		cw.Close()
		return rep, err
	}
	if err := cw.Close(); err != nil {
		return rep, err
	}
	rep.RecordsWritten = mergeStats.RecordsEmitted
	rep.FailuresRouted = mergeStats.FailuresRouted

	if err := output.WriteFailures(rep.Outputs.Failures, failed); err != nil {
		return rep, err
	}
	if err := output.WriteClassSummary(rep.Outputs.ClassSummary, mapping.TypesByCanonical()); err != nil {
		return rep, err
	}

	p.log.Info("run complete",
		"dataset", cfg.Dataset,
		"records", rep.RecordsWritten,
		"normalized", rep.Normalized,
		"failed", rep.NormalizationFailures,
		"parse_errors", rep.Ingest.ParseErrors)
	return rep, nil
}

func (p *Pipeline) exportSQLite(ctx context.Context, src store.Store) (*sqlitestore.Store, error) {
	w, err := sqlitestore.NewWriter(ctx, p.cfg.Store.SQLitePath)
	if err != nil {
		return nil, err
	}
	it, err := src.Iterate(ctx)
	if err != nil {
		w.Close()
		return nil, err
	}
	defer it.Close()
	for it.Next() {
		if err := w.Append(it.Entry()); err != nil {
			w.Close()
			return nil, err
		}
	}
	if err := it.Err(); err != nil {
		w.Close()
		return nil, err
	}
	return w.Finish(ctx)
}

func (p *Pipeline) outPath(suffix string) string {
	return filepath.Join(p.cfg.Output.Dir, p.cfg.Dataset+"_"+suffix)
}
