// store-build ingests raw source files into the sorted associative store
// without normalizing: the external sort-merge step on its own. Useful for
// staging large dumps before repeated cleaning runs, and for producing the
// NGD-compatible SQLite artifact.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cognicore/curiemap/pkg/curiemap/adapters"
	"github.com/cognicore/curiemap/pkg/curiemap/extsort"
	"github.com/cognicore/curiemap/pkg/curiemap/output"
	"github.com/cognicore/curiemap/pkg/curiemap/progress"
	"github.com/cognicore/curiemap/pkg/curiemap/store"
	"github.com/cognicore/curiemap/pkg/curiemap/store/sqlitestore"
)

func main() {
	var (
		format     = flag.String("format", "", "Source format: pubtator, omnicorp, or pairs (required)")
		out        = flag.String("out", "", "Output store path (required)")
		sqlitePath = flag.String("sqlite", "", "Also export an NGD-schema SQLite database here")
		unknowns   = flag.String("unknowns", "", "Write unknown identifier patterns here")
		bufferSize = flag.Int("buffer", extsort.DefaultBufferSize, "In-memory sort buffer, in pairs")
		tempDir    = flag.String("tmp", "", "Spill directory root (default: system temp)")
	)
	flag.Parse()

	if *format == "" {
		log.Fatal("--format required")
	}
	if *out == "" {
		log.Fatal("--out required")
	}
	if flag.NArg() == 0 {
		log.Fatal("at least one input file required")
	}

	adapter, err := adapters.ForFormat(adapters.Format(*format))
	if err != nil {
		log.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ing := &extsort.Ingester{
		BufferSize: *bufferSize,
		TempDir:    *tempDir,
		Logger:     logger,
		Tracker:    progress.NewTracker(),
	}
	st, stats, err := ing.Ingest(ctx, adapter, flag.Args(), *out)
	if err != nil {
		log.Fatal("Ingestion failed: ", err)
	}
	defer st.Close()

	if *unknowns != "" {
		if err := output.WriteUnknownPatterns(*unknowns, stats.UnknownPatterns); err != nil {
			log.Fatal(err)
		}
	}

	if *sqlitePath != "" {
		if err := exportSQLite(ctx, st, *sqlitePath); err != nil {
			log.Fatal("SQLite export failed: ", err)
		}
		log.Printf("SQLite store: %s", *sqlitePath)
	}

	log.Printf("Store built: %s (%d entries from %d pairs, %d parse errors)",
		*out, stats.StoreEntries, stats.ValidPairs, stats.ParseErrors)
}

func exportSQLite(ctx context.Context, st store.Store, path string) error {
	w, err := sqlitestore.NewWriter(ctx, path)
	if err != nil {
		return err
	}
	it, err := st.Iterate(ctx)
	if err != nil {
		w.Close()
		return err
	}
	defer it.Close()
	for it.Next() {
		if err := w.Append(it.Entry()); err != nil {
			w.Close()
			return err
		}
	}
	if err := it.Err(); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
