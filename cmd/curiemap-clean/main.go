// curiemap-clean runs the full cleaning pipeline described by a YAML
// config: ingest raw files into the sorted store, normalize every CURIE
// against the node normalizer, merge collapsed concepts, and write the
// canonical JSONL plus failure and class-summary side files.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cognicore/curiemap/pkg/curiemap"
	"github.com/cognicore/curiemap/pkg/curiemap/config"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to pipeline config YAML (required)")
		verbose    = flag.Bool("v", false, "Debug logging")
		progressT  = flag.Duration("progress", time.Minute, "Progress report interval (0 disables)")
	)
	flag.Parse()

	if *configPath == "" {
		log.Fatal("--config required")
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("Failed to load configuration: ", err)
	}

	pipeline, err := curiemap.New(curiemap.Options{Config: *cfg, Logger: logger})
	if err != nil {
		log.Fatal("Failed to build pipeline: ", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *progressT > 0 {
		ticker := time.NewTicker(*progressT)
		defer ticker.Stop()
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					s := pipeline.Progress()
					logger.Info("progress",
						"run", s.RunID,
						"phase", s.Phase,
						"pairs", s.PairsExtracted,
						"normalized", s.Normalized,
						"records", s.RecordsWritten,
						"elapsed", s.Elapsed.Round(time.Second))
				}
			}
		}()
	}

	report, err := pipeline.Run(ctx)
	if err != nil {
		log.Fatal("Pipeline failed: ", err)
	}

	log.Printf("Done: %d records, %d normalized, %d failed, %d parse errors",
		report.RecordsWritten, report.Normalized, report.NormalizationFailures,
		report.Ingest.ParseErrors)
	log.Printf("Canonical output: %s", report.Outputs.Canonical)
}
