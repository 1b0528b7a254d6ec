// Package output serializes the pipeline's results: canonical records as
// line-delimited JSON, the failure log as plain text, the biolink class
// summary and unknown-pattern sink as side files.
package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/cognicore/curiemap/pkg/curiemap/merge"
)

// canonicalRecord is the JSONL shape of one merged concept. Publications
// carry the PMID: namespace prefix and are ascending; original_curies are
// ascending.
type canonicalRecord struct {
	CURIE          string   `json:"curie"`
	OriginalCURIEs []string `json:"original_curies"`
	Publications   []string `json:"publications"`
	BiolinkTypes   []string `json:"biolink_types,omitempty"`
}

// CanonicalWriter streams canonical records to a JSONL file.
type CanonicalWriter struct {
	path string
	f    *os.File
	w    *bufio.Writer
	n    int64
}

// NewCanonicalWriter creates (truncating) the JSONL file at path.
func NewCanonicalWriter(path string) (*CanonicalWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("output: create %s: %w", path, err)
	}
	return &CanonicalWriter{path: path, f: f, w: bufio.NewWriterSize(f, 1<<20)}, nil
}

// Write appends one record.
func (cw *CanonicalWriter) Write(rec merge.Record) error {
	pubs := make([]string, len(rec.Publications))
	for i, pmid := range rec.Publications {
		pubs[i] = fmt.Sprintf("PMID:%d", pmid)
	}
	line, err := json.Marshal(canonicalRecord{
		CURIE:          rec.CURIE,
		OriginalCURIEs: rec.OriginalCURIEs,
		Publications:   pubs,
		BiolinkTypes:   rec.BiolinkTypes,
	})
	if err != nil {
		return fmt.Errorf("output: marshal record %s: %w", rec.CURIE, err)
	}
	if _, err := cw.w.Write(line); err != nil {
		return fmt.Errorf("output: write %s: %w", cw.path, err)
	}
	if err := cw.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("output: write %s: %w", cw.path, err)
	}
	cw.n++
	return nil
}

// Count reports records written so far.
func (cw *CanonicalWriter) Count() int64 { return cw.n }

// Close flushes and closes the file.
func (cw *CanonicalWriter) Close() error {
	if err := cw.w.Flush(); err != nil {
		cw.f.Close()
		return fmt.Errorf("output: flush %s: %w", cw.path, err)
	}
	if err := cw.f.Close(); err != nil {
		return fmt.Errorf("output: close %s: %w", cw.path, err)
	}
	return nil
}

// WriteFailures writes the raw CURIEs that never normalized, one per line
// in ascending order. No file is written when there are none.
func WriteFailures(path string, curies []string) error {
	if len(curies) == 0 {
		return nil
	}
	sorted := append([]string(nil), curies...)
	sort.Strings(sorted)
	return writeLines(path, sorted)
}

// WriteUnknownPatterns writes the distinct unresolved identifier patterns
// collected during ingestion. No file is written when there are none.
func WriteUnknownPatterns(path string, patterns []string) error {
	if len(patterns) == 0 {
		return nil
	}
	sorted := append([]string(nil), patterns...)
	sort.Strings(sorted)
	return writeLines(path, sorted)
}

func writeLines(path string, lines []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("output: create %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	for _, line := range lines {
		if _, err := w.WriteString(line + "\n"); err != nil {
			f.Close()
			return fmt.Errorf("output: write %s: %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("output: flush %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("output: close %s: %w", path, err)
	}
	return nil
}

// classSummary is the biolink class analysis file.
type classSummary struct {
	TotalNormalizedCURIEs int                 `json:"total_normalized_curies"`
	CURIEToClasses        map[string][]string `json:"curie_to_classes"`
	ClassDistribution     []classCount        `json:"class_distribution"`
}

type classCount struct {
	Class string `json:"class"`
	Count int64  `json:"count"`
}

// WriteClassSummary writes the per-canonical biolink classes plus their
// frequency distribution, most common first. No file is written when the
// map is empty.
func WriteClassSummary(path string, curieToClasses map[string][]string) error {
	if len(curieToClasses) == 0 {
		return nil
	}
	counts := make(map[string]int64)
	for _, classes := range curieToClasses {
		for _, c := range classes {
			counts[c]++
		}
	}
	dist := make([]classCount, 0, len(counts))
	for c, n := range counts {
		dist = append(dist, classCount{Class: c, Count: n})
	}
	sort.Slice(dist, func(i, j int) bool {
		if dist[i].Count != dist[j].Count {
			return dist[i].Count > dist[j].Count
		}
		return dist[i].Class < dist[j].Class
	})

	data, err := json.MarshalIndent(classSummary{
		TotalNormalizedCURIEs: len(curieToClasses),
		CURIEToClasses:        curieToClasses,
		ClassDistribution:     dist,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("output: marshal class summary: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("output: write %s: %w", path, err)
	}
	return nil
}
