package extsort

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/cognicore/curiemap/pkg/curiemap/adapters"
	"github.com/cognicore/curiemap/pkg/curiemap/store"
)

func writeInput(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeGzInput(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	gz := gzip.NewWriter(f)
	if _, err := gz.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func ingest(t *testing.T, ing *Ingester, paths []string) ([]store.Entry, Stats) {
	t.Helper()
	out := filepath.Join(t.TempDir(), "out.store")
	st, stats, err := ing.Ingest(context.Background(), adapters.Pairs{}, paths, out)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	it, err := st.Iterate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()
	var entries []store.Entry
	for it.Next() {
		entries = append(entries, it.Entry())
	}
	if err := it.Err(); err != nil {
		t.Fatal(err)
	}
	return entries, stats
}

func TestIngestUnionsAcrossOccurrences(t *testing.T) {
	dir := t.TempDir()
	input := writeInput(t, dir, "in.tsv",
		"CHEBI:1\t5\nMESH:2\t1\nCHEBI:1\t3\nCHEBI:1\t5\nMESH:2\t9\n")

	entries, stats := ingest(t, &Ingester{TempDir: dir}, []string{input})
	want := []store.Entry{
		{CURIE: "CHEBI:1", PMIDs: []int64{3, 5}},
		{CURIE: "MESH:2", PMIDs: []int64{1, 9}},
	}
	if !reflect.DeepEqual(entries, want) {
		t.Errorf("entries:\n got %+v\nwant %+v", entries, want)
	}
	if stats.ValidPairs != 5 {
		t.Errorf("valid pairs = %d, want 5", stats.ValidPairs)
	}
	if stats.StoreEntries != 2 {
		t.Errorf("store entries = %d, want 2", stats.StoreEntries)
	}
}

func TestIngestSmallBufferSpills(t *testing.T) {
	dir := t.TempDir()
	input := writeInput(t, dir, "in.tsv",
		"Z:1\t1\nA:1\t2\nM:1\t3\nA:1\t1\nZ:1\t4\nM:1\t3\nB:1\t7\n")

	// Buffer of 2 forces several spill segments per shard.
	entries, _ := ingest(t, &Ingester{BufferSize: 2, TempDir: dir}, []string{input})
	want := []store.Entry{
		{CURIE: "A:1", PMIDs: []int64{1, 2}},
		{CURIE: "B:1", PMIDs: []int64{7}},
		{CURIE: "M:1", PMIDs: []int64{3}},
		{CURIE: "Z:1", PMIDs: []int64{1, 4}},
	}
	if !reflect.DeepEqual(entries, want) {
		t.Errorf("entries:\n got %+v\nwant %+v", entries, want)
	}
}

func TestIngestMergesShards(t *testing.T) {
	dir := t.TempDir()
	shard1 := writeInput(t, dir, "s1.tsv", "D:1\t10\nA:1\t1\n")
	shard2 := writeInput(t, dir, "s2.tsv", "D:1\t20\nC:1\t2\n")

	entries, _ := ingest(t, &Ingester{TempDir: dir}, []string{shard1, shard2})
	want := []store.Entry{
		{CURIE: "A:1", PMIDs: []int64{1}},
		{CURIE: "C:1", PMIDs: []int64{2}},
		{CURIE: "D:1", PMIDs: []int64{10, 20}},
	}
	if !reflect.DeepEqual(entries, want) {
		t.Errorf("entries:\n got %+v\nwant %+v", entries, want)
	}
}

func TestIngestKeysStrictlyAscending(t *testing.T) {
	dir := t.TempDir()
	input := writeInput(t, dir, "in.tsv",
		"B:1\t2\nA:1\t1\nC:1\t3\nB:1\t9\nA:1\t8\n")
	entries, _ := ingest(t, &Ingester{BufferSize: 2, TempDir: dir}, []string{input})
	for i := 1; i < len(entries); i++ {
		if entries[i-1].CURIE >= entries[i].CURIE {
			t.Errorf("keys not strictly ascending: %q then %q", entries[i-1].CURIE, entries[i].CURIE)
		}
	}
}

func TestIngestSkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	input := writeInput(t, dir, "in.tsv",
		"CHEBI:1\t5\ngarbage line\nMESH:2\tnot-a-pmid\nMESH:2\t7\n")

	entries, stats := ingest(t, &Ingester{TempDir: dir}, []string{input})
	want := []store.Entry{
		{CURIE: "CHEBI:1", PMIDs: []int64{5}},
		{CURIE: "MESH:2", PMIDs: []int64{7}},
	}
	if !reflect.DeepEqual(entries, want) {
		t.Errorf("entries:\n got %+v\nwant %+v", entries, want)
	}
	if stats.ParseErrors != 2 {
		t.Errorf("parse errors = %d, want 2", stats.ParseErrors)
	}
}

func TestIngestGzipInput(t *testing.T) {
	dir := t.TempDir()
	input := writeGzInput(t, dir, "in.tsv.gz", "CHEBI:1\t5\nCHEBI:1\t2\n")

	entries, _ := ingest(t, &Ingester{TempDir: dir}, []string{input})
	want := []store.Entry{{CURIE: "CHEBI:1", PMIDs: []int64{2, 5}}}
	if !reflect.DeepEqual(entries, want) {
		t.Errorf("entries:\n got %+v\nwant %+v", entries, want)
	}
}

func TestIngestEmptyInput(t *testing.T) {
	dir := t.TempDir()
	input := writeInput(t, dir, "empty.tsv", "")

	entries, stats := ingest(t, &Ingester{TempDir: dir}, []string{input})
	if len(entries) != 0 {
		t.Errorf("expected empty store, got %+v", entries)
	}
	if stats.StoreEntries != 0 {
		t.Errorf("store entries = %d, want 0", stats.StoreEntries)
	}
}

func TestIngestCancellation(t *testing.T) {
	dir := t.TempDir()
	input := writeInput(t, dir, "in.tsv", "CHEBI:1\t5\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := filepath.Join(dir, "out.store")
	_, _, err := (&Ingester{TempDir: dir}).Ingest(ctx, adapters.Pairs{}, []string{input}, out)
	if err == nil {
		t.Error("expected error from cancelled context")
	}
}

func TestUnionSorted(t *testing.T) {
	tests := []struct {
		a, b, want []int64
	}{
		{[]int64{1, 3}, []int64{2, 3, 4}, []int64{1, 2, 3, 4}},
		{nil, []int64{1}, []int64{1}},
		{[]int64{5}, nil, []int64{5}},
		{[]int64{1, 2}, []int64{1, 2}, []int64{1, 2}},
	}
	for _, tt := range tests {
		if got := unionSorted(tt.a, tt.b); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("unionSorted(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
