package extsort

import (
	"container/heap"

	"github.com/cognicore/curiemap/pkg/curiemap/store"
)

// pairHeap is the k-way merge frontier over spill segments, ordered by
// (curie, pmid) so equal keys stream out adjacent.
type pairHeap []*segmentReader

func (h pairHeap) Len() int { return len(h) }
func (h pairHeap) Less(i, j int) bool {
	if h[i].cur.curie != h[j].cur.curie {
		return h[i].cur.curie < h[j].cur.curie
	}
	return h[i].cur.pmid < h[j].cur.pmid
}
func (h pairHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *pairHeap) Push(x any)        { *h = append(*h, x.(*segmentReader)) }
func (h *pairHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// mergeSegments k-way merges sorted pair segments, coalescing consecutive
// equal CURIEs into single entries with deduplicated ascending PMID sets,
// and appends each entry to out.
func mergeSegments(paths []string, out store.Writer) (int64, error) {
	h := make(pairHeap, 0, len(paths))
	readers := make([]*segmentReader, 0, len(paths))
	defer func() {
		for _, r := range readers {
			r.close()
		}
	}()
	for _, p := range paths {
		r, err := openSegment(p)
		if err != nil {
			return 0, err
		}
		readers = append(readers, r)
		if r.next() {
			h = append(h, r)
		} else if r.err != nil {
			return 0, r.err
		}
	}
	heap.Init(&h)

	var entries int64
	var cur store.Entry
	var have bool
	for h.Len() > 0 {
		r := h[0]
		p := r.cur
		if r.next() {
			heap.Fix(&h, 0)
		} else {
			if r.err != nil {
				return entries, r.err
			}
			heap.Pop(&h)
		}

		switch {
		case !have:
			cur = store.Entry{CURIE: p.curie, PMIDs: []int64{p.pmid}}
			have = true
		case p.curie == cur.CURIE:
			// Stream is sorted by pmid within a key; skip duplicates.
			if p.pmid != cur.PMIDs[len(cur.PMIDs)-1] {
				cur.PMIDs = append(cur.PMIDs, p.pmid)
			}
		default:
			if err := out.Append(cur); err != nil {
				return entries, err
			}
			entries++
			cur = store.Entry{CURIE: p.curie, PMIDs: []int64{p.pmid}}
		}
	}
	if have {
		if err := out.Append(cur); err != nil {
			return entries, err
		}
		entries++
	}
	return entries, nil
}

// entryHeap is the fan-in frontier over per-shard sorted stores.
type entrySource struct {
	it  store.Iterator
	cur store.Entry
}

type entryHeap []*entrySource

func (h entryHeap) Len() int           { return len(h) }
func (h entryHeap) Less(i, j int) bool { return h[i].cur.CURIE < h[j].cur.CURIE }
func (h entryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x any)        { *h = append(*h, x.(*entrySource)) }
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// mergeStores fans in per-shard sorted stores into out, unioning the
// publication sets of keys that appear in more than one shard.
func mergeStores(its []store.Iterator, out store.Writer) (int64, error) {
	h := make(entryHeap, 0, len(its))
	for _, it := range its {
		if it.Next() {
			h = append(h, &entrySource{it: it, cur: it.Entry()})
		} else if err := it.Err(); err != nil {
			return 0, err
		}
	}
	heap.Init(&h)

	var entries int64
	var cur store.Entry
	var have bool
	for h.Len() > 0 {
		src := h[0]
		e := src.cur
		if src.it.Next() {
			src.cur = src.it.Entry()
			heap.Fix(&h, 0)
		} else {
			if err := src.it.Err(); err != nil {
				return entries, err
			}
			heap.Pop(&h)
		}

		switch {
		case !have:
			cur = e
			have = true
		case e.CURIE == cur.CURIE:
			cur.PMIDs = unionSorted(cur.PMIDs, e.PMIDs)
		default:
			if err := out.Append(cur); err != nil {
				return entries, err
			}
			entries++
			cur = e
		}
	}
	if have {
		if err := out.Append(cur); err != nil {
			return entries, err
		}
		entries++
	}
	return entries, nil
}

// unionSorted merges two ascending deduplicated slices into one.
func unionSorted(a, b []int64) []int64 {
	out := make([]int64, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			out = append(out, a[i])
			i++
		case a[i] > b[j]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}
