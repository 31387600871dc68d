package memory

import (
	"container/heap"
	"fmt"
	"io"
)

// Report writes memory records as CSV. MinBytes drops rows under a
// threshold; Largest keeps only the N biggest keys in a bounded heap
// and flushes them, largest first, at end of parse.
type Report struct {
	out      io.Writer
	minBytes int64
	largest  int
	heap     recordHeap
	wroteHdr bool
}

// NewReport builds a CSV report. minBytes <= 0 disables the size
// filter; largest <= 0 disables top-N mode.
func NewReport(out io.Writer, minBytes int64, largest int) *Report {
	return &Report{out: out, minBytes: minBytes, largest: largest}
}

func (r *Report) header() error {
	if r.wroteHdr {
		return nil
	}
	r.wroteHdr = true
	_, err := io.WriteString(r.out, "database,type,key,size_in_bytes,encoding,num_elements,len_largest_element,expiry\n")
	return err
}

// NextRecord implements RecordSink.
func (r *Report) NextRecord(rec Record) error {
	if err := r.header(); err != nil {
		return err
	}
	if !rec.HasKey {
		return nil // dict records are aggregate-only
	}
	if r.largest > 0 {
		heap.Push(&r.heap, rec)
		if r.heap.Len() > r.largest {
			heap.Pop(&r.heap) // drop the current minimum
		}
		return nil
	}
	if r.minBytes > 0 && rec.Bytes < r.minBytes {
		return nil
	}
	return r.writeRow(rec)
}

// EndRDB flushes the top-N heap, largest first.
func (r *Report) EndRDB() error {
	if r.largest <= 0 {
		return nil
	}
	rows := make([]Record, 0, r.heap.Len())
	for r.heap.Len() > 0 {
		rows = append(rows, heap.Pop(&r.heap).(Record))
	}
	for i := len(rows) - 1; i >= 0; i-- {
		if err := r.writeRow(rows[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *Report) writeRow(rec Record) error {
	expiry := ""
	if rec.Expiry != nil {
		expiry = rec.Expiry.Format("2006-01-02T15:04:05.999999")
	}
	_, err := fmt.Fprintf(r.out, "%d,%s,%s,%d,%s,%d,%d,%s\n",
		rec.Database, rec.Type, rec.Key, rec.Bytes, rec.Encoding,
		rec.Size, rec.LenLargestElement, expiry)
	return err
}

// recordHeap is a min-heap by byte count, so the smallest of the kept
// records is always the one evicted.
type recordHeap []Record

func (h recordHeap) Len() int            { return len(h) }
func (h recordHeap) Less(i, j int) bool  { return h[i].Bytes < h[j].Bytes }
func (h recordHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *recordHeap) Push(x interface{}) { *h = append(*h, x.(Record)) }
func (h *recordHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
