// Package features derives leakage-free feature matrices from OHLCV bars.
//
// Every feature at timestamp t depends only on bars at or before t. Rows
// inside an indicator's warm-up period hold an undefined value, never a
// fabricated number; Undefined/IsDefined make that explicit.
package features

import (
	"math"
	"sort"
	"time"
)

// Undefined is the sentinel for "no value" cells (warm-up rows, zero-loss
// RSI, the final row's label). It is NaN so it can never be mistaken for a
// real observation in arithmetic.
func Undefined() float64 { return math.NaN() }

// IsDefined reports whether a cell holds a real observation.
func IsDefined(v float64) bool { return !math.IsNaN(v) }

// Frame is a typed, timestamp-indexed feature table: an ordered column list
// over a column-major store, sorted ascending by date as an invariant.
type Frame struct {
	dates   []time.Time
	columns []string
	data    map[string][]float64
}

// NewFrame creates an empty frame over the given timestamps.
func NewFrame(dates []time.Time) *Frame {
	return &Frame{
		dates: dates,
		data:  make(map[string][]float64),
	}
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.dates)
}

// Empty reports whether the frame has no rows.
func (f *Frame) Empty() bool { return f.Len() == 0 }

// Columns returns the column names in insertion order.
func (f *Frame) Columns() []string {
	out := make([]string, len(f.columns))
	copy(out, f.columns)
	return out
}

// Dates returns the row timestamps.
func (f *Frame) Dates() []time.Time { return f.dates }

// AddColumn appends a named column. The slice length must match Len.
func (f *Frame) AddColumn(name string, values []float64) {
	if len(values) != len(f.dates) {
		panic("features: column length mismatch")
	}
	if _, exists := f.data[name]; !exists {
		f.columns = append(f.columns, name)
	}
	f.data[name] = values
}

// Column returns the named column, or nil if absent.
func (f *Frame) Column(name string) []float64 {
	return f.data[name]
}

// HasColumn reports whether the named column exists.
func (f *Frame) HasColumn(name string) bool {
	_, ok := f.data[name]
	return ok
}

// Row assembles one row vector in the requested column order.
// A column absent from the frame contributes 0 (the inference alignment
// rule for the model payload contract); undefined cells contribute 0 too.
func (f *Frame) Row(i int, cols []string) []float64 {
	out := make([]float64, len(cols))
	for j, c := range cols {
		col, ok := f.data[c]
		if !ok || !IsDefined(col[i]) {
			out[j] = 0
			continue
		}
		out[j] = col[i]
	}
	return out
}

// Matrix assembles the full row-major matrix in the requested column order,
// with the same absent/undefined -> 0 alignment rule as Row.
func (f *Frame) Matrix(cols []string) [][]float64 {
	out := make([][]float64, f.Len())
	for i := range out {
		out[i] = f.Row(i, cols)
	}
	return out
}

// DropUndefined returns a copy keeping only rows where every listed column
// is defined. Training uses this to exclude warm-up rows and the unset
// final label rather than treating them as zero.
func (f *Frame) DropUndefined(cols []string) *Frame {
	var keep []int
	for i := 0; i < f.Len(); i++ {
		ok := true
		for _, c := range cols {
			col, exists := f.data[c]
			if !exists || !IsDefined(col[i]) {
				ok = false
				break
			}
		}
		if ok {
			keep = append(keep, i)
		}
	}
	return f.selectRows(keep)
}

// SortByDate returns a copy sorted ascending by timestamp (stable).
func (f *Frame) SortByDate() *Frame {
	idx := make([]int, f.Len())
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return f.dates[idx[a]].Before(f.dates[idx[b]])
	})
	return f.selectRows(idx)
}

func (f *Frame) selectRows(idx []int) *Frame {
	out := &Frame{
		dates: make([]time.Time, len(idx)),
		data:  make(map[string][]float64, len(f.columns)),
	}
	for i, src := range idx {
		out.dates[i] = f.dates[src]
	}
	for _, c := range f.columns {
		col := f.data[c]
		vals := make([]float64, len(idx))
		for i, src := range idx {
			vals[i] = col[src]
		}
		out.AddColumn(c, vals)
	}
	return out
}

// Concat appends frames row-wise. All frames must share the first frame's
// column set; the result is re-sorted by timestamp so that pooling across
// tickers cannot leak a ticker-grouping order into a chronological split.
func Concat(frames ...*Frame) *Frame {
	var nonEmpty []*Frame
	for _, fr := range frames {
		if fr != nil && !fr.Empty() {
			nonEmpty = append(nonEmpty, fr)
		}
	}
	if len(nonEmpty) == 0 {
		return NewFrame(nil)
	}

	cols := nonEmpty[0].Columns()
	out := &Frame{data: make(map[string][]float64, len(cols))}
	for _, c := range cols {
		out.columns = append(out.columns, c)
		out.data[c] = []float64{}
	}

	for _, fr := range nonEmpty {
		out.dates = append(out.dates, fr.dates...)
		for _, c := range cols {
			col := fr.data[c]
			if col == nil {
				pad := make([]float64, fr.Len())
				for i := range pad {
					pad[i] = Undefined()
				}
				col = pad
			}
			out.data[c] = append(out.data[c], col...)
		}
	}

	return out.SortByDate()
}
