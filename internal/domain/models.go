package domain

import (
	"fmt"
	"sort"
	"time"
)

// Bar is one trading session's OHLCV record.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// BarSeries is an ordered-by-time sequence of bars, one per session.
// Invariant: strictly ascending dates, no duplicates. Use Normalize
// after loading from an external source to enforce it.
type BarSeries []Bar

// Normalize sorts the series ascending by date and drops duplicate dates
// (keeping the last occurrence, which is the freshest fetch).
func (s BarSeries) Normalize() BarSeries {
	if len(s) == 0 {
		return s
	}

	sorted := make(BarSeries, len(s))
	copy(sorted, s)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	out := sorted[:0]
	for _, b := range sorted {
		if len(out) > 0 && out[len(out)-1].Date.Equal(b.Date) {
			out[len(out)-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}

// Validate checks the ascending-no-duplicates invariant.
func (s BarSeries) Validate() error {
	for i := 1; i < len(s); i++ {
		if !s[i].Date.After(s[i-1].Date) {
			return fmt.Errorf("bar series not strictly ascending at index %d (%s >= %s)",
				i, s[i-1].Date.Format("2006-01-02"), s[i].Date.Format("2006-01-02"))
		}
	}
	return nil
}

// Closes returns the close column.
func (s BarSeries) Closes() []float64 {
	out := make([]float64, len(s))
	for i, b := range s {
		out[i] = b.Close
	}
	return out
}

// Highs returns the high column.
func (s BarSeries) Highs() []float64 {
	out := make([]float64, len(s))
	for i, b := range s {
		out[i] = b.High
	}
	return out
}

// Lows returns the low column.
func (s BarSeries) Lows() []float64 {
	out := make([]float64, len(s))
	for i, b := range s {
		out[i] = b.Low
	}
	return out
}

// Volumes returns the volume column.
func (s BarSeries) Volumes() []float64 {
	out := make([]float64, len(s))
	for i, b := range s {
		out[i] = b.Volume
	}
	return out
}

// Last returns the most recent bar, if any.
func (s BarSeries) Last() (Bar, bool) {
	if len(s) == 0 {
		return Bar{}, false
	}
	return s[len(s)-1], true
}

// Fundamentals is a snapshot of a ticker's fundamental data.
// Nil pointer fields mean the provider did not report the value;
// scoring treats them as "no data", never as zero.
type Fundamentals struct {
	Ticker        string   `json:"ticker"`
	Name          string   `json:"name"`
	Sector        string   `json:"sector"`
	Industry      string   `json:"industry"`
	MarketCap     *float64 `json:"market_cap,omitempty"`
	TrailingPE    *float64 `json:"trailing_pe,omitempty"`
	DividendYield *float64 `json:"dividend_yield,omitempty"`
	ROE           *float64 `json:"roe,omitempty"`
	Beta          *float64 `json:"beta,omitempty"`
	CurrentPrice  *float64 `json:"current_price,omitempty"`
	PreviousClose *float64 `json:"previous_close,omitempty"`
}

// FlowRecord is one session's institutional net buying, in shares.
// Positive values are net buys.
type FlowRecord struct {
	Date       time.Time `json:"date"`
	ForeignNet float64   `json:"foreign_net"`
	TrustNet   float64   `json:"trust_net"`
	DealerNet  float64   `json:"dealer_net"`
}

// NetFlow sums foreign + trust net buying over the trailing n records.
func NetFlow(records []FlowRecord, n int) (float64, bool) {
	if len(records) == 0 {
		return 0, false
	}
	if n > len(records) {
		n = len(records)
	}
	var sum float64
	for _, r := range records[len(records)-n:] {
		sum += r.ForeignNet + r.TrustNet
	}
	return sum, true
}

// QuarterlyFinancial holds one quarter's gross profit and revenue.
type QuarterlyFinancial struct {
	Quarter     string  `json:"quarter"` // e.g. "2025Q2"
	GrossProfit float64 `json:"gross_profit"`
	Revenue     float64 `json:"revenue"`
}

// GrossMargin returns gross profit / revenue, or false when revenue is zero.
func (q QuarterlyFinancial) GrossMargin() (float64, bool) {
	if q.Revenue == 0 {
		return 0, false
	}
	return q.GrossProfit / q.Revenue, true
}
