// Package indicators enriches a bar series with the technical indicator
// columns consumed by the rule-based scorer.
package indicators

import (
	"fmt"

	"github.com/markcheno/go-talib"

	"github.com/twsight/twsight/internal/domain"
)

// Set holds indicator columns aligned by index with the source series.
// go-talib fills the warm-up region with zeros; ValueAt guards against
// reading it.
type Set struct {
	Series domain.BarSeries

	MA5, MA20, MA60            []float64
	RSI                        []float64
	MACD, MACDSignal, MACDHist []float64
	BBHigh, BBMid, BBLow       []float64
	K, D                       []float64
}

// Warm-up lengths (sessions before the first defined value).
const (
	warmMA5  = 4
	warmMA20 = 19
	warmMA60 = 59
	warmRSI  = 14
	warmMACD = 33 // slow EMA 26 + signal 9 lookback
	warmKD   = 12 // %K fast 9, slow 3, %D 3
)

// Enrich computes the indicator set for a series. Requires a non-empty,
// valid series; the caller decides per factor whether enough history exists.
func Enrich(series domain.BarSeries) (*Set, error) {
	if len(series) == 0 {
		return nil, fmt.Errorf("indicators: empty series")
	}
	if err := series.Validate(); err != nil {
		return nil, fmt.Errorf("indicators: %w", err)
	}

	closes := series.Closes()
	highs := series.Highs()
	lows := series.Lows()

	s := &Set{Series: series}

	if len(closes) >= 5 {
		s.MA5 = talib.Sma(closes, 5)
	}
	if len(closes) >= 20 {
		s.MA20 = talib.Sma(closes, 20)
	}
	if len(closes) >= 60 {
		s.MA60 = talib.Sma(closes, 60)
	}
	if len(closes) >= warmRSI+1 {
		s.RSI = talib.Rsi(closes, 14)
	}
	if len(closes) >= warmMACD+1 {
		s.MACD, s.MACDSignal, s.MACDHist = talib.Macd(closes, 12, 26, 9)
	}
	if len(closes) >= 20 {
		s.BBHigh, s.BBMid, s.BBLow = talib.BBands(closes, 20, 2, 2, talib.SMA)
	}
	if len(closes) >= warmKD+1 {
		s.K, s.D = talib.Stoch(highs, lows, closes, 9, 3, talib.SMA, 3, talib.SMA)
	}

	return s, nil
}

// ValueAt returns vals[idx] when the column exists and idx is past its
// warm-up span.
func ValueAt(vals []float64, idx, warm int) (float64, bool) {
	if vals == nil || idx < warm || idx >= len(vals) {
		return 0, false
	}
	return vals[idx], true
}

// Latest* accessors return the most recent value of a column, with ok=false
// during warm-up or when the column was never computed.

func (s *Set) LatestMA5() (float64, bool)  { return s.latest(s.MA5, warmMA5) }
func (s *Set) LatestMA20() (float64, bool) { return s.latest(s.MA20, warmMA20) }
func (s *Set) LatestMA60() (float64, bool) { return s.latest(s.MA60, warmMA60) }
func (s *Set) LatestRSI() (float64, bool)  { return s.latest(s.RSI, warmRSI) }

func (s *Set) LatestMACD() (float64, float64, bool) {
	m, ok1 := s.latest(s.MACD, warmMACD)
	sig, ok2 := s.latest(s.MACDSignal, warmMACD)
	return m, sig, ok1 && ok2
}

// LatestKD returns today's and the previous session's %K/%D, for crossover
// detection.
func (s *Set) LatestKD() (k, d, prevK, prevD float64, ok bool) {
	idx := len(s.Series) - 1
	k, ok1 := ValueAt(s.K, idx, warmKD)
	d, ok2 := ValueAt(s.D, idx, warmKD)
	prevK, ok3 := ValueAt(s.K, idx-1, warmKD)
	prevD, ok4 := ValueAt(s.D, idx-1, warmKD)
	return k, d, prevK, prevD, ok1 && ok2 && ok3 && ok4
}

// VolumeRatio returns today's volume over the trailing n-session average
// (today excluded).
func (s *Set) VolumeRatio(n int) (float64, bool) {
	if len(s.Series) < n+1 {
		return 0, false
	}
	today := s.Series[len(s.Series)-1].Volume
	var sum float64
	for _, b := range s.Series[len(s.Series)-1-n : len(s.Series)-1] {
		sum += b.Volume
	}
	avg := sum / float64(n)
	if avg == 0 {
		return 0, false
	}
	return today / avg, true
}

// AvgRangePct returns the mean daily high-low range as a fraction of close
// over the trailing n sessions.
func (s *Set) AvgRangePct(n int) (float64, bool) {
	if len(s.Series) < n {
		return 0, false
	}
	var sum float64
	count := 0
	for _, b := range s.Series[len(s.Series)-n:] {
		if b.Close == 0 {
			continue
		}
		sum += (b.High - b.Low) / b.Close
		count++
	}
	if count == 0 {
		return 0, false
	}
	return sum / float64(count), true
}

func (s *Set) latest(vals []float64, warm int) (float64, bool) {
	return ValueAt(vals, len(s.Series)-1, warm)
}
