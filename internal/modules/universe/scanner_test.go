package universe

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twsight/twsight/internal/modules/scoring"
)

func fixedScores(scores map[string]int, signals map[string]scoring.Signal) ScoreFunc {
	return func(ticker string) (ScanItem, error) {
		score, ok := scores[ticker]
		if !ok {
			return ScanItem{}, fmt.Errorf("no data for %s", ticker)
		}
		signal := scoring.SignalWait
		if s, ok := signals[ticker]; ok {
			signal = s
		}
		return ScanItem{Result: scoring.Result{
			Ticker: ticker,
			Score:  score,
			Signal: signal,
		}}, nil
	}
}

func TestScanOneFailingTickerIsExcluded(t *testing.T) {
	scanner := NewScanner(DefaultScannerConfig(), zerolog.Nop())

	scores := map[string]int{"2330.TW": 5, "2317.TW": 3}
	signals := map[string]scoring.Signal{
		"2330.TW": scoring.SignalStrongBuy,
		"2317.TW": scoring.SignalBuy,
	}

	report := scanner.Scan([]string{"2330.TW", "9999.TW", "2317.TW"}, ModeShort,
		fixedScores(scores, signals))

	assert.Equal(t, 3, report.Scanned)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Results, 2)
}

func TestScanDeterministicOrdering(t *testing.T) {
	scanner := NewScanner(DefaultScannerConfig(), zerolog.Nop())

	scores := map[string]int{
		"2330.TW": 5,
		"2317.TW": 5, // tie broken by ticker ascending
		"2454.TW": 2,
		"2603.TW": -2,
	}
	signals := map[string]scoring.Signal{
		"2330.TW": scoring.SignalStrongBuy,
		"2317.TW": scoring.SignalStrongBuy,
		"2454.TW": scoring.SignalBuy,
		"2603.TW": scoring.SignalSell,
	}
	tickers := []string{"2603.TW", "2454.TW", "2330.TW", "2317.TW"}

	for i := 0; i < 5; i++ {
		report := scanner.Scan(tickers, ModeShort, fixedScores(scores, signals))
		require.Len(t, report.Results, 4)
		assert.Equal(t, "2317.TW", report.Results[0].Ticker)
		assert.Equal(t, "2330.TW", report.Results[1].Ticker)
		assert.Equal(t, "2454.TW", report.Results[2].Ticker)
		assert.Equal(t, "2603.TW", report.Results[3].Ticker)
	}
}

func TestScanPartition(t *testing.T) {
	cfg := DefaultScannerConfig()
	cfg.MaxPicks = 2
	cfg.MaxWarnings = 2
	scanner := NewScanner(cfg, zerolog.Nop())

	scores := map[string]int{
		"2330.TW": 6,
		"2317.TW": 4,
		"2454.TW": 3, // above the bar but the picks cap is 2
		"2603.TW": 0,
		"2609.TW": -2,
		"2615.TW": -3,
	}
	signals := map[string]scoring.Signal{
		"2330.TW": scoring.SignalStrongBuy,
		"2317.TW": scoring.SignalStrongBuy,
		"2454.TW": scoring.SignalBuy,
		"2603.TW": scoring.SignalWait,
		"2609.TW": scoring.SignalSell,
		"2615.TW": scoring.SignalSell,
	}
	tickers := []string{"2330.TW", "2317.TW", "2454.TW", "2603.TW", "2609.TW", "2615.TW"}

	report := scanner.Scan(tickers, ModeShort, fixedScores(scores, signals))

	require.Len(t, report.TopPicks, 2)
	assert.Equal(t, "2330.TW", report.TopPicks[0].Ticker)
	assert.Equal(t, "2317.TW", report.TopPicks[1].Ticker)

	// Warnings ascend from the worst score, capped.
	require.Len(t, report.Warnings, 2)
	assert.Equal(t, "2615.TW", report.Warnings[0].Ticker)
	assert.Equal(t, "2609.TW", report.Warnings[1].Ticker)
}

func TestScanETFInclusionBar(t *testing.T) {
	scanner := NewScanner(DefaultScannerConfig(), zerolog.Nop())

	// Score 1 is below the stock bar (2) but meets the ETF bar (1).
	score := func(ticker string) (ScanItem, error) {
		return ScanItem{Result: scoring.Result{
			Ticker: ticker,
			IsETF:  ticker == "0050.TW",
			Score:  1,
			Signal: scoring.SignalWait,
		}}, nil
	}

	report := scanner.Scan([]string{"2330.TW", "0050.TW"}, ModeShort, score)
	require.Len(t, report.TopPicks, 1)
	assert.Equal(t, "0050.TW", report.TopPicks[0].Ticker)
}

func TestScanProbabilityMode(t *testing.T) {
	scanner := NewScanner(DefaultScannerConfig(), zerolog.Nop())

	probs := map[string]float64{
		"2330.TW": 0.72,
		"2317.TW": 0.61,
		"2454.TW": 0.55,
		"2603.TW": 0.31,
	}
	score := func(ticker string) (ScanItem, error) {
		p := probs[ticker]
		return ScanItem{
			Result:      scoring.Result{Ticker: ticker},
			Probability: &p,
		}, nil
	}

	report := scanner.Scan([]string{"2603.TW", "2454.TW", "2317.TW", "2330.TW"}, ModeProbability, score)

	require.Len(t, report.TopPicks, 2)
	assert.Equal(t, "2330.TW", report.TopPicks[0].Ticker)
	assert.Equal(t, "2317.TW", report.TopPicks[1].Ticker)

	require.Len(t, report.Warnings, 1)
	assert.Equal(t, "2603.TW", report.Warnings[0].Ticker)
}

func TestScanBoundsWorkerFanout(t *testing.T) {
	cfg := DefaultScannerConfig()
	cfg.Workers = 2
	scanner := NewScanner(cfg, zerolog.Nop())

	var inFlight, peak int64
	score := func(ticker string) (ScanItem, error) {
		cur := atomic.AddInt64(&inFlight, 1)
		for {
			old := atomic.LoadInt64(&peak)
			if cur <= old || atomic.CompareAndSwapInt64(&peak, old, cur) {
				break
			}
		}
		defer atomic.AddInt64(&inFlight, -1)
		return ScanItem{Result: scoring.Result{Ticker: ticker}}, nil
	}

	tickers := make([]string, 20)
	for i := range tickers {
		tickers[i] = fmt.Sprintf("%04d.TW", 1101+i)
	}

	report := scanner.Scan(tickers, ModeShort, score)
	assert.Equal(t, 20, report.Scanned)
	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(2))
}

func TestSectorTickersFallback(t *testing.T) {
	assert.Equal(t, Sectors["semi"], SectorTickers("semi"))
	assert.Equal(t, DefaultUniverse, SectorTickers("unknown"))
	assert.Equal(t, DefaultUniverse, SectorTickers(""))
}

func TestIsETFCode(t *testing.T) {
	assert.True(t, IsETFCode("0050"))
	assert.True(t, IsETFCode("00878"))
	assert.False(t, IsETFCode("2330"))
	assert.False(t, IsETFCode("0"))
}
