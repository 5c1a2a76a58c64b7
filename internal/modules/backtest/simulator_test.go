package backtest

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twsight/twsight/internal/domain"
)

func TestReplaySingleTrade(t *testing.T) {
	closes := []float64{10, 11, 12, 13}
	probs := []float64{0.7, 0.7, 0.3, 0.3}

	trades, equity := replay(closes, probs, DefaultConfig())

	// Buy at close[0]=10; the sell signal at t=2 executes at close[3]=13.
	require.Len(t, trades, 1)
	assert.Equal(t, 10.0, trades[0].EntryPrice)
	assert.Equal(t, 13.0, trades[0].ExitPrice)
	assert.InDelta(t, 0.30, trades[0].Return, 1e-9)

	// Equity compounds only while holding: sessions 1 and 2.
	require.Len(t, equity, 3)
	assert.InDelta(t, 1.0, equity[0], 1e-9)
	assert.InDelta(t, 12.0/11.0, equity[1], 1e-9)
	assert.InDelta(t, 13.0/11.0, equity[2], 1e-9)
}

func TestReplayThresholdsAreStrict(t *testing.T) {
	cfg := DefaultConfig()

	// P(up) exactly at the buy threshold never opens a position.
	trades, _ := replay([]float64{10, 11, 12}, []float64{0.60, 0.60, 0.60}, cfg)
	assert.Empty(t, trades)

	// P(up) exactly at the sell threshold never closes one; the open
	// position force-closes at series end instead.
	trades, _ = replay([]float64{10, 11, 12}, []float64{0.70, 0.40, 0.40}, cfg)
	require.Len(t, trades, 1)
	assert.Equal(t, 12.0, trades[0].ExitPrice)
}

func TestReplayForceCloseAtEnd(t *testing.T) {
	trades, _ := replay([]float64{10, 11, 9}, []float64{0.9, 0.5, 0.5}, DefaultConfig())
	require.Len(t, trades, 1)
	assert.Equal(t, 10.0, trades[0].EntryPrice)
	assert.Equal(t, 9.0, trades[0].ExitPrice)
	assert.InDelta(t, -0.10, trades[0].Return, 1e-9)
}

func TestReplayMultipleTradesNotCompounded(t *testing.T) {
	closes := []float64{10, 12, 10, 10, 11, 11}
	probs := []float64{0.7, 0.3, 0.5, 0.7, 0.3, 0.5}

	trades, _ := replay(closes, probs, DefaultConfig())
	require.Len(t, trades, 2)

	// Trade 1: entry 10, exit close[2]=10. Trade 2: entry 10, exit close[5]=11.
	assert.InDelta(t, 0.0, trades[0].Return, 1e-9)
	assert.InDelta(t, 0.10, trades[1].Return, 1e-9)

	total := 0.0
	for _, tr := range trades {
		total += tr.Return
	}
	assert.InDelta(t, 0.10, total, 1e-9)
}

func TestRunFailureConditions(t *testing.T) {
	sim := NewSimulator(zerolog.Nop())

	short := make(domain.BarSeries, 10)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range short {
		short[i] = domain.Bar{Date: start.AddDate(0, 0, i), Close: 100}
	}

	stats := sim.Run(short, nil, DefaultConfig())
	assert.Equal(t, "insufficient data", stats.Error)
	assert.Zero(t, stats.TotalReturnPct)
	assert.Zero(t, stats.TradeCount)

	long := make(domain.BarSeries, MinBars)
	for i := range long {
		long[i] = domain.Bar{Date: start.AddDate(0, 0, i), Close: 100 + float64(i)}
	}
	stats = sim.Run(long, nil, DefaultConfig())
	assert.Equal(t, "no model provided", stats.Error)
}
