package features

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twsight/twsight/internal/domain"
)

func seriesFromCloses(closes []float64) domain.BarSeries {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	series := make(domain.BarSeries, len(closes))
	for i, c := range closes {
		series[i] = domain.Bar{
			Date:   start.AddDate(0, 0, i),
			Open:   c,
			High:   c * 1.01,
			Low:    c * 0.99,
			Close:  c,
			Volume: 1000 + float64(i),
		}
	}
	return series
}

func TestBuildLabel(t *testing.T) {
	frame := Build(seriesFromCloses([]float64{100, 102, 101, 105}), Options{IncludeLabel: true})
	require.Equal(t, 4, frame.Len())

	label := frame.Column(LabelColumn)
	require.Len(t, label, 4)

	assert.Equal(t, 1.0, label[0]) // 102 > 100
	assert.Equal(t, 0.0, label[1]) // 101 < 102
	assert.Equal(t, 1.0, label[2]) // 105 > 101
	assert.False(t, IsDefined(label[3]), "final row label must be unset, never 0")
}

func TestBuildEmptyAndInvalidSeries(t *testing.T) {
	assert.True(t, Build(nil, Options{}).Empty())
	assert.True(t, Build(domain.BarSeries{}, Options{}).Empty())

	// Duplicate dates violate the series invariant.
	day := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	dup := domain.BarSeries{
		{Date: day, Close: 100},
		{Date: day, Close: 101},
	}
	assert.True(t, Build(dup, Options{}).Empty())
}

func TestBuildColumnsMatchContract(t *testing.T) {
	tests := []struct {
		name       string
		opts       Options
		wantStochK bool
	}{
		{name: "default", opts: Options{}},
		{name: "with stochastic", opts: Options{IncludeStochastic: true}, wantStochK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := Build(seriesFromCloses(rampCloses(60)), tt.opts)
			want := Columns(tt.opts.LagDepth, tt.opts.IncludeStochastic)
			assert.Equal(t, want, frame.Columns())
			assert.Equal(t, tt.wantStochK, frame.HasColumn("stoch_k"))
		})
	}
}

func TestBuildCausality(t *testing.T) {
	closes := rampCloses(80)
	base := Build(seriesFromCloses(closes), Options{})

	// Perturb a future bar: every feature before it must be unchanged.
	perturbed := append([]float64{}, closes...)
	perturbed[79] *= 2
	after := Build(seriesFromCloses(perturbed), Options{})

	for _, col := range base.Columns() {
		baseCol := base.Column(col)
		afterCol := after.Column(col)
		for i := 0; i < 79; i++ {
			if !IsDefined(baseCol[i]) {
				assert.False(t, IsDefined(afterCol[i]), "%s[%d]", col, i)
				continue
			}
			assert.Equal(t, baseCol[i], afterCol[i], "%s[%d] depends on a future bar", col, i)
		}
	}
}

func TestBuildWarmupUndefined(t *testing.T) {
	frame := Build(seriesFromCloses(rampCloses(40)), Options{})

	rsi := frame.Column("rsi_14")
	for i := 0; i < 14; i++ {
		assert.False(t, IsDefined(rsi[i]), "rsi_14[%d] should be undefined during warm-up", i)
	}
	assert.True(t, IsDefined(rsi[14]))

	vol := frame.Column("volatility_20d")
	for i := 0; i < 21; i++ {
		assert.False(t, IsDefined(vol[i]), "volatility_20d[%d]", i)
	}
	assert.True(t, IsDefined(vol[21]))

	lag3 := frame.Column("close_lag3")
	assert.False(t, IsDefined(lag3[2]))
	assert.Equal(t, 100.0, lag3[3])
}

func TestRollingRSIZeroLossUndefined(t *testing.T) {
	// Monotonically rising closes: zero average loss, RSI undefined instead
	// of infinity.
	rising := rampCloses(30)
	rsi := rollingRSI(rising, 14)
	for i := range rsi {
		assert.False(t, IsDefined(rsi[i]), "rsi[%d]", i)
	}
}

// rampCloses yields a zig-zag ramp so deltas include both gains and losses.
func rampCloses(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 + float64(i)
		if i%3 == 2 {
			out[i] -= 1.5
		}
	}
	return out
}
