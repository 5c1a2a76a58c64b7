package features

import (
	"fmt"
	"time"

	"github.com/twsight/twsight/internal/domain"
	"github.com/twsight/twsight/pkg/formulas"
)

// LabelColumn holds the realized next-session direction: 1 when the next
// close is higher, 0 otherwise. The final row's label is always undefined.
const LabelColumn = "label"

// DefaultLagDepth is the number of lagged copies of close/volume/ret_1d.
const DefaultLagDepth = 3

// Options controls feature generation.
type Options struct {
	IncludeLabel      bool
	LagDepth          int // 0 means DefaultLagDepth
	IncludeStochastic bool
}

// Columns returns the fixed feature column order (label excluded) for the
// given options. The model payload records this order at training time and
// replays it at inference.
func Columns(lagDepth int, includeStochastic bool) []string {
	if lagDepth <= 0 {
		lagDepth = DefaultLagDepth
	}
	cols := []string{
		"rsi_14", "macd", "macd_signal", "macd_hist",
		"ret_1d", "ret_5d", "volatility_20d", "bias_20", "hl_range",
	}
	for k := 1; k <= lagDepth; k++ {
		cols = append(cols, fmt.Sprintf("close_lag%d", k))
	}
	for k := 1; k <= lagDepth; k++ {
		cols = append(cols, fmt.Sprintf("volume_lag%d", k))
	}
	for k := 1; k <= lagDepth; k++ {
		cols = append(cols, fmt.Sprintf("ret_1d_lag%d", k))
	}
	if includeStochastic {
		cols = append(cols, "stoch_k", "stoch_d")
	}
	return cols
}

// Build derives the feature frame from an OHLCV series.
//
// All features at row t are computed from bars at or before t. An empty or
// invalid series yields an empty frame — callers must treat that as "cannot
// proceed", not as zero signal.
func Build(series domain.BarSeries, opts Options) *Frame {
	if len(series) == 0 || series.Validate() != nil {
		return NewFrame(nil)
	}
	lagDepth := opts.LagDepth
	if lagDepth <= 0 {
		lagDepth = DefaultLagDepth
	}

	dates := make([]time.Time, len(series))
	for i, b := range series {
		dates[i] = b.Date
	}
	frame := NewFrame(dates)

	close := series.Closes()
	high := series.Highs()
	low := series.Lows()
	volume := series.Volumes()
	n := len(close)

	frame.AddColumn("rsi_14", rollingRSI(close, 14))

	macd, macdSignal, macdHist := macdLines(close, 12, 26, 9)
	frame.AddColumn("macd", macd)
	frame.AddColumn("macd_signal", macdSignal)
	frame.AddColumn("macd_hist", macdHist)

	ret1 := pctChange(close, 1)
	frame.AddColumn("ret_1d", ret1)
	frame.AddColumn("ret_5d", pctChange(close, 5))
	frame.AddColumn("volatility_20d", rollingStd(ret1, 20))

	ma20 := rollingMean(close, 20)
	bias := make([]float64, n)
	for i := range bias {
		if IsDefined(ma20[i]) && ma20[i] != 0 {
			bias[i] = (close[i] - ma20[i]) / ma20[i]
		} else {
			bias[i] = Undefined()
		}
	}
	frame.AddColumn("bias_20", bias)

	hlRange := make([]float64, n)
	for i := range hlRange {
		if close[i] != 0 {
			hlRange[i] = (high[i] - low[i]) / close[i]
		} else {
			hlRange[i] = Undefined()
		}
	}
	frame.AddColumn("hl_range", hlRange)

	for k := 1; k <= lagDepth; k++ {
		frame.AddColumn(fmt.Sprintf("close_lag%d", k), shift(close, k))
	}
	for k := 1; k <= lagDepth; k++ {
		frame.AddColumn(fmt.Sprintf("volume_lag%d", k), shift(volume, k))
	}
	for k := 1; k <= lagDepth; k++ {
		frame.AddColumn(fmt.Sprintf("ret_1d_lag%d", k), shift(ret1, k))
	}

	if opts.IncludeStochastic {
		k, d := stochasticKD(high, low, close, 9, 3)
		frame.AddColumn("stoch_k", k)
		frame.AddColumn("stoch_d", d)
	}

	if opts.IncludeLabel {
		label := make([]float64, n)
		for i := 0; i < n-1; i++ {
			if close[i+1] > close[i] {
				label[i] = 1
			} else {
				label[i] = 0
			}
		}
		// No future bar exists for the final row; the label stays unset
		// and must be excluded from training, never treated as 0.
		label[n-1] = Undefined()
		frame.AddColumn(LabelColumn, label)
	}

	return frame
}

// rollingRSI computes RSI(14)-style strength via rolling averages of gains
// and losses over the window. Undefined until the window is warm; a zero
// average loss yields an undefined cell rather than infinity.
func rollingRSI(close []float64, period int) []float64 {
	n := len(close)
	out := undefinedSlice(n)
	if n < period+1 {
		return out
	}

	gains := make([]float64, n)
	losses := make([]float64, n)
	for i := 1; i < n; i++ {
		delta := close[i] - close[i-1]
		if delta > 0 {
			gains[i] = delta
		} else {
			losses[i] = -delta
		}
	}

	var gainSum, lossSum float64
	for i := 1; i < n; i++ {
		gainSum += gains[i]
		lossSum += losses[i]
		if i > period {
			gainSum -= gains[i-period]
			lossSum -= losses[i-period]
		}
		if i < period {
			continue
		}
		avgLoss := lossSum / float64(period)
		if avgLoss == 0 {
			continue // undefined: division by zero average loss
		}
		avgGain := gainSum / float64(period)
		rs := avgGain / avgLoss
		out[i] = 100 - (100 / (1 + rs))
	}
	return out
}

// macdLines computes MACD via value-seeded EMAs and a signal-line EMA.
func macdLines(close []float64, fast, slow, signal int) (macd, macdSignal, macdHist []float64) {
	n := len(close)
	emaFast := ema(close, fast)
	emaSlow := ema(close, slow)

	macd = make([]float64, n)
	for i := range macd {
		macd[i] = emaFast[i] - emaSlow[i]
	}
	macdSignal = ema(macd, signal)
	macdHist = make([]float64, n)
	for i := range macdHist {
		macdHist[i] = macd[i] - macdSignal[i]
	}
	return macd, macdSignal, macdHist
}

// ema computes an exponential moving average seeded with the first value.
func ema(values []float64, span int) []float64 {
	n := len(values)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	alpha := 2.0 / (float64(span) + 1.0)
	out[0] = values[0]
	for i := 1; i < n; i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// pctChange computes the percent change over lag sessions; undefined for
// the first lag rows.
func pctChange(values []float64, lag int) []float64 {
	out := undefinedSlice(len(values))
	for i := lag; i < len(values); i++ {
		if values[i-lag] != 0 {
			out[i] = values[i]/values[i-lag] - 1
		}
	}
	return out
}

// rollingStd computes the trailing sample standard deviation over window
// defined values; undefined until the window is warm.
func rollingStd(values []float64, window int) []float64 {
	out := undefinedSlice(len(values))
	for i := window; i < len(values); i++ {
		chunk := values[i-window+1 : i+1]
		defined := make([]float64, 0, window)
		for _, v := range chunk {
			if IsDefined(v) {
				defined = append(defined, v)
			}
		}
		if len(defined) < window {
			continue
		}
		out[i] = formulas.StdDev(defined)
	}
	return out
}

// rollingMean computes the trailing mean over window sessions.
func rollingMean(values []float64, window int) []float64 {
	out := undefinedSlice(len(values))
	var sum float64
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		if i >= window-1 {
			out[i] = sum / float64(window)
		}
	}
	return out
}

// shift delays a column by k sessions; the first k rows are undefined.
func shift(values []float64, k int) []float64 {
	out := undefinedSlice(len(values))
	for i := k; i < len(values); i++ {
		out[i] = values[i-k]
	}
	return out
}

// stochasticKD computes the %K/%D oscillator over kPeriod highs/lows with a
// dPeriod moving average of %K.
func stochasticKD(high, low, close []float64, kPeriod, dPeriod int) (k, d []float64) {
	n := len(close)
	k = undefinedSlice(n)
	for i := kPeriod - 1; i < n; i++ {
		lo, hi := low[i], high[i]
		for j := i - kPeriod + 1; j <= i; j++ {
			if low[j] < lo {
				lo = low[j]
			}
			if high[j] > hi {
				hi = high[j]
			}
		}
		if hi == lo {
			continue // undefined: flat window
		}
		k[i] = 100 * (close[i] - lo) / (hi - lo)
	}

	d = undefinedSlice(n)
	for i := dPeriod - 1; i < n; i++ {
		sum := 0.0
		ok := true
		for j := i - dPeriod + 1; j <= i; j++ {
			if !IsDefined(k[j]) {
				ok = false
				break
			}
			sum += k[j]
		}
		if ok {
			d[i] = sum / float64(dPeriod)
		}
	}
	return k, d
}

func undefinedSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = Undefined()
	}
	return out
}
