package scorers

import (
	"github.com/twsight/twsight/internal/modules/indicators"
	"github.com/twsight/twsight/internal/modules/scoring"
)

// Operation-style cutoffs: daily range as a fraction of close, and today's
// volume against the trailing 5-session average.
const (
	dayTradeRangePct  = 0.03
	swingRangePct     = 0.02
	dayTradeVolume    = 1.5
	styleRangeWindow  = 20
	styleVolumeWindow = 5
)

// ClassifyOperationStyle labels which trading style the ticker's recent
// behavior suits, from volatility, volume, and moving-average shape alone.
// Purely descriptive; the score never depends on it.
func ClassifyOperationStyle(ind *indicators.Set) scoring.OperationStyle {
	if ind == nil {
		return scoring.StyleUnknown
	}

	rangePct, okRange := ind.AvgRangePct(styleRangeWindow)
	volumeRatio, okVolume := ind.VolumeRatio(styleVolumeWindow)
	if !okRange || !okVolume {
		return scoring.StyleUnknown
	}

	ma5, ok5 := ind.LatestMA5()
	ma20, ok20 := ind.LatestMA20()
	ma60, ok60 := ind.LatestMA60()
	trending := ok5 && ok20 && ok60 &&
		((ma5 > ma20 && ma20 > ma60) || (ma5 < ma20 && ma20 < ma60))

	switch {
	case rangePct > dayTradeRangePct && volumeRatio > dayTradeVolume:
		return scoring.StyleDayTrading
	case rangePct > swingRangePct:
		return scoring.StyleSwing
	case trending:
		return scoring.StylePosition
	default:
		return scoring.StyleRangeBound
	}
}
