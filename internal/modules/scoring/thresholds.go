package scoring

// Thresholds holds every market-tuned cutoff used by the scorers and the
// scanner. These are configuration, not constants: the moat and ETF cutoffs
// in particular are tuned to the Taiwan market and must stay adjustable.
type Thresholds struct {
	// Short-horizon label cutoffs on the total score.
	ShortStrongBuy int `json:"short_strong_buy"`
	ShortBuy       int `json:"short_buy"`
	ShortSell      int `json:"short_sell"`

	// Long-horizon label cutoffs.
	LongStrongBuy int `json:"long_strong_buy"`
	LongBuy       int `json:"long_buy"`

	// Scan inclusion: minimum score for top picks; ETFs get the adjustment
	// subtracted from the inclusion bar (never from the score itself).
	InclusionScore    int `json:"inclusion_score"`
	ETFInclusionDelta int `json:"etf_inclusion_delta"`
	WarningScore      int `json:"warning_score"`

	// Long-horizon fundamental cutoffs.
	MoatMarketCap   float64 `json:"moat_market_cap"`   // TWD, large-cap bar for the moat bonus
	MoatROE         float64 `json:"moat_roe"`          // fraction, e.g. 0.15
	StableMarketCap float64 `json:"stable_market_cap"` // TWD, market-cap stability bonus
	LowBeta         float64 `json:"low_beta"`
	HighBeta        float64 `json:"high_beta"`
	CheapPE         float64 `json:"cheap_pe"`
	FairPE          float64 `json:"fair_pe"`
	HighYield       float64 `json:"high_yield"` // fraction, e.g. 0.04
	FairYield       float64 `json:"fair_yield"`
}

// DefaultThresholds returns the production defaults for the Taiwan market.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ShortStrongBuy: 4,
		ShortBuy:       2,
		ShortSell:      -1,

		LongStrongBuy: 5,
		LongBuy:       3,

		InclusionScore:    2,
		ETFInclusionDelta: 1,
		WarningScore:      0,

		MoatMarketCap:   500e9, // 500B TWD
		MoatROE:         0.15,
		StableMarketCap: 100e9,
		LowBeta:         0.8,
		HighBeta:        1.5,
		CheapPE:         15,
		FairPE:          25,
		HighYield:       0.04,
		FairYield:       0.02,
	}
}

// LabelFor maps a total score to its signal for the given horizon.
func (t Thresholds) LabelFor(h Horizon, score int) Signal {
	switch h {
	case HorizonLong:
		switch {
		case score >= t.LongStrongBuy:
			return SignalStrongBuy
		case score >= t.LongBuy:
			return SignalBuy
		default:
			return SignalWait
		}
	default:
		switch {
		case score >= t.ShortStrongBuy:
			return SignalStrongBuy
		case score >= t.ShortBuy:
			return SignalBuy
		case score <= t.ShortSell:
			return SignalSell
		default:
			return SignalWait
		}
	}
}

// InclusionBar returns the minimum score for top-pick inclusion, lowered
// for ETFs.
func (t Thresholds) InclusionBar(isETF bool) int {
	if isETF {
		return t.InclusionScore - t.ETFInclusionDelta
	}
	return t.InclusionScore
}
