// Package scorers implements the rule-based factor evaluators. Every
// scorer is deterministic: identical inputs always yield the identical
// score and detail trail.
package scorers

import (
	"fmt"

	"github.com/twsight/twsight/internal/domain"
	"github.com/twsight/twsight/internal/modules/indicators"
	"github.com/twsight/twsight/internal/modules/scoring"
)

// ShortTermScorer evaluates the technical, short-horizon factor set.
//
// Factor order is fixed (moving averages, RSI, MACD, institutional flow,
// volume, stochastic K/D) and the detail trail preserves it.
type ShortTermScorer struct {
	thresholds scoring.Thresholds
}

// NewShortTermScorer creates a short-horizon scorer.
func NewShortTermScorer(thresholds scoring.Thresholds) *ShortTermScorer {
	return &ShortTermScorer{thresholds: thresholds}
}

// flowWindowShort is the trailing session count for the institutional
// flow factor.
const flowWindowShort = 3

// Score evaluates one ticker from its indicator-enriched bars and recent
// institutional flow. Missing inputs degrade to per-factor "no data" rows.
func (s *ShortTermScorer) Score(ticker, name string, isETF bool, ind *indicators.Set, flows []domain.FlowRecord) scoring.Result {
	score := 0
	var details []scoring.Detail

	// 1. Moving-average alignment.
	ma5, ok5 := ind.LatestMA5()
	ma20, ok20 := ind.LatestMA20()
	ma60, ok60 := ind.LatestMA60()
	switch {
	case !ok5 || !ok20:
		details = append(details, noData("ma_alignment"))
	case ok60 && ma5 > ma20 && ma20 > ma60:
		score += 2
		details = append(details, scoring.Detail{
			Metric: "ma_alignment",
			Value:  fmt.Sprintf("MA5 %.2f > MA20 %.2f > MA60 %.2f", ma5, ma20, ma60),
			Class:  scoring.ClassBullish,
			Reason: "Full bullish alignment",
		})
	case ma5 > ma20:
		score++
		details = append(details, scoring.Detail{
			Metric: "ma_alignment",
			Value:  fmt.Sprintf("MA5 %.2f > MA20 %.2f", ma5, ma20),
			Class:  scoring.ClassBullish,
			Reason: "Short-term average above medium-term",
		})
	case ma5 < ma20:
		score--
		details = append(details, scoring.Detail{
			Metric: "ma_alignment",
			Value:  fmt.Sprintf("MA5 %.2f < MA20 %.2f", ma5, ma20),
			Class:  scoring.ClassBearish,
			Reason: "Short-term average below medium-term",
		})
	default:
		details = append(details, scoring.Detail{
			Metric: "ma_alignment",
			Value:  fmt.Sprintf("MA5 %.2f = MA20 %.2f", ma5, ma20),
			Class:  scoring.ClassNeutral,
			Reason: "Averages flat",
		})
	}

	// 2. RSI(14).
	if rsi, ok := ind.LatestRSI(); !ok {
		details = append(details, noData("rsi_14"))
	} else {
		switch {
		case rsi >= 50 && rsi <= 70:
			score++
			details = append(details, scoring.Detail{
				Metric: "rsi_14", Value: fmt.Sprintf("%.1f", rsi),
				Class: scoring.ClassBullish, Reason: "Healthy strength",
			})
		case rsi > 80:
			score--
			details = append(details, scoring.Detail{
				Metric: "rsi_14", Value: fmt.Sprintf("%.1f", rsi),
				Class: scoring.ClassWarning, Reason: "Overheated",
			})
		case rsi < 30:
			score++
			details = append(details, scoring.Detail{
				Metric: "rsi_14", Value: fmt.Sprintf("%.1f", rsi),
				Class: scoring.ClassBullish, Reason: "Oversold, bounce candidate",
			})
		default:
			details = append(details, scoring.Detail{
				Metric: "rsi_14", Value: fmt.Sprintf("%.1f", rsi),
				Class: scoring.ClassNeutral, Reason: "No edge",
			})
		}
	}

	// 3. MACD vs signal line.
	if macd, signal, ok := ind.LatestMACD(); !ok {
		details = append(details, noData("macd"))
	} else if macd > signal {
		score++
		details = append(details, scoring.Detail{
			Metric: "macd", Value: fmt.Sprintf("%.3f > %.3f", macd, signal),
			Class: scoring.ClassBullish, Reason: "MACD above signal line",
		})
	} else {
		details = append(details, scoring.Detail{
			Metric: "macd", Value: fmt.Sprintf("%.3f <= %.3f", macd, signal),
			Class: scoring.ClassNeutral, Reason: "MACD at or below signal line",
		})
	}

	// 4. Institutional flow: trailing foreign + trust net buying.
	// Inflows score, outflows only mark the trail bearish — the asymmetry
	// is intentional.
	if net, ok := domain.NetFlow(flows, flowWindowShort); !ok {
		details = append(details, noData("institutional_flow"))
	} else if net > 0 {
		score++
		details = append(details, scoring.Detail{
			Metric: "institutional_flow",
			Value:  fmt.Sprintf("%+.0f shares / %dd", net, flowWindowShort),
			Class:  scoring.ClassBullish,
			Reason: "Net institutional buying",
		})
	} else {
		details = append(details, scoring.Detail{
			Metric: "institutional_flow",
			Value:  fmt.Sprintf("%+.0f shares / %dd", net, flowWindowShort),
			Class:  scoring.ClassBearish,
			Reason: "Net institutional selling",
		})
	}

	// 5. Volume vs trailing 5-session average.
	if ratio, ok := ind.VolumeRatio(5); !ok {
		details = append(details, noData("volume"))
	} else {
		switch {
		case ratio > 2:
			score++
			details = append(details, scoring.Detail{
				Metric: "volume", Value: fmt.Sprintf("%.2fx 5d avg", ratio),
				Class: scoring.ClassBullish, Reason: "Volume surge",
			})
		case ratio < 0.5:
			details = append(details, scoring.Detail{
				Metric: "volume", Value: fmt.Sprintf("%.2fx 5d avg", ratio),
				Class: scoring.ClassNeutral, Reason: "Volume drying up, watch",
			})
		default:
			details = append(details, scoring.Detail{
				Metric: "volume", Value: fmt.Sprintf("%.2fx 5d avg", ratio),
				Class: scoring.ClassNeutral, Reason: "Normal volume",
			})
		}
	}

	// 6. Stochastic K/D timing.
	if k, d, prevK, prevD, ok := ind.LatestKD(); !ok {
		details = append(details, noData("stochastic_kd"))
	} else {
		switch {
		case k < 20 && k > d && prevK < prevD:
			score += 2
			details = append(details, scoring.Detail{
				Metric: "stochastic_kd",
				Value:  fmt.Sprintf("K %.1f D %.1f", k, d),
				Class:  scoring.ClassBullish,
				Reason: "Oversold golden cross",
			})
		case k > 80 && k < d && prevK > prevD:
			score--
			details = append(details, scoring.Detail{
				Metric: "stochastic_kd",
				Value:  fmt.Sprintf("K %.1f D %.1f", k, d),
				Class:  scoring.ClassBearish,
				Reason: "Overbought death cross",
			})
		case k > 80:
			details = append(details, scoring.Detail{
				Metric: "stochastic_kd",
				Value:  fmt.Sprintf("K %.1f D %.1f", k, d),
				Class:  scoring.ClassWarning,
				Reason: "Overbought",
			})
		default:
			details = append(details, scoring.Detail{
				Metric: "stochastic_kd",
				Value:  fmt.Sprintf("K %.1f D %.1f", k, d),
				Class:  scoring.ClassNeutral,
				Reason: "No timing signal",
			})
		}
	}

	return scoring.Result{
		Ticker:  ticker,
		Name:    name,
		IsETF:   isETF,
		Signal:  s.thresholds.LabelFor(scoring.HorizonShort, score),
		Score:   score,
		Details: details,
		Style:   ClassifyOperationStyle(ind),
		Horizon: scoring.HorizonShort,
	}
}
