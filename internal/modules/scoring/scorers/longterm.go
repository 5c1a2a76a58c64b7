package scorers

import (
	"fmt"

	"github.com/twsight/twsight/internal/domain"
	"github.com/twsight/twsight/internal/modules/indicators"
	"github.com/twsight/twsight/internal/modules/scoring"
)

// LongTermScorer evaluates the fundamental, long-horizon factor set.
//
// Factor order is fixed: trend filter, moat, beta, valuation, dividend,
// market-cap stability, institutional flow, gross-margin trend.
type LongTermScorer struct {
	thresholds scoring.Thresholds
}

// NewLongTermScorer creates a long-horizon scorer.
func NewLongTermScorer(thresholds scoring.Thresholds) *LongTermScorer {
	return &LongTermScorer{thresholds: thresholds}
}

// flowWindowLong is the trailing session count for the long-horizon
// institutional flow factor.
const flowWindowLong = 10

// Score evaluates one ticker from its fundamentals snapshot, institutional
// flow, quarterly financials, and a trend filter over the bar series.
func (s *LongTermScorer) Score(
	ticker string,
	isETF bool,
	fund *domain.Fundamentals,
	flows []domain.FlowRecord,
	financials []domain.QuarterlyFinancial,
	ind *indicators.Set,
) scoring.Result {
	t := s.thresholds
	score := 0
	var details []scoring.Detail

	name := ""
	if fund != nil {
		name = fund.Name
	}

	// 1. Trend filter over the bar series.
	details, score = s.trendFilter(ind, details, score)

	// 2. Moat bonus: large cap with strong return on equity.
	if fund == nil || fund.MarketCap == nil || fund.ROE == nil {
		details = append(details, noData("moat"))
	} else if *fund.MarketCap > t.MoatMarketCap && *fund.ROE > t.MoatROE {
		score += 2
		details = append(details, scoring.Detail{
			Metric: "moat",
			Value:  fmt.Sprintf("cap %.0fB, ROE %.1f%%", *fund.MarketCap/1e9, *fund.ROE*100),
			Class:  scoring.ClassBullish,
			Reason: "Large cap with strong profitability",
		})
	} else {
		details = append(details, scoring.Detail{
			Metric: "moat",
			Value:  fmt.Sprintf("cap %.0fB, ROE %.1f%%", *fund.MarketCap/1e9, *fund.ROE*100),
			Class:  scoring.ClassNeutral,
			Reason: "No moat bonus",
		})
	}

	// 3. Beta / risk profile.
	if fund == nil || fund.Beta == nil {
		details = append(details, noData("beta"))
	} else {
		beta := *fund.Beta
		switch {
		case beta < t.LowBeta:
			score++
			details = append(details, scoring.Detail{
				Metric: "beta", Value: fmt.Sprintf("%.2f", beta),
				Class: scoring.ClassBullish, Reason: "Low volatility relative to market",
			})
		case beta > t.HighBeta:
			details = append(details, scoring.Detail{
				Metric: "beta", Value: fmt.Sprintf("%.2f", beta),
				Class: scoring.ClassWarning, Reason: "High volatility relative to market",
			})
		default:
			details = append(details, scoring.Detail{
				Metric: "beta", Value: fmt.Sprintf("%.2f", beta),
				Class: scoring.ClassNeutral, Reason: "Market-like risk",
			})
		}
	}

	// 4. Valuation: trailing P/E.
	if fund == nil || fund.TrailingPE == nil {
		details = append(details, noData("pe_ratio"))
	} else {
		pe := *fund.TrailingPE
		switch {
		case pe < t.CheapPE:
			score += 2
			details = append(details, scoring.Detail{
				Metric: "pe_ratio", Value: fmt.Sprintf("%.1f", pe),
				Class: scoring.ClassBullish, Reason: "Cheap valuation",
			})
		case pe < t.FairPE:
			score++
			details = append(details, scoring.Detail{
				Metric: "pe_ratio", Value: fmt.Sprintf("%.1f", pe),
				Class: scoring.ClassBullish, Reason: "Reasonable valuation",
			})
		default:
			details = append(details, scoring.Detail{
				Metric: "pe_ratio", Value: fmt.Sprintf("%.1f", pe),
				Class: scoring.ClassWarning, Reason: "Rich valuation",
			})
		}
	}

	// 5. Dividend yield.
	if fund == nil || fund.DividendYield == nil {
		details = append(details, noData("dividend_yield"))
	} else {
		yield := *fund.DividendYield
		switch {
		case yield > t.HighYield:
			score += 2
			details = append(details, scoring.Detail{
				Metric: "dividend_yield", Value: fmt.Sprintf("%.2f%%", yield*100),
				Class: scoring.ClassBullish, Reason: "High yield",
			})
		case yield > t.FairYield:
			score++
			details = append(details, scoring.Detail{
				Metric: "dividend_yield", Value: fmt.Sprintf("%.2f%%", yield*100),
				Class: scoring.ClassBullish, Reason: "Decent yield",
			})
		default:
			details = append(details, scoring.Detail{
				Metric: "dividend_yield", Value: fmt.Sprintf("%.2f%%", yield*100),
				Class: scoring.ClassNeutral, Reason: "Low yield",
			})
		}
	}

	// 6. Market-cap stability.
	if fund == nil || fund.MarketCap == nil {
		details = append(details, noData("market_cap"))
	} else if *fund.MarketCap > t.StableMarketCap {
		score++
		details = append(details, scoring.Detail{
			Metric: "market_cap",
			Value:  fmt.Sprintf("%.0fB", *fund.MarketCap/1e9),
			Class:  scoring.ClassBullish,
			Reason: "Size provides stability",
		})
	} else {
		details = append(details, scoring.Detail{
			Metric: "market_cap",
			Value:  fmt.Sprintf("%.0fB", *fund.MarketCap/1e9),
			Class:  scoring.ClassNeutral,
			Reason: "Smaller cap",
		})
	}

	// 7. Institutional flow over the long window.
	if net, ok := domain.NetFlow(flows, flowWindowLong); !ok {
		details = append(details, noData("institutional_flow"))
	} else if net > 0 {
		score++
		details = append(details, scoring.Detail{
			Metric: "institutional_flow",
			Value:  fmt.Sprintf("%+.0f shares / %dd", net, flowWindowLong),
			Class:  scoring.ClassBullish,
			Reason: "Sustained institutional buying",
		})
	} else {
		details = append(details, scoring.Detail{
			Metric: "institutional_flow",
			Value:  fmt.Sprintf("%+.0f shares / %dd", net, flowWindowLong),
			Class:  scoring.ClassBearish,
			Reason: "Net institutional selling",
		})
	}

	// 8. Gross-margin trend, latest quarter vs previous.
	if cur, prev, ok := marginPair(financials); !ok {
		details = append(details, noData("gross_margin_trend"))
	} else if cur > prev {
		score++
		details = append(details, scoring.Detail{
			Metric: "gross_margin_trend",
			Value:  fmt.Sprintf("%.1f%% -> %.1f%%", prev*100, cur*100),
			Class:  scoring.ClassBullish,
			Reason: "Margins improving quarter over quarter",
		})
	} else {
		details = append(details, scoring.Detail{
			Metric: "gross_margin_trend",
			Value:  fmt.Sprintf("%.1f%% -> %.1f%%", prev*100, cur*100),
			Class:  scoring.ClassNeutral,
			Reason: "Margins flat or declining",
		})
	}

	return scoring.Result{
		Ticker:  ticker,
		Name:    name,
		IsETF:   isETF,
		Signal:  s.thresholds.LabelFor(scoring.HorizonLong, score),
		Score:   score,
		Details: details,
		Style:   ClassifyOperationStyle(ind),
		Horizon: scoring.HorizonLong,
	}
}

// trendFilter penalizes entering deteriorating charts: bearish alignment
// -2, price more than 10% under the 60-session average -1, bullish
// alignment +1.
func (s *LongTermScorer) trendFilter(ind *indicators.Set, details []scoring.Detail, score int) ([]scoring.Detail, int) {
	if ind == nil {
		return append(details, noData("trend_filter")), score
	}

	ma5, ok5 := ind.LatestMA5()
	ma20, ok20 := ind.LatestMA20()
	ma60, ok60 := ind.LatestMA60()
	last, okLast := ind.Series.Last()

	if !ok5 || !ok20 || !ok60 || !okLast {
		return append(details, noData("trend_filter")), score
	}

	switch {
	case ma5 < ma20 && ma20 < ma60:
		score -= 2
		details = append(details, scoring.Detail{
			Metric: "trend_filter",
			Value:  fmt.Sprintf("MA5 %.2f < MA20 %.2f < MA60 %.2f", ma5, ma20, ma60),
			Class:  scoring.ClassBearish,
			Reason: "Full bearish alignment",
		})
	case ma60 > 0 && last.Close < ma60*0.9:
		score--
		details = append(details, scoring.Detail{
			Metric: "trend_filter",
			Value:  fmt.Sprintf("close %.2f vs MA60 %.2f", last.Close, ma60),
			Class:  scoring.ClassBearish,
			Reason: "Price more than 10% below 60-session average",
		})
	case ma5 > ma20 && ma20 > ma60:
		score++
		details = append(details, scoring.Detail{
			Metric: "trend_filter",
			Value:  fmt.Sprintf("MA5 %.2f > MA20 %.2f > MA60 %.2f", ma5, ma20, ma60),
			Class:  scoring.ClassBullish,
			Reason: "Full bullish alignment",
		})
	default:
		details = append(details, scoring.Detail{
			Metric: "trend_filter",
			Value:  fmt.Sprintf("close %.2f vs MA60 %.2f", last.Close, ma60),
			Class:  scoring.ClassNeutral,
			Reason: "No dominant trend",
		})
	}
	return details, score
}

// marginPair returns the latest and previous quarterly gross margins.
func marginPair(financials []domain.QuarterlyFinancial) (cur, prev float64, ok bool) {
	if len(financials) < 2 {
		return 0, 0, false
	}
	cur, okCur := financials[len(financials)-1].GrossMargin()
	prev, okPrev := financials[len(financials)-2].GrossMargin()
	return cur, prev, okCur && okPrev
}
