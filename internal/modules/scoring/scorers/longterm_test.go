package scorers

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/twsight/twsight/internal/domain"
	"github.com/twsight/twsight/internal/modules/scoring"
)

func ptr(v float64) *float64 { return &v }

func moatFundamentals() *domain.Fundamentals {
	return &domain.Fundamentals{
		Ticker:        "2330.TW",
		Name:          "台積電",
		MarketCap:     ptr(600e9), // above the 500B moat bar
		ROE:           ptr(0.25),
		Beta:          ptr(0.7),
		TrailingPE:    ptr(12),
		DividendYield: ptr(0.05),
	}
}

func improvingMargins() []domain.QuarterlyFinancial {
	return []domain.QuarterlyFinancial{
		{Quarter: "2025Q4", GrossProfit: 50, Revenue: 100},
		{Quarter: "2026Q1", GrossProfit: 56, Revenue: 100},
	}
}

func TestLongTermFullBullishStack(t *testing.T) {
	scorer := NewLongTermScorer(scoring.DefaultThresholds())

	ind := bullishFixture().build()
	result := scorer.Score("2330.TW", false, moatFundamentals(), buyFlows(1000), improvingMargins(), ind)

	// Trend +1, moat +2, beta +1, P/E +2, yield +2, cap +1, flow +1, margins +1.
	assert.Equal(t, 11, result.Score)
	assert.Equal(t, scoring.SignalStrongBuy, result.Signal)
	assert.Equal(t, scoring.HorizonLong, result.Horizon)
	assert.Equal(t, "台積電", result.Name)
	assert.Len(t, result.Details, 8)
}

func TestLongTermBearishTrendPenalty(t *testing.T) {
	fx := bullishFixture()
	fx.ma5, fx.ma20, fx.ma60 = 90, 95, 100 // full bearish alignment

	scorer := NewLongTermScorer(scoring.DefaultThresholds())
	result := scorer.Score("2330.TW", false, nil, nil, nil, fx.build())

	assert.Equal(t, -2, result.Score)
	assert.Equal(t, scoring.SignalWait, result.Signal)
	assert.Equal(t, scoring.ClassBearish, detailFor(t, result, "trend_filter").Class)
}

func TestLongTermMissingFundamentalsDegrade(t *testing.T) {
	scorer := NewLongTermScorer(scoring.DefaultThresholds())

	result := scorer.Score("0050.TW", true, nil, nil, nil, nil)

	assert.True(t, result.IsETF)
	assert.Zero(t, result.Score)
	assert.Len(t, result.Details, 8)
	for _, d := range result.Details {
		assert.Equal(t, scoring.ClassNoData, d.Class, d.Metric)
	}
}

func TestLongTermMarginTrend(t *testing.T) {
	scorer := NewLongTermScorer(scoring.DefaultThresholds())
	ind := bullishFixture().build()

	declining := []domain.QuarterlyFinancial{
		{Quarter: "2025Q4", GrossProfit: 56, Revenue: 100},
		{Quarter: "2026Q1", GrossProfit: 50, Revenue: 100},
	}

	up := scorer.Score("2330.TW", false, nil, nil, improvingMargins(), ind)
	down := scorer.Score("2330.TW", false, nil, nil, declining, ind)

	assert.Equal(t, up.Score-1, down.Score)
	assert.Equal(t, scoring.ClassNeutral, detailFor(t, down, "gross_margin_trend").Class)
}

func TestLabelThresholdsByHorizon(t *testing.T) {
	thresholds := scoring.DefaultThresholds()

	tests := []struct {
		horizon scoring.Horizon
		score   int
		want    scoring.Signal
	}{
		{scoring.HorizonShort, 4, scoring.SignalStrongBuy},
		{scoring.HorizonShort, 2, scoring.SignalBuy},
		{scoring.HorizonShort, 0, scoring.SignalWait},
		{scoring.HorizonShort, -1, scoring.SignalSell},
		{scoring.HorizonLong, 5, scoring.SignalStrongBuy},
		{scoring.HorizonLong, 3, scoring.SignalBuy},
		{scoring.HorizonLong, 2, scoring.SignalWait},
		{scoring.HorizonLong, -4, scoring.SignalWait}, // long mode never labels Sell
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, thresholds.LabelFor(tt.horizon, tt.score), "%s/%d", tt.horizon, tt.score)
	}
}

func TestInclusionBarETFAdjustment(t *testing.T) {
	thresholds := scoring.DefaultThresholds()
	assert.Equal(t, 2, thresholds.InclusionBar(false))
	assert.Equal(t, 1, thresholds.InclusionBar(true))
}
