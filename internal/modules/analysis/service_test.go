package analysis

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twsight/twsight/internal/domain"
	"github.com/twsight/twsight/internal/modules/model"
	"github.com/twsight/twsight/internal/modules/scoring"
	"github.com/twsight/twsight/internal/modules/universe"
)

type stubBars struct {
	series map[string]domain.BarSeries
}

func (s *stubBars) Get(ticker string, days int) (domain.BarSeries, error) {
	return s.series[ticker], nil
}

type stubFundamentals struct {
	fund *domain.Fundamentals
	err  error
}

func (s *stubFundamentals) GetInfo(ticker string) (*domain.Fundamentals, error) {
	return s.fund, s.err
}

type stubFlows struct {
	flows []domain.FlowRecord
}

func (s *stubFlows) GetFlow(code string, lookbackDays int) ([]domain.FlowRecord, error) {
	return s.flows, nil
}

type stubFinancials struct{}

func (s *stubFinancials) GetQuarterlyFinancials(code string) ([]domain.QuarterlyFinancial, error) {
	return nil, errors.New("unavailable")
}

type stubResolver struct {
	names map[string]string
}

func (s *stubResolver) Resolve(query string) string {
	if strings.HasSuffix(query, ".TW") || strings.HasSuffix(query, ".TWO") {
		return query
	}
	return query + ".TW"
}

func (s *stubResolver) NameOf(ticker string) string {
	if name, ok := s.names[ticker]; ok {
		return name
	}
	return ticker
}

// zigzagSeries oscillates around a rising base so gains and losses both
// occur and every indicator warms up.
func zigzagSeries(n int) domain.BarSeries {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	series := make(domain.BarSeries, n)
	for i := 0; i < n; i++ {
		c := 100 + 0.1*float64(i) + 3*math.Sin(float64(i)*0.7)
		series[i] = domain.Bar{
			Date:   start.AddDate(0, 0, i),
			Open:   c * 0.995,
			High:   c * 1.01,
			Low:    c * 0.99,
			Close:  c,
			Volume: 1000 + 50*float64(i%7),
		}
	}
	return series
}

func testService(t *testing.T, bars map[string]domain.BarSeries, opts Options) *Service {
	t.Helper()

	log := zerolog.Nop()
	return NewService(
		&stubBars{series: bars},
		&stubFundamentals{err: errors.New("unavailable")},
		&stubFlows{},
		&stubFinancials{},
		&stubResolver{names: map[string]string{"2330.TW": "台積電"}},
		model.NewCache(2, log),
		universe.NewScanner(universe.DefaultScannerConfig(), log),
		scoring.DefaultThresholds(),
		opts,
		log,
	)
}

func TestSnapshotNeutralWithoutModel(t *testing.T) {
	series := zigzagSeries(60)
	svc := testService(t, map[string]domain.BarSeries{"2330.TW": series}, DefaultOptions())

	snap, err := svc.Snapshot("2330")
	require.NoError(t, err)

	assert.Equal(t, "2330.TW", snap.Ticker)
	assert.Equal(t, "台積電", snap.Name)
	assert.False(t, snap.ModelUsed)
	assert.Equal(t, model.NeutralProbability, snap.ProbUp)
	assert.Equal(t, "UP", snap.Direction)
	assert.Zero(t, snap.Confidence)

	last, _ := series.Last()
	assert.Equal(t, last.Close, snap.LastClose)

	require.NotNil(t, snap.KeyMetrics.Return1D)
	require.NotNil(t, snap.KeyMetrics.Return5D)
	require.NotNil(t, snap.KeyMetrics.Volatility20D)
	require.NotNil(t, snap.KeyMetrics.VolumeRatio)
}

func TestSnapshotNoData(t *testing.T) {
	svc := testService(t, map[string]domain.BarSeries{}, DefaultOptions())

	_, err := svc.Snapshot("2330")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no data")
}

func TestTrainPersistsAndSnapshotUsesModel(t *testing.T) {
	opts := DefaultOptions()
	opts.ModelPath = filepath.Join(t.TempDir(), "models", "direction.bin")

	bars := map[string]domain.BarSeries{
		"2330.TW": zigzagSeries(140),
		"2317.TW": zigzagSeries(140),
	}
	svc := testService(t, bars, opts)

	result, err := svc.Train([]string{"2330.TW", "2317.TW"})
	require.NoError(t, err)
	assert.Greater(t, result.TrainRows, 0)
	assert.Greater(t, result.TestRows, 0)

	_, err = os.Stat(opts.ModelPath)
	require.NoError(t, err)

	snap, err := svc.Snapshot("2330.TW")
	require.NoError(t, err)
	assert.True(t, snap.ModelUsed)
	assert.GreaterOrEqual(t, snap.ProbUp, 0.0)
	assert.LessOrEqual(t, snap.ProbUp, 1.0)
	assert.GreaterOrEqual(t, snap.Confidence, 0.0)
	assert.LessOrEqual(t, snap.Confidence, 1.0)
}

func TestTrainNoUsableHistory(t *testing.T) {
	svc := testService(t, map[string]domain.BarSeries{}, DefaultOptions())

	_, err := svc.Train([]string{"2330.TW"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no usable history")
}

func TestScoreOneShortHorizon(t *testing.T) {
	svc := testService(t, map[string]domain.BarSeries{"2330.TW": zigzagSeries(90)}, DefaultOptions())

	result, err := svc.ScoreOne("2330", scoring.HorizonShort)
	require.NoError(t, err)
	assert.Equal(t, "2330.TW", result.Ticker)
	assert.Equal(t, scoring.HorizonShort, result.Horizon)
	assert.Len(t, result.Details, 6)
}

func TestScoreOneLongHorizonDegradesWithoutFundamentals(t *testing.T) {
	svc := testService(t, map[string]domain.BarSeries{"2330.TW": zigzagSeries(90)}, DefaultOptions())

	result, err := svc.ScoreOne("2330", scoring.HorizonLong)
	require.NoError(t, err)
	assert.Equal(t, scoring.HorizonLong, result.Horizon)
	// The fundamentals source is down; the name falls back to the resolver.
	assert.Equal(t, "台積電", result.Name)
}

func TestScanShortModeCoversUniverse(t *testing.T) {
	bars := make(map[string]domain.BarSeries, len(universe.DefaultUniverse))
	for _, ticker := range universe.DefaultUniverse {
		bars[ticker] = zigzagSeries(90)
	}
	svc := testService(t, bars, DefaultOptions())

	report := svc.Scan("", universe.ModeShort)
	assert.Equal(t, universe.ModeShort, report.Mode)
	assert.Equal(t, len(universe.DefaultUniverse), report.Scanned)
	assert.Zero(t, report.Failed)
	assert.Len(t, report.Results, len(universe.DefaultUniverse))
}

func TestScanProbabilityModeWithoutModelIsNeutral(t *testing.T) {
	bars := make(map[string]domain.BarSeries, len(universe.DefaultUniverse))
	for _, ticker := range universe.DefaultUniverse {
		bars[ticker] = zigzagSeries(60)
	}
	svc := testService(t, bars, DefaultOptions())

	report := svc.Scan("", universe.ModeProbability)
	assert.Zero(t, report.Failed)
	// Every probability is the neutral 0.5, so nothing crosses either bar.
	assert.Empty(t, report.TopPicks)
	assert.Empty(t, report.Warnings)
	for _, item := range report.Results {
		require.NotNil(t, item.Probability)
		assert.Equal(t, model.NeutralProbability, *item.Probability)
	}
}

func TestPredictLatestWithoutModel(t *testing.T) {
	svc := testService(t, map[string]domain.BarSeries{"2330.TW": zigzagSeries(60)}, DefaultOptions())

	prob, used, err := svc.PredictLatest("2330")
	require.NoError(t, err)
	assert.False(t, used)
	assert.Equal(t, model.NeutralProbability, prob)
}

func TestKeyMetrics(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	closes := []float64{100, 101, 102, 103, 104, 105, 110}
	series := make(domain.BarSeries, len(closes))
	for i, c := range closes {
		series[i] = domain.Bar{Date: start.AddDate(0, 0, i), Close: c, Volume: 1000}
	}

	m := keyMetrics(series)
	require.NotNil(t, m.Return1D)
	assert.InDelta(t, 4.76, *m.Return1D, 0.01) // 110/105 - 1
	require.NotNil(t, m.Return5D)
	assert.InDelta(t, 8.91, *m.Return5D, 0.01) // 110/101 - 1
	assert.Nil(t, m.Volatility20D)             // needs 20 returns
	assert.Nil(t, m.VolumeRatio)               // needs 20 sessions
}
