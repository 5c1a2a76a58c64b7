package analysis

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/twsight/twsight/internal/domain"
	"github.com/twsight/twsight/internal/modules/backtest"
	"github.com/twsight/twsight/internal/modules/indicators"
	"github.com/twsight/twsight/internal/modules/model"
	"github.com/twsight/twsight/internal/modules/scoring"
	"github.com/twsight/twsight/internal/modules/scoring/scorers"
	"github.com/twsight/twsight/internal/modules/universe"
	"github.com/twsight/twsight/pkg/formulas"
)

// BarSource provides daily bars, usually the read-through history store.
type BarSource interface {
	Get(ticker string, days int) (domain.BarSeries, error)
}

// FundamentalsSource provides the fundamentals snapshot.
type FundamentalsSource interface {
	GetInfo(ticker string) (*domain.Fundamentals, error)
}

// FlowSource provides institutional net-buying records by exchange code.
type FlowSource interface {
	GetFlow(code string, lookbackDays int) ([]domain.FlowRecord, error)
}

// FinancialsSource provides quarterly gross profit / revenue rows.
type FinancialsSource interface {
	GetQuarterlyFinancials(code string) ([]domain.QuarterlyFinancial, error)
}

// Resolver maps user input to provider tickers and back to listed names.
type Resolver interface {
	Resolve(query string) string
	NameOf(ticker string) string
}

// Options are the service tunables.
type Options struct {
	HistoryDays       int
	FlowLookbackDays  int
	IncludeStochastic bool
	ModelPath         string
	TestFraction      float64
}

// DefaultOptions returns the standard analysis settings.
func DefaultOptions() Options {
	return Options{
		HistoryDays:      180,
		FlowLookbackDays: 20,
		TestFraction:     0.2,
	}
}

// Service wires data sources, the model cache, and the scorers into the
// operations the server exposes.
type Service struct {
	bars         BarSource
	fundamentals FundamentalsSource
	flows        FlowSource
	financials   FinancialsSource
	resolver     Resolver

	models    *model.Cache
	trainer   *model.Trainer
	simulator *backtest.Simulator
	scanner   *universe.Scanner

	shortScorer *scorers.ShortTermScorer
	longScorer  *scorers.LongTermScorer

	opts Options
	log  zerolog.Logger
}

// NewService creates the analysis service.
func NewService(
	bars BarSource,
	fundamentals FundamentalsSource,
	flows FlowSource,
	financials FinancialsSource,
	resolver Resolver,
	models *model.Cache,
	scanner *universe.Scanner,
	thresholds scoring.Thresholds,
	opts Options,
	log zerolog.Logger,
) *Service {
	if opts.HistoryDays <= 0 {
		opts.HistoryDays = 180
	}
	if opts.FlowLookbackDays <= 0 {
		opts.FlowLookbackDays = 20
	}
	if opts.TestFraction <= 0 || opts.TestFraction >= 1 {
		opts.TestFraction = 0.2
	}
	return &Service{
		bars:         bars,
		fundamentals: fundamentals,
		flows:        flows,
		financials:   financials,
		resolver:     resolver,
		models:       models,
		trainer:      model.NewTrainer(log),
		simulator:    backtest.NewSimulator(log),
		scanner:      scanner,
		shortScorer:  scorers.NewShortTermScorer(thresholds),
		longScorer:   scorers.NewLongTermScorer(thresholds),
		opts:         opts,
		log:          log.With().Str("component", "analysis").Logger(),
	}
}

// ScoreOne evaluates a single ticker with the rule scorer for the horizon.
func (s *Service) ScoreOne(query string, horizon scoring.Horizon) (scoring.Result, error) {
	ticker := s.resolver.Resolve(query)
	isETF := universe.IsETFCode(codeOf(ticker))

	series, err := s.bars.Get(ticker, s.opts.HistoryDays)
	if err != nil {
		return scoring.Result{}, fmt.Errorf("score %s: %w", ticker, err)
	}
	if len(series) == 0 {
		return scoring.Result{}, fmt.Errorf("score %s: no data", ticker)
	}

	ind, err := indicators.Enrich(series)
	if err != nil {
		return scoring.Result{}, fmt.Errorf("score %s: %w", ticker, err)
	}

	flows := s.fetchFlows(ticker)

	if horizon == scoring.HorizonLong {
		fund := s.fetchFundamentals(ticker)
		financials := s.fetchFinancials(ticker)
		result := s.longScorer.Score(ticker, isETF, fund, flows, financials, ind)
		if result.Name == "" {
			result.Name = s.resolver.NameOf(ticker)
		}
		return result, nil
	}

	name := s.resolver.NameOf(ticker)
	return s.shortScorer.Score(ticker, name, isETF, ind, flows), nil
}

// Snapshot builds the per-ticker probability view. A missing or failing
// model degrades to the neutral probability with model_used=false.
func (s *Service) Snapshot(query string) (*Snapshot, error) {
	ticker := s.resolver.Resolve(query)

	series, err := s.bars.Get(ticker, s.opts.HistoryDays)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", ticker, err)
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("snapshot %s: no data", ticker)
	}

	name := s.resolver.NameOf(ticker)
	if fund := s.fetchFundamentals(ticker); fund != nil && fund.Name != "" {
		name = fund.Name
	}

	lastClose := 0.0
	if last, ok := series.Last(); ok {
		lastClose = last.Close
	}

	probUp := model.NeutralProbability
	modelUsed := false
	if payload := s.models.Get(s.opts.ModelPath); payload != nil {
		if p, ok := model.PredictLatest(payload, series, s.opts.IncludeStochastic); ok {
			probUp = p
			modelUsed = true
		}
	}

	direction := "DOWN"
	if probUp >= 0.5 {
		direction = "UP"
	}
	confidence := math.Min(math.Max(math.Abs(probUp-0.5)*2, 0), 1)

	return &Snapshot{
		Ticker:     ticker,
		Name:       name,
		LastClose:  lastClose,
		Direction:  direction,
		ProbUp:     probUp,
		Confidence: confidence,
		KeyMetrics: keyMetrics(series),
		ModelUsed:  modelUsed,
	}, nil
}

// Scan fans the mode's evaluator across the sector's tickers.
func (s *Service) Scan(sector string, mode universe.ScanMode) universe.ScanReport {
	tickers := universe.SectorTickers(sector)

	var score universe.ScoreFunc
	switch mode {
	case universe.ModeProbability:
		score = s.probabilityItem
	case universe.ModeLong:
		score = func(ticker string) (universe.ScanItem, error) {
			result, err := s.ScoreOne(ticker, scoring.HorizonLong)
			return universe.ScanItem{Result: result}, err
		}
	default:
		mode = universe.ModeShort
		score = func(ticker string) (universe.ScanItem, error) {
			result, err := s.ScoreOne(ticker, scoring.HorizonShort)
			return universe.ScanItem{Result: result}, err
		}
	}

	return s.scanner.Scan(tickers, mode, score)
}

func (s *Service) probabilityItem(ticker string) (universe.ScanItem, error) {
	snap, err := s.Snapshot(ticker)
	if err != nil {
		return universe.ScanItem{}, err
	}
	if snap.LastClose <= 0 {
		return universe.ScanItem{}, fmt.Errorf("scan %s: no price", ticker)
	}
	prob := snap.ProbUp
	return universe.ScanItem{
		Result: scoring.Result{
			Ticker: snap.Ticker,
			Name:   snap.Name,
			IsETF:  universe.IsETFCode(codeOf(snap.Ticker)),
		},
		Probability: &prob,
	}, nil
}

// Train pools bar history across the given tickers (the default universe
// when empty), trains, persists the payload, and invalidates the cache.
func (s *Service) Train(tickers []string) (*model.TrainResult, error) {
	if len(tickers) == 0 {
		tickers = universe.DefaultUniverse
	}

	var pool []domain.BarSeries
	for _, t := range tickers {
		ticker := s.resolver.Resolve(t)
		series, err := s.bars.Get(ticker, s.opts.HistoryDays)
		if err != nil || len(series) == 0 {
			s.log.Warn().Str("ticker", ticker).Err(err).Msg("Skipping ticker for training")
			continue
		}
		pool = append(pool, series)
	}
	if len(pool) == 0 {
		return nil, fmt.Errorf("train: no usable history")
	}

	result, err := s.trainer.TrainOnSeries(pool, s.opts.TestFraction, s.opts.IncludeStochastic)
	if err != nil {
		return nil, err
	}

	if s.opts.ModelPath != "" {
		if err := result.Payload.Save(s.opts.ModelPath); err != nil {
			return nil, err
		}
		s.models.Clear()
	}

	s.log.Info().
		Int("tickers", len(pool)).
		Int("train_rows", result.TrainRows).
		Float64("accuracy", result.Metrics.Accuracy).
		Msg("Model trained")

	return result, nil
}

// Backtest replays the persisted model over one ticker's history.
func (s *Service) Backtest(query string, cfg backtest.Config) (backtest.Stats, error) {
	ticker := s.resolver.Resolve(query)

	series, err := s.bars.Get(ticker, s.opts.HistoryDays)
	if err != nil {
		return backtest.Stats{}, fmt.Errorf("backtest %s: %w", ticker, err)
	}

	payload := s.models.Get(s.opts.ModelPath)
	return s.simulator.Run(series, payload, cfg), nil
}

// PredictLatest returns P(up) for the ticker's most recent session.
func (s *Service) PredictLatest(query string) (float64, bool, error) {
	ticker := s.resolver.Resolve(query)

	series, err := s.bars.Get(ticker, s.opts.HistoryDays)
	if err != nil {
		return 0, false, fmt.Errorf("predict %s: %w", ticker, err)
	}
	if len(series) == 0 {
		return 0, false, fmt.Errorf("predict %s: no data", ticker)
	}

	payload := s.models.Get(s.opts.ModelPath)
	if payload == nil {
		return model.NeutralProbability, false, nil
	}
	prob, ok := model.PredictLatest(payload, series, s.opts.IncludeStochastic)
	if !ok {
		return model.NeutralProbability, false, nil
	}
	return prob, true, nil
}

func (s *Service) fetchFlows(ticker string) []domain.FlowRecord {
	flows, err := s.flows.GetFlow(codeOf(ticker), s.opts.FlowLookbackDays)
	if err != nil {
		s.log.Warn().Str("ticker", ticker).Err(err).Msg("Institutional flow unavailable")
		return nil
	}
	return flows
}

func (s *Service) fetchFundamentals(ticker string) *domain.Fundamentals {
	fund, err := s.fundamentals.GetInfo(ticker)
	if err != nil {
		s.log.Warn().Str("ticker", ticker).Err(err).Msg("Fundamentals unavailable")
		return nil
	}
	return fund
}

func (s *Service) fetchFinancials(ticker string) []domain.QuarterlyFinancial {
	financials, err := s.financials.GetQuarterlyFinancials(codeOf(ticker))
	if err != nil {
		s.log.Warn().Str("ticker", ticker).Err(err).Msg("Quarterly financials unavailable")
		return nil
	}
	return financials
}

// keyMetrics computes the snapshot's OHLCV-derived display metrics.
func keyMetrics(series domain.BarSeries) KeyMetrics {
	var m KeyMetrics
	if len(series) < 2 {
		return m
	}

	closes := series.Closes()
	volumes := series.Volumes()
	returns := formulas.Returns(closes)

	if len(returns) >= 1 {
		v := round2(returns[len(returns)-1] * 100)
		m.Return1D = &v
	}
	if len(closes) >= 6 {
		v := round2((closes[len(closes)-1]/closes[len(closes)-6] - 1) * 100)
		m.Return5D = &v
	}
	if len(returns) >= 20 {
		v := round2(formulas.StdDev(returns[len(returns)-20:]) * 100)
		m.Volatility20D = &v
	}
	if len(volumes) >= 20 {
		avg := formulas.Mean(volumes[len(volumes)-20:])
		if avg > 0 {
			v := round2(volumes[len(volumes)-1] / avg)
			m.VolumeRatio = &v
		}
	}
	return m
}

// codeOf strips the provider suffix from a ticker.
func codeOf(ticker string) string {
	for _, suffix := range []string{".TWO", ".TW"} {
		if len(ticker) > len(suffix) && ticker[len(ticker)-len(suffix):] == suffix {
			return ticker[:len(ticker)-len(suffix)]
		}
	}
	return ticker
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
