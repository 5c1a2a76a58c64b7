package universe

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/twsight/twsight/internal/modules/scoring"
)

// ScanMode selects the per-ticker evaluation path.
type ScanMode string

const (
	ModeShort       ScanMode = "short"
	ModeLong        ScanMode = "long"
	ModeProbability ScanMode = "probability"
)

// ScanItem is one ticker's scan outcome. Probability is set only in
// probability mode.
type ScanItem struct {
	scoring.Result
	Probability *float64 `json:"probability,omitempty"`
}

// ScoreFunc evaluates a single ticker. Implementations are injected by the
// analysis layer so the scanner stays ignorant of data sources.
type ScoreFunc func(ticker string) (ScanItem, error)

// ScanReport is the aggregated outcome of a universe scan.
type ScanReport struct {
	Mode     ScanMode   `json:"mode"`
	Scanned  int        `json:"scanned"`
	Failed   int        `json:"failed"`
	TopPicks []ScanItem `json:"top_picks"`
	Warnings []ScanItem `json:"warnings"`
	Results  []ScanItem `json:"results"`
}

// ScannerConfig bounds the scan fan-out and result partitioning.
type ScannerConfig struct {
	Workers     int
	MaxPicks    int
	MaxWarnings int
	ProbBuy     float64
	ProbSell    float64
	Thresholds  scoring.Thresholds
}

// DefaultScannerConfig returns the standard scan bounds.
func DefaultScannerConfig() ScannerConfig {
	return ScannerConfig{
		Workers:     4,
		MaxPicks:    5,
		MaxWarnings: 3,
		ProbBuy:     0.60,
		ProbSell:    0.40,
		Thresholds:  scoring.DefaultThresholds(),
	}
}

// Scanner fans a scoring function out across a ticker universe with a
// bounded worker pool and partitions the results into picks and warnings.
type Scanner struct {
	cfg ScannerConfig
	log zerolog.Logger
}

// NewScanner creates a universe scanner.
func NewScanner(cfg ScannerConfig, log zerolog.Logger) *Scanner {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxPicks <= 0 {
		cfg.MaxPicks = 5
	}
	if cfg.MaxWarnings <= 0 {
		cfg.MaxWarnings = 3
	}
	return &Scanner{
		cfg: cfg,
		log: log.With().Str("component", "universe_scanner").Logger(),
	}
}

type scanJob struct {
	index  int
	ticker string
}

type scanResult struct {
	index int
	item  ScanItem
	err   error
}

// Scan evaluates every ticker concurrently. A failing ticker is logged and
// excluded; it never aborts the scan. Given identical inputs and a
// deterministic score function, the report is identical run to run.
func (s *Scanner) Scan(tickers []string, mode ScanMode, score ScoreFunc) ScanReport {
	report := ScanReport{Mode: mode, Scanned: len(tickers)}
	if len(tickers) == 0 {
		return report
	}

	jobs := make(chan scanJob, len(tickers))
	results := make(chan scanResult, len(tickers))

	workers := s.cfg.Workers
	if len(tickers) < workers {
		workers = len(tickers)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				item, err := score(job.ticker)
				results <- scanResult{index: job.index, item: item, err: err}
			}
		}()
	}

	for idx, ticker := range tickers {
		jobs <- scanJob{index: idx, ticker: ticker}
	}
	close(jobs)

	wg.Wait()
	close(results)

	items := make([]ScanItem, 0, len(tickers))
	for res := range results {
		if res.err != nil {
			report.Failed++
			s.log.Warn().
				Str("ticker", tickers[res.index]).
				Err(res.err).
				Msg("Ticker scan failed, excluding from results")
			continue
		}
		items = append(items, res.item)
	}

	sortItems(items, mode)
	report.Results = items
	report.TopPicks, report.Warnings = s.partition(items, mode)

	s.log.Info().
		Str("mode", string(mode)).
		Int("scanned", report.Scanned).
		Int("failed", report.Failed).
		Int("picks", len(report.TopPicks)).
		Int("warnings", len(report.Warnings)).
		Msg("Universe scan complete")

	return report
}

// sortItems orders results best-first with the ticker as a stable tiebreak,
// so the report is deterministic regardless of worker scheduling.
func sortItems(items []ScanItem, mode ScanMode) {
	sort.Slice(items, func(i, j int) bool {
		if mode == ModeProbability {
			pi, pj := probOf(items[i]), probOf(items[j])
			if pi != pj {
				return pi > pj
			}
		} else if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].Ticker < items[j].Ticker
	})
}

func probOf(item ScanItem) float64 {
	if item.Probability == nil {
		return 0
	}
	return *item.Probability
}

func (s *Scanner) partition(items []ScanItem, mode ScanMode) (picks, warnings []ScanItem) {
	t := s.cfg.Thresholds

	for _, item := range items {
		if len(picks) >= s.cfg.MaxPicks {
			break
		}
		if mode == ModeProbability {
			if item.Probability != nil && *item.Probability >= s.cfg.ProbBuy {
				picks = append(picks, item)
			}
			continue
		}
		if item.Score >= t.InclusionBar(item.IsETF) && item.Signal != scoring.SignalSell {
			picks = append(picks, item)
		}
	}

	// Warnings ascend from worst, so walk the sorted slice backwards.
	for i := len(items) - 1; i >= 0; i-- {
		if len(warnings) >= s.cfg.MaxWarnings {
			break
		}
		item := items[i]
		if mode == ModeProbability {
			if item.Probability != nil && *item.Probability <= s.cfg.ProbSell {
				warnings = append(warnings, item)
			}
			continue
		}
		if item.Score <= t.WarningScore ||
			item.Signal == scoring.SignalSell ||
			item.Signal == scoring.SignalWait {
			warnings = append(warnings, item)
		}
	}

	return picks, warnings
}
