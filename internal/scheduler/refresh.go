package scheduler

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/twsight/twsight/internal/modules/history"
	"github.com/twsight/twsight/internal/modules/universe"
)

// BarRefreshJob refreshes the cached bar history for the scan universe
// after the session settles. Tickers already refreshed today are skipped,
// so a rerun after a partial failure resumes where it stopped.
type BarRefreshJob struct {
	store *history.Store
	repo  *universe.Repository
	days  int
	log   zerolog.Logger
}

// NewBarRefreshJob creates the nightly refresh job.
func NewBarRefreshJob(store *history.Store, repo *universe.Repository, days int, log zerolog.Logger) *BarRefreshJob {
	if days <= 0 {
		days = 180
	}
	return &BarRefreshJob{
		store: store,
		repo:  repo,
		days:  days,
		log:   log.With().Str("job", "bar_refresh").Logger(),
	}
}

// Name returns the job name
func (j *BarRefreshJob) Name() string {
	return "bar_refresh"
}

// Run refreshes every universe ticker's bar cache.
func (j *BarRefreshJob) Run() error {
	tickers := j.tickers()
	today := time.Now().Truncate(24 * time.Hour)

	refreshed, skipped, failed := 0, 0, 0
	for _, ticker := range tickers {
		if last, ok := j.store.LastDate(ticker); ok && !last.Before(today) {
			skipped++
			continue
		}
		if _, err := j.store.Refresh(ticker, j.days); err != nil {
			failed++
			j.log.Warn().Str("ticker", ticker).Err(err).Msg("Refresh failed")
			continue
		}
		refreshed++
	}

	j.log.Info().
		Int("refreshed", refreshed).
		Int("skipped", skipped).
		Int("failed", failed).
		Msg("Bar cache refresh complete")

	return nil
}

// tickers prefers the seeded universe store and falls back to the built-in
// scan list.
func (j *BarRefreshJob) tickers() []string {
	if j.repo != nil {
		if stocks, err := j.repo.All(); err == nil && len(stocks) > 0 {
			out := make([]string, len(stocks))
			for i, s := range stocks {
				out[i] = s.Ticker
			}
			return out
		}
	}
	return universe.DefaultUniverse
}

// ListingSource fetches the exchange listing, normally the TWSE client.
type ListingSource interface {
	GetListing() ([]universe.Stock, error)
}

// UniverseSyncJob reseeds the universe store from the exchange listing.
type UniverseSyncJob struct {
	source ListingSource
	repo   *universe.Repository
	log    zerolog.Logger
}

// NewUniverseSyncJob creates the listing sync job.
func NewUniverseSyncJob(source ListingSource, repo *universe.Repository, log zerolog.Logger) *UniverseSyncJob {
	return &UniverseSyncJob{
		source: source,
		repo:   repo,
		log:    log.With().Str("job", "universe_sync").Logger(),
	}
}

// Name returns the job name
func (j *UniverseSyncJob) Name() string {
	return "universe_sync"
}

// Run fetches the listing and upserts it into the universe store.
func (j *UniverseSyncJob) Run() error {
	stocks, err := j.source.GetListing()
	if err != nil {
		return err
	}

	count, err := j.repo.Upsert(stocks)
	if err != nil {
		return err
	}

	j.log.Info().Int("count", count).Msg("Universe synced from exchange listing")
	return nil
}
