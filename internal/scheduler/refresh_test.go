package scheduler

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twsight/twsight/internal/database"
	"github.com/twsight/twsight/internal/domain"
	"github.com/twsight/twsight/internal/modules/history"
	"github.com/twsight/twsight/internal/modules/universe"
)

type scriptedFetcher struct {
	calls map[string]int
	fail  map[string]bool
}

func (f *scriptedFetcher) GetHistory(ticker string, days int) (domain.BarSeries, error) {
	f.calls[ticker]++
	if f.fail[ticker] {
		return nil, errors.New("provider down")
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)
	return domain.BarSeries{
		{Date: today.AddDate(0, 0, -1), Close: 100, Volume: 1000},
		{Date: today, Close: 101, Volume: 1000},
	}, nil
}

func refreshFixture(t *testing.T, fetcher history.BarFetcher) (*history.Store, *universe.Repository) {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "twsight.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := history.NewStore(db, fetcher, zerolog.Nop())
	require.NoError(t, err)
	repo, err := universe.NewRepository(db, zerolog.Nop())
	require.NoError(t, err)
	return store, repo
}

func TestBarRefreshJobResumable(t *testing.T) {
	fetcher := &scriptedFetcher{calls: map[string]int{}, fail: map[string]bool{}}
	store, repo := refreshFixture(t, fetcher)

	_, err := repo.Upsert([]universe.Stock{
		{Code: "2330", Name: "台積電", IsActive: true},
		{Code: "2317", Name: "鴻海", IsActive: true},
	})
	require.NoError(t, err)

	job := NewBarRefreshJob(store, repo, 30, zerolog.Nop())
	assert.Equal(t, "bar_refresh", job.Name())

	require.NoError(t, job.Run())
	assert.Equal(t, 1, fetcher.calls["2330.TW"])
	assert.Equal(t, 1, fetcher.calls["2317.TW"])

	// A rerun skips tickers already current for today.
	require.NoError(t, job.Run())
	assert.Equal(t, 1, fetcher.calls["2330.TW"])
	assert.Equal(t, 1, fetcher.calls["2317.TW"])
}

func TestBarRefreshJobSurvivesFailures(t *testing.T) {
	fetcher := &scriptedFetcher{
		calls: map[string]int{},
		fail:  map[string]bool{"2317.TW": true},
	}
	store, repo := refreshFixture(t, fetcher)

	_, err := repo.Upsert([]universe.Stock{
		{Code: "2330", Name: "台積電", IsActive: true},
		{Code: "2317", Name: "鴻海", IsActive: true},
	})
	require.NoError(t, err)

	job := NewBarRefreshJob(store, repo, 30, zerolog.Nop())
	require.NoError(t, job.Run())

	// The failing ticker never blocks the rest.
	series, err := store.Load("2330.TW", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, series)
}

func TestBarRefreshJobFallsBackToDefaultUniverse(t *testing.T) {
	fetcher := &scriptedFetcher{calls: map[string]int{}, fail: map[string]bool{}}
	store, repo := refreshFixture(t, fetcher)

	job := NewBarRefreshJob(store, repo, 30, zerolog.Nop())
	require.NoError(t, job.Run())

	total := 0
	for _, n := range fetcher.calls {
		total += n
	}
	assert.Equal(t, len(universe.DefaultUniverse), total)
}

type fakeListing struct {
	stocks []universe.Stock
	err    error
}

func (f *fakeListing) GetListing() ([]universe.Stock, error) {
	return f.stocks, f.err
}

func TestUniverseSyncJob(t *testing.T) {
	_, repo := refreshFixture(t, &scriptedFetcher{calls: map[string]int{}, fail: map[string]bool{}})

	source := &fakeListing{stocks: []universe.Stock{
		{Code: "2330", Name: "台積電", IsActive: true},
		{Code: "913889", Name: "warrant", IsActive: true},
	}}

	job := NewUniverseSyncJob(source, repo, zerolog.Nop())
	assert.Equal(t, "universe_sync", job.Name())
	require.NoError(t, job.Run())

	stocks, err := repo.All()
	require.NoError(t, err)
	require.Len(t, stocks, 1)
	assert.Equal(t, "2330", stocks[0].Code)

	source.err = errors.New("listing unavailable")
	assert.Error(t, job.Run())
}
