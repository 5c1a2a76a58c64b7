// Package history is the on-disk bar cache: a read-through SQLite store
// between the data provider and everything that consumes bar series.
package history

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/twsight/twsight/internal/database"
	"github.com/twsight/twsight/internal/domain"
)

const dateLayout = "2006-01-02"

// BarFetcher fetches daily bars from the upstream provider.
type BarFetcher interface {
	GetHistory(ticker string, days int) (domain.BarSeries, error)
}

// Store is a read-through bar cache keyed by (ticker, date).
type Store struct {
	db      *database.DB
	fetcher BarFetcher
	// staleAfter is how old the newest cached bar may be before a fetch
	// is forced. Weekends and holidays mean "yesterday" is too strict.
	staleAfter time.Duration
	log        zerolog.Logger
}

// NewStore creates the bar cache and ensures its schema.
func NewStore(db *database.DB, fetcher BarFetcher, log zerolog.Logger) (*Store, error) {
	s := &Store{
		db:         db,
		fetcher:    fetcher,
		staleAfter: 4 * 24 * time.Hour,
		log:        log.With().Str("component", "history_store").Logger(),
	}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			ticker TEXT NOT NULL,
			date   TEXT NOT NULL,
			open   REAL NOT NULL,
			high   REAL NOT NULL,
			low    REAL NOT NULL,
			close  REAL NOT NULL,
			volume REAL NOT NULL,
			PRIMARY KEY (ticker, date)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create bars table: %w", err)
	}
	return nil
}

// Get returns up to days of cached bars for the ticker, fetching from the
// provider when the cache is empty or stale. A provider failure with a
// warm cache degrades to the cached series.
func (s *Store) Get(ticker string, days int) (domain.BarSeries, error) {
	cached, err := s.Load(ticker, days)
	if err != nil {
		return nil, err
	}

	if s.fresh(cached) {
		return cached, nil
	}

	fetched, err := s.fetcher.GetHistory(ticker, days)
	if err != nil || len(fetched) == 0 {
		if len(cached) > 0 {
			s.log.Warn().
				Str("ticker", ticker).
				Err(err).
				Msg("Provider fetch failed, serving cached bars")
			return cached, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to fetch history for %s: %w", ticker, err)
		}
		return nil, nil
	}

	fetched = fetched.Normalize()
	if err := s.save(ticker, fetched); err != nil {
		s.log.Warn().Str("ticker", ticker).Err(err).Msg("Failed to cache bars")
	}
	return tail(fetched, days), nil
}

// Refresh force-fetches and caches bars for the ticker, skipping the
// staleness check. Used by the nightly dataset refresh.
func (s *Store) Refresh(ticker string, days int) (int, error) {
	fetched, err := s.fetcher.GetHistory(ticker, days)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch history for %s: %w", ticker, err)
	}
	fetched = fetched.Normalize()
	if err := s.save(ticker, fetched); err != nil {
		return 0, err
	}
	return len(fetched), nil
}

// Load returns up to days of cached bars, oldest first.
func (s *Store) Load(ticker string, days int) (domain.BarSeries, error) {
	rows, err := s.db.Query(`
		SELECT date, open, high, low, close, volume
		FROM bars
		WHERE ticker = ?
		ORDER BY date DESC
		LIMIT ?
	`, ticker, days)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars for %s: %w", ticker, err)
	}
	defer rows.Close()

	var series domain.BarSeries
	for rows.Next() {
		var dateStr string
		var b domain.Bar
		if err := rows.Scan(&dateStr, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan bar row: %w", err)
		}
		date, err := time.Parse(dateLayout, dateStr)
		if err != nil {
			return nil, fmt.Errorf("corrupt bar date %q for %s: %w", dateStr, ticker, err)
		}
		b.Date = date
		series = append(series, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query returned newest-first for the LIMIT; callers need oldest-first.
	for i, j := 0, len(series)-1; i < j; i, j = i+1, j-1 {
		series[i], series[j] = series[j], series[i]
	}
	return series, nil
}

// LastDate returns the newest cached session date for the ticker.
func (s *Store) LastDate(ticker string) (time.Time, bool) {
	var dateStr string
	err := s.db.QueryRow(`SELECT MAX(date) FROM bars WHERE ticker = ?`, ticker).Scan(&dateStr)
	if err != nil || dateStr == "" {
		return time.Time{}, false
	}
	date, err := time.Parse(dateLayout, dateStr)
	if err != nil {
		return time.Time{}, false
	}
	return date, true
}

func (s *Store) fresh(series domain.BarSeries) bool {
	last, ok := series.Last()
	if !ok {
		return false
	}
	return time.Since(last.Date) < s.staleAfter
}

func (s *Store) save(ticker string, series domain.BarSeries) error {
	if len(series) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO bars (ticker, date, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare bar upsert: %w", err)
	}
	defer stmt.Close()

	for _, b := range series {
		_, err := stmt.Exec(ticker, b.Date.Format(dateLayout), b.Open, b.High, b.Low, b.Close, b.Volume)
		if err != nil {
			return fmt.Errorf("failed to upsert bar %s/%s: %w", ticker, b.Date.Format(dateLayout), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit bars: %w", err)
	}

	s.log.Debug().Str("ticker", ticker).Int("bars", len(series)).Msg("Bars cached")
	return nil
}

func tail(series domain.BarSeries, n int) domain.BarSeries {
	if n <= 0 || len(series) <= n {
		return series
	}
	return series[len(series)-n:]
}
