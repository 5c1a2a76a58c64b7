package universe

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/twsight/twsight/internal/database"
)

var fourDigitCode = regexp.MustCompile(`^\d{4}$`)

// Repository stores the stock universe and resolves ticker names.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a universe repository and ensures its schema.
func NewRepository(db *database.DB, log zerolog.Logger) (*Repository, error) {
	r := &Repository{
		db:  db,
		log: log.With().Str("component", "universe_repository").Logger(),
	}
	if err := r.migrate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Repository) migrate() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS universe (
			code      TEXT PRIMARY KEY,
			name      TEXT NOT NULL,
			ticker    TEXT NOT NULL,
			market    TEXT NOT NULL DEFAULT 'TWSE',
			is_etf    INTEGER NOT NULL DEFAULT 0,
			is_active INTEGER NOT NULL DEFAULT 1
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create universe table: %w", err)
	}
	return nil
}

// Upsert inserts or replaces listing rows. Only 4-digit equity/ETF codes
// are kept; derivative and warrant codes are dropped.
func (r *Repository) Upsert(stocks []Stock) (int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO universe (code, name, ticker, market, is_etf, is_active)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	count := 0
	for _, s := range stocks {
		if !fourDigitCode.MatchString(s.Code) {
			continue
		}
		ticker := s.Ticker
		if ticker == "" {
			ticker = s.Code + ".TW"
		}
		market := s.Market
		if market == "" {
			market = "TWSE"
		}
		if _, err := stmt.Exec(s.Code, s.Name, ticker, market, s.IsETF || IsETFCode(s.Code), s.IsActive); err != nil {
			return 0, fmt.Errorf("failed to upsert %s: %w", s.Code, err)
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit upsert: %w", err)
	}

	r.log.Info().Int("count", count).Msg("Universe updated")
	return count, nil
}

// All returns the active universe ordered by code.
func (r *Repository) All() ([]Stock, error) {
	rows, err := r.db.Query(`
		SELECT code, name, ticker, market, is_etf, is_active
		FROM universe
		WHERE is_active = 1
		ORDER BY code
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query universe: %w", err)
	}
	defer rows.Close()

	var stocks []Stock
	for rows.Next() {
		var s Stock
		if err := rows.Scan(&s.Code, &s.Name, &s.Ticker, &s.Market, &s.IsETF, &s.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan universe row: %w", err)
		}
		stocks = append(stocks, s)
	}
	return stocks, rows.Err()
}

// Get returns one stock by exchange code.
func (r *Repository) Get(code string) (*Stock, error) {
	var s Stock
	err := r.db.QueryRow(`
		SELECT code, name, ticker, market, is_etf, is_active
		FROM universe WHERE code = ?
	`, code).Scan(&s.Code, &s.Name, &s.Ticker, &s.Market, &s.IsETF, &s.IsActive)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query stock %s: %w", code, err)
	}
	return &s, nil
}

// Resolve turns user input into a provider ticker: a code gets the ".TW"
// suffix, a name is looked up exactly and then by substring. Unresolvable
// input is returned unchanged so the data provider gets the final say.
func (r *Repository) Resolve(query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return query
	}
	if strings.HasSuffix(query, ".TW") || strings.HasSuffix(query, ".TWO") {
		return query
	}
	if isDigits(query) {
		return query + ".TW"
	}

	var code string
	err := r.db.QueryRow(`SELECT code FROM universe WHERE name = ?`, query).Scan(&code)
	if err == sql.ErrNoRows {
		err = r.db.QueryRow(
			`SELECT code FROM universe WHERE name LIKE ? ORDER BY code LIMIT 1`,
			"%"+query+"%",
		).Scan(&code)
	}
	if err != nil {
		return query
	}
	return code + ".TW"
}

// NameOf returns the listed name for a ticker, or the ticker itself when
// unknown.
func (r *Repository) NameOf(ticker string) string {
	code := strings.TrimSuffix(strings.TrimSuffix(ticker, ".TWO"), ".TW")
	var name string
	if err := r.db.QueryRow(`SELECT name FROM universe WHERE code = ?`, code).Scan(&name); err != nil {
		return ticker
	}
	return name
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
