package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/signalist/portfolio-service/internal/models"
)

// AddToWatchlist adds a symbol to the watchlist, updating the company name
// if the symbol is already tracked
func (db *DB) AddToWatchlist(w *models.WatchlistEntry) error {
	query := `
		INSERT INTO watchlist (symbol, company, added_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (symbol) DO UPDATE SET
			company = EXCLUDED.company
	`
	now := time.Now()
	_, err := db.conn.Exec(query, w.Symbol, w.Company, now)
	if err != nil {
		return fmt.Errorf("failed to add to watchlist: %w", err)
	}
	w.AddedAt = now
	return nil
}

// GetWatchlist retrieves all watchlist entries ordered by symbol
func (db *DB) GetWatchlist() ([]models.WatchlistEntry, error) {
	query := `
		SELECT symbol, company, added_at
		FROM watchlist
		ORDER BY symbol ASC
	`
	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query watchlist: %w", err)
	}
	defer rows.Close()

	var entries []models.WatchlistEntry
	for rows.Next() {
		var w models.WatchlistEntry
		if err := rows.Scan(&w.Symbol, &w.Company, &w.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan watchlist entry: %w", err)
		}
		entries = append(entries, w)
	}

	return entries, nil
}

// IsWatched reports whether a symbol is on the watchlist
func (db *DB) IsWatched(symbol string) (bool, error) {
	var exists bool
	err := db.conn.QueryRow(
		`SELECT EXISTS (SELECT 1 FROM watchlist WHERE symbol = $1)`, symbol,
	).Scan(&exists)
	if err != nil && err != sql.ErrNoRows {
		return false, fmt.Errorf("failed to check watchlist: %w", err)
	}
	return exists, nil
}

// RemoveFromWatchlist removes a symbol from the watchlist
func (db *DB) RemoveFromWatchlist(symbol string) error {
	result, err := db.conn.Exec(`DELETE FROM watchlist WHERE symbol = $1`, symbol)
	if err != nil {
		return fmt.Errorf("failed to remove from watchlist: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("watchlist entry not found: %s", symbol)
	}
	return nil
}
