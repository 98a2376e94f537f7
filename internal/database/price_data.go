package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/signalist/portfolio-service/internal/models"
)

// UpsertDailyClose inserts or updates one daily close for a symbol
func (db *DB) UpsertDailyClose(p *models.PriceDataDaily) error {
	query := `
		INSERT INTO price_data_daily (symbol, date, close, volume, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (symbol, date) DO UPDATE SET
			close = EXCLUDED.close,
			volume = EXCLUDED.volume
		RETURNING id
	`
	err := db.conn.QueryRow(query,
		p.Symbol, p.Date, p.Close, p.Volume, time.Now(),
	).Scan(&p.ID)

	if err != nil {
		return fmt.Errorf("failed to upsert daily close: %w", err)
	}
	return nil
}

// GetRecentCloses retrieves up to limit of the most recent closes for a
// symbol, returned ascending by date as the forecast engine expects.
func (db *DB) GetRecentCloses(symbol string, limit int) ([]models.PriceDataDaily, error) {
	query := `
		SELECT id, symbol, date, close, volume, created_at
		FROM price_data_daily
		WHERE symbol = $1
		ORDER BY date DESC
		LIMIT $2
	`
	closes, err := db.scanDailyCloses(db.conn.Query(query, symbol, limit))
	if err != nil {
		return nil, err
	}

	// Query is newest-first to honor the limit; flip to ascending.
	for i, j := 0, len(closes)-1; i < j; i, j = i+1, j-1 {
		closes[i], closes[j] = closes[j], closes[i]
	}
	return closes, nil
}

// GetClosesSince retrieves all closes for a symbol on or after a date, ascending
func (db *DB) GetClosesSince(symbol string, since time.Time) ([]models.PriceDataDaily, error) {
	query := `
		SELECT id, symbol, date, close, volume, created_at
		FROM price_data_daily
		WHERE symbol = $1 AND date >= $2
		ORDER BY date ASC
	`
	return db.scanDailyCloses(db.conn.Query(query, symbol, since))
}

// GetLatestClose retrieves the most recent close for a symbol
func (db *DB) GetLatestClose(symbol string) (*models.PriceDataDaily, error) {
	query := `
		SELECT id, symbol, date, close, volume, created_at
		FROM price_data_daily
		WHERE symbol = $1
		ORDER BY date DESC
		LIMIT 1
	`
	var p models.PriceDataDaily
	err := db.conn.QueryRow(query, symbol).Scan(
		&p.ID, &p.Symbol, &p.Date, &p.Close, &p.Volume, &p.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no price data found for %s", symbol)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest close: %w", err)
	}
	return &p, nil
}

// DeletePriceDataOlderThan removes closes older than a date, returning the
// number of rows removed
func (db *DB) DeletePriceDataOlderThan(date time.Time) (int64, error) {
	result, err := db.conn.Exec(`DELETE FROM price_data_daily WHERE date < $1`, date)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old price data: %w", err)
	}
	return result.RowsAffected()
}

func (db *DB) scanDailyCloses(rows *sql.Rows, err error) ([]models.PriceDataDaily, error) {
	if err != nil {
		return nil, fmt.Errorf("failed to query price data: %w", err)
	}
	defer rows.Close()

	var closes []models.PriceDataDaily
	for rows.Next() {
		var p models.PriceDataDaily
		err := rows.Scan(&p.ID, &p.Symbol, &p.Date, &p.Close, &p.Volume, &p.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan price data: %w", err)
		}
		closes = append(closes, p)
	}

	return closes, nil
}
