package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/signalist/portfolio-service/internal/models"
)

// CreateTransaction appends a transaction to the log. The log is
// append-only: rows are never updated, the ledger replays them instead.
func (db *DB) CreateTransaction(t *models.Transaction) error {
	query := `
		INSERT INTO transactions (symbol, type, shares, price, total, executed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	now := time.Now()
	executedAt := t.ExecutedAt
	if executedAt.IsZero() {
		executedAt = now
	}

	err := db.conn.QueryRow(query,
		t.Symbol, t.Type, t.Shares, t.Price, t.Total, executedAt, now,
	).Scan(&t.ID)

	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	t.ExecutedAt = executedAt
	t.CreatedAt = now
	return nil
}

// GetAllTransactions retrieves the full log ordered by execution time ascending
func (db *DB) GetAllTransactions() ([]models.Transaction, error) {
	query := `
		SELECT id, symbol, type, shares, price, total, executed_at, created_at
		FROM transactions
		ORDER BY executed_at ASC, id ASC
	`
	return db.scanTransactions(db.conn.Query(query))
}

// GetTransactionsBySymbol retrieves a symbol's transactions ordered by execution time ascending
func (db *DB) GetTransactionsBySymbol(symbol string) ([]models.Transaction, error) {
	query := `
		SELECT id, symbol, type, shares, price, total, executed_at, created_at
		FROM transactions
		WHERE symbol = $1
		ORDER BY executed_at ASC, id ASC
	`
	return db.scanTransactions(db.conn.Query(query, symbol))
}

// GetTransactionByID retrieves a single transaction
func (db *DB) GetTransactionByID(id int) (*models.Transaction, error) {
	query := `
		SELECT id, symbol, type, shares, price, total, executed_at, created_at
		FROM transactions
		WHERE id = $1
	`
	var t models.Transaction
	err := db.conn.QueryRow(query, id).Scan(
		&t.ID, &t.Symbol, &t.Type, &t.Shares, &t.Price, &t.Total, &t.ExecutedAt, &t.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("transaction not found: %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &t, nil
}

// GetFirstBuyDate returns the earliest buy execution time for a symbol
func (db *DB) GetFirstBuyDate(symbol string) (time.Time, error) {
	query := `
		SELECT MIN(executed_at)
		FROM transactions
		WHERE symbol = $1 AND type = $2
	`
	var first sql.NullTime
	err := db.conn.QueryRow(query, symbol, models.TransactionTypeBuy).Scan(&first)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get first buy date: %w", err)
	}
	if !first.Valid {
		return time.Time{}, fmt.Errorf("no buy transactions for %s", symbol)
	}
	return first.Time, nil
}

// DeleteAllTransactions truncates the log. Used by portfolio reset only.
func (db *DB) DeleteAllTransactions() error {
	_, err := db.conn.Exec(`DELETE FROM transactions`)
	if err != nil {
		return fmt.Errorf("failed to delete transactions: %w", err)
	}
	return nil
}

func (db *DB) scanTransactions(rows *sql.Rows, err error) ([]models.Transaction, error) {
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []models.Transaction
	for rows.Next() {
		var t models.Transaction
		err := rows.Scan(
			&t.ID, &t.Symbol, &t.Type, &t.Shares, &t.Price, &t.Total, &t.ExecutedAt, &t.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, t)
	}

	return transactions, nil
}
