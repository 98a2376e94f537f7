package models

import "time"

// WatchlistEntry represents a symbol the user tracks on the dashboard
type WatchlistEntry struct {
	Symbol  string    `json:"symbol"`
	Company string    `json:"company,omitempty"`
	AddedAt time.Time `json:"added_at"`
}
