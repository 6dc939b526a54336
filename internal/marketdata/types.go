package marketdata

import "time"

// PriceTick is one real-time price observation
type PriceTick struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Volume    int64     `json:"volume,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"` // "stream", "rest", "html"
	IsStale   bool      `json:"is_stale"`
}
