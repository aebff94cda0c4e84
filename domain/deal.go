package domain

import (
	"strings"
	"time"
)

// DefaultCurrency is used when a deal or contract does not declare one.
const DefaultCurrency = "USD"

// Deal is the joint-venture context that owns formulations, rules and
// settlement contracts. Participants are opaque ids from the external
// participant directory.
type Deal struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Currency     string    `json:"currency"`
	Participants []string  `json:"participants"`
	Version      int       `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Touch bumps the update timestamp.
func (d *Deal) Touch() {
	if d == nil {
		return
	}
	d.UpdatedAt = time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = d.UpdatedAt
	}
}

// HasParticipant reports whether id is a member of the deal.
func (d *Deal) HasParticipant(id string) bool {
	if d == nil {
		return false
	}
	for _, p := range d.Participants {
		if p == id {
			return true
		}
	}
	return false
}

// Validate checks the deal's own fields.
func (d *Deal) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return Validation("name", "must not be empty")
	}
	if len(d.Participants) == 0 {
		return Validation("participants", "a deal needs at least one participant")
	}
	seen := make(map[string]struct{}, len(d.Participants))
	for _, p := range d.Participants {
		if strings.TrimSpace(p) == "" {
			return Validation("participants", "participant id must not be empty")
		}
		if _, dup := seen[p]; dup {
			return Validation("participants", "duplicate participant %s", p)
		}
		seen[p] = struct{}{}
	}
	return nil
}

// NormalizeCurrency upper-cases a currency code and applies the default.
func NormalizeCurrency(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return DefaultCurrency
	}
	return code
}

// CurrencyScale returns the number of minor-unit decimal places for a currency.
func CurrencyScale(code string) int32 {
	switch NormalizeCurrency(code) {
	case "BTC", "ETH":
		return 8
	case "JPY", "KRW":
		return 0
	default:
		return 2
	}
}
