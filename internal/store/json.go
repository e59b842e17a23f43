package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"eyemoney/internal/core"
)

var (
	ErrInvalidLocale   = errors.New("locale must be a non-empty tag")
	ErrInvalidCurrency = errors.New("currency must be a three-letter code")
)

// persisted is the single JSON blob written to the state slot and
// encrypted into backups.
type persisted struct {
	Date       json.RawMessage   `json:"date"`
	Payments   []json.RawMessage `json:"payments"`
	Templates  []json.RawMessage `json:"templates"`
	Locale     string            `json:"locale"`
	Currency   string            `json:"currency"`
	Excessive  float64           `json:"excessive"`
	Benefactor string            `json:"benefactor,omitempty"`
}

// FromJSON rebuilds a store from its persisted form. A nil or empty
// blob yields a fresh store. Individual malformed records are dropped
// rather than failing the whole load; only an unreadable top-level
// document is an error.
func FromJSON(data []byte) (*Store, error) {
	s := New()
	if len(data) == 0 {
		return s, nil
	}
	var raw persisted
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse dataset: %w", err)
	}

	if len(raw.Date) > 0 {
		var date core.Month
		if err := json.Unmarshal(raw.Date, &date); err == nil && !date.IsZero() {
			s.date = date
		}
	}
	for _, entry := range raw.Payments {
		var p core.Payment
		if err := json.Unmarshal(entry, &p); err != nil {
			continue
		}
		if p.Validate() != nil {
			continue
		}
		s.payments = append(s.payments, p)
	}
	for _, entry := range raw.Templates {
		var t core.Template
		if err := json.Unmarshal(entry, &t); err != nil {
			continue
		}
		if t.Validate() != nil {
			continue
		}
		s.templates = append(s.templates, t)
	}
	if raw.Locale != "" {
		s.locale = raw.Locale
	}
	if len(raw.Currency) == 3 {
		s.currency = raw.Currency
	}
	if raw.Excessive > 0 {
		s.excessive = raw.Excessive
	}
	s.benefactor = raw.Benefactor
	return s, nil
}

// ToJSON serializes the store to its canonical persisted form.
func (s *Store) ToJSON() ([]byte, error) {
	payments := make([]json.RawMessage, 0, len(s.payments))
	for _, p := range s.payments {
		entry, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("marshal payment %s: %w", p.ID, err)
		}
		payments = append(payments, entry)
	}
	templates := make([]json.RawMessage, 0, len(s.templates))
	for _, t := range s.templates {
		entry, err := json.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("marshal template %s: %w", t.ID, err)
		}
		templates = append(templates, entry)
	}
	date, err := json.Marshal(s.date)
	if err != nil {
		return nil, fmt.Errorf("marshal date: %w", err)
	}
	return json.Marshal(persisted{
		Date:       date,
		Payments:   payments,
		Templates:  templates,
		Locale:     s.locale,
		Currency:   s.currency,
		Excessive:  s.excessive,
		Benefactor: s.benefactor,
	})
}
