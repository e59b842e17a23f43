// Package store holds the full in-memory dataset: every template and
// payment plus the locale, currency and threshold settings. All
// mutation goes through Store methods; its JSON form is both the
// locally persisted state and the plaintext payload of backups.
package store

import (
	"strings"

	"eyemoney/internal/core"
)

const (
	DefaultLocale   = "en-GB"
	DefaultCurrency = "EUR"
)

type Store struct {
	date       core.Month
	locale     string
	currency   string
	excessive  float64
	benefactor string
	templates  []core.Template
	payments   []core.Payment
}

func New() *Store {
	return &Store{
		date:     core.CurrentMonth(),
		locale:   DefaultLocale,
		currency: DefaultCurrency,
	}
}

func (s *Store) Date() core.Month {
	return s.date
}

func (s *Store) SetDate(m core.Month) error {
	if m.IsZero() {
		return core.ErrInvalidMonth
	}
	s.date = m
	return nil
}

func (s *Store) Locale() string {
	return s.locale
}

func (s *Store) SetLocale(locale string) error {
	if strings.TrimSpace(locale) == "" {
		return ErrInvalidLocale
	}
	s.locale = locale
	return nil
}

func (s *Store) Currency() string {
	return s.currency
}

// SetCurrency accepts a 3-letter ISO 4217 code.
func (s *Store) SetCurrency(code string) error {
	if len(code) != 3 {
		return ErrInvalidCurrency
	}
	s.currency = strings.ToUpper(code)
	return nil
}

// Excessive is the overpayment threshold in percent: a template's cost
// beyond amount*(1+Excessive/100) is flagged for highlighting.
func (s *Store) Excessive() float64 {
	return s.excessive
}

func (s *Store) SetExcessive(percent float64) error {
	if percent < 0 {
		return core.ErrInvalidAmount
	}
	s.excessive = percent
	return nil
}

// Benefactor is the active grouping filter; empty means no filter.
func (s *Store) Benefactor() string {
	return s.benefactor
}

func (s *Store) SetBenefactor(tag string) {
	s.benefactor = strings.TrimSpace(tag)
}

// TemplatesDueIn returns the templates due in the given month, in
// insertion order, honoring the active benefactor filter.
func (s *Store) TemplatesDueIn(month core.Month) ([]core.Template, error) {
	if month.IsZero() {
		return nil, core.ErrInvalidMonth
	}
	var out []core.Template
	for _, t := range s.templates {
		if s.benefactor != "" && t.Benefactor != s.benefactor {
			continue
		}
		if t.IsDueInMonth(month) {
			out = append(out, t)
		}
	}
	return out, nil
}

// PaymentsIn returns the payments applying to the given month, in
// insertion order.
func (s *Store) PaymentsIn(month core.Month) ([]core.Payment, error) {
	if month.IsZero() {
		return nil, core.ErrInvalidMonth
	}
	var out []core.Payment
	for _, p := range s.payments {
		if p.Date == month {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) Template(id core.ID) (core.Template, bool) {
	for _, t := range s.templates {
		if t.ID == id {
			return t, true
		}
	}
	return core.Template{}, false
}

func (s *Store) Payment(id core.ID) (core.Payment, bool) {
	for _, p := range s.payments {
		if p.ID == id {
			return p, true
		}
	}
	return core.Payment{}, false
}

// PutTemplate upserts by identifier, keeping the record's position
// when it already exists.
func (s *Store) PutTemplate(t core.Template) error {
	if err := t.Validate(); err != nil {
		return err
	}
	for i := range s.templates {
		if s.templates[i].ID == t.ID {
			s.templates[i] = t
			return nil
		}
	}
	s.templates = append(s.templates, t)
	return nil
}

// RemoveTemplate deletes the template and every payment referencing
// it. It reports whether a template was removed.
func (s *Store) RemoveTemplate(id core.ID) bool {
	idx := -1
	for i := range s.templates {
		if s.templates[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	kept := s.payments[:0]
	for _, p := range s.payments {
		if p.TemplateID != id {
			kept = append(kept, p)
		}
	}
	s.payments = kept
	s.templates = append(s.templates[:idx], s.templates[idx+1:]...)
	return true
}

func (s *Store) PutPayment(p core.Payment) error {
	if err := p.Validate(); err != nil {
		return err
	}
	for i := range s.payments {
		if s.payments[i].ID == p.ID {
			s.payments[i] = p
			return nil
		}
	}
	s.payments = append(s.payments, p)
	return nil
}

func (s *Store) RemovePayment(id core.ID) bool {
	for i := range s.payments {
		if s.payments[i].ID == id {
			s.payments = append(s.payments[:i], s.payments[i+1:]...)
			return true
		}
	}
	return false
}

// Templates returns a copy of every template, any month.
func (s *Store) Templates() []core.Template {
	return append([]core.Template(nil), s.templates...)
}

// Payments returns a copy of every payment, any month.
func (s *Store) Payments() []core.Payment {
	return append([]core.Payment(nil), s.payments...)
}
