package core

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrEmptyName        = errors.New("empty name")
	ErrInvalidDateRange = errors.New("end date precedes start date")
)

// Template is a recurring or one-off scheduled bill or income
// definition. Positive amounts are bills, negative amounts income.
type Template struct {
	ID         ID         `json:"id"`
	Name       string     `json:"name"`
	Benefactor string     `json:"benefactor,omitempty"`
	Amount     Money      `json:"amount"`
	Start      Month      `json:"startDate"`
	End        Month      `json:"endDate"`
	Partial    bool       `json:"partial"`
	Recurrence Recurrence `json:"recurrence"`
	Created    time.Time  `json:"created"`
}

// NewTemplate creates a template with a fresh identifier. Bounds,
// benefactor and the partial flag are set on the returned value before
// Validate.
func NewTemplate(name string, amount Money, recurrence Recurrence) (Template, error) {
	id, err := NewID()
	if err != nil {
		return Template{}, err
	}
	t := Template{
		ID:         id,
		Name:       name,
		Amount:     amount,
		Recurrence: recurrence,
		Created:    time.Now(),
	}
	if err := t.Validate(); err != nil {
		return Template{}, err
	}
	return t, nil
}

func (t Template) Validate() error {
	if t.ID.IsEmpty() {
		return ErrInvalidID
	}
	if strings.TrimSpace(t.Name) == "" {
		return ErrEmptyName
	}
	if t.Amount.IsZero() {
		return ErrInvalidAmount
	}
	if err := t.Recurrence.Validate(); err != nil {
		return err
	}
	if !t.Start.IsZero() && !t.End.IsZero() && t.End.Before(t.Start) {
		return ErrInvalidDateRange
	}
	return nil
}

// IsDueInMonth reports whether the template should be paid in the
// given month. Bounds are checked first: a start month strictly after
// the query month or an end month before it rule the template out
// regardless of recurrence.
func (t Template) IsDueInMonth(month Month) bool {
	if month.IsZero() {
		return false
	}
	if !t.Start.IsZero() && t.Start.After(month) {
		return false
	}
	if !t.End.IsZero() && t.End.Before(month) {
		return false
	}
	return t.Recurrence.occursIn(t.Start, month)
}

// matching returns the payments recorded against this template.
func (t Template) matching(payments []Payment) []Payment {
	var out []Payment
	for _, p := range payments {
		if p.TemplateID == t.ID {
			out = append(out, p)
		}
	}
	return out
}

// Cost sums the payments recorded against this template, clamped to
// the template's side of zero: excess on the wrong side never reduces
// the displayed cost below zero magnitude.
func (t Template) Cost(payments []Payment) Money {
	var sum Money
	for _, p := range t.matching(payments) {
		sum = sum.Add(p.Amount)
	}
	if t.Amount.IsPositive() && sum.IsNegative() {
		return Money{}
	}
	if t.Amount.IsNegative() && sum.IsPositive() {
		return Money{}
	}
	return sum
}

// IsPaid reports whether the bill is settled for the month the
// payments belong to. A partial template is settled only by a payment
// marked as closing; anything else is settled by any payment at all.
func (t Template) IsPaid(payments []Payment) bool {
	matched := t.matching(payments)
	if t.Partial {
		for _, p := range matched {
			if p.ClosePartial {
				return true
			}
		}
		return false
	}
	return len(matched) > 0
}

// Remaining is the amount still owed after the given payments, never
// negative.
func (t Template) Remaining(payments []Payment) Money {
	remaining := t.Amount.Sub(t.Cost(payments))
	if remaining.IsNegative() {
		return Money{}
	}
	return remaining
}
