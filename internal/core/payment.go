package core

import (
	"errors"
	"strings"
	"time"
)

var ErrAmountSign = errors.New("amount sign conflicts with the template")

// Payment records money moved in a given month, optionally against a
// template. A payment carrying the empty template identifier is an
// "unexpected" payment with no schedule behind it.
type Payment struct {
	ID           ID        `json:"id"`
	TemplateID   ID        `json:"templateId"`
	Name         string    `json:"name"`
	Amount       Money     `json:"amount"`
	Date         Month     `json:"date"`
	ClosePartial bool      `json:"closePartial"`
	Created      time.Time `json:"created"`
}

// NewScheduledPayment records a payment against a template. The sign
// must agree with the template: bills take non-negative amounts,
// income non-positive ones. A zero amount is allowed and means the
// cycle is being waived. The closing flag only sticks on partial
// templates.
func NewScheduledPayment(t Template, month Month, amount Money, closing bool) (Payment, error) {
	if month.IsZero() {
		return Payment{}, ErrInvalidMonth
	}
	if (amount.IsNegative() && t.Amount.IsPositive()) || (amount.IsPositive() && t.Amount.IsNegative()) {
		return Payment{}, ErrAmountSign
	}
	id, err := NewID()
	if err != nil {
		return Payment{}, err
	}
	p := Payment{
		ID:         id,
		TemplateID: t.ID,
		Name:       t.Name,
		Amount:     amount,
		Date:       month,
		Created:    time.Now(),
	}
	if t.Partial && closing {
		p.ClosePartial = true
	}
	return p, nil
}

// NewUnexpectedPayment records money moved outside any schedule. The
// amount is unconstrained in sign but must not be zero.
func NewUnexpectedPayment(name string, month Month, amount Money) (Payment, error) {
	if strings.TrimSpace(name) == "" {
		return Payment{}, ErrEmptyName
	}
	if amount.IsZero() {
		return Payment{}, ErrInvalidAmount
	}
	if month.IsZero() {
		return Payment{}, ErrInvalidMonth
	}
	id, err := NewID()
	if err != nil {
		return Payment{}, err
	}
	return Payment{
		ID:         id,
		TemplateID: EmptyID,
		Name:       name,
		Amount:     amount,
		Date:       month,
		Created:    time.Now(),
	}, nil
}

// Unexpected reports whether the payment is linked to no template.
func (p Payment) Unexpected() bool {
	return p.TemplateID.IsEmpty()
}

// Validate covers the invariants a persisted record must satisfy.
// Scheduled payments may carry a zero amount (a waived cycle);
// unexpected ones may not.
func (p Payment) Validate() error {
	if p.ID.IsEmpty() {
		return ErrInvalidID
	}
	if p.Date.IsZero() {
		return ErrInvalidMonth
	}
	if p.Unexpected() && p.Amount.IsZero() {
		return ErrInvalidAmount
	}
	return nil
}
