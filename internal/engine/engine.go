// Package engine orchestrates the store, the persistence slot and the
// backup codec behind the single API the UI consumes. It keeps the
// current-month pointer, recomputes the expected/paid/remaining
// aggregates after every mutation and notifies registered listeners.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"eyemoney/internal/backup"
	"eyemoney/internal/core"
	"eyemoney/internal/i18n"
	"eyemoney/internal/log"
	"eyemoney/internal/store"
)

var (
	ErrTemplateNotFound    = errors.New("template does not exist in the current month")
	ErrAlreadyPaid         = errors.New("template has already been paid")
	ErrPaymentNotFound     = errors.New("payment not found in the current month")
	ErrUnsupportedLocale   = errors.New("unsupported locale")
	ErrUnsupportedCurrency = errors.New("unsupported currency")
)

// errNoChange short-circuits mutate for no-op setters: nothing is
// persisted and no listener fires.
var errNoChange = errors.New("no change")

// StateSlot is the durable key-value slot the dataset is persisted to.
// Load returns nil when nothing has been saved yet.
type StateSlot interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	Clear(ctx context.Context) error
}

// Listener is invoked synchronously after a change, outside the engine
// lock, so it may call back into the engine.
type Listener func(*Engine)

type Engine struct {
	mu        sync.Mutex
	slot      StateSlot
	store     *store.Store
	month     core.Month
	expected  core.Money
	paid      core.Money
	remaining core.Money
	logger    *log.Logger

	listenerMu        sync.Mutex
	listeners         []Listener
	mutationListeners []Listener
}

// New loads the persisted dataset from the slot. A corrupt blob is not
// fatal: the slot is cleared and the engine starts empty.
func New(ctx context.Context, slot StateSlot, logger *log.Logger) (*Engine, error) {
	data, err := slot.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	st, parseErr := store.FromJSON(data)
	if parseErr != nil {
		logger.Warn("persisted state is corrupt, starting empty", "error", parseErr)
		if clearErr := slot.Clear(ctx); clearErr != nil {
			logger.Warn("could not clear corrupt state", "error", clearErr)
		}
		st = store.New()
	}
	e := &Engine{
		slot:   slot,
		store:  st,
		month:  core.CurrentMonth(),
		logger: logger,
	}
	e.recompute()
	return e, nil
}

// OnChange registers a listener called synchronously, in registration
// order, after every mutating operation and after every reload.
func (e *Engine) OnChange(fn Listener) {
	e.listenerMu.Lock()
	defer e.listenerMu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// OnMutate registers a listener called only for mutations made through
// this engine, never for reloads. Cross-process publishers hang off
// this hook: a reload triggered by another instance's notification
// must not publish again, or two instances echo each other forever.
func (e *Engine) OnMutate(fn Listener) {
	e.listenerMu.Lock()
	defer e.listenerMu.Unlock()
	e.mutationListeners = append(e.mutationListeners, fn)
}

func (e *Engine) notify(mutation bool) {
	e.listenerMu.Lock()
	listeners := append([]Listener(nil), e.listeners...)
	if mutation {
		listeners = append(listeners, e.mutationListeners...)
	}
	e.listenerMu.Unlock()
	for _, fn := range listeners {
		fn(e)
	}
}

// mutate runs fn under the engine lock, persists and recomputes on
// success, then fires the change listeners with the lock released.
func (e *Engine) mutate(ctx context.Context, fn func() error) error {
	e.mu.Lock()
	err := fn()
	if err == nil {
		err = e.save(ctx)
	}
	e.mu.Unlock()
	if errors.Is(err, errNoChange) {
		return nil
	}
	if err != nil {
		return err
	}
	e.notify(true)
	return nil
}

// save persists the store and recomputes the aggregates. Callers hold
// the mutex.
func (e *Engine) save(ctx context.Context) error {
	blob, err := e.store.ToJSON()
	if err != nil {
		return fmt.Errorf("serialize state: %w", err)
	}
	if err := e.slot.Save(ctx, blob); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	e.recompute()
	return nil
}

// recompute derives the monthly aggregates. Callers hold the mutex.
func (e *Engine) recompute() {
	templates, _ := e.store.TemplatesDueIn(e.month)
	payments, _ := e.store.PaymentsIn(e.month)

	var expected, paid, remaining core.Money
	for _, t := range templates {
		if !t.Amount.IsPositive() {
			continue
		}
		expected = expected.Add(t.Amount)
		if !t.IsPaid(payments) {
			remaining = remaining.Add(t.Remaining(payments))
		}
	}
	for _, p := range payments {
		if p.Amount.IsPositive() {
			paid = paid.Add(p.Amount)
		}
	}
	e.expected, e.paid, e.remaining = expected, paid, remaining
}

func (e *Engine) Month() core.Month {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.month
}

// SetMonth moves the current-month pointer and persists the selection.
func (e *Engine) SetMonth(ctx context.Context, month core.Month) error {
	return e.mutate(ctx, func() error {
		if month.IsZero() {
			return core.ErrInvalidMonth
		}
		if month == e.month {
			return errNoChange
		}
		e.month = month
		return e.store.SetDate(month)
	})
}

func (e *Engine) Expected() core.Money {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.expected
}

func (e *Engine) Paid() core.Money {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paid
}

func (e *Engine) Remaining() core.Money {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.remaining
}

// Templates returns the templates due in the current month.
func (e *Engine) Templates() []core.Template {
	e.mu.Lock()
	defer e.mu.Unlock()
	templates, _ := e.store.TemplatesDueIn(e.month)
	return templates
}

// Payments returns the payments recorded for the current month.
func (e *Engine) Payments() []core.Payment {
	e.mu.Lock()
	defer e.mu.Unlock()
	payments, _ := e.store.PaymentsIn(e.month)
	return payments
}

// Template looks a template up by identifier across all months.
func (e *Engine) Template(id core.ID) (core.Template, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Template(id)
}

// AddPayment records a payment against a template due in the current
// month. It refuses when the template is already settled: any payment
// settles a non-partial template, only a closing payment settles a
// partial one. The final flag marks a partial installment as closing.
func (e *Engine) AddPayment(ctx context.Context, id core.ID, amount core.Money, final bool) error {
	return e.mutate(ctx, func() error {
		templates, err := e.store.TemplatesDueIn(e.month)
		if err != nil {
			return err
		}
		var template core.Template
		found := false
		for _, t := range templates {
			if t.ID == id {
				template, found = t, true
				break
			}
		}
		if !found {
			return ErrTemplateNotFound
		}

		payments, err := e.store.PaymentsIn(e.month)
		if err != nil {
			return err
		}
		if template.IsPaid(payments) {
			return ErrAlreadyPaid
		}

		payment, err := core.NewScheduledPayment(template, e.month, amount, final)
		if err != nil {
			return err
		}
		return e.store.PutPayment(payment)
	})
}

// AddUnexpected records a payment with no schedule behind it. The sign
// is unconstrained.
func (e *Engine) AddUnexpected(ctx context.Context, name string, amount core.Money) error {
	return e.mutate(ctx, func() error {
		payment, err := core.NewUnexpectedPayment(name, e.month, amount)
		if err != nil {
			return err
		}
		return e.store.PutPayment(payment)
	})
}

// UndoPayment removes a payment recorded in the current month.
func (e *Engine) UndoPayment(ctx context.Context, id core.ID) error {
	return e.mutate(ctx, func() error {
		payments, err := e.store.PaymentsIn(e.month)
		if err != nil {
			return err
		}
		for _, p := range payments {
			if p.ID == id {
				e.store.RemovePayment(id)
				return nil
			}
		}
		return ErrPaymentNotFound
	})
}

// PutTemplate upserts a schedule definition.
func (e *Engine) PutTemplate(ctx context.Context, t core.Template) error {
	return e.mutate(ctx, func() error {
		return e.store.PutTemplate(t)
	})
}

// DeleteTemplate removes a template and every payment referencing it.
// Deleting an unknown template is a no-op.
func (e *Engine) DeleteTemplate(ctx context.Context, id core.ID) error {
	return e.mutate(ctx, func() error {
		if !e.store.RemoveTemplate(id) {
			return errNoChange
		}
		return nil
	})
}

// IsExcessive reports whether the template's cost for the given
// payments exceeds its amount by more than the configured threshold.
// The flag is for highlighting only; it never blocks a payment.
func (e *Engine) IsExcessive(t core.Template, payments []core.Payment) bool {
	e.mu.Lock()
	threshold := e.store.Excessive()
	e.mu.Unlock()
	cost := t.Cost(payments)
	limit := float64(t.Amount.Cents) * (1 + threshold/100)
	return float64(cost.Cents) > limit
}

// Export encrypts the full dataset with the given password.
func (e *Engine) Export(ctx context.Context, password string) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(password) < backup.MinPasswordLen {
		return nil, backup.ErrWeakPassword
	}
	blob, err := e.store.ToJSON()
	if err != nil {
		return nil, fmt.Errorf("serialize state: %w", err)
	}
	return backup.Encrypt(password, blob)
}

// Import decrypts a backup and replaces the in-memory dataset with it,
// persisting the result. The current-month pointer is kept.
func (e *Engine) Import(ctx context.Context, password string, data []byte) error {
	return e.mutate(ctx, func() error {
		plaintext, err := backup.Decrypt(password, data)
		if err != nil {
			return err
		}
		st, err := store.FromJSON(plaintext)
		if err != nil {
			return fmt.Errorf("%w: %v", backup.ErrUnsupportedFormat, err)
		}
		e.store = st
		e.logger.Info("backup restored",
			"templates", len(st.Templates()),
			"payments", len(st.Payments()))
		return nil
	})
}

// Reload replaces the dataset from the slot after an external writer
// changed it. Last writer wins; nothing is merged. Only the change
// listeners fire, not the mutation hooks.
func (e *Engine) Reload(ctx context.Context) error {
	e.mu.Lock()
	data, err := e.slot.Load(ctx)
	if err == nil {
		var st *store.Store
		if st, err = store.FromJSON(data); err == nil {
			e.store = st
			e.recompute()
		}
	}
	e.mu.Unlock()
	if err != nil {
		return fmt.Errorf("reload state: %w", err)
	}
	e.notify(false)
	return nil
}

func (e *Engine) Locale() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Locale()
}

func (e *Engine) SetLocale(ctx context.Context, tag string) error {
	return e.mutate(ctx, func() error {
		if !i18n.SupportedLocale(tag) {
			return ErrUnsupportedLocale
		}
		if e.store.Locale() == tag {
			return errNoChange
		}
		return e.store.SetLocale(tag)
	})
}

func (e *Engine) Currency() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Currency()
}

func (e *Engine) SetCurrency(ctx context.Context, code string) error {
	return e.mutate(ctx, func() error {
		if !i18n.SupportedCurrency(code) {
			return ErrUnsupportedCurrency
		}
		if e.store.Currency() == code {
			return errNoChange
		}
		return e.store.SetCurrency(code)
	})
}

func (e *Engine) Excessive() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Excessive()
}

func (e *Engine) SetExcessive(ctx context.Context, percent float64) error {
	return e.mutate(ctx, func() error {
		return e.store.SetExcessive(percent)
	})
}

func (e *Engine) Benefactor() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Benefactor()
}

// SetBenefactor filters the month view to one benefactor tag; an empty
// tag clears the filter.
func (e *Engine) SetBenefactor(ctx context.Context, tag string) error {
	return e.mutate(ctx, func() error {
		e.store.SetBenefactor(tag)
		return nil
	})
}

// DefaultCurrency is the currency suggested for the active locale.
func (e *Engine) DefaultCurrency() (i18n.Currency, bool) {
	return i18n.DefaultCurrency(e.Locale())
}

// FormatCurrency renders an amount in the active locale and currency.
func (e *Engine) FormatCurrency(m core.Money) string {
	e.mu.Lock()
	locale, code := e.store.Locale(), e.store.Currency()
	e.mu.Unlock()
	return i18n.FormatAmount(locale, code, m.Float64())
}
