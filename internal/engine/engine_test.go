package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"eyemoney/internal/backup"
	"eyemoney/internal/core"
	"eyemoney/internal/log"
	"eyemoney/internal/persist"
)

func newEngine(t *testing.T) (*Engine, *persist.MemorySlot) {
	t.Helper()
	slot := persist.NewMemorySlot()
	e, err := New(context.Background(), slot, log.New("engine-test"))
	if err != nil {
		t.Fatal(err)
	}
	return e, slot
}

func addTemplate(t *testing.T, e *Engine, name string, cents int64, r core.Recurrence) core.Template {
	t.Helper()
	tmpl, err := core.NewTemplate(name, core.Money{Cents: cents}, r)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.PutTemplate(context.Background(), tmpl); err != nil {
		t.Fatal(err)
	}
	return tmpl
}

func TestAggregates(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	month := core.NewMonth(2025, time.June)
	if err := e.SetMonth(ctx, month); err != nil {
		t.Fatal(err)
	}

	rent := addTemplate(t, e, "rent", 90000, core.Monthly)
	addTemplate(t, e, "gym", 3000, core.Monthly)
	addTemplate(t, e, "salary", -250000, core.Monthly)

	// Income never counts toward expected.
	if got := e.Expected(); got.Cents != 93000 {
		t.Fatalf("expected = %d, want 93000", got.Cents)
	}
	if got := e.Remaining(); got.Cents != 93000 {
		t.Fatalf("remaining = %d, want 93000", got.Cents)
	}
	if got := e.Paid(); !got.IsZero() {
		t.Fatalf("paid = %d, want 0", got.Cents)
	}

	if err := e.AddPayment(ctx, rent.ID, core.Money{Cents: 90000}, false); err != nil {
		t.Fatal(err)
	}
	if got := e.Paid(); got.Cents != 90000 {
		t.Fatalf("paid = %d, want 90000", got.Cents)
	}
	if got := e.Remaining(); got.Cents != 3000 {
		t.Fatalf("remaining = %d, want 3000", got.Cents)
	}

	// A recorded income payment leaves the paid aggregate alone.
	if err := e.AddUnexpected(ctx, "refund", core.Money{Cents: -5000}); err != nil {
		t.Fatal(err)
	}
	if got := e.Paid(); got.Cents != 90000 {
		t.Fatalf("paid after income = %d, want 90000", got.Cents)
	}
}

func TestAddPaymentAlreadyPaid(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	if err := e.SetMonth(ctx, core.NewMonth(2025, time.June)); err != nil {
		t.Fatal(err)
	}
	rent := addTemplate(t, e, "rent", 90000, core.Monthly)

	if err := e.AddPayment(ctx, rent.ID, core.Money{Cents: 90000}, false); err != nil {
		t.Fatal(err)
	}
	err := e.AddPayment(ctx, rent.ID, core.Money{Cents: 100}, false)
	if !errors.Is(err, ErrAlreadyPaid) {
		t.Fatalf("second payment: err = %v, want ErrAlreadyPaid", err)
	}
}

func TestPartialTemplateTakesInstallments(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	if err := e.SetMonth(ctx, core.NewMonth(2025, time.June)); err != nil {
		t.Fatal(err)
	}
	groceries, err := core.NewTemplate("groceries", core.Money{Cents: 40000}, core.Monthly)
	if err != nil {
		t.Fatal(err)
	}
	groceries.Partial = true
	if err := e.PutTemplate(ctx, groceries); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if err := e.AddPayment(ctx, groceries.ID, core.Money{Cents: 10000}, false); err != nil {
			t.Fatalf("installment %d refused: %v", i+1, err)
		}
	}
	if got := e.Remaining(); got.Cents != 10000 {
		t.Fatalf("remaining = %d, want 10000", got.Cents)
	}

	if err := e.AddPayment(ctx, groceries.ID, core.Money{Cents: 10000}, true); err != nil {
		t.Fatal(err)
	}
	if got := e.Remaining(); !got.IsZero() {
		t.Fatalf("remaining after closing = %d, want 0", got.Cents)
	}
	err = e.AddPayment(ctx, groceries.ID, core.Money{Cents: 100}, false)
	if !errors.Is(err, ErrAlreadyPaid) {
		t.Fatalf("payment after closing: err = %v, want ErrAlreadyPaid", err)
	}
}

func TestAddPaymentUnknownTemplate(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	id, err := core.NewID()
	if err != nil {
		t.Fatal(err)
	}
	if err := e.AddPayment(ctx, id, core.Money{Cents: 100}, false); !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("err = %v, want ErrTemplateNotFound", err)
	}
}

func TestAddPaymentTemplateOutsideMonth(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	if err := e.SetMonth(ctx, core.NewMonth(2025, time.June)); err != nil {
		t.Fatal(err)
	}
	annual, err := core.NewTemplate("insurance", core.Money{Cents: 50000}, core.Annually)
	if err != nil {
		t.Fatal(err)
	}
	annual.Start = core.NewMonth(2025, time.January)
	if err := e.PutTemplate(ctx, annual); err != nil {
		t.Fatal(err)
	}
	err = e.AddPayment(ctx, annual.ID, core.Money{Cents: 50000}, false)
	if !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("payment in an off month: err = %v, want ErrTemplateNotFound", err)
	}
}

func TestUndoPayment(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	if err := e.SetMonth(ctx, core.NewMonth(2025, time.June)); err != nil {
		t.Fatal(err)
	}
	rent := addTemplate(t, e, "rent", 90000, core.Monthly)
	if err := e.AddPayment(ctx, rent.ID, core.Money{Cents: 90000}, false); err != nil {
		t.Fatal(err)
	}
	payments := e.Payments()
	if len(payments) != 1 {
		t.Fatalf("payments = %d, want 1", len(payments))
	}

	if err := e.UndoPayment(ctx, payments[0].ID); err != nil {
		t.Fatal(err)
	}
	if got := e.Remaining(); got.Cents != 90000 {
		t.Fatalf("remaining after undo = %d, want 90000", got.Cents)
	}
	if err := e.UndoPayment(ctx, payments[0].ID); !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("second undo: err = %v, want ErrPaymentNotFound", err)
	}
}

func TestDeleteTemplateCascades(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	if err := e.SetMonth(ctx, core.NewMonth(2025, time.June)); err != nil {
		t.Fatal(err)
	}
	rent := addTemplate(t, e, "rent", 90000, core.Monthly)
	if err := e.AddPayment(ctx, rent.ID, core.Money{Cents: 90000}, false); err != nil {
		t.Fatal(err)
	}

	if err := e.DeleteTemplate(ctx, rent.ID); err != nil {
		t.Fatal(err)
	}
	if len(e.Templates()) != 0 || len(e.Payments()) != 0 {
		t.Fatal("delete did not cascade to payments")
	}
	// Unknown identifier is a no-op, not an error.
	if err := e.DeleteTemplate(ctx, rent.ID); err != nil {
		t.Fatal(err)
	}
}

func TestMonthSwitchRecomputes(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	june := core.NewMonth(2025, time.June)
	if err := e.SetMonth(ctx, june); err != nil {
		t.Fatal(err)
	}
	rent := addTemplate(t, e, "rent", 90000, core.Monthly)
	if err := e.AddPayment(ctx, rent.ID, core.Money{Cents: 90000}, false); err != nil {
		t.Fatal(err)
	}

	if err := e.SetMonth(ctx, core.NewMonth(2025, time.July)); err != nil {
		t.Fatal(err)
	}
	if got := e.Paid(); !got.IsZero() {
		t.Fatalf("paid carried into july: %d", got.Cents)
	}
	if got := e.Remaining(); got.Cents != 90000 {
		t.Fatalf("remaining in july = %d, want 90000", got.Cents)
	}

	if err := e.SetMonth(ctx, core.Month{}); !errors.Is(err, core.ErrInvalidMonth) {
		t.Fatalf("zero month: err = %v", err)
	}
}

func TestChangeListeners(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	var fired int
	e.OnChange(func(got *Engine) {
		fired++
		// Listeners run outside the engine lock and may read back.
		_ = got.Expected()
	})

	addTemplate(t, e, "rent", 90000, core.Monthly)
	if fired != 1 {
		t.Fatalf("listener fired %d times after one mutation", fired)
	}

	// A no-op change fires nothing.
	month := e.Month()
	if err := e.SetMonth(ctx, month); err != nil {
		t.Fatal(err)
	}
	if fired != 1 {
		t.Fatalf("listener fired on a no-op month change: %d", fired)
	}
}

func TestStatePersistsAcrossEngines(t *testing.T) {
	ctx := context.Background()
	e, slot := newEngine(t)
	if err := e.SetMonth(ctx, core.NewMonth(2025, time.June)); err != nil {
		t.Fatal(err)
	}
	addTemplate(t, e, "rent", 90000, core.Monthly)
	if err := e.SetLocale(ctx, "nl-NL"); err != nil {
		t.Fatal(err)
	}

	again, err := New(ctx, slot, log.New("engine-test"))
	if err != nil {
		t.Fatal(err)
	}
	if err := again.SetMonth(ctx, core.NewMonth(2025, time.June)); err != nil {
		t.Fatal(err)
	}
	if len(again.Templates()) != 1 {
		t.Fatal("templates not reloaded from the slot")
	}
	if again.Locale() != "nl-NL" {
		t.Fatalf("locale = %q, want nl-NL", again.Locale())
	}
}

func TestCorruptSlotStartsEmpty(t *testing.T) {
	ctx := context.Background()
	slot := persist.NewMemorySlot()
	if err := slot.Save(ctx, []byte("{{ not json")); err != nil {
		t.Fatal(err)
	}
	e, err := New(ctx, slot, log.New("engine-test"))
	if err != nil {
		t.Fatalf("corrupt blob was fatal: %v", err)
	}
	if len(e.Templates()) != 0 {
		t.Fatal("corrupt blob produced templates")
	}
	data, err := slot.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if data != nil {
		t.Fatal("corrupt blob not cleared from the slot")
	}
}

func TestReloadPicksUpExternalWrites(t *testing.T) {
	ctx := context.Background()
	e, slot := newEngine(t)
	month := core.NewMonth(2025, time.June)
	if err := e.SetMonth(ctx, month); err != nil {
		t.Fatal(err)
	}

	writer, err := New(ctx, slot, log.New("engine-test"))
	if err != nil {
		t.Fatal(err)
	}
	if err := writer.SetMonth(ctx, month); err != nil {
		t.Fatal(err)
	}
	tmpl, err := core.NewTemplate("rent", core.Money{Cents: 90000}, core.Monthly)
	if err != nil {
		t.Fatal(err)
	}
	if err := writer.PutTemplate(ctx, tmpl); err != nil {
		t.Fatal(err)
	}

	var fired bool
	e.OnChange(func(*Engine) { fired = true })
	if err := e.Reload(ctx); err != nil {
		t.Fatal(err)
	}
	if len(e.Templates()) != 1 {
		t.Fatal("reload did not pick up the external write")
	}
	if !fired {
		t.Fatal("reload did not notify listeners")
	}
}

func TestReloadNeverRepublishes(t *testing.T) {
	ctx := context.Background()
	slot := persist.NewMemorySlot()
	a, err := New(ctx, slot, log.New("engine-test"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := New(ctx, slot, log.New("engine-test"))
	if err != nil {
		t.Fatal(err)
	}

	// Wire the two engines the way two server processes are: each one
	// publishes on mutation and the other reloads on delivery. If
	// Reload drove the mutation hooks too, this pair would ping-pong
	// without bound after a single change.
	var aPublished, bPublished int
	a.OnMutate(func(*Engine) {
		aPublished++
		if aPublished > 5 {
			t.Fatal("publish storm between instances")
		}
		if err := b.Reload(ctx); err != nil {
			t.Fatal(err)
		}
	})
	b.OnMutate(func(*Engine) {
		bPublished++
		if bPublished > 5 {
			t.Fatal("publish storm between instances")
		}
		if err := a.Reload(ctx); err != nil {
			t.Fatal(err)
		}
	})
	var bChanged int
	b.OnChange(func(*Engine) { bChanged++ })

	addTemplate(t, a, "rent", 90000, core.Monthly)

	if aPublished != 1 {
		t.Fatalf("originating instance published %d times, want 1", aPublished)
	}
	if bPublished != 0 {
		t.Fatalf("reloading instance republished %d times, want 0", bPublished)
	}
	if bChanged != 1 {
		t.Fatalf("reload fired %d change notifications, want 1", bChanged)
	}
	if len(b.Templates()) != 1 {
		t.Fatal("reload did not pick up the mutation")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	if err := e.SetMonth(ctx, core.NewMonth(2025, time.June)); err != nil {
		t.Fatal(err)
	}
	rent := addTemplate(t, e, "rent", 90000, core.Monthly)
	if err := e.AddPayment(ctx, rent.ID, core.Money{Cents: 90000}, false); err != nil {
		t.Fatal(err)
	}

	if _, err := e.Export(ctx, "short"); !errors.Is(err, backup.ErrWeakPassword) {
		t.Fatalf("5-char password: err = %v, want ErrWeakPassword", err)
	}
	blob, err := e.Export(ctx, "hunter22")
	if err != nil {
		t.Fatal(err)
	}

	fresh, _ := newEngine(t)
	if err := fresh.SetMonth(ctx, core.NewMonth(2025, time.June)); err != nil {
		t.Fatal(err)
	}
	if err := fresh.Import(ctx, "wrong password", blob); !errors.Is(err, backup.ErrAuthentication) {
		t.Fatalf("wrong password: err = %v, want ErrAuthentication", err)
	}
	if err := fresh.Import(ctx, "hunter22", blob); err != nil {
		t.Fatal(err)
	}
	if len(fresh.Templates()) != 1 || len(fresh.Payments()) != 1 {
		t.Fatal("import did not restore the dataset")
	}
	if got := fresh.Paid(); got.Cents != 90000 {
		t.Fatalf("paid after import = %d, want 90000", got.Cents)
	}

	if err := fresh.Import(ctx, "hunter22", []byte("garbage")); !errors.Is(err, backup.ErrUnsupportedFormat) {
		t.Fatalf("garbage import: err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestSettings(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)

	if err := e.SetLocale(ctx, "xx-XX"); !errors.Is(err, ErrUnsupportedLocale) {
		t.Fatalf("unknown locale: err = %v", err)
	}
	if err := e.SetLocale(ctx, "en-US"); err != nil {
		t.Fatal(err)
	}
	if c, ok := e.DefaultCurrency(); !ok || c.Code != "USD" {
		t.Fatalf("default currency for en-US = %v, %v", c, ok)
	}

	if err := e.SetCurrency(ctx, "XXX"); !errors.Is(err, ErrUnsupportedCurrency) {
		t.Fatalf("unknown currency: err = %v", err)
	}
	if err := e.SetCurrency(ctx, "USD"); err != nil {
		t.Fatal(err)
	}
	if e.Currency() != "USD" {
		t.Fatalf("currency = %q", e.Currency())
	}

	if err := e.SetExcessive(ctx, 20); err != nil {
		t.Fatal(err)
	}
	if e.Excessive() != 20 {
		t.Fatalf("excessive = %v", e.Excessive())
	}
}

func TestIsExcessive(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	if err := e.SetExcessive(ctx, 10); err != nil {
		t.Fatal(err)
	}
	tmpl, err := core.NewTemplate("heating", core.Money{Cents: 10000}, core.Monthly)
	if err != nil {
		t.Fatal(err)
	}
	month := core.NewMonth(2025, time.June)

	within, err := core.NewScheduledPayment(tmpl, month, core.Money{Cents: 11000}, false)
	if err != nil {
		t.Fatal(err)
	}
	if e.IsExcessive(tmpl, []core.Payment{within}) {
		t.Fatal("cost at the threshold flagged as excessive")
	}

	over, err := core.NewScheduledPayment(tmpl, month, core.Money{Cents: 11001}, false)
	if err != nil {
		t.Fatal(err)
	}
	if !e.IsExcessive(tmpl, []core.Payment{over}) {
		t.Fatal("cost past the threshold not flagged")
	}
}

func TestBenefactorFilterScopesView(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	if err := e.SetMonth(ctx, core.NewMonth(2025, time.June)); err != nil {
		t.Fatal(err)
	}
	mine, err := core.NewTemplate("rent", core.Money{Cents: 90000}, core.Monthly)
	if err != nil {
		t.Fatal(err)
	}
	mine.Benefactor = "alex"
	if err := e.PutTemplate(ctx, mine); err != nil {
		t.Fatal(err)
	}
	addTemplate(t, e, "utilities", 12000, core.Monthly)

	if err := e.SetBenefactor(ctx, "alex"); err != nil {
		t.Fatal(err)
	}
	if got := e.Expected(); got.Cents != 90000 {
		t.Fatalf("filtered expected = %d, want 90000", got.Cents)
	}
	if err := e.SetBenefactor(ctx, ""); err != nil {
		t.Fatal(err)
	}
	if got := e.Expected(); got.Cents != 102000 {
		t.Fatalf("unfiltered expected = %d, want 102000", got.Cents)
	}
}
