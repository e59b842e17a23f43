package core

import "errors"

var ErrInvalidRecurrence = errors.New("unsupported recurrence")

// Recurrence enumerates how often a template falls due.
type Recurrence string

const (
	// Never schedules the template for its start month only.
	Never Recurrence = "never"
	// Monthly falls due every month between the template bounds.
	Monthly Recurrence = "monthly"
	// Bimonthly falls due in months sharing the start month's parity.
	Bimonthly Recurrence = "bimonthly"
	// Quarterly falls due in months congruent to the start month mod 3.
	Quarterly Recurrence = "quarterly"
	// Biannually falls due in months congruent to the start month mod 6.
	Biannually Recurrence = "biannually"
	// Annually falls due every year in the start month.
	Annually Recurrence = "annually"
)

func (r Recurrence) Validate() error {
	switch r {
	case Never, Monthly, Bimonthly, Quarterly, Biannually, Annually:
		return nil
	default:
		return ErrInvalidRecurrence
	}
}

// occursIn reports whether a month matches the recurrence pattern
// anchored at start. Template bounds are checked by the caller.
//
// The modulo rules key on the calendar month number, not on months
// elapsed since start: a bimonthly bill anchored in March falls due in
// every odd month of every year. That is the behavior historical
// datasets were built against and it must not be "corrected".
func (r Recurrence) occursIn(start, month Month) bool {
	switch r {
	case Never:
		return !start.IsZero() && start == month
	case Monthly:
		return true
	case Bimonthly:
		return !start.IsZero() && int(month.Month())%2 == int(start.Month())%2
	case Quarterly:
		return !start.IsZero() && int(month.Month())%3 == int(start.Month())%3
	case Biannually:
		return !start.IsZero() && int(month.Month())%6 == int(start.Month())%6
	case Annually:
		return !start.IsZero() && month.Month() == start.Month()
	default:
		return false
	}
}
