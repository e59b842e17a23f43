// Package i18n carries the supported locale and currency catalogues
// and locale-aware amount formatting.
package i18n

import (
	"fmt"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Locale pairs a BCP 47 tag with its display name and the currency the
// tracker suggests when the user switches to it.
type Locale struct {
	Tag      string `json:"locale"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
}

// Currency is a supported ISO 4217 code with a display name.
type Currency struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

var Locales = []Locale{
	{Tag: "en-GB", Name: "English (UK)", Currency: "GBP"},
	{Tag: "en-US", Name: "English (US)", Currency: "USD"},
	{Tag: "nl-NL", Name: "Nederlands", Currency: "EUR"},
}

var Currencies = []Currency{
	{Code: "EUR", Name: "Euros"},
	{Code: "USD", Name: "US Dollars"},
	{Code: "GBP", Name: "British Pounds"},
}

func SupportedLocale(tag string) bool {
	for _, l := range Locales {
		if l.Tag == tag {
			return true
		}
	}
	return false
}

func SupportedCurrency(code string) bool {
	for _, c := range Currencies {
		if c.Code == code {
			return true
		}
	}
	return false
}

// DefaultCurrency returns the currency suggested for a locale.
func DefaultCurrency(tag string) (Currency, bool) {
	for _, l := range Locales {
		if l.Tag != tag {
			continue
		}
		for _, c := range Currencies {
			if c.Code == l.Currency {
				return c, true
			}
		}
	}
	return Currency{}, false
}

// FormatAmount renders an amount with the currency symbol in the
// locale's number convention. Unknown tags or codes fall back to a
// plain "CODE 0.00" rendering rather than failing.
func FormatAmount(localeTag, code string, amount float64) string {
	tag, tagErr := language.Parse(localeTag)
	unit, unitErr := currency.ParseISO(code)
	if tagErr != nil || unitErr != nil {
		return fmt.Sprintf("%s %.2f", code, amount)
	}
	p := message.NewPrinter(tag)
	return p.Sprint(currency.Symbol(unit.Amount(amount)))
}
