// Package price formats catalog prices for display.
//
// All functions are pure. The locale is an argument on every call; there is
// no shared formatter whose locale could leak between products.
package price

import (
	"errors"

	pkgerrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var (
	ErrNoCurrency = errors.New("no currency for locale")
)

// Format renders amount in cur using the number conventions of locale. The
// amount is rounded to the currency's standard number of fraction digits.
func Format(amount decimal.Decimal, locale language.Tag, cur currency.Unit) (string, error) {
	if cur == (currency.Unit{}) {
		return "", pkgerrors.Wrapf(ErrNoCurrency, "locale %s", locale)
	}

	scale, _ := currency.Standard.Rounding(cur)
	value := amount.Round(int32(scale)).InexactFloat64()

	p := message.NewPrinter(locale)
	return p.Sprint(currency.Symbol(cur)) + p.Sprint(number.Decimal(value, number.Scale(scale))), nil
}

// FormatForLocale renders amount in the currency implied by locale's region.
func FormatForLocale(amount decimal.Decimal, locale language.Tag) (string, error) {
	cur, err := CurrencyFor(locale)
	if err != nil {
		return "", err
	}
	return Format(amount, locale, cur)
}

// CurrencyFor returns the currency used in locale's region.
func CurrencyFor(locale language.Tag) (currency.Unit, error) {
	cur, conf := currency.FromTag(locale)
	if conf == language.No {
		return currency.Unit{}, pkgerrors.Wrapf(ErrNoCurrency, "locale %s", locale)
	}
	return cur, nil
}
