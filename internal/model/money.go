package model

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// Money is an amount in a specific currency, exactly as the backend reported it.
// Amounts are decimal, never float, so totals round-trip without drift.
type Money struct {
	Amount   decimal.Decimal
	Currency currency.Unit
}

// ParseMoney builds Money from the backend's decimal string and ISO 4217 code.
// Examples: ("19.99", "USD"), ("1200", "JPY"). An empty amount is zero.
func ParseMoney(amount, currencyCode string) (Money, error) {
	unit, err := currency.ParseISO(currencyCode)
	if err != nil {
		return Money{}, fmt.Errorf("parsing currency %q: %w", currencyCode, err)
	}
	if amount == "" {
		return Money{Amount: decimal.Zero, Currency: unit}, nil
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("parsing amount %q: %w", amount, err)
	}
	return Money{Amount: d, Currency: unit}, nil
}

// MustMoney is ParseMoney for literals in tests and fixtures. Panics on bad input.
func MustMoney(amount, currencyCode string) Money {
	m, err := ParseMoney(amount, currencyCode)
	if err != nil {
		panic(err)
	}
	return m
}

// Mul returns m multiplied by an integer quantity.
func (m Money) Mul(quantity int) Money {
	return Money{Amount: m.Amount.Mul(decimal.NewFromInt(int64(quantity))), Currency: m.Currency}
}

// Add returns m + o. Currencies must match; the receiver's currency wins otherwise.
func (m Money) Add(o Money) Money {
	return Money{Amount: m.Amount.Add(o.Amount), Currency: m.Currency}
}

// Equal compares amount and currency.
func (m Money) Equal(o Money) bool {
	return m.Amount.Equal(o.Amount) && m.Currency == o.Currency
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

func (m Money) String() string {
	return m.Amount.StringFixed(2) + " " + m.Currency.String()
}

type moneyJSON struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currencyCode"`
}

// MarshalJSON uses the backend's wire shape: {"amount":"19.99","currencyCode":"USD"}.
func (m Money) MarshalJSON() ([]byte, error) {
	code := ""
	if m.Currency != (currency.Unit{}) {
		code = m.Currency.String()
	}
	return json.Marshal(moneyJSON{Amount: m.Amount.String(), CurrencyCode: code})
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var raw moneyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.CurrencyCode == "" {
		d := decimal.Zero
		if raw.Amount != "" {
			var err error
			if d, err = decimal.NewFromString(raw.Amount); err != nil {
				return err
			}
		}
		*m = Money{Amount: d}
		return nil
	}
	parsed, err := ParseMoney(raw.Amount, raw.CurrencyCode)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
