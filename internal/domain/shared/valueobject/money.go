package valueobject

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Currency represents a currency code (ISO 4217)
type Currency string

const (
	ARS Currency = "ARS" // Argentine Peso (default, "pesos")
	USD Currency = "USD" // US Dollar
	EUR Currency = "EUR" // Euro
	BRL Currency = "BRL" // Brazilian Real
	CNY Currency = "CNY" // Chinese Yuan
)

// DefaultCurrency is the local currency for the system
const DefaultCurrency = ARS

// IsValid checks if the currency is a supported code
func (c Currency) IsValid() bool {
	switch c {
	case ARS, USD, EUR, BRL, CNY:
		return true
	}
	return false
}

// IsLocal returns true if the currency is the local (peso) currency
func (c Currency) IsLocal() bool {
	return c == ARS
}

// Money is a value object representing monetary amounts.
// It is immutable - all operations return new Money instances.
type Money struct {
	amount   decimal.Decimal
	currency Currency
}

// NewMoney creates a new Money with the specified amount and currency
func NewMoney(amount decimal.Decimal, currency Currency) (Money, error) {
	if currency == "" {
		return Money{}, errors.New("currency cannot be empty")
	}
	return Money{
		amount:   amount,
		currency: currency,
	}, nil
}

// NewMoneyFromFloat creates Money from a float64 value
func NewMoneyFromFloat(amount float64, currency Currency) (Money, error) {
	return NewMoney(decimal.NewFromFloat(amount), currency)
}

// NewMoneyFromString creates Money from a string representation
func NewMoneyFromString(amount string, currency Currency) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount string: %w", err)
	}
	return NewMoney(d, currency)
}

// NewMoneyPesos creates Money in ARS (pesos)
func NewMoneyPesos(amount decimal.Decimal) Money {
	return Money{amount: amount, currency: ARS}
}

// NewMoneyPesosFromFloat creates Money in ARS from float64
func NewMoneyPesosFromFloat(amount float64) Money {
	return Money{amount: decimal.NewFromFloat(amount), currency: ARS}
}

// Zero returns a zero-value Money in the specified currency
func Zero(currency Currency) Money {
	return Money{amount: decimal.Zero, currency: currency}
}

// ZeroPesos returns a zero-value Money in ARS
func ZeroPesos() Money {
	return Zero(ARS)
}

// Amount returns the decimal amount
func (m Money) Amount() decimal.Decimal {
	return m.amount
}

// Currency returns the currency code
func (m Money) Currency() Currency {
	return m.currency
}

// IsZero returns true if the amount is zero
func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

// IsPositive returns true if the amount is positive
func (m Money) IsPositive() bool {
	return m.amount.IsPositive()
}

// IsNegative returns true if the amount is negative
func (m Money) IsNegative() bool {
	return m.amount.IsNegative()
}

// IsLocal returns true if the money is denominated in pesos
func (m Money) IsLocal() bool {
	return m.currency.IsLocal()
}

// Add returns a new Money with the sum of both amounts.
// Returns error if currencies don't match.
func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("currency mismatch: %s vs %s", m.currency, other.currency)
	}
	return Money{amount: m.amount.Add(other.amount), currency: m.currency}, nil
}

// Sub returns a new Money with the difference of both amounts.
// Returns error if currencies don't match.
func (m Money) Sub(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("currency mismatch: %s vs %s", m.currency, other.currency)
	}
	return Money{amount: m.amount.Sub(other.amount), currency: m.currency}, nil
}

// Mul returns a new Money multiplied by the given factor
func (m Money) Mul(factor decimal.Decimal) Money {
	return Money{amount: m.amount.Mul(factor), currency: m.currency}
}

// Round returns a new Money rounded to the given decimal places (half-up)
func (m Money) Round(places int32) Money {
	return Money{amount: m.amount.Round(places), currency: m.currency}
}

// ToPesos converts the amount to pesos using the given exchange rate.
// Peso-denominated amounts are returned unchanged; the rate is ignored.
// A foreign amount with a non-positive rate converts to zero pesos - the
// caller is responsible for rejecting that combination upstream.
func (m Money) ToPesos(rate decimal.Decimal) Money {
	if m.currency.IsLocal() {
		return m
	}
	if rate.LessThanOrEqual(decimal.Zero) {
		return ZeroPesos()
	}
	return Money{amount: m.amount.Mul(rate), currency: ARS}
}

// Equal returns true if both amount and currency match
func (m Money) Equal(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

// String returns a human-readable representation
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.amount.StringFixed(2), m.currency)
}
