package billing

import "math"

// CreditLineInput is one purchased credit package in an add-funds or
// manual-order request.
type CreditLineInput struct {
	Credits int64   `json:"credits"`
	Amount  float64 `json:"amount"`
}

// Totals is the monetary outcome of a purchase, in major currency units.
type Totals struct {
	Amount    float64
	VATRate   float64
	VATAmount float64
	Discount  float64
	Total     float64
}

// Compute applies the VAT rate and discount to a pre-tax amount.
func Compute(amount, vatRate, discount float64) Totals {
	vatAmount := amount * vatRate
	return Totals{
		Amount:    amount,
		VATRate:   vatRate,
		VATAmount: vatAmount,
		Discount:  discount,
		Total:     amount + vatAmount - discount,
	}
}

// MinorUnits converts a major-unit amount to the smallest currency unit
// for the payment processor, e.g. 121.00 EUR -> 12100 cents.
func MinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// Round2 rounds to two decimal places for display and invoice storage.
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// SumCredits totals the credit counts across purchased packages.
func SumCredits(lines []CreditLineInput) int64 {
	var sum int64
	for _, line := range lines {
		sum += line.Credits
	}
	return sum
}
