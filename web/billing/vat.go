package billing

import (
	"context"
	"strings"
)

// standardRate is the flat consumer VAT rate applied to all EU sales.
// It is intentionally not country-specific; see the stakeholder note in
// DESIGN.md before changing this.
const standardRate = 0.21

const (
	reverseChargeNote = "VAT reverse charged pursuant to Article 138 of Directive 2006/112/EC"
	exportNote        = "VAT-exempt export of services outside the EU – Article 6(2) Dutch VAT Act"
)

type VATResult struct {
	Rate          float64
	IsEU          bool
	ReverseCharge bool
	ValidVAT      bool
	Note          string
	CountryCode   string
	VATNumber     string // normalized (uppercased) number, "" if none given
}

// VATService determines the VAT treatment of a sale from the billing
// country and an optional VAT number.
type VATService struct {
	vies *VIESClient
}

func NewVATService(vies *VIESClient) *VATService {
	return &VATService{vies: vies}
}

// ValidateNumber checks a single VAT number against the registry.
func (s *VATService) ValidateNumber(ctx context.Context, vatNumber, countryCode string) (bool, error) {
	return s.vies.Validate(ctx, strings.ToUpper(vatNumber), strings.ToUpper(countryCode))
}

// Determine resolves the country, checks EU membership and, for EU
// business buyers, validates the VAT number against the registry.
//
// When the registry call fails the returned result already carries the
// standard-rate fallback (the number is treated as invalid) alongside the
// error, so callers choose between propagating the failure and accepting
// the fallback.
func (s *VATService) Determine(ctx context.Context, countryName, vatNumber string) (VATResult, error) {
	result := VATResult{
		CountryCode: CountryCode(countryName),
	}
	if vatNumber != "" {
		result.VATNumber = strings.ToUpper(vatNumber)
	}

	result.IsEU = IsEUCountry(result.CountryCode)
	if !result.IsEU {
		result.Rate = 0
		result.Note = exportNote
		return result, nil
	}

	if result.VATNumber == "" {
		result.Rate = standardRate
		return result, nil
	}

	valid, err := s.vies.Validate(ctx, result.VATNumber, result.CountryCode)
	if err != nil {
		result.Rate = standardRate
		return result, err
	}

	if valid {
		result.Rate = 0
		result.ValidVAT = true
		result.ReverseCharge = true
		result.Note = reverseChargeNote
	} else {
		result.Rate = standardRate
	}
	return result, nil
}
