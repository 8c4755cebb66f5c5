package billing

import "strings"

// countryCodes maps free-text country names (as stored on users and typed
// into billing forms) to ISO 3166-1 alpha-2 codes.
var countryCodes = map[string]string{
	"Austria":              "AT",
	"Belgium":              "BE",
	"Bulgaria":             "BG",
	"Croatia":              "HR",
	"Cyprus":               "CY",
	"Czech Republic":       "CZ",
	"Czechia":              "CZ",
	"Denmark":              "DK",
	"Estonia":              "EE",
	"Finland":              "FI",
	"France":               "FR",
	"Germany":              "DE",
	"Greece":               "GR",
	"Hungary":              "HU",
	"Ireland":              "IE",
	"Italy":                "IT",
	"Latvia":               "LV",
	"Lithuania":            "LT",
	"Luxembourg":           "LU",
	"Malta":                "MT",
	"Netherlands":          "NL",
	"Poland":               "PL",
	"Portugal":             "PT",
	"Romania":              "RO",
	"Slovakia":             "SK",
	"Slovenia":             "SI",
	"Spain":                "ES",
	"Sweden":               "SE",
	"United Kingdom":       "GB",
	"United States":        "US",
	"Canada":               "CA",
	"Australia":            "AU",
	"New Zealand":          "NZ",
	"Switzerland":          "CH",
	"Norway":               "NO",
	"Iceland":              "IS",
	"Ukraine":              "UA",
	"Turkey":               "TR",
	"Russia":               "RU",
	"China":                "CN",
	"Japan":                "JP",
	"South Korea":          "KR",
	"India":                "IN",
	"Pakistan":             "PK",
	"Bangladesh":           "BD",
	"United Arab Emirates": "AE",
	"Saudi Arabia":         "SA",
	"Israel":               "IL",
	"Egypt":                "EG",
	"South Africa":         "ZA",
	"Nigeria":              "NG",
	"Brazil":               "BR",
	"Argentina":            "AR",
	"Mexico":               "MX",
	"Chile":                "CL",
	"Colombia":             "CO",
	"Indonesia":            "ID",
	"Malaysia":             "MY",
	"Singapore":            "SG",
	"Thailand":             "TH",
	"Vietnam":              "VN",
	"Philippines":          "PH",
}

// euMembers is the set of EU member states subject to VAT rules.
var euMembers = map[string]bool{
	"AT": true, "BE": true, "BG": true, "HR": true, "CY": true,
	"CZ": true, "DK": true, "EE": true, "FI": true, "FR": true,
	"DE": true, "GR": true, "HU": true, "IE": true, "IT": true,
	"LV": true, "LT": true, "LU": true, "MT": true, "NL": true,
	"PL": true, "PT": true, "RO": true, "SK": true, "SI": true,
	"ES": true, "SE": true,
}

// countryCurrencies maps billing country names to the Stripe charge
// currency. Anything not listed here is charged in euros.
var countryCurrencies = map[string]string{
	"Pakistan":             "pkr",
	"United States":        "usd",
	"United Kingdom":       "gbp",
	"Germany":              "eur",
	"France":               "eur",
	"Netherlands":          "eur",
	"India":                "inr",
	"United Arab Emirates": "aed",
	"Canada":               "cad",
}

// CountryCode resolves a country name to its alpha-2 code, or "" when the
// name is unknown.
func CountryCode(name string) string {
	if name == "" {
		return ""
	}
	if code, ok := countryCodes[name]; ok {
		return code
	}
	// tolerate case differences from hand-typed admin input
	for n, code := range countryCodes {
		if strings.EqualFold(n, name) {
			return code
		}
	}
	return ""
}

func IsEUCountry(code string) bool {
	return euMembers[code]
}

// ChargeCurrency returns the Stripe currency for a billing country name.
func ChargeCurrency(countryName string) string {
	if currency, ok := countryCurrencies[countryName]; ok {
		return currency
	}
	return "eur"
}
