package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultVIESBaseURL = "https://ec.europa.eu/taxation_customs/vies/rest-api"

// VIESClient checks VAT numbers against the EU VIES registry.
type VIESClient struct {
	BaseURL string
	client  *http.Client
}

func NewVIESClient() *VIESClient {
	return &VIESClient{
		BaseURL: defaultVIESBaseURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type viesCheckRequest struct {
	CountryCode string `json:"countryCode"`
	VATNumber   string `json:"vatNumber"`
}

type viesCheckResponse struct {
	Valid bool   `json:"valid"`
	Name  string `json:"name"`
}

// Validate reports whether the VAT number is registered for the given
// country. The number may arrive with or without the country prefix.
func (c *VIESClient) Validate(ctx context.Context, vatNumber, countryCode string) (bool, error) {
	number := strings.TrimPrefix(strings.ToUpper(vatNumber), countryCode)

	payload, err := json.Marshal(viesCheckRequest{
		CountryCode: countryCode,
		VATNumber:   number,
	})
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/check-vat-number", bytes.NewReader(payload))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("vies request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("vies returned status %d", resp.StatusCode)
	}

	var parsed viesCheckResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return false, fmt.Errorf("decode vies response: %w", err)
	}

	return parsed.Valid, nil
}
