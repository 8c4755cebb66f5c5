package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.stripe.com/v1"

// Client is a thin wrapper over the Stripe REST API covering the calls the
// wallet needs: customer management, setup intents, payment method
// attachment and off-session charges.
type Client struct {
	BaseURL string
	apiKey  string
	client  *http.Client
}

func New(apiKey string) *Client {
	return &Client{
		BaseURL: defaultBaseURL,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type Customer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type SetupIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
}

type CardDetails struct {
	Brand    string `json:"brand"`
	Last4    string `json:"last4"`
	ExpMonth int    `json:"exp_month"`
	ExpYear  int    `json:"exp_year"`
}

type PaymentMethod struct {
	ID   string      `json:"id"`
	Type string      `json:"type"`
	Card CardDetails `json:"card"`
}

type Charge struct {
	ID         string `json:"id"`
	ReceiptURL string `json:"receipt_url"`
}

type PaymentIntent struct {
	ID            string `json:"id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Status        string `json:"status"`
	ClientSecret  string `json:"client_secret"`
	PaymentMethod string `json:"payment_method"`
	Created       int64  `json:"created"`
	Charges       struct {
		Data []Charge `json:"data"`
	} `json:"charges"`
}

// Error is a decoded Stripe API error.
type Error struct {
	Type       string `json:"type"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("stripe: %s (%s)", e.Message, e.Code)
}

// IsAuthenticationRequired reports whether the card needs the customer to
// step up and authenticate again; callers must surface this as a
// retry-with-user condition, not a terminal decline.
func IsAuthenticationRequired(err error) bool {
	stripeErr, ok := err.(*Error)
	return ok && stripeErr.Code == "authentication_required"
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, idempotencyKey string, out interface{}) error {
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("stripe request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var wrapper struct {
			Error Error `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&wrapper); err != nil {
			return fmt.Errorf("stripe returned status %d", resp.StatusCode)
		}
		wrapper.Error.HTTPStatus = resp.StatusCode
		return &wrapper.Error
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode stripe response: %w", err)
		}
	}
	return nil
}

func (c *Client) CreateCustomer(ctx context.Context, email, name string) (*Customer, error) {
	form := url.Values{}
	form.Set("email", email)
	form.Set("name", name)

	var customer Customer
	if err := c.do(ctx, http.MethodPost, "/customers", form, "", &customer); err != nil {
		return nil, err
	}
	return &customer, nil
}

func (c *Client) CreateSetupIntent(ctx context.Context, customerID string) (*SetupIntent, error) {
	form := url.Values{}
	form.Set("customer", customerID)
	form.Set("payment_method_types[]", "card")

	var intent SetupIntent
	if err := c.do(ctx, http.MethodPost, "/setup_intents", form, "", &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

func (c *Client) AttachPaymentMethod(ctx context.Context, paymentMethodID, customerID string) (*PaymentMethod, error) {
	form := url.Values{}
	form.Set("customer", customerID)

	var method PaymentMethod
	err := c.do(ctx, http.MethodPost, "/payment_methods/"+paymentMethodID+"/attach", form, "", &method)
	if err != nil {
		return nil, err
	}
	return &method, nil
}

func (c *Client) DetachPaymentMethod(ctx context.Context, paymentMethodID string) error {
	return c.do(ctx, http.MethodPost, "/payment_methods/"+paymentMethodID+"/detach", url.Values{}, "", nil)
}

// SetDefaultPaymentMethod updates the customer's invoice settings so future
// charges default to the given payment method.
func (c *Client) SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	form := url.Values{}
	form.Set("invoice_settings[default_payment_method]", paymentMethodID)
	return c.do(ctx, http.MethodPost, "/customers/"+customerID, form, "", nil)
}

// PaymentIntentParams describes an off-session charge against a stored card.
type PaymentIntentParams struct {
	AmountMinor    int64
	Currency       string
	CustomerID     string
	PaymentMethod  string
	Description    string
	Metadata       map[string]string
	IdempotencyKey string
}

// ConfirmPaymentIntent creates and immediately confirms an off-session
// payment intent. The stored card is charged without further customer
// interaction.
func (c *Client) ConfirmPaymentIntent(ctx context.Context, params PaymentIntentParams) (*PaymentIntent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(params.AmountMinor, 10))
	form.Set("currency", params.Currency)
	form.Set("customer", params.CustomerID)
	form.Set("payment_method", params.PaymentMethod)
	form.Set("off_session", "true")
	form.Set("confirm", "true")
	if params.Description != "" {
		form.Set("description", params.Description)
	}
	for key, value := range params.Metadata {
		form.Set("metadata["+key+"]", value)
	}

	var intent PaymentIntent
	if err := c.do(ctx, http.MethodPost, "/payment_intents", form, params.IdempotencyKey, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

// CreateAutomaticPaymentIntent creates an unconfirmed intent that lets
// Stripe offer whatever local payment methods apply; the client side
// completes it with the returned secret.
func (c *Client) CreateAutomaticPaymentIntent(ctx context.Context, amountMinor int64, currency string) (*PaymentIntent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amountMinor, 10))
	form.Set("currency", currency)
	form.Set("automatic_payment_methods[enabled]", "true")

	var intent PaymentIntent
	if err := c.do(ctx, http.MethodPost, "/payment_intents", form, "", &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}
