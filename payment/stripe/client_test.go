package stripe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeStripe(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := New("sk_test_xxx")
	client.BaseURL = server.URL
	return client
}

func TestConfirmPaymentIntentSucceeded(t *testing.T) {
	var gotForm map[string][]string
	var gotIdempotencyKey string
	client := fakeStripe(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/payment_intents", r.URL.Path)
		require.Equal(t, "Bearer sk_test_xxx", r.Header.Get("Authorization"))
		gotIdempotencyKey = r.Header.Get("Idempotency-Key")
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		w.Write([]byte(`{"id":"pi_123","amount":12100,"currency":"eur","status":"succeeded","payment_method":"pm_1"}`))
	})

	intent, err := client.ConfirmPaymentIntent(context.Background(), PaymentIntentParams{
		AmountMinor:    12100,
		Currency:       "eur",
		CustomerID:     "cus_1",
		PaymentMethod:  "pm_1",
		Description:    "Purchased 100 credits for eur 121.00 (incl. VAT)",
		Metadata:       map[string]string{"userId": "7"},
		IdempotencyKey: "key-abc",
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_123", intent.ID)
	assert.Equal(t, "succeeded", intent.Status)

	assert.Equal(t, "key-abc", gotIdempotencyKey)
	assert.Equal(t, "12100", gotForm["amount"][0])
	assert.Equal(t, "true", gotForm["off_session"][0])
	assert.Equal(t, "true", gotForm["confirm"][0])
	assert.Equal(t, "7", gotForm["metadata[userId]"][0])
}

func TestConfirmPaymentIntentAuthenticationRequired(t *testing.T) {
	client := fakeStripe(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"error":{"type":"card_error","code":"authentication_required","message":"Your card was declined."}}`))
	})

	_, err := client.ConfirmPaymentIntent(context.Background(), PaymentIntentParams{
		AmountMinor: 100, Currency: "eur", CustomerID: "cus_1", PaymentMethod: "pm_1",
	})
	require.Error(t, err)
	assert.True(t, IsAuthenticationRequired(err))

	stripeErr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, "authentication_required", stripeErr.Code)
	assert.Equal(t, http.StatusPaymentRequired, stripeErr.HTTPStatus)
}

func TestConfirmPaymentIntentDeclined(t *testing.T) {
	client := fakeStripe(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"error":{"type":"card_error","code":"card_declined","message":"Your card was declined."}}`))
	})

	_, err := client.ConfirmPaymentIntent(context.Background(), PaymentIntentParams{
		AmountMinor: 100, Currency: "eur", CustomerID: "cus_1", PaymentMethod: "pm_1",
	})
	require.Error(t, err)
	assert.False(t, IsAuthenticationRequired(err))
}

func TestCreateCustomer(t *testing.T) {
	client := fakeStripe(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/customers", r.URL.Path)
		w.Write([]byte(`{"id":"cus_9","email":"jo@example.com","name":"Jo Smith"}`))
	})

	customer, err := client.CreateCustomer(context.Background(), "jo@example.com", "Jo Smith")
	require.NoError(t, err)
	assert.Equal(t, "cus_9", customer.ID)
}

func TestSetDefaultPaymentMethod(t *testing.T) {
	client := fakeStripe(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/customers/cus_9", r.URL.Path)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "pm_2", r.PostForm.Get("invoice_settings[default_payment_method]"))
		w.Write([]byte(`{"id":"cus_9"}`))
	})

	require.NoError(t, client.SetDefaultPaymentMethod(context.Background(), "cus_9", "pm_2"))
}
