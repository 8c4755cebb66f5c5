package controllers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"xclusive3d/payment/stripe"
	"xclusive3d/web/billing"
	"xclusive3d/web/db"
	"xclusive3d/web/email"
	"xclusive3d/web/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testAPI wires the handlers against an in-memory database and fake
// external services.
func testAPI(t *testing.T, stripeHandler http.HandlerFunc, viesValid bool) *API {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.Sync(conn))

	if stripeHandler == nil {
		stripeHandler = func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"id":"pi_test","status":"succeeded","payment_method":"pm_test"}`))
		}
	}
	stripeServer := httptest.NewServer(stripeHandler)
	t.Cleanup(stripeServer.Close)
	stripeClient := stripe.New("sk_test")
	stripeClient.BaseURL = stripeServer.URL

	viesServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if viesValid {
			w.Write([]byte(`{"valid": true}`))
		} else {
			w.Write([]byte(`{"valid": false}`))
		}
	}))
	t.Cleanup(viesServer.Close)
	vies := billing.NewVIESClient()
	vies.BaseURL = viesServer.URL

	store, err := storage.NewPresigner(storage.Config{
		Endpoint:  "https://storage.test",
		Region:    "auto",
		AccessKey: "test-access",
		SecretKey: "test-secret",
		Bucket:    "test-bucket",
	})
	require.NoError(t, err)

	// empty API key makes the mailer drop messages instead of sending
	mailer := email.NewSender("", "test@xclusive3d.test")

	return New(conn, stripeClient, billing.NewVATService(vies), mailer, store)
}

// brokenVATService points the registry client at a server that always
// errors, simulating a VIES outage.
func brokenVATService(t *testing.T) *billing.VATService {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	vies := billing.NewVIESClient()
	vies.BaseURL = server.URL
	return billing.NewVATService(vies)
}

func seedUserWithWallet(t *testing.T, a *API, email, country string, balance int64) (*db.User, *db.Wallet) {
	t.Helper()

	user := db.User{Email: email, FirstName: "Test", LastName: "User", Country: country, HasFreeConversion: false}
	require.NoError(t, a.DB.Create(&user).Error)

	wallet := db.Wallet{UserID: user.ID, StripeCustomerID: "cus_test", Balance: balance, TotalPurchased: balance}
	require.NoError(t, a.DB.Create(&wallet).Error)
	return &user, &wallet
}

func seedCard(t *testing.T, a *API, wallet *db.Wallet, stripeID string, primary bool) *db.Card {
	t.Helper()
	card := db.Card{WalletID: wallet.ID, StripeCardID: stripeID, Brand: "visa", Last4: "4242", IsPrimary: primary}
	require.NoError(t, a.DB.Create(&card).Error)
	return &card
}

func doJSON(handler gin.HandlerFunc, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, path, &buf)
	c.Request.Header.Set("Content-Type", "application/json")
	handler(c)
	return w
}

func doJSONAuth(handler gin.HandlerFunc, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, path, &buf)
	c.Request.Header.Set("Content-Type", "application/json")
	c.Request.Header.Set("Authorization", "Bearer "+token)
	handler(c)
	return w
}

func doJSONAuthParams(handler gin.HandlerFunc, method, path, token string, params gin.Params, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, path, &buf)
	c.Request.Header.Set("Content-Type", "application/json")
	c.Request.Header.Set("Authorization", "Bearer "+token)
	c.Params = params
	handler(c)
	return w
}

func doJSONParams(handler gin.HandlerFunc, method, path string, params gin.Params, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, path, &buf)
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = params
	handler(c)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}
