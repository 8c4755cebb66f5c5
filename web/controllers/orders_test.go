package controllers

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xclusive3d/web/db"
)

func TestPeriodWindowThisWeek(t *testing.T) {
	// Wednesday 2026-01-14
	now := time.Date(2026, 1, 14, 15, 30, 0, 0, time.UTC)
	from, to := periodWindow(now, "this_week")

	assert.Equal(t, time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2026, 1, 19, 0, 0, 0, 0, time.UTC), to)
	assert.Equal(t, time.Monday, from.Weekday())
}

func TestPeriodWindowSundayBelongsToCurrentWeek(t *testing.T) {
	// Sunday 2026-01-18 still counts toward the week begun Monday the 12th
	now := time.Date(2026, 1, 18, 23, 0, 0, 0, time.UTC)
	from, _ := periodWindow(now, "this_week")
	assert.Equal(t, time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC), from)
}

func TestPeriodWindowLastWeek(t *testing.T) {
	now := time.Date(2026, 1, 14, 0, 0, 0, 0, time.UTC)
	from, to := periodWindow(now, "last_week")

	assert.Equal(t, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC), to)
}

func TestPeriodWindowLastMonth(t *testing.T) {
	now := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	from, to := periodWindow(now, "last_month")

	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), to)
}

func TestManualOrderUnregisteredEmail(t *testing.T) {
	a := testAPI(t, nil, true)

	w := doJSON(a.ManualOrder, http.MethodPost, "/api/wallet/orders/manual-order", map[string]interface{}{
		"email":  "ghost@example.com",
		"amount": 100.0,
		"credits": []map[string]interface{}{
			{"credits": 100, "amount": 100.0},
		},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Order can only be placed for registered user.")
}

func TestManualOrderGrantsCreditsAndInvoices(t *testing.T) {
	a := testAPI(t, nil, true)
	user, wallet := seedUserWithWallet(t, a, "manual@example.com", "Netherlands", 0)

	w := doJSON(a.ManualOrder, http.MethodPost, "/api/wallet/orders/manual-order", map[string]interface{}{
		"email":  user.Email,
		"amount": 100.0,
		"credits": []map[string]interface{}{
			{"credits": 100, "amount": 100.0},
		},
		"billingInfo": map[string]interface{}{
			"name":    "Manual Buyer",
			"country": "Netherlands",
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got db.Wallet
	require.NoError(t, a.DB.First(&got, wallet.ID).Error)
	assert.Equal(t, int64(100), got.Balance)

	var invoice db.Invoice
	require.NoError(t, a.DB.Preload("Lines").Where("user_id = ?", user.ID).First(&invoice).Error)
	assert.Equal(t, "INV-000001", invoice.InvoiceNumber)
	assert.Equal(t, "manual", invoice.Method)
	assert.Equal(t, "EUR", invoice.Currency)
	assert.Equal(t, 121.0, invoice.Total)
	require.Len(t, invoice.Lines, 1)
	assert.Equal(t, "Manual order placement by admin", invoice.Lines[0].Reason)
	assert.True(t, invoice.Lines[0].IsManual)
}

func TestAllOrdersNewestFirstWithDisplayIDs(t *testing.T) {
	a := testAPI(t, nil, true)
	user, _ := seedUserWithWallet(t, a, "orders@example.com", "Netherlands", 0)

	for i, offset := range []time.Duration{-2 * time.Hour, -time.Hour, 0} {
		invoice := db.Invoice{
			InvoiceNumber: []string{"INV-000001", "INV-000002", "INV-000003"}[i],
			UserID:        user.ID,
			Total:         121,
			IssuedAt:      time.Now().Add(offset),
		}
		require.NoError(t, a.DB.Create(&invoice).Error)
	}

	w := doJSON(a.AllOrders, http.MethodGet, "/api/wallet/orders/all", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	orders := body["orders"].([]interface{})
	require.Len(t, orders, 3)

	first := orders[0].(map[string]interface{})
	last := orders[2].(map[string]interface{})
	assert.Equal(t, "ORD-003", first["orderId"])
	assert.Equal(t, "INV-000003", first["invoiceNumber"])
	assert.Equal(t, "ORD-001", last["orderId"])
	assert.Equal(t, "INV-000001", last["invoiceNumber"])
}

func TestOrderStatsAggregatesCurrentWeek(t *testing.T) {
	a := testAPI(t, nil, true)
	user, _ := seedUserWithWallet(t, a, "orderstats@example.com", "Netherlands", 0)

	inWindow := db.Invoice{
		InvoiceNumber: "INV-000001", UserID: user.ID,
		Total: 121, VAT: 21, IssuedAt: time.Now(),
		Lines: []db.CreditLine{{Credits: 100, AddedAt: time.Now(), ExpiryAt: time.Now().AddDate(1, 0, 0)}},
	}
	outOfWindow := db.Invoice{
		InvoiceNumber: "INV-000002", UserID: user.ID,
		Total: 60.5, VAT: 10.5, IssuedAt: time.Now().AddDate(0, -2, 0),
	}
	require.NoError(t, a.DB.Create(&inWindow).Error)
	require.NoError(t, a.DB.Create(&outOfWindow).Error)

	w := doJSON(a.OrderStats, http.MethodGet, "/api/wallet/orders-stats?period=this_week", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, 1.0, body["orderCount"])
	assert.Equal(t, 121.0, body["revenue"])
	assert.Equal(t, 121.0, body["avgOrderValue"])
	assert.Equal(t, 21.0, body["vatCollected"])
	assert.Equal(t, 100.0, body["creditsSold"])
}

func TestOrderStatsAverageOverMultipleOrders(t *testing.T) {
	a := testAPI(t, nil, true)
	user, _ := seedUserWithWallet(t, a, "avg@example.com", "Netherlands", 0)

	for i, total := range []float64{100, 200} {
		invoice := db.Invoice{
			InvoiceNumber: []string{"INV-000001", "INV-000002"}[i],
			UserID:        user.ID,
			Total:         total,
			IssuedAt:      time.Now(),
		}
		require.NoError(t, a.DB.Create(&invoice).Error)
	}

	w := doJSON(a.OrderStats, http.MethodGet, "/api/wallet/orders-stats?period=this_week", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, 2.0, body["orderCount"])
	assert.Equal(t, 150.0, body["avgOrderValue"])
}

func TestOrderStatsNoOrders(t *testing.T) {
	a := testAPI(t, nil, true)

	w := doJSON(a.OrderStats, http.MethodGet, "/api/wallet/orders-stats?period=this_week", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, 0.0, body["orderCount"])
	assert.Equal(t, 0.0, body["revenue"])
	assert.Equal(t, 0.0, body["avgOrderValue"])
}

func TestDeleteOrderRemovesInvoiceAndLines(t *testing.T) {
	a := testAPI(t, nil, true)
	user, _ := seedUserWithWallet(t, a, "del@example.com", "Netherlands", 0)

	invoice := db.Invoice{
		InvoiceNumber: "INV-000001", UserID: user.ID, IssuedAt: time.Now(),
		Lines: []db.CreditLine{{Credits: 10, AddedAt: time.Now(), ExpiryAt: time.Now().AddDate(1, 0, 0)}},
	}
	require.NoError(t, a.DB.Create(&invoice).Error)

	w := doJSONParams(a.DeleteOrder, http.MethodDelete, "/api/wallet/orders/INV-000001",
		gin.Params{{Key: "id", Value: "INV-000001"}}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var invoices, lines int64
	a.DB.Model(&db.Invoice{}).Count(&invoices)
	a.DB.Model(&db.CreditLine{}).Count(&lines)
	assert.Equal(t, int64(0), invoices)
	assert.Equal(t, int64(0), lines)
}
