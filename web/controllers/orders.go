package controllers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"xclusive3d/web/billing"
	"xclusive3d/web/db"
)

// AllOrders lists every invoice as an order row, newest first. The display
// id is positional and distinct from the invoice number.
func (a *API) AllOrders(c *gin.Context) {
	var invoices []db.Invoice
	if err := a.DB.Preload("Lines").Order("issued_at desc").Find(&invoices).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load orders"})
		return
	}

	total := len(invoices)
	orders := make([]gin.H, 0, total)
	for i, inv := range invoices {
		var user db.User
		a.DB.First(&user, inv.UserID)

		var credits int64
		for _, line := range inv.Lines {
			credits += line.Credits
		}

		orders = append(orders, gin.H{
			"orderId":       fmt.Sprintf("ORD-%03d", total-i),
			"invoiceNumber": inv.InvoiceNumber,
			"customer":      user.FirstName + " " + user.LastName,
			"email":         user.Email,
			"credits":       credits,
			"amount":        inv.Amount,
			"vat":           inv.VAT,
			"total":         inv.Total,
			"currency":      inv.Currency,
			"method":        inv.Method,
			"date":          inv.IssuedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// periodWindow returns the [from, to) interval for a stats period. Weeks
// start on Monday.
func periodWindow(now time.Time, period string) (time.Time, time.Time) {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	monday := day.AddDate(0, 0, -((int(day.Weekday()) + 6) % 7))

	switch period {
	case "last_week":
		return monday.AddDate(0, 0, -7), monday
	case "last_month":
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return first.AddDate(0, -1, 0), first
	default: // this_week
		return monday, monday.AddDate(0, 0, 7)
	}
}

// OrderStats aggregates revenue and order counts over a reporting period.
func (a *API) OrderStats(c *gin.Context) {
	period := c.DefaultQuery("period", "this_week")
	from, to := periodWindow(time.Now(), period)

	var invoices []db.Invoice
	if err := a.DB.Preload("Lines").
		Where("issued_at >= ? AND issued_at < ?", from, to).
		Find(&invoices).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load order stats"})
		return
	}

	var revenue, vatCollected float64
	var creditsSold int64
	for _, inv := range invoices {
		revenue += inv.Total
		vatCollected += inv.VAT
		for _, line := range inv.Lines {
			if line.Credits > 0 {
				creditsSold += line.Credits
			}
		}
	}

	avgOrderValue := 0.0
	if len(invoices) > 0 {
		avgOrderValue = revenue / float64(len(invoices))
	}

	c.JSON(http.StatusOK, gin.H{
		"period":        period,
		"from":          from,
		"to":            to,
		"orderCount":    len(invoices),
		"revenue":       billing.Round2(revenue),
		"avgOrderValue": billing.Round2(avgOrderValue),
		"vatCollected":  billing.Round2(vatCollected),
		"creditsSold":   creditsSold,
	})
}

type manualOrderRequest struct {
	Email       string                    `json:"email" binding:"required"`
	Amount      float64                   `json:"amount"`
	Credits     []billing.CreditLineInput `json:"credits"`
	BillingInfo billingInfo               `json:"billingInfo"`
}

// ManualOrder lets an admin record an order paid outside the platform,
// e.g. by bank transfer. Credits are granted and a regular invoice issued.
func (a *API) ManualOrder(c *gin.Context) {
	var req manualOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Amount <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and a positive amount are required"})
		return
	}

	var user db.User
	if err := a.DB.Where("email = ?", strings.ToLower(strings.TrimSpace(req.Email))).First(&user).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Order can only be placed for registered user."})
		return
	}
	var wallet db.Wallet
	if err := a.DB.Where("user_id = ?", user.ID).First(&wallet).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Wallet not found"})
		return
	}

	rawCountry := req.BillingInfo.Country
	if rawCountry == "" {
		rawCountry = user.Country
	}
	vat, _ := a.VAT.Determine(c.Request.Context(), rawCountry, req.BillingInfo.VATNumber)
	totals := billing.Compute(req.Amount, vat.Rate, 0)
	credits := billing.SumCredits(req.Credits)

	now := time.Now()
	var invoice db.Invoice
	err := a.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&db.Wallet{}).Where("id = ?", wallet.ID).Updates(map[string]interface{}{
			"balance":         gorm.Expr("balance + ?", credits),
			"total_purchased": gorm.Expr("total_purchased + ?", credits),
		}).Error; err != nil {
			return err
		}

		number, err := db.NextInvoiceNumber(tx, false)
		if err != nil {
			return err
		}
		invoice = db.Invoice{
			InvoiceNumber:   number,
			UserID:          user.ID,
			Amount:          billing.Round2(totals.Amount),
			VAT:             billing.Round2(totals.VATAmount),
			VATRate:         vat.Rate,
			Total:           billing.Round2(totals.Total),
			Currency:        "EUR",
			Method:          "manual",
			IsReverseCharge: vat.ReverseCharge,
			VATNote:         vat.Note,
			BillingName:     req.BillingInfo.Name,
			BillingStreet:   req.BillingInfo.Street,
			BillingPostal:   req.BillingInfo.PostalCode,
			BillingCity:     req.BillingInfo.City,
			CountryCode:     vat.CountryCode,
			CountryName:     rawCountry,
			CompanyName:     req.BillingInfo.CompanyName,
			VATNumber:       vat.VATNumber,
			IssuedAt:        now,
		}
		for _, line := range req.Credits {
			invoice.Lines = append(invoice.Lines, db.CreditLine{
				Credits:  line.Credits,
				Amount:   line.Amount,
				AddedAt:  now,
				ExpiryAt: now.AddDate(1, 0, 0),
				Reason:   "Manual order placement by admin",
				IsManual: true,
			})
		}
		return tx.Create(&invoice).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to place manual order"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"invoice": gin.H{
			"invoiceNumber": invoice.InvoiceNumber,
			"total":         invoice.Total,
		},
	})
}

// DeleteOrder removes an invoice and its lines. Credits already granted
// stay on the wallet; reversing them is a separate admin action.
func (a *API) DeleteOrder(c *gin.Context) {
	id := c.Param("id")

	var invoice db.Invoice
	if err := a.DB.Where("invoice_number = ?", id).First(&invoice).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}

	err := a.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("invoice_id = ?", invoice.ID).Delete(&db.CreditLine{}).Error; err != nil {
			return err
		}
		return tx.Delete(&invoice).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete order"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
