package controllers

import (
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"xclusive3d/web/db"
)

type adjustCreditsRequest struct {
	UserID  uint   `json:"userId" binding:"required"`
	Credits int64  `json:"credits" binding:"required"`
	Reason  string `json:"reason"`
}

// AddCredits grants credits without a charge. The invoice is numbered from
// the manual sequence and carries no monetary amount.
func (a *API) AddCredits(c *gin.Context) {
	var req adjustCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Credits <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId and a positive credit count are required"})
		return
	}
	if req.Reason == "" {
		req.Reason = "Manual credit addition"
	}

	var wallet db.Wallet
	if err := a.DB.Where("user_id = ?", req.UserID).First(&wallet).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Wallet not found"})
		return
	}

	now := time.Now()
	var invoice db.Invoice
	err := a.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&db.Wallet{}).Where("id = ?", wallet.ID).Updates(map[string]interface{}{
			"balance":         gorm.Expr("balance + ?", req.Credits),
			"total_purchased": gorm.Expr("total_purchased + ?", req.Credits),
		}).Error; err != nil {
			return err
		}

		number, err := db.NextInvoiceNumber(tx, true)
		if err != nil {
			return err
		}
		invoice = db.Invoice{
			InvoiceNumber: number,
			UserID:        req.UserID,
			Currency:      "CREDITS",
			Method:        "manual",
			IssuedAt:      now,
			Lines: []db.CreditLine{{
				Credits:  req.Credits,
				AddedAt:  now,
				ExpiryAt: now.AddDate(1, 0, 0),
				Reason:   req.Reason,
				IsManual: true,
			}},
		}
		return tx.Create(&invoice).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add credits"})
		return
	}

	a.DB.First(&wallet, wallet.ID)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"balance": wallet.Balance,
		"invoice": invoice.InvoiceNumber,
	})
}

// RemoveCredits deducts credits under a row lock so the balance can never
// be driven negative by concurrent deductions.
func (a *API) RemoveCredits(c *gin.Context) {
	var req adjustCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Credits <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId and a positive credit count are required"})
		return
	}
	if req.Reason == "" {
		req.Reason = "Manual credit deduction"
	}

	errInsufficient := errors.New("insufficient credits")

	var balance int64
	now := time.Now()
	err := a.DB.Transaction(func(tx *gorm.DB) error {
		var wallet db.Wallet
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", req.UserID).First(&wallet).Error; err != nil {
			return err
		}
		if wallet.Balance < req.Credits {
			balance = wallet.Balance
			return errInsufficient
		}

		if err := tx.Model(&wallet).Update("balance", gorm.Expr("balance - ?", req.Credits)).Error; err != nil {
			return err
		}

		number, err := db.NextInvoiceNumber(tx, true)
		if err != nil {
			return err
		}
		invoice := db.Invoice{
			InvoiceNumber: number,
			UserID:        req.UserID,
			Currency:      "CREDITS",
			Method:        "manual",
			IssuedAt:      now,
			Lines: []db.CreditLine{{
				Credits:  -req.Credits,
				AddedAt:  now,
				ExpiryAt: now, // deductions expire immediately
				Reason:   req.Reason,
				IsManual: true,
			}},
		}
		if err := tx.Create(&invoice).Error; err != nil {
			return err
		}
		balance = wallet.Balance - req.Credits
		return nil
	})
	if errors.Is(err, errInsufficient) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Insufficient credits", "balance": balance})
		return
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Wallet not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove credits"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "balance": balance})
}

// AllCustomersCredits builds the per-customer credit usage view for the
// admin dashboard. Customers with no balance and no purchases are hidden.
func (a *API) AllCustomersCredits(c *gin.Context) {
	var wallets []db.Wallet
	if err := a.DB.Find(&wallets).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load customers"})
		return
	}

	customers := make([]gin.H, 0, len(wallets))
	for _, w := range wallets {
		if w.Balance == 0 && w.TotalPurchased == 0 {
			continue
		}

		var user db.User
		if err := a.DB.First(&user, w.UserID).Error; err != nil {
			continue
		}

		used := w.TotalPurchased - w.Balance
		if used < 0 {
			used = 0
		}
		usagePercent := 0
		if w.TotalPurchased > 0 {
			usagePercent = int(math.Round(float64(used) / float64(w.TotalPurchased) * 100))
		}

		// latest credit expiry across the customer's invoices
		var latestExpiry time.Time
		var line db.CreditLine
		err := a.DB.Joins("JOIN invoices ON invoices.id = credit_lines.invoice_id").
			Where("invoices.user_id = ? AND credit_lines.credits > 0", w.UserID).
			Order("credit_lines.expiry_at desc").First(&line).Error
		if err == nil {
			latestExpiry = line.ExpiryAt
		}

		status := "Active"
		if w.Balance == 0 {
			status = "Inactive"
		}

		customers = append(customers, gin.H{
			"userId":         w.UserID,
			"email":          user.Email,
			"name":           user.FirstName + " " + user.LastName,
			"balance":        w.Balance,
			"totalPurchased": w.TotalPurchased,
			"used":           used,
			"usagePercent":   usagePercent,
			"expiryDate":     latestExpiry,
			"status":         status,
		})
	}
	c.JSON(http.StatusOK, gin.H{"customers": customers})
}

// CreditsStats summarizes credit liabilities across all customers. A
// customer's expiry standing is judged by their latest credit-line expiry:
// one lapsed package does not mark an account expired while a newer
// package is still live. expiringSoon and expiredCredits count customers,
// not credits.
func (a *API) CreditsStats(c *gin.Context) {
	now := time.Now()
	soon := now.AddDate(0, 0, 30)

	var totalActive int64
	a.DB.Model(&db.Wallet{}).Select("COALESCE(SUM(balance), 0)").Scan(&totalActive)

	var wallets []db.Wallet
	if err := a.DB.Find(&wallets).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load credit stats"})
		return
	}

	var totalCustomers, expiringSoon, expired int64
	for _, w := range wallets {
		if w.Balance == 0 && w.TotalPurchased == 0 {
			continue
		}
		totalCustomers++

		var line db.CreditLine
		err := a.DB.Joins("JOIN invoices ON invoices.id = credit_lines.invoice_id").
			Where("invoices.user_id = ? AND credit_lines.credits > 0", w.UserID).
			Order("credit_lines.expiry_at desc").First(&line).Error
		if err != nil {
			continue
		}

		switch {
		case line.ExpiryAt.Before(now):
			expired++
		case line.ExpiryAt.Before(soon):
			expiringSoon++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"totalActiveCredits": totalActive,
		"expiringSoon":       expiringSoon,
		"expiredCredits":     expired,
		"totalCustomers":     totalCustomers,
	})
}
