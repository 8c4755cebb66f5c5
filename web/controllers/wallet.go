package controllers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"xclusive3d/payment/stripe"
	"xclusive3d/web/billing"
	"xclusive3d/web/db"
)

type billingInfo struct {
	Name        string `json:"name"`
	Street      string `json:"street"`
	PostalCode  string `json:"postalCode"`
	City        string `json:"city"`
	Country     string `json:"country"`
	CompanyName string `json:"companyName"`
	VATNumber   string `json:"vatNumber"`
}

type addFundsRequest struct {
	UserID             uint                       `json:"userId"`
	Amount             float64                    `json:"amount"`
	Credits            []billing.CreditLineInput  `json:"credits"`
	BillingInfo        billingInfo                `json:"billingInfo"`
	CurrencySymbol     string                     `json:"currencySymbol"`
	StripeCard         string                     `json:"stripeCard"`
	UsePrimaryCard     bool                       `json:"usePrimaryCard"`
	LocalPaymentMethod string                     `json:"localPaymentMethod"`
	CouponCode         string                     `json:"couponCode"`
	DiscountAmount     float64                    `json:"discountAmount"`
}

// AddFunds charges the customer's stored card and, only after the charge
// succeeds, credits the wallet, redeems the coupon and issues the invoice
// inside a single transaction.
func (a *API) AddFunds(c *gin.Context) {
	var req addFundsRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == 0 || req.Amount <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId and a positive amount are required"})
		return
	}

	var user db.User
	if err := a.DB.First(&user, req.UserID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	var wallet db.Wallet
	if err := a.DB.Preload("Cards").Where("user_id = ?", user.ID).First(&wallet).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Wallet not found"})
		return
	}

	info := req.BillingInfo
	if info.Name == "" || info.Street == "" || info.PostalCode == "" || info.Country == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Billing name, street, postal code and country are required"})
		return
	}

	rawCountry := info.Country
	if rawCountry == "" {
		rawCountry = user.Country
	}

	vat, err := a.VAT.Determine(c.Request.Context(), rawCountry, info.VATNumber)
	if err != nil {
		// Registry outage must not block a purchase; the fallback result
		// applies the standard rate.
		log.Warn().Err(err).Str("vatNumber", info.VATNumber).
			Msg("VAT validation unavailable, charging standard rate")
	}

	totals := billing.Compute(req.Amount, vat.Rate, req.DiscountAmount)
	chargeCurrency := billing.ChargeCurrency(rawCountry)
	credits := billing.SumCredits(req.Credits)

	// the invoice records the symbol the storefront displayed, the charge
	// itself runs in the country's settlement currency
	invoiceCurrency := req.CurrencySymbol
	if invoiceCurrency == "" {
		invoiceCurrency = "EUR"
	}

	// Pick the card: explicit id wins, then the primary flag, otherwise
	// the charge was completed client-side via a payment element.
	var payment *stripe.PaymentIntent
	method := "Stripe Element"
	if req.LocalPaymentMethod != "" {
		method = req.LocalPaymentMethod
	}

	cardID := ""
	if req.StripeCard != "" {
		cardID = req.StripeCard
	} else if req.UsePrimaryCard {
		for _, card := range wallet.Cards {
			if card.IsPrimary {
				cardID = card.StripeCardID
				method = card.Brand
				break
			}
		}
		if cardID == "" && len(wallet.Cards) > 0 {
			newest := wallet.Cards[len(wallet.Cards)-1]
			cardID = newest.StripeCardID
			method = newest.Brand
		}
		if cardID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No stored card on file"})
			return
		}
	}

	if cardID != "" {
		if req.StripeCard != "" {
			for _, card := range wallet.Cards {
				if card.StripeCardID == cardID {
					method = card.Brand
				}
			}
		}
		payment, err = a.Stripe.ConfirmPaymentIntent(c.Request.Context(), stripe.PaymentIntentParams{
			AmountMinor:   billing.MinorUnits(totals.Total),
			Currency:      chargeCurrency,
			CustomerID:    wallet.StripeCustomerID,
			PaymentMethod: cardID,
			Description:   fmt.Sprintf("Purchased %d credits for %s %.2f (incl. VAT)", credits, invoiceCurrency, totals.Total),
			Metadata: map[string]string{
				"userId":  fmt.Sprint(user.ID),
				"credits": fmt.Sprint(credits),
			},
			IdempotencyKey: uuid.NewString(),
		})
		if err != nil {
			if stripe.IsAuthenticationRequired(err) {
				c.JSON(http.StatusPaymentRequired, gin.H{"error": "Authentication required for card. Please re-authenticate."})
				return
			}
			log.Error().Err(err).Uint("userId", user.ID).Msg("stripe charge failed")
			c.JSON(http.StatusPaymentRequired, gin.H{"error": "Stripe payment failed"})
			return
		}
		if payment.Status != "succeeded" {
			c.JSON(http.StatusPaymentRequired, gin.H{"error": "Stripe payment failed"})
			return
		}
	} else {
		// Local payment methods (iDEAL, bank transfer etc.) confirm in the
		// browser; the server records the completed charge.
		payment = &stripe.PaymentIntent{
			ID:            "manual-element",
			Status:        "succeeded",
			PaymentMethod: "element",
		}
	}

	now := time.Now()
	var invoice db.Invoice
	err = a.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&db.Wallet{}).Where("id = ?", wallet.ID).Updates(map[string]interface{}{
			"balance":         gorm.Expr("balance + ?", credits),
			"total_purchased": gorm.Expr("total_purchased + ?", credits),
		}).Error; err != nil {
			return err
		}

		if req.CouponCode != "" {
			if err := a.redeemCoupon(tx, req.CouponCode, &user); err != nil {
				log.Warn().Err(err).Str("coupon", req.CouponCode).Msg("coupon not redeemed")
			}
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
			DiscountAmount:  billing.Round2(totals.Discount),
			Total:           billing.Round2(totals.Total),
			Currency:        invoiceCurrency,
			Method:          method,
			IsReverseCharge: vat.ReverseCharge,
			VATNote:         vat.Note,
			CouponCode:      req.CouponCode,
			StripePaymentID: payment.ID,
			BillingName:     info.Name,
			BillingStreet:   info.Street,
			BillingPostal:   info.PostalCode,
			BillingCity:     info.City,
			CountryCode:     vat.CountryCode,
			CountryName:     rawCountry,
			CompanyName:     info.CompanyName,
			VATNumber:       vat.VATNumber,
			IssuedAt:        now,
		}
		for _, line := range req.Credits {
			invoice.Lines = append(invoice.Lines, db.CreditLine{
				Credits:  line.Credits,
				Amount:   line.Amount,
				AddedAt:  now,
				ExpiryAt: now.AddDate(1, 0, 0),
				Reason:   "Wallet top-up purchase",
			})
		}
		return tx.Create(&invoice).Error
	})
	if err != nil {
		// The card was already charged. This must be reconciled by hand,
		// so log everything needed to find the payment.
		log.Error().Err(err).
			Uint("userId", user.ID).
			Str("stripePaymentId", payment.ID).
			Int64("credits", credits).
			Msg("RECONCILIATION REQUIRED: charge succeeded but persistence failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Payment processed but crediting failed; support has been notified"})
		return
	}

	a.DB.Where("id = ?", wallet.ID).First(&wallet)
	a.Mail.SendTopUpReceipt(user.Email, user.FirstName, credits, invoice.Total, invoiceCurrency, invoice.InvoiceNumber)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": fmt.Sprintf("Added %d credits to wallet", credits),
		"wallet":  gin.H{"balance": wallet.Balance},
		"stripePayment": gin.H{
			"id":             payment.ID,
			"status":         payment.Status,
			"payment_method": payment.PaymentMethod,
		},
		"invoice": gin.H{"invoiceNumber": invoice.InvoiceNumber},
	})
}

// CreateSetupIntent hands the client a secret for collecting a new card.
// The Stripe customer is created lazily for accounts that predate it.
func (a *API) CreateSetupIntent(c *gin.Context) {
	var req struct {
		UserID uint `json:"userId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}

	var user db.User
	if err := a.DB.First(&user, req.UserID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	var wallet db.Wallet
	if err := a.DB.Where("user_id = ?", user.ID).First(&wallet).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Wallet not found"})
		return
	}

	if wallet.StripeCustomerID == "" {
		customer, err := a.Stripe.CreateCustomer(c.Request.Context(), user.Email, user.FirstName+" "+user.LastName)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to create payment profile"})
			return
		}
		wallet.StripeCustomerID = customer.ID
		a.DB.Model(&wallet).Update("stripe_customer_id", customer.ID)
	}

	intent, err := a.Stripe.CreateSetupIntent(c.Request.Context(), wallet.StripeCustomerID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to create setup intent"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"clientSecret": intent.ClientSecret})
}

// CreatePaymentIntentAllMethods starts a charge that lets Stripe offer
// whatever local payment methods apply to the buyer.
func (a *API) CreatePaymentIntentAllMethods(c *gin.Context) {
	var req struct {
		Amount   float64 `json:"amount" binding:"required"`
		Currency string  `json:"currency"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Amount <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A positive amount is required"})
		return
	}
	if req.Currency == "" {
		req.Currency = "eur"
	}

	intent, err := a.Stripe.CreateAutomaticPaymentIntent(c.Request.Context(), billing.MinorUnits(req.Amount), req.Currency)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to create payment intent"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"clientSecret": intent.ClientSecret, "id": intent.ID})
}

type addBillingMethodRequest struct {
	UserID          uint `json:"userId" binding:"required"`
	PaymentMethodID string `json:"paymentMethodId" binding:"required"`
}

func (a *API) AddBillingMethod(c *gin.Context) {
	var req addBillingMethodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId and paymentMethodId are required"})
		return
	}

	var wallet db.Wallet
	if err := a.DB.Preload("Cards").Where("user_id = ?", req.UserID).First(&wallet).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Wallet not found"})
		return
	}

	for _, card := range wallet.Cards {
		if card.StripeCardID == req.PaymentMethodID {
			c.JSON(http.StatusConflict, gin.H{"error": "Card already on file"})
			return
		}
	}

	method, err := a.Stripe.AttachPaymentMethod(c.Request.Context(), req.PaymentMethodID, wallet.StripeCustomerID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to attach card"})
		return
	}
	if err := a.Stripe.SetDefaultPaymentMethod(c.Request.Context(), wallet.StripeCustomerID, method.ID); err != nil {
		log.Warn().Err(err).Msg("failed to set default payment method")
	}

	card := db.Card{
		WalletID:     wallet.ID,
		StripeCardID: method.ID,
		Brand:        method.Card.Brand,
		Last4:        method.Card.Last4,
		ExpMonth:     method.Card.ExpMonth,
		ExpYear:      method.Card.ExpYear,
		IsPrimary:    len(wallet.Cards) == 0,
	}
	if err := a.DB.Create(&card).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save card"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"card": gin.H{
			"id":        card.StripeCardID,
			"brand":     card.Brand,
			"last4":     card.Last4,
			"expMonth":  card.ExpMonth,
			"expYear":   card.ExpYear,
			"isPrimary": card.IsPrimary,
		},
	})
}

func (a *API) SetPrimaryCard(c *gin.Context) {
	var req struct {
		UserID uint   `json:"userId" binding:"required"`
		CardID string `json:"cardId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId and cardId are required"})
		return
	}

	var wallet db.Wallet
	if err := a.DB.Where("user_id = ?", req.UserID).First(&wallet).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Wallet not found"})
		return
	}

	err := a.DB.Transaction(func(tx *gorm.DB) error {
		var card db.Card
		if err := tx.Where("wallet_id = ? AND stripe_card_id = ?", wallet.ID, req.CardID).First(&card).Error; err != nil {
			return err
		}
		if err := tx.Model(&db.Card{}).Where("wallet_id = ?", wallet.ID).Update("is_primary", false).Error; err != nil {
			return err
		}
		return tx.Model(&card).Update("is_primary", true).Error
	})
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Card not found"})
		return
	}

	a.Stripe.SetDefaultPaymentMethod(c.Request.Context(), wallet.StripeCustomerID, req.CardID)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// RemoveCard detaches the card at Stripe and deletes it locally. If the
// primary card is removed the oldest remaining card is promoted.
func (a *API) RemoveCard(c *gin.Context) {
	var req struct {
		UserID uint   `json:"userId" binding:"required"`
		CardID string `json:"cardId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId and cardId are required"})
		return
	}

	var wallet db.Wallet
	if err := a.DB.Where("user_id = ?", req.UserID).First(&wallet).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Wallet not found"})
		return
	}

	var card db.Card
	if err := a.DB.Where("wallet_id = ? AND stripe_card_id = ?", wallet.ID, req.CardID).First(&card).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Card not found"})
		return
	}

	if err := a.Stripe.DetachPaymentMethod(c.Request.Context(), card.StripeCardID); err != nil {
		log.Warn().Err(err).Str("card", card.StripeCardID).Msg("stripe detach failed, removing locally anyway")
	}

	wasPrimary := card.IsPrimary
	err := a.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&card).Error; err != nil {
			return err
		}
		if wasPrimary {
			var oldest db.Card
			if err := tx.Where("wallet_id = ?", wallet.ID).Order("created_at asc").First(&oldest).Error; err == nil {
				return tx.Model(&oldest).Update("is_primary", true).Error
			}
		}
		return nil
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove card"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// CheckVAT returns the VAT treatment for a prospective purchase without
// charging anything.
func (a *API) CheckVAT(c *gin.Context) {
	var req struct {
		Country   string `json:"country" binding:"required"`
		VATNumber string `json:"vatNumber"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "country is required"})
		return
	}

	vat, err := a.VAT.Determine(c.Request.Context(), req.Country, req.VATNumber)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "VAT validation service unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"vatRate":         vat.Rate,
		"isEU":            vat.IsEU,
		"isReverseCharge": vat.ReverseCharge,
		"validVAT":        vat.ValidVAT,
		"note":            vat.Note,
		"countryCode":     vat.CountryCode,
	})
}

// ValidateVAT checks a single VAT number against the registry.
func (a *API) ValidateVAT(c *gin.Context) {
	var req struct {
		VATNumber   string `json:"vatNumber" binding:"required"`
		CountryCode string `json:"countryCode" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "vatNumber and countryCode are required"})
		return
	}

	valid, err := a.VAT.ValidateNumber(c.Request.Context(), req.VATNumber, req.CountryCode)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "VAT validation service unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": valid})
}

// GetWallets lists every wallet with its owner, for the admin dashboard.
func (a *API) GetWallets(c *gin.Context) {
	var wallets []db.Wallet
	if err := a.DB.Preload("Cards").Find(&wallets).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load wallets"})
		return
	}

	out := make([]gin.H, 0, len(wallets))
	for _, w := range wallets {
		var user db.User
		a.DB.First(&user, w.UserID)
		out = append(out, gin.H{
			"userId":         w.UserID,
			"email":          user.Email,
			"name":           user.FirstName + " " + user.LastName,
			"balance":        w.Balance,
			"totalPurchased": w.TotalPurchased,
			"cards":          len(w.Cards),
		})
	}
	c.JSON(http.StatusOK, gin.H{"wallets": out})
}
