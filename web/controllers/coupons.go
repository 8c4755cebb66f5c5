package controllers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"xclusive3d/web/db"
)

// redeemCoupon increments the coupon's usage inside the caller's
// transaction and records who redeemed it. The usage-limit guard is part
// of the UPDATE itself so two concurrent redemptions can never overshoot.
func (a *API) redeemCoupon(tx *gorm.DB, code string, user *db.User) error {
	var coupon db.Coupon
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("code = ?", strings.ToUpper(code)).First(&coupon).Error; err != nil {
		return err
	}

	if !coupon.ExpiresAt.IsZero() && coupon.ExpiresAt.Before(time.Now()) {
		return errors.New("coupon expired")
	}
	if coupon.RestrictedToEmail != "" && !strings.EqualFold(coupon.RestrictedToEmail, user.Email) {
		return errors.New("coupon is restricted to another account")
	}
	if coupon.IndividualUse {
		var count int64
		tx.Model(&db.CouponRedemption{}).
			Where("coupon_id = ? AND user_id = ?", coupon.ID, user.ID).Count(&count)
		if count > 0 {
			return errors.New("coupon already redeemed by this account")
		}
	}

	result := tx.Model(&db.Coupon{}).
		Where("id = ? AND (usage_limit = 0 OR usage_count < usage_limit)", coupon.ID).
		Update("usage_count", gorm.Expr("usage_count + 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.New("coupon usage limit reached")
	}

	return tx.Create(&db.CouponRedemption{
		CouponID: coupon.ID,
		UserID:   user.ID,
		Email:    user.Email,
	}).Error
}

// issueTrialCoupon gives the customer a one-off discount after their first
// completed conversion. Idempotent per email.
func (a *API) issueTrialCoupon(user *db.User) {
	code := "TRIAL-" + strings.ToUpper(strings.Split(user.Email, "@")[0])

	var existing db.Coupon
	if err := a.DB.Where("restricted_to_email = ?", user.Email).First(&existing).Error; err == nil {
		a.extendTrialCoupon(&existing)
		return
	}

	coupon := db.Coupon{
		Code:              code,
		DiscountType:      "percent",
		DiscountAmount:    20,
		UsageLimit:        1,
		ExpiresAt:         time.Now().AddDate(0, 0, 30),
		RestrictedToEmail: user.Email,
		IndividualUse:     true,
	}
	if err := a.DB.Create(&coupon).Error; err != nil {
		log.Warn().Err(err).Str("email", user.Email).Msg("trial coupon creation failed")
	}
}

// extendTrialCoupon pushes an unredeemed trial coupon's expiry out after
// repeat activity.
func (a *API) extendTrialCoupon(coupon *db.Coupon) {
	if coupon.UsageCount > 0 {
		return
	}
	a.DB.Model(coupon).Update("expires_at", time.Now().AddDate(0, 0, 14))
}

type couponRequest struct {
	Code              string     `json:"code" binding:"required"`
	DiscountType      string     `json:"discountType" binding:"required,oneof=percent fixed"`
	DiscountAmount    float64    `json:"discountAmount" binding:"required"`
	UsageLimit        int64      `json:"usageLimit"`
	ExpiresAt         *time.Time `json:"expiresAt"`
	RestrictedToEmail string     `json:"restrictedToEmail"`
	IndividualUse     bool       `json:"individualUse"`
}

func (a *API) CreateCoupon(c *gin.Context) {
	var req couponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code, discountType and discountAmount are required"})
		return
	}

	coupon := db.Coupon{
		Code:              strings.ToUpper(req.Code),
		DiscountType:      req.DiscountType,
		DiscountAmount:    req.DiscountAmount,
		UsageLimit:        req.UsageLimit,
		RestrictedToEmail: strings.ToLower(req.RestrictedToEmail),
		IndividualUse:     req.IndividualUse,
	}
	if req.ExpiresAt != nil {
		coupon.ExpiresAt = *req.ExpiresAt
	}

	if err := a.DB.Create(&coupon).Error; err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Coupon code already exists"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "coupon": coupon})
}

// GetAllCoupons lists coupons. With ?email= the list is filtered to
// coupons that account may use: unrestricted ones plus its own.
func (a *API) GetAllCoupons(c *gin.Context) {
	query := a.DB.Order("created_at desc")
	if email := strings.ToLower(c.Query("email")); email != "" {
		query = query.Where("restricted_to_email = '' OR restricted_to_email = ?", email)
	}

	var coupons []db.Coupon
	if err := query.Find(&coupons).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load coupons"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"coupons": coupons})
}

func (a *API) GetCouponByID(c *gin.Context) {
	var coupon db.Coupon
	if err := a.DB.Preload("Redemptions").First(&coupon, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Coupon not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"coupon": coupon})
}

type couponPatch struct {
	DiscountType      *string    `json:"discountType"`
	DiscountAmount    *float64   `json:"discountAmount"`
	UsageLimit        *int64     `json:"usageLimit"`
	ExpiresAt         *time.Time `json:"expiresAt"`
	RestrictedToEmail *string    `json:"restrictedToEmail"`
	IndividualUse     *bool      `json:"individualUse"`
}

func (a *API) UpdateCoupon(c *gin.Context) {
	var coupon db.Coupon
	if err := a.DB.First(&coupon, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Coupon not found"})
		return
	}

	var patch couponPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid coupon payload"})
		return
	}

	updates := map[string]interface{}{}
	if patch.DiscountType != nil {
		if *patch.DiscountType != "percent" && *patch.DiscountType != "fixed" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "discountType must be percent or fixed"})
			return
		}
		updates["discount_type"] = *patch.DiscountType
	}
	if patch.DiscountAmount != nil {
		updates["discount_amount"] = *patch.DiscountAmount
	}
	if patch.UsageLimit != nil {
		updates["usage_limit"] = *patch.UsageLimit
	}
	if patch.ExpiresAt != nil {
		updates["expires_at"] = *patch.ExpiresAt
	}
	if patch.RestrictedToEmail != nil {
		updates["restricted_to_email"] = strings.ToLower(*patch.RestrictedToEmail)
	}
	if patch.IndividualUse != nil {
		updates["individual_use"] = *patch.IndividualUse
	}

	if len(updates) > 0 {
		if err := a.DB.Model(&coupon).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update coupon"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "coupon": coupon})
}

func (a *API) DeleteCoupon(c *gin.Context) {
	result := a.DB.Delete(&db.Coupon{}, c.Param("id"))
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete coupon"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Coupon not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// CouponStats summarizes coupon usage for the admin dashboard.
func (a *API) CouponStats(c *gin.Context) {
	now := time.Now()

	var total, active, expired int64
	a.DB.Model(&db.Coupon{}).Count(&total)
	a.DB.Model(&db.Coupon{}).
		Where("expires_at IS NULL OR expires_at > ? OR expires_at = ?", now, time.Time{}).
		Count(&active)
	a.DB.Model(&db.Coupon{}).
		Where("expires_at > ? AND expires_at <= ?", time.Time{}, now).
		Count(&expired)

	var redemptions int64
	a.DB.Model(&db.CouponRedemption{}).Count(&redemptions)

	c.JSON(http.StatusOK, gin.H{
		"totalCoupons":     total,
		"activeCoupons":    active,
		"expiredCoupons":   expired,
		"totalRedemptions": redemptions,
	})
}
