package controllers

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"xclusive3d/web/db"
)

func jwtSecret() []byte {
	return []byte(os.Getenv("JWTKEY"))
}

func signToken(userID uint, purpose string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":     float64(userID),
		"purpose": purpose,
		"exp":     time.Now().Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret())
}

func parseToken(tokenString, purpose string) (uint, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return jwtSecret(), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return 0, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || claims["purpose"] != purpose {
		return 0, jwt.ErrTokenInvalidClaims
	}
	sub, ok := claims["sub"].(float64)
	if !ok {
		return 0, jwt.ErrTokenInvalidClaims
	}
	return uint(sub), nil
}

// currentUser resolves the bearer token into a persisted user.
func (a *API) currentUser(c *gin.Context) (*db.User, bool) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing authorization token"})
		return nil, false
	}
	tokenString := strings.TrimPrefix(header, "Bearer ")

	userID, err := parseToken(tokenString, "session")
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
		return nil, false
	}

	var user db.User
	if err := a.DB.First(&user, userID).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User no longer exists"})
		return nil, false
	}
	return &user, true
}

type registerRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	FirstName string `json:"firstName" binding:"required"`
	LastName  string `json:"lastName"`
	Country   string `json:"country"`
}

// Register creates the user together with an empty wallet and a Stripe
// customer, then mails a verification link.
func (a *API) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid registration payload"})
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	var existing db.User
	if err := a.DB.Where("email = ?", req.Email).First(&existing).Error; err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Email already registered"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create account"})
		return
	}

	user := db.User{
		Email:             req.Email,
		Password:          string(hash),
		FirstName:         req.FirstName,
		LastName:          req.LastName,
		Country:           req.Country,
		HasFreeConversion: true,
	}

	err = a.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		return tx.Create(&db.Wallet{UserID: user.ID}).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create account"})
		return
	}

	// Stripe customer creation is best effort; the wallet lazily creates
	// one on first billing-method use if this fails.
	if a.Stripe != nil {
		customer, err := a.Stripe.CreateCustomer(c.Request.Context(), user.Email, user.FirstName+" "+user.LastName)
		if err != nil {
			log.Warn().Err(err).Str("email", user.Email).Msg("stripe customer creation failed at registration")
		} else {
			a.DB.Model(&db.Wallet{}).Where("user_id = ?", user.ID).
				Update("stripe_customer_id", customer.ID)
		}
	}

	if token, err := signToken(user.ID, "verify", 48*time.Hour); err == nil {
		link := os.Getenv("FRONTEND_URL") + "/verify-email?token=" + token
		a.Mail.SendVerificationEmail(user.Email, user.FirstName, link)
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"user": gin.H{
			"id":        user.ID,
			"email":     user.Email,
			"firstName": user.FirstName,
			"lastName":  user.LastName,
		},
	})
}

func (a *API) VerifyEmail(c *gin.Context) {
	tokenString := c.Query("token")
	if tokenString == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing verification token"})
		return
	}

	userID, err := parseToken(tokenString, "verify")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or expired verification token"})
		return
	}

	if err := a.DB.Model(&db.User{}).Where("id = ?", userID).Update("verified", true).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify email"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Email verified"})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (a *API) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email and password are required"})
		return
	}

	var user db.User
	if err := a.DB.Where("email = ?", strings.ToLower(strings.TrimSpace(req.Email))).First(&user).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token, err := signToken(user.ID, "session", 30*24*time.Hour)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"token":   token,
		"user": gin.H{
			"id":        user.ID,
			"email":     user.Email,
			"firstName": user.FirstName,
			"lastName":  user.LastName,
			"country":   user.Country,
			"verified":  user.Verified,
		},
	})
}

func (a *API) Me(c *gin.Context) {
	user, ok := a.currentUser(c)
	if !ok {
		return
	}

	var wallet db.Wallet
	a.DB.Where("user_id = ?", user.ID).First(&wallet)

	c.JSON(http.StatusOK, gin.H{
		"id":                user.ID,
		"email":             user.Email,
		"firstName":         user.FirstName,
		"lastName":          user.LastName,
		"country":           user.Country,
		"verified":          user.Verified,
		"hasFreeConversion": user.HasFreeConversion,
		"wallet": gin.H{
			"balance":        wallet.Balance,
			"totalPurchased": wallet.TotalPurchased,
		},
	})
}

// profilePatch carries only the fields the caller actually sent; nil
// pointers stay untouched in the database.
type profilePatch struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Country   *string `json:"country"`
}

func (a *API) UpdateProfile(c *gin.Context) {
	user, ok := a.currentUser(c)
	if !ok {
		return
	}

	var patch profilePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid profile payload"})
		return
	}

	updates := map[string]interface{}{}
	if patch.FirstName != nil {
		updates["first_name"] = *patch.FirstName
	}
	if patch.LastName != nil {
		updates["last_name"] = *patch.LastName
	}
	if patch.Country != nil {
		updates["country"] = *patch.Country
	}
	if len(updates) == 0 {
		c.JSON(http.StatusOK, gin.H{"success": true})
		return
	}

	if err := a.DB.Model(user).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update profile"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (a *API) ResetPasswordRequest(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email is required"})
		return
	}

	var user db.User
	if err := a.DB.Where("email = ?", strings.ToLower(strings.TrimSpace(req.Email))).First(&user).Error; err == nil {
		if token, err := signToken(user.ID, "reset", time.Hour); err == nil {
			link := os.Getenv("FRONTEND_URL") + "/reset-password?token=" + token
			a.Mail.SendAsync(user.Email, "Reset your password",
				"<p>Hi "+user.FirstName+",</p><p><a href=\""+link+"\">Click here to reset your password</a>. The link expires in one hour.</p>",
				"Reset your password: "+link)
		}
	}

	// Same response whether or not the account exists.
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "If the account exists, a reset email was sent."})
}

func (a *API) ResetPasswordConfirm(c *gin.Context) {
	var req struct {
		Token    string `json:"token" binding:"required"`
		Password string `json:"password" binding:"required,min=8"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Token and new password are required"})
		return
	}

	userID, err := parseToken(req.Token, "reset")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or expired reset token"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset password"})
		return
	}

	if err := a.DB.Model(&db.User{}).Where("id = ?", userID).Update("password", string(hash)).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset password"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Password updated"})
}

// DeleteUser removes the account named by the route. Accounts can only
// delete themselves, so the id must match the bearer token's user.
func (a *API) DeleteUser(c *gin.Context) {
	user, ok := a.currentUser(c)
	if !ok {
		return
	}
	if c.Param("id") != strconv.FormatUint(uint64(user.ID), 10) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Cannot delete another account"})
		return
	}

	err := a.DB.Transaction(func(tx *gorm.DB) error {
		var wallet db.Wallet
		if err := tx.Where("user_id = ?", user.ID).First(&wallet).Error; err == nil {
			if err := tx.Where("wallet_id = ?", wallet.ID).Delete(&db.Card{}).Error; err != nil {
				return err
			}
			if err := tx.Delete(&wallet).Error; err != nil {
				return err
			}
		}
		return tx.Delete(user).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete account"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Account deleted"})
}
