package db

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	gorm.Model
	Email     string `gorm:"unique"`
	Password  string
	FirstName string
	LastName  string
	Country   string // free-text country name, e.g. "Netherlands"

	Verified bool

	// no column default: gorm would silently drop an explicit false on
	// Create. Registration sets the flag itself.
	HasFreeConversion bool
}

type Wallet struct {
	gorm.Model
	UserID           uint `gorm:"unique"`
	StripeCustomerID string
	Balance          int64 // credits currently usable
	TotalPurchased   int64 // lifetime credits bought
	Cards            []Card
}

type Card struct {
	gorm.Model
	WalletID     uint
	StripeCardID string
	Brand        string
	Last4        string
	ExpMonth     int
	ExpYear      int
	IsPrimary    bool
}

type Invoice struct {
	gorm.Model
	InvoiceNumber string `gorm:"unique"`
	UserID        uint
	Lines         []CreditLine

	Amount          float64 // subtotal, pre-tax
	VAT             float64
	VATRate         float64
	DiscountAmount  float64
	Total           float64 // Amount + VAT - DiscountAmount
	Currency        string  // symbol or code as received, e.g. "EUR"
	Method          string  // card brand, local method name, or "manual"
	IsReverseCharge bool
	VATNote         string
	CouponCode      string

	StripePaymentID string `gorm:"index"`

	// billing address snapshot
	BillingName   string
	BillingStreet string
	BillingPostal string
	BillingCity   string
	CountryCode   string // ISO alpha-2
	CountryName   string
	CompanyName   string
	VATNumber     string
	IssuedAt      time.Time
}

type CreditLine struct {
	gorm.Model
	InvoiceID uint
	Credits   int64 // negative for admin deductions
	Amount    float64
	AddedAt   time.Time
	ExpiryAt  time.Time
	Reason    string
	IsManual  bool
}

type Coupon struct {
	gorm.Model
	Code              string `gorm:"unique"`
	DiscountType      string // "percent" or "fixed"
	DiscountAmount    float64
	UsageLimit        int64 // 0 means unlimited
	UsageCount        int64
	ExpiresAt         time.Time
	RestrictedToEmail string // empty means anyone
	IndividualUse     bool
	Redemptions       []CouponRedemption
}

type CouponRedemption struct {
	gorm.Model
	CouponID uint
	UserID   uint
	Email    string
}

type Video struct {
	gorm.Model
	UserID           uint
	OriginalFileName string
	Key              string // upload object key
	ConvertedKey     string // set once the worker finishes
	FileSize         string
	LengthInSeconds  int
	ConversionFormat string
	Quality          string
	CreditsUsed      int64
	Status           string // uploaded, queued, processing, completed, failed
	Progress         int
	ErrorMessage     string
}

type Counter struct {
	Name  string `gorm:"primaryKey"`
	Value int64
}
