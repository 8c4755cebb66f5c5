package db

import (
	"os"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func Connect() (*gorm.DB, error) {
	dsn := os.Getenv("DB")

	conn, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	return conn, nil
}

// Sync migrates the schema and seeds the invoice counter row so that
// NextInvoiceNumber never has to create it under concurrency.
func Sync(conn *gorm.DB) error {
	err := conn.AutoMigrate(
		&User{},
		&Wallet{},
		&Card{},
		&Invoice{},
		&CreditLine{},
		&Coupon{},
		&CouponRedemption{},
		&Video{},
		&Counter{},
	)
	if err != nil {
		return err
	}

	var counter Counter
	result := conn.Where(Counter{Name: invoiceCounterName}).
		Attrs(Counter{Value: 0}).
		FirstOrCreate(&counter)
	return result.Error
}
