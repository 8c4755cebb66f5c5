package db

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const invoiceCounterName = "invoice_number"

// NextInvoiceNumber allocates the next sequential invoice number inside the
// caller's transaction. The counter row is locked FOR UPDATE, so two
// concurrent requests can never be handed the same number. Manual invoices
// (admin credit adjustments) get a MAN- prefix so they stay distinguishable
// in exports.
func NextInvoiceNumber(tx *gorm.DB, manual bool) (string, error) {
	var counter Counter
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("name = ?", invoiceCounterName).
		First(&counter).Error
	if err != nil {
		return "", fmt.Errorf("invoice counter not found: %w", err)
	}

	counter.Value++
	err = tx.Model(&Counter{}).
		Where("name = ?", invoiceCounterName).
		Update("value", counter.Value).Error
	if err != nil {
		return "", err
	}

	prefix := "INV"
	if manual {
		prefix = "MAN"
	}
	return fmt.Sprintf("%s-%06d", prefix, counter.Value), nil
}
