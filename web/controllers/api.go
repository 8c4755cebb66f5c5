package controllers

import (
	"gorm.io/gorm"

	"xclusive3d/payment/stripe"
	"xclusive3d/web/billing"
	"xclusive3d/web/email"
	"xclusive3d/web/storage"
)

// API bundles the shared dependencies every handler needs.
type API struct {
	DB     *gorm.DB
	Stripe *stripe.Client
	VAT    *billing.VATService
	Mail   *email.Sender
	Store  *storage.Presigner
}

func New(db *gorm.DB, sc *stripe.Client, vat *billing.VATService, mail *email.Sender, store *storage.Presigner) *API {
	return &API{DB: db, Stripe: sc, VAT: vat, Mail: mail, Store: store}
}
