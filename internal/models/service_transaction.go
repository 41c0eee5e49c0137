package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ServiceTransaction is the immutable receipt of a completed purchase.
// At most one exists per service, created as the terminal step of a
// successful settlement; it is never mutated or deleted.
type ServiceTransaction struct {
	ID              string          `json:"id"`
	ServiceID       string          `json:"service_id"`
	BuyerPublicKey  string          `json:"buyer_public_key"`
	SellerPublicKey string          `json:"seller_public_key"`
	Amount          decimal.Decimal `json:"amount"`
	TransactionHash string          `json:"transaction_hash"`
	CreatedAt       time.Time       `json:"created_at"`
}
