package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// ServiceSold is published after a purchase has settled on the ledger and
// in the store.
type ServiceSold struct {
	ServiceID       string          `json:"service_id"`
	BuyerPublicKey  string          `json:"buyer_public_key"`
	SellerPublicKey string          `json:"seller_public_key"`
	Amount          decimal.Decimal `json:"amount"`
	TransactionHash string          `json:"transaction_hash"`
	OccurredAt      time.Time       `json:"occurred_at"`
}
