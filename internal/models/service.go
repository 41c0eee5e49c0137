package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ServiceStatus is the lifecycle state of a listed service.
type ServiceStatus string

const (
	ServiceStatusAvailable ServiceStatus = "available"
	ServiceStatusSold      ServiceStatus = "sold"
	ServiceStatusCancelled ServiceStatus = "cancelled"
)

// Service is a unit of value offered for sale, priced in a custom asset.
// Status only ever moves from available to sold (via a purchase) or from
// available to cancelled; a sold service never becomes available again.
type Service struct {
	ID              string          `json:"id"`
	SellerPublicKey string          `json:"seller_public_key"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Price           decimal.Decimal `json:"price"`
	AssetCode       string          `json:"asset_code"`
	AssetIssuer     string          `json:"asset_issuer"`
	Status          ServiceStatus   `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
}

// PricedIn reports whether the service is priced in the given asset.
func (s Service) PricedIn(asset Asset) bool {
	return s.AssetCode == asset.Code && s.AssetIssuer == asset.IssuerPublicKey
}
