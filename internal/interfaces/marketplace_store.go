package interfaces

import (
	"context"
	"errors"

	"github.com/blud-network/stellar-marketplace/internal/models"
)

// ErrNotFound is returned by store reads when no record matches.
var ErrNotFound = errors.New("record not found")

// MarketplaceStore is the durable storage contract for marketplace records.
// Implementations assign record identifiers and creation timestamps.
type MarketplaceStore interface {
	CreateService(ctx context.Context, svc models.Service) (models.Service, error)
	GetServiceByID(ctx context.Context, id string) (models.Service, error)

	// ListServices returns all services ordered by creation time, newest first.
	ListServices(ctx context.Context) ([]models.Service, error)

	// MarkServiceSold flips a service from available to sold and reports
	// whether a row actually changed. The write is conditional on the current
	// status: a false return means the service was no longer available, which
	// is how concurrent purchases of the same service are arbitrated.
	MarkServiceSold(ctx context.Context, id string) (bool, error)

	CreateServiceTransaction(ctx context.Context, tx models.ServiceTransaction) (models.ServiceTransaction, error)

	// GetServiceTransaction returns the receipt for a service, or ErrNotFound.
	GetServiceTransaction(ctx context.Context, serviceID string) (models.ServiceTransaction, error)

	CreateAsset(ctx context.Context, asset models.Asset) (models.Asset, error)
	ListAssets(ctx context.Context) ([]models.Asset, error)

	// SaveAccount records a generated keypair as creation bookkeeping. The
	// secret is write-only: nothing in the system reads it back.
	SaveAccount(ctx context.Context, account models.AccountKeypair) error
}
