package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blud-network/stellar-marketplace/internal/interfaces"
	"github.com/blud-network/stellar-marketplace/internal/models"
)

// MarketplaceStore is an in-memory implementation of
// interfaces.MarketplaceStore. It is safe for concurrent use and backs
// tests and local runs without a database.
type MarketplaceStore struct {
	mu           sync.Mutex
	services     map[string]models.Service
	transactions map[string]models.ServiceTransaction // keyed by service ID
	assets       []models.Asset
	accounts     []models.AccountKeypair
}

func NewMarketplaceStore() *MarketplaceStore {
	return &MarketplaceStore{
		services:     make(map[string]models.Service),
		transactions: make(map[string]models.ServiceTransaction),
	}
}

func (m *MarketplaceStore) CreateService(ctx context.Context, svc models.Service) (models.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	svc.ID = uuid.NewString()
	svc.CreatedAt = time.Now().UTC()
	m.services[svc.ID] = svc
	return svc, nil
}

func (m *MarketplaceStore) GetServiceByID(ctx context.Context, id string) (models.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	svc, ok := m.services[id]
	if !ok {
		return models.Service{}, interfaces.ErrNotFound
	}
	return svc, nil
}

func (m *MarketplaceStore) ListServices(ctx context.Context) ([]models.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Service, 0, len(m.services))
	for _, svc := range m.services {
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// MarkServiceSold applies the conditional status flip under the store lock,
// matching the rows-affected semantics of the SQL implementation.
func (m *MarketplaceStore) MarkServiceSold(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	svc, ok := m.services[id]
	if !ok || svc.Status != models.ServiceStatusAvailable {
		return false, nil
	}
	svc.Status = models.ServiceStatusSold
	m.services[id] = svc
	return true, nil
}

func (m *MarketplaceStore) CreateServiceTransaction(ctx context.Context, tx models.ServiceTransaction) (models.ServiceTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx.ID = uuid.NewString()
	tx.CreatedAt = time.Now().UTC()
	m.transactions[tx.ServiceID] = tx
	return tx, nil
}

func (m *MarketplaceStore) GetServiceTransaction(ctx context.Context, serviceID string) (models.ServiceTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.transactions[serviceID]
	if !ok {
		return models.ServiceTransaction{}, interfaces.ErrNotFound
	}
	return tx, nil
}

func (m *MarketplaceStore) CreateAsset(ctx context.Context, asset models.Asset) (models.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	asset.ID = uuid.NewString()
	asset.CreatedAt = time.Now().UTC()
	m.assets = append(m.assets, asset)
	return asset, nil
}

func (m *MarketplaceStore) ListAssets(ctx context.Context) ([]models.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Asset, len(m.assets))
	copy(out, m.assets)
	return out, nil
}

func (m *MarketplaceStore) SaveAccount(ctx context.Context, account models.AccountKeypair) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.accounts = append(m.accounts, account)
	return nil
}

// Compile-time check: MarketplaceStore implements the store contract.
var _ interfaces.MarketplaceStore = (*MarketplaceStore)(nil)
