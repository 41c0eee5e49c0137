package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/blud-network/stellar-marketplace/internal/interfaces"
	"github.com/blud-network/stellar-marketplace/internal/models"
)

// MarketplaceStore is the PostgreSQL implementation of
// interfaces.MarketplaceStore. Identifiers and creation timestamps are
// assigned by the database.
type MarketplaceStore struct {
	db *sql.DB
}

func NewMarketplaceStore(db *sql.DB) *MarketplaceStore {
	return &MarketplaceStore{db: db}
}

func (p *MarketplaceStore) CreateService(ctx context.Context, svc models.Service) (models.Service, error) {
	const query = `INSERT INTO services (seller_public_key, name, description, price, asset_code, asset_issuer, status)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING id, created_at`

	err := p.db.QueryRowContext(ctx, query,
		svc.SellerPublicKey, svc.Name, svc.Description, svc.Price, svc.AssetCode, svc.AssetIssuer, svc.Status,
	).Scan(&svc.ID, &svc.CreatedAt)
	if err != nil {
		return models.Service{}, err
	}
	return svc, nil
}

func (p *MarketplaceStore) GetServiceByID(ctx context.Context, id string) (models.Service, error) {
	const query = `SELECT id, seller_public_key, name, description, price, asset_code, asset_issuer, status, created_at
	FROM services WHERE id = $1`

	var svc models.Service
	err := p.db.QueryRowContext(ctx, query, id).Scan(
		&svc.ID,
		&svc.SellerPublicKey,
		&svc.Name,
		&svc.Description,
		&svc.Price,
		&svc.AssetCode,
		&svc.AssetIssuer,
		&svc.Status,
		&svc.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Service{}, interfaces.ErrNotFound
	}
	if err != nil {
		return models.Service{}, err
	}
	return svc, nil
}

func (p *MarketplaceStore) ListServices(ctx context.Context) ([]models.Service, error) {
	const query = `SELECT id, seller_public_key, name, description, price, asset_code, asset_issuer, status, created_at
	FROM services ORDER BY created_at DESC`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []models.Service
	for rows.Next() {
		var svc models.Service
		if err := rows.Scan(
			&svc.ID,
			&svc.SellerPublicKey,
			&svc.Name,
			&svc.Description,
			&svc.Price,
			&svc.AssetCode,
			&svc.AssetIssuer,
			&svc.Status,
			&svc.CreatedAt,
		); err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	return services, rows.Err()
}

// MarkServiceSold is the conditional write the purchase workflow relies on.
// The status guard in the WHERE clause makes the read-check-write sequence
// safe across concurrent purchases: only one of them sees a row change.
func (p *MarketplaceStore) MarkServiceSold(ctx context.Context, id string) (bool, error) {
	const query = `UPDATE services SET status = $1 WHERE id = $2 AND status = $3`

	res, err := p.db.ExecContext(ctx, query, models.ServiceStatusSold, id, models.ServiceStatusAvailable)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (p *MarketplaceStore) CreateServiceTransaction(ctx context.Context, tx models.ServiceTransaction) (models.ServiceTransaction, error) {
	const query = `INSERT INTO service_transactions (service_id, buyer_public_key, seller_public_key, amount, transaction_hash)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id, created_at`

	err := p.db.QueryRowContext(ctx, query,
		tx.ServiceID, tx.BuyerPublicKey, tx.SellerPublicKey, tx.Amount, tx.TransactionHash,
	).Scan(&tx.ID, &tx.CreatedAt)
	if err != nil {
		return models.ServiceTransaction{}, err
	}
	return tx, nil
}

func (p *MarketplaceStore) GetServiceTransaction(ctx context.Context, serviceID string) (models.ServiceTransaction, error) {
	const query = `SELECT id, service_id, buyer_public_key, seller_public_key, amount, transaction_hash, created_at
	FROM service_transactions WHERE service_id = $1 LIMIT 1`

	var tx models.ServiceTransaction
	err := p.db.QueryRowContext(ctx, query, serviceID).Scan(
		&tx.ID,
		&tx.ServiceID,
		&tx.BuyerPublicKey,
		&tx.SellerPublicKey,
		&tx.Amount,
		&tx.TransactionHash,
		&tx.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ServiceTransaction{}, interfaces.ErrNotFound
	}
	if err != nil {
		return models.ServiceTransaction{}, err
	}
	return tx, nil
}

func (p *MarketplaceStore) CreateAsset(ctx context.Context, asset models.Asset) (models.Asset, error) {
	const query = `INSERT INTO assets (asset_code, issuer_public_key)
	VALUES ($1, $2)
	RETURNING id, created_at`

	err := p.db.QueryRowContext(ctx, query, asset.Code, asset.IssuerPublicKey).Scan(&asset.ID, &asset.CreatedAt)
	if err != nil {
		return models.Asset{}, err
	}
	return asset, nil
}

func (p *MarketplaceStore) ListAssets(ctx context.Context) ([]models.Asset, error) {
	const query = `SELECT id, asset_code, issuer_public_key, created_at FROM assets ORDER BY created_at DESC`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []models.Asset
	for rows.Next() {
		var asset models.Asset
		if err := rows.Scan(&asset.ID, &asset.Code, &asset.IssuerPublicKey, &asset.CreatedAt); err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}
	return assets, rows.Err()
}

func (p *MarketplaceStore) SaveAccount(ctx context.Context, account models.AccountKeypair) error {
	const query = `INSERT INTO stellar_accounts (public_key, secret_key) VALUES ($1, $2)`

	_, err := p.db.ExecContext(ctx, query, account.PublicKey, account.SecretKey)
	return err
}

var _ interfaces.MarketplaceStore = (*MarketplaceStore)(nil)
