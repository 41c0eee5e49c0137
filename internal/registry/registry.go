// Package registry catalogs issuer-defined token identities. Registering
// an asset is pure metadata: the asset exists on-ledger implicitly the
// first time it is paid with, so no ledger mutation happens here.
package registry

import (
	"context"
	"fmt"
	"regexp"

	"github.com/sirupsen/logrus"
	"github.com/stellar/go/keypair"

	"github.com/blud-network/stellar-marketplace/internal/interfaces"
	"github.com/blud-network/stellar-marketplace/internal/models"
	"github.com/blud-network/stellar-marketplace/internal/settlement"
)

// Asset codes follow the ledger's alphanumeric-4/12 rule.
var codePattern = regexp.MustCompile(`^[a-zA-Z0-9]{1,12}$`)

// Registry persists (code, issuer) pairs so the settlement engine can
// resolve which token a listing is priced in.
type Registry struct {
	ledger interfaces.LedgerGateway
	store  interfaces.MarketplaceStore
	log    logrus.FieldLogger
}

func New(ledger interfaces.LedgerGateway, store interfaces.MarketplaceStore, log logrus.FieldLogger) *Registry {
	return &Registry{ledger: ledger, store: store, log: log}
}

// RegisterAsset derives the issuer's public key from its secret, verifies
// the issuer account exists on the ledger, and stores the (code, issuer)
// pair.
func (r *Registry) RegisterAsset(ctx context.Context, issuerSecret, code string) (models.Asset, error) {
	if !codePattern.MatchString(code) {
		return models.Asset{}, &settlement.ValidationError{Field: "assetCode", Reason: "must be 1-12 alphanumeric characters"}
	}
	kp, err := keypair.ParseFull(issuerSecret)
	if err != nil {
		return models.Asset{}, &settlement.ValidationError{Field: "issuerSecret", Reason: "not a valid secret key"}
	}

	if _, err := r.ledger.LoadAccount(ctx, kp.Address()); err != nil {
		return models.Asset{}, fmt.Errorf("load issuer account: %w", err)
	}

	asset, err := r.store.CreateAsset(ctx, models.Asset{Code: code, IssuerPublicKey: kp.Address()})
	if err != nil {
		return models.Asset{}, fmt.Errorf("create asset: %w", err)
	}

	r.log.WithFields(logrus.Fields{"asset": code, "issuer": kp.Address()}).Info("asset registered")
	return asset, nil
}

// ListAssets returns all registered assets.
func (r *Registry) ListAssets(ctx context.Context) ([]models.Asset, error) {
	return r.store.ListAssets(ctx)
}
