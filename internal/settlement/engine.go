// Package settlement orchestrates the service-exchange workflow: it
// verifies eligibility and balances against the ledger, executes the
// on-ledger payment, and records the outcome in the store. The ledger and
// the store do not share a transaction boundary; the engine keeps them
// consistent through a conditional store write and an idempotent repair
// path keyed by the ledger transaction hash.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stellar/go/keypair"

	"github.com/blud-network/stellar-marketplace/internal/interfaces"
	"github.com/blud-network/stellar-marketplace/internal/metrics"
	"github.com/blud-network/stellar-marketplace/internal/models"
	"github.com/blud-network/stellar-marketplace/internal/models/events"
)

// TopicServiceSold is the broker topic settled purchases are announced on.
const TopicServiceSold = "service_sold"

// Engine runs the listing and purchase workflows. It holds no record state
// between calls; every operation re-fetches from the store and the ledger.
type Engine struct {
	ledger       interfaces.LedgerGateway
	store        interfaces.MarketplaceStore
	events       interfaces.EventPublisher
	defaultAsset models.Asset
	log          logrus.FieldLogger
}

// New constructs a settlement engine.
func New(ledger interfaces.LedgerGateway, store interfaces.MarketplaceStore, log logrus.FieldLogger) *Engine {
	return &Engine{ledger: ledger, store: store, log: log}
}

// WithEvents sets the publisher for service_sold events. Publishing is best
// effort: a broker failure never fails a settled purchase.
func (e *Engine) WithEvents(pub interfaces.EventPublisher) {
	e.events = pub
}

// WithDefaultAsset sets the asset used when a request does not name one.
func (e *Engine) WithDefaultAsset(asset models.Asset) {
	e.defaultAsset = asset
}

// ListInput are the parameters for listing a service for sale.
type ListInput struct {
	SellerSecret string
	Name         string
	Description  string
	Price        string
	Asset        models.Asset
}

// PurchaseInput are the parameters for purchasing a listed service.
type PurchaseInput struct {
	BuyerSecret string
	ServiceID   string
	Asset       models.Asset
}

// PurchaseResult carries both confirmed effects of a settled purchase.
type PurchaseResult struct {
	Payment models.PaymentResult      `json:"payment"`
	Record  models.ServiceTransaction `json:"transaction_record"`
}

func (e *Engine) resolveAsset(asset models.Asset) (models.Asset, error) {
	if asset.IsZero() {
		asset = e.defaultAsset
	}
	if asset.Code == "" || asset.IssuerPublicKey == "" {
		return models.Asset{}, &ValidationError{Field: "asset", Reason: "asset code and issuer are required"}
	}
	return asset, nil
}

// ListForSale verifies the seller currently holds at least the asking price
// of the priced asset, then records the service as available. Listing does
// not escrow funds: a seller can list more total price than their balance
// covers, and each listing only checks the live balance at list time.
func (e *Engine) ListForSale(ctx context.Context, in ListInput) (models.Service, error) {
	asset, err := e.resolveAsset(in.Asset)
	if err != nil {
		metrics.Listings.WithLabelValues("validation").Inc()
		return models.Service{}, err
	}
	if in.Name == "" {
		metrics.Listings.WithLabelValues("validation").Inc()
		return models.Service{}, &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	price, err := decimal.NewFromString(in.Price)
	if err != nil || !price.IsPositive() {
		metrics.Listings.WithLabelValues("validation").Inc()
		return models.Service{}, &ValidationError{Field: "price", Reason: "must be a positive decimal"}
	}
	kp, err := keypair.ParseFull(in.SellerSecret)
	if err != nil {
		metrics.Listings.WithLabelValues("validation").Inc()
		return models.Service{}, &ValidationError{Field: "sellerSecret", Reason: "not a valid secret key"}
	}

	account, err := e.ledger.LoadAccount(ctx, kp.Address())
	if err != nil {
		metrics.Listings.WithLabelValues("ledger").Inc()
		return models.Service{}, fmt.Errorf("load seller account: %w", err)
	}
	if err := requireBalance(account, asset, price); err != nil {
		metrics.Listings.WithLabelValues("balance").Inc()
		return models.Service{}, err
	}

	created, err := e.store.CreateService(ctx, models.Service{
		SellerPublicKey: kp.Address(),
		Name:            in.Name,
		Description:     in.Description,
		Price:           price,
		AssetCode:       asset.Code,
		AssetIssuer:     asset.IssuerPublicKey,
		Status:          models.ServiceStatusAvailable,
	})
	if err != nil {
		metrics.Listings.WithLabelValues("store").Inc()
		return models.Service{}, fmt.Errorf("create service: %w", err)
	}

	metrics.Listings.WithLabelValues("success").Inc()
	e.log.WithFields(logrus.Fields{
		"service_id": created.ID,
		"seller":     created.SellerPublicKey,
		"price":      created.Price.String(),
		"asset":      asset.Code,
	}).Info("service listed for sale")

	return created, nil
}

// Purchase settles a purchase of the identified service: it verifies the
// buyer's trustline and balance, pays the seller on-ledger, then flips the
// service to sold and writes the receipt. The payment is irreversible
// before the store writes complete; any failure after submission surfaces
// as *InconsistentStateError carrying the ledger hash for Repair.
func (e *Engine) Purchase(ctx context.Context, in PurchaseInput) (PurchaseResult, error) {
	asset, err := e.resolveAsset(in.Asset)
	if err != nil {
		metrics.Settlements.WithLabelValues("validation").Inc()
		return PurchaseResult{}, err
	}

	svc, err := e.store.GetServiceByID(ctx, in.ServiceID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			metrics.Settlements.WithLabelValues("not_found").Inc()
			return PurchaseResult{}, ErrServiceNotFound
		}
		metrics.Settlements.WithLabelValues("store").Inc()
		return PurchaseResult{}, fmt.Errorf("get service: %w", err)
	}
	if svc.Status != models.ServiceStatusAvailable {
		metrics.Settlements.WithLabelValues("not_available").Inc()
		return PurchaseResult{}, ErrServiceNotAvailable
	}
	if !svc.PricedIn(asset) {
		metrics.Settlements.WithLabelValues("validation").Inc()
		return PurchaseResult{}, &ValidationError{Field: "asset", Reason: "does not match the asset the service is priced in"}
	}

	kp, err := keypair.ParseFull(in.BuyerSecret)
	if err != nil {
		metrics.Settlements.WithLabelValues("validation").Inc()
		return PurchaseResult{}, &ValidationError{Field: "buyerSecret", Reason: "not a valid secret key"}
	}
	account, err := e.ledger.LoadAccount(ctx, kp.Address())
	if err != nil {
		metrics.Settlements.WithLabelValues("ledger").Inc()
		return PurchaseResult{}, fmt.Errorf("load buyer account: %w", err)
	}

	// The trustline check precedes the balance check: the ledger refuses
	// asset receipt without a trustline, and an absent entry would otherwise
	// be indistinguishable from a zero balance.
	if _, ok := account.BalanceFor(asset.Code, asset.IssuerPublicKey); !ok {
		metrics.Settlements.WithLabelValues("trustline").Inc()
		return PurchaseResult{}, ErrTrustlineRequired
	}
	if err := requireBalance(account, asset, svc.Price); err != nil {
		metrics.Settlements.WithLabelValues("balance").Inc()
		return PurchaseResult{}, err
	}

	metrics.PaymentsSubmitted.Inc()
	payment, err := e.ledger.SubmitPayment(ctx, in.BuyerSecret, svc.SellerPublicKey, asset, svc.Price.String())
	if err != nil {
		metrics.Settlements.WithLabelValues("ledger").Inc()
		return PurchaseResult{}, fmt.Errorf("submit payment: %w", err)
	}

	// From here on the ledger effect is irreversible. Store failures must
	// carry the hash so the purchase can be repaired, never re-paid.
	sold, err := e.store.MarkServiceSold(ctx, svc.ID)
	if err != nil {
		metrics.Settlements.WithLabelValues("inconsistent").Inc()
		return PurchaseResult{}, &InconsistentStateError{ServiceID: svc.ID, TransactionHash: payment.Hash, Err: err}
	}
	if !sold {
		// A concurrent purchase won the conditional write after our payment
		// already settled. Surfaced distinctly: the caller's payment applied
		// and needs reconciliation, not a retry.
		metrics.Settlements.WithLabelValues("inconsistent").Inc()
		return PurchaseResult{}, &InconsistentStateError{ServiceID: svc.ID, TransactionHash: payment.Hash, Err: ErrServiceNotAvailable}
	}

	record, err := e.store.CreateServiceTransaction(ctx, models.ServiceTransaction{
		ServiceID:       svc.ID,
		BuyerPublicKey:  kp.Address(),
		SellerPublicKey: svc.SellerPublicKey,
		Amount:          svc.Price,
		TransactionHash: payment.Hash,
	})
	if err != nil {
		metrics.Settlements.WithLabelValues("inconsistent").Inc()
		return PurchaseResult{}, &InconsistentStateError{ServiceID: svc.ID, TransactionHash: payment.Hash, Err: err}
	}

	e.publishSold(ctx, record)
	metrics.Settlements.WithLabelValues("success").Inc()
	e.log.WithFields(logrus.Fields{
		"service_id": svc.ID,
		"buyer":      kp.Address(),
		"seller":     svc.SellerPublicKey,
		"hash":       payment.Hash,
	}).Info("service purchase settled")

	return PurchaseResult{Payment: payment, Record: record}, nil
}

// Repair completes the store side of a purchase whose payment is already on
// the ledger. It is idempotent: re-running it for the same hash neither
// duplicates the receipt nor re-flips an already sold service, and it never
// submits a payment.
func (e *Engine) Repair(ctx context.Context, serviceID, buyerPublicKey, txHash string) (models.ServiceTransaction, error) {
	svc, err := e.store.GetServiceByID(ctx, serviceID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return models.ServiceTransaction{}, ErrServiceNotFound
		}
		return models.ServiceTransaction{}, fmt.Errorf("get service: %w", err)
	}

	payment, err := e.ledger.TransactionByHash(ctx, txHash)
	if err != nil {
		if errors.Is(err, interfaces.ErrTransactionNotFound) {
			return models.ServiceTransaction{}, ErrPaymentNotOnLedger
		}
		// The ledger could not be asked; that is not evidence the payment
		// is absent.
		return models.ServiceTransaction{}, fmt.Errorf("look up transaction: %w", err)
	}
	if !payment.Successful {
		return models.ServiceTransaction{}, ErrPaymentNotOnLedger
	}

	// The hash must carry a payment that settles this service: from the
	// claimed buyer to the seller, in the listing's asset, covering the
	// price. A successful but unrelated transaction proves nothing.
	records, err := e.ledger.PaymentsForTransaction(ctx, txHash)
	if err != nil {
		return models.ServiceTransaction{}, fmt.Errorf("load transaction payments: %w", err)
	}
	if !settlesService(records, svc, buyerPublicKey) {
		return models.ServiceTransaction{}, ErrPaymentNotOnLedger
	}

	existing, err := e.store.GetServiceTransaction(ctx, serviceID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, interfaces.ErrNotFound) {
		return models.ServiceTransaction{}, fmt.Errorf("get service transaction: %w", err)
	}

	sold, err := e.store.MarkServiceSold(ctx, serviceID)
	if err != nil {
		return models.ServiceTransaction{}, fmt.Errorf("mark service sold: %w", err)
	}
	if !sold {
		// Already-sold is the half-settled case this path exists for. Any
		// other status (a cancelled listing, say) must not gain a receipt.
		current, err := e.store.GetServiceByID(ctx, serviceID)
		if err != nil {
			return models.ServiceTransaction{}, fmt.Errorf("get service: %w", err)
		}
		if current.Status != models.ServiceStatusSold {
			return models.ServiceTransaction{}, ErrServiceNotAvailable
		}
	}

	record, err := e.store.CreateServiceTransaction(ctx, models.ServiceTransaction{
		ServiceID:       serviceID,
		BuyerPublicKey:  buyerPublicKey,
		SellerPublicKey: svc.SellerPublicKey,
		Amount:          svc.Price,
		TransactionHash: txHash,
	})
	if err != nil {
		return models.ServiceTransaction{}, fmt.Errorf("create service transaction: %w", err)
	}

	e.log.WithFields(logrus.Fields{
		"service_id": serviceID,
		"hash":       txHash,
	}).Warn("purchase repaired from ledger hash")

	return record, nil
}

// Services returns all listed services, newest first.
func (e *Engine) Services(ctx context.Context) ([]models.Service, error) {
	return e.store.ListServices(ctx)
}

func (e *Engine) publishSold(ctx context.Context, record models.ServiceTransaction) {
	if e.events == nil {
		return
	}
	event := events.ServiceSold{
		ServiceID:       record.ServiceID,
		BuyerPublicKey:  record.BuyerPublicKey,
		SellerPublicKey: record.SellerPublicKey,
		Amount:          record.Amount,
		TransactionHash: record.TransactionHash,
		OccurredAt:      time.Now().UTC(),
	}
	if err := e.events.Publish(ctx, TopicServiceSold, event); err != nil {
		e.log.WithError(err).WithField("service_id", record.ServiceID).
			Warn("failed to publish service_sold event")
	}
}

// settlesService reports whether one of the transaction's payments moves at
// least the service's price of its asset from the buyer to the seller.
func settlesService(records []models.PaymentRecord, svc models.Service, buyerPublicKey string) bool {
	for _, p := range records {
		if p.From != buyerPublicKey || p.To != svc.SellerPublicKey {
			continue
		}
		if p.AssetCode != svc.AssetCode || p.AssetIssuer != svc.AssetIssuer {
			continue
		}
		amount, err := decimal.NewFromString(p.Amount)
		if err == nil && !amount.LessThan(svc.Price) {
			return true
		}
	}
	return false
}

// requireBalance fails with ErrInsufficientBalance unless the account holds
// at least amount of asset. The comparison is exact decimal; a balance of
// "100.0000000" does not cover a price of "100.0000001".
func requireBalance(account models.LedgerAccount, asset models.Asset, amount decimal.Decimal) error {
	entry, ok := account.BalanceFor(asset.Code, asset.IssuerPublicKey)
	if !ok {
		return ErrInsufficientBalance
	}
	held, err := decimal.NewFromString(entry.Amount)
	if err != nil {
		return fmt.Errorf("parse ledger balance %q: %w", entry.Amount, err)
	}
	if held.LessThan(amount) {
		return ErrInsufficientBalance
	}
	return nil
}
