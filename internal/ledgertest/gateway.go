// Package ledgertest provides an in-memory LedgerGateway for tests.
package ledgertest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stellar/go/keypair"

	"github.com/blud-network/stellar-marketplace/internal/interfaces"
	"github.com/blud-network/stellar-marketplace/internal/models"
)

// FakeGateway implements interfaces.LedgerGateway against in-memory account
// state. Payments move balances between accounts that hold a trustline for
// the asset, mirroring the ledger's own rules closely enough for workflow
// tests.
type FakeGateway struct {
	mu           sync.Mutex
	accounts     map[string]models.LedgerAccount
	payments     map[string][]models.PaymentRecord
	txPayments   map[string][]models.PaymentRecord
	transactions map[string]models.PaymentResult

	// SubmitErr, when set, fails every submission.
	SubmitErr error
	// LoadErrs fails LoadAccount for specific public keys.
	LoadErrs map[string]error
	// TxLookupErr, when set, fails TransactionByHash as an outage would.
	TxLookupErr error
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		accounts:     make(map[string]models.LedgerAccount),
		payments:     make(map[string][]models.PaymentRecord),
		txPayments:   make(map[string][]models.PaymentRecord),
		transactions: make(map[string]models.PaymentResult),
		LoadErrs:     make(map[string]error),
	}
}

// AddAccount registers an account with the given balance entries.
func (g *FakeGateway) AddAccount(publicKey string, balances ...models.Balance) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.accounts[publicKey] = models.LedgerAccount{PublicKey: publicKey, Balances: balances}
}

// AddPayment seeds a historical payment record without moving balances.
func (g *FakeGateway) AddPayment(rec models.PaymentRecord) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payments[rec.From] = append([]models.PaymentRecord{rec}, g.payments[rec.From]...)
	g.payments[rec.To] = append([]models.PaymentRecord{rec}, g.payments[rec.To]...)
}

func (g *FakeGateway) CreateAccount(ctx context.Context) (models.AccountKeypair, error) {
	kp, err := keypair.Random()
	if err != nil {
		return models.AccountKeypair{}, err
	}
	g.AddAccount(kp.Address(), models.Balance{AssetType: "native", Amount: "10000.0000000"})
	return models.AccountKeypair{PublicKey: kp.Address(), SecretKey: kp.Seed()}, nil
}

func (g *FakeGateway) LoadAccount(ctx context.Context, publicKey string) (models.LedgerAccount, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err, ok := g.LoadErrs[publicKey]; ok {
		return models.LedgerAccount{}, err
	}
	account, ok := g.accounts[publicKey]
	if !ok {
		return models.LedgerAccount{}, interfaces.ErrAccountNotFound
	}
	return account, nil
}

func (g *FakeGateway) SubmitPayment(ctx context.Context, sourceSecret, destination string, asset models.Asset, amount string) (models.PaymentResult, error) {
	if g.SubmitErr != nil {
		return models.PaymentResult{}, g.SubmitErr
	}
	kp, err := keypair.ParseFull(sourceSecret)
	if err != nil {
		return models.PaymentResult{}, err
	}
	amt, err := decimal.NewFromString(amount)
	if err != nil {
		return models.PaymentResult{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	source, ok := g.accounts[kp.Address()]
	if !ok {
		return models.PaymentResult{}, interfaces.ErrAccountNotFound
	}
	if err := g.move(source, destination, asset, amt); err != nil {
		return models.PaymentResult{}, err
	}

	sum := sha256.Sum256([]byte(uuid.NewString()))
	result := models.PaymentResult{Hash: hex.EncodeToString(sum[:]), Ledger: int32(len(g.transactions) + 1), Successful: true}
	g.transactions[result.Hash] = result

	rec := models.PaymentRecord{
		From:        kp.Address(),
		To:          destination,
		AssetType:   "credit_alphanum4",
		AssetCode:   asset.Code,
		AssetIssuer: asset.IssuerPublicKey,
		Amount:      amount,
	}
	g.payments[rec.From] = append([]models.PaymentRecord{rec}, g.payments[rec.From]...)
	g.payments[rec.To] = append([]models.PaymentRecord{rec}, g.payments[rec.To]...)
	g.txPayments[result.Hash] = []models.PaymentRecord{rec}

	return result, nil
}

// move debits the source and credits the destination. The issuer mints and
// burns implicitly, like the real ledger.
func (g *FakeGateway) move(source models.LedgerAccount, destination string, asset models.Asset, amt decimal.Decimal) error {
	if source.PublicKey != asset.IssuerPublicKey {
		if err := g.adjust(source.PublicKey, asset, amt.Neg()); err != nil {
			return err
		}
	}
	if destination != asset.IssuerPublicKey {
		return g.adjust(destination, asset, amt)
	}
	return nil
}

func (g *FakeGateway) adjust(publicKey string, asset models.Asset, delta decimal.Decimal) error {
	account, ok := g.accounts[publicKey]
	if !ok {
		return interfaces.ErrAccountNotFound
	}
	for i, b := range account.Balances {
		if b.AssetCode == asset.Code && b.AssetIssuer == asset.IssuerPublicKey {
			held, err := decimal.NewFromString(b.Amount)
			if err != nil {
				return err
			}
			next := held.Add(delta)
			if next.IsNegative() {
				return &interfaces.LedgerError{TransactionCode: "tx_failed", OperationCodes: []string{"op_underfunded"}}
			}
			account.Balances[i].Amount = next.StringFixed(7)
			g.accounts[publicKey] = account
			return nil
		}
	}
	return &interfaces.LedgerError{TransactionCode: "tx_failed", OperationCodes: []string{"op_no_trust"}}
}

func (g *FakeGateway) SubmitTrustChange(ctx context.Context, accountSecret string, asset models.Asset, limit string) (models.PaymentResult, error) {
	kp, err := keypair.ParseFull(accountSecret)
	if err != nil {
		return models.PaymentResult{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	account, ok := g.accounts[kp.Address()]
	if !ok {
		return models.PaymentResult{}, interfaces.ErrAccountNotFound
	}
	if _, exists := account.BalanceFor(asset.Code, asset.IssuerPublicKey); !exists {
		account.Balances = append(account.Balances, models.Balance{
			AssetType:   "credit_alphanum4",
			AssetCode:   asset.Code,
			AssetIssuer: asset.IssuerPublicKey,
			Amount:      "0.0000000",
		})
		g.accounts[kp.Address()] = account
	}
	sum := sha256.Sum256([]byte(uuid.NewString()))
	result := models.PaymentResult{Hash: hex.EncodeToString(sum[:]), Successful: true}
	g.transactions[result.Hash] = result
	return result, nil
}

func (g *FakeGateway) PaymentsForAccount(ctx context.Context, publicKey string, limit int) ([]models.PaymentRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	records := g.payments[publicKey]
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	out := make([]models.PaymentRecord, len(records))
	copy(out, records)
	return out, nil
}

func (g *FakeGateway) PaymentsForTransaction(ctx context.Context, hash string) ([]models.PaymentRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]models.PaymentRecord, len(g.txPayments[hash]))
	copy(out, g.txPayments[hash])
	return out, nil
}

func (g *FakeGateway) TransactionByHash(ctx context.Context, hash string) (models.PaymentResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.TxLookupErr != nil {
		return models.PaymentResult{}, g.TxLookupErr
	}
	result, ok := g.transactions[hash]
	if !ok {
		return models.PaymentResult{}, fmt.Errorf("%w: %s", interfaces.ErrTransactionNotFound, hash)
	}
	return result, nil
}

var _ interfaces.LedgerGateway = (*FakeGateway)(nil)
