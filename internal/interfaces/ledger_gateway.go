package interfaces

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/blud-network/stellar-marketplace/internal/models"
)

// ErrAccountNotFound is returned by LoadAccount when the ledger has no
// record of the requested account.
var ErrAccountNotFound = errors.New("ledger account not found")

// ErrTransactionNotFound is returned by TransactionByHash when the ledger
// has no record of the hash. Other lookup failures mean the ledger could
// not be asked, not that the transaction is absent.
var ErrTransactionNotFound = errors.New("ledger transaction not found")

// LedgerGateway is the capability set this system consumes from the public
// ledger. Building, signing and submitting transactions is delegated to the
// ledger SDK behind this interface; nothing here is cached.
type LedgerGateway interface {
	// CreateAccount generates a keypair and funds it via the network faucet.
	CreateAccount(ctx context.Context) (models.AccountKeypair, error)

	// LoadAccount fetches the current account state, including its balance list.
	LoadAccount(ctx context.Context, publicKey string) (models.LedgerAccount, error)

	// SubmitPayment builds, signs and submits a single-operation payment of
	// amount of asset from the account behind sourceSecret to destination.
	// Ledger rejections surface as *LedgerError.
	SubmitPayment(ctx context.Context, sourceSecret, destination string, asset models.Asset, amount string) (models.PaymentResult, error)

	// SubmitTrustChange establishes or adjusts a trustline for asset on the
	// account behind accountSecret.
	SubmitTrustChange(ctx context.Context, accountSecret string, asset models.Asset, limit string) (models.PaymentResult, error)

	// PaymentsForAccount returns up to limit payment operations involving the
	// account, most recent first.
	PaymentsForAccount(ctx context.Context, publicKey string, limit int) ([]models.PaymentRecord, error)

	// PaymentsForTransaction returns the payment operations carried by the
	// identified transaction.
	PaymentsForTransaction(ctx context.Context, hash string) ([]models.PaymentRecord, error)

	// TransactionByHash looks up a previously submitted transaction. An
	// unknown hash surfaces as ErrTransactionNotFound.
	TransactionByHash(ctx context.Context, hash string) (models.PaymentResult, error)
}

// LedgerError carries the raw result codes of a ledger-level rejection. It
// is not retried automatically: a rejected envelope cannot be resubmitted
// without re-signing.
type LedgerError struct {
	TransactionCode string
	OperationCodes  []string
	Hash            string
	Err             error
}

func (e *LedgerError) Error() string {
	if e.TransactionCode != "" {
		return fmt.Sprintf("ledger submission failed: %s [%s]", e.TransactionCode, strings.Join(e.OperationCodes, ","))
	}
	return fmt.Sprintf("ledger submission failed: %v", e.Err)
}

func (e *LedgerError) Unwrap() error { return e.Err }
