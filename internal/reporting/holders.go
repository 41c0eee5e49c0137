// Package reporting reconstructs an issuer-side audit view of who holds an
// issuer's token, from the ledger's payment history.
package reporting

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/stellar/go/keypair"

	"github.com/blud-network/stellar-marketplace/internal/interfaces"
	"github.com/blud-network/stellar-marketplace/internal/settlement"
)

// DefaultScanLimit is the payment-history page size scanned per report.
const DefaultScanLimit = 200

// Holder is one account in the audit view. Balance is "0" when the account
// holds an empty trustline; Error is set when the account failed to load,
// in which case Balance is empty.
type Holder struct {
	PublicKey string `json:"public_key"`
	Balance   string `json:"balance,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Reporter builds holder reports against the live ledger.
type Reporter struct {
	ledger    interfaces.LedgerGateway
	scanLimit int
	log       logrus.FieldLogger
}

func New(ledger interfaces.LedgerGateway, scanLimit int, log logrus.FieldLogger) *Reporter {
	if scanLimit <= 0 {
		scanLimit = DefaultScanLimit
	}
	return &Reporter{ledger: ledger, scanLimit: scanLimit, log: log}
}

// ListHolders scans the issuer's recent payment history for outgoing
// payments of the asset and reports each distinct recipient's current
// balance. One recipient failing to load adds an Error entry instead of
// aborting the report.
//
// This is a best-effort view, not a complete trustline census: holders who
// never received an issuer payment within the scanned page (for example,
// tokens minted through another path) are invisible to it.
func (r *Reporter) ListHolders(ctx context.Context, issuerSecret, code string) ([]Holder, error) {
	kp, err := keypair.ParseFull(issuerSecret)
	if err != nil {
		return nil, &settlement.ValidationError{Field: "issuerSecret", Reason: "not a valid secret key"}
	}
	issuer := kp.Address()

	payments, err := r.ledger.PaymentsForAccount(ctx, issuer, r.scanLimit)
	if err != nil {
		return nil, fmt.Errorf("load issuer payments: %w", err)
	}

	seen := make(map[string]bool)
	var recipients []string
	for _, p := range payments {
		if p.AssetType == "native" || p.AssetCode != code || p.AssetIssuer != issuer || p.From != issuer {
			continue
		}
		if !seen[p.To] {
			seen[p.To] = true
			recipients = append(recipients, p.To)
		}
	}

	holders := make([]Holder, 0, len(recipients))
	for _, publicKey := range recipients {
		account, err := r.ledger.LoadAccount(ctx, publicKey)
		if err != nil {
			r.log.WithError(err).WithField("account", publicKey).Warn("holder account failed to load")
			holders = append(holders, Holder{PublicKey: publicKey, Error: err.Error()})
			continue
		}
		balance := "0"
		if entry, ok := account.BalanceFor(code, issuer); ok {
			balance = entry.Amount
		}
		holders = append(holders, Holder{PublicKey: publicKey, Balance: balance})
	}
	return holders, nil
}
