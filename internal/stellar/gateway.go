// Package stellar adapts the Stellar SDK's Horizon client to the
// LedgerGateway contract. All transaction building and signing is delegated
// to the SDK; this package only maps requests and results.
package stellar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/protocols/horizon/operations"
	"github.com/stellar/go/txnbuild"

	"github.com/blud-network/stellar-marketplace/internal/interfaces"
	"github.com/blud-network/stellar-marketplace/internal/models"
)

const (
	// submissionTimeout bounds a transaction's validity window so a stuck
	// submission cannot apply arbitrarily late.
	submissionTimeout = 30 * time.Second

	// requeryAttempts and requeryInterval govern the status re-query after a
	// timed-out submission, which may still have applied.
	requeryAttempts = 3
	requeryInterval = 2 * time.Second
)

// Gateway implements interfaces.LedgerGateway against a Horizon server.
type Gateway struct {
	client            horizonclient.ClientInterface
	networkPassphrase string
	friendbotURL      string
	httpClient        *http.Client
}

// New constructs a gateway for the given Horizon server and network.
func New(horizonURL, networkPassphrase, friendbotURL string) *Gateway {
	return &Gateway{
		client: &horizonclient.Client{
			HorizonURL: horizonURL,
			HTTP:       &http.Client{Timeout: 60 * time.Second},
		},
		networkPassphrase: networkPassphrase,
		friendbotURL:      friendbotURL,
		httpClient:        &http.Client{Timeout: 30 * time.Second},
	}
}

// CreateAccount generates a keypair and funds it through the network
// faucet. Testnet only; the faucet does not exist on the public network.
func (g *Gateway) CreateAccount(ctx context.Context) (models.AccountKeypair, error) {
	kp, err := keypair.Random()
	if err != nil {
		return models.AccountKeypair{}, fmt.Errorf("generate keypair: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s?addr=%s", g.friendbotURL, url.QueryEscape(kp.Address())), nil)
	if err != nil {
		return models.AccountKeypair{}, err
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return models.AccountKeypair{}, fmt.Errorf("fund account: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return models.AccountKeypair{}, fmt.Errorf("fund account: faucet returned %s", resp.Status)
	}

	return models.AccountKeypair{PublicKey: kp.Address(), SecretKey: kp.Seed()}, nil
}

func (g *Gateway) LoadAccount(ctx context.Context, publicKey string) (models.LedgerAccount, error) {
	account, err := g.client.AccountDetail(horizonclient.AccountRequest{AccountID: publicKey})
	if err != nil {
		if isNotFound(err) {
			return models.LedgerAccount{}, fmt.Errorf("%w: %s", interfaces.ErrAccountNotFound, publicKey)
		}
		return models.LedgerAccount{}, fmt.Errorf("load account %s: %w", publicKey, err)
	}

	sequence, _ := account.GetSequenceNumber()
	out := models.LedgerAccount{PublicKey: publicKey, Sequence: sequence}
	for _, b := range account.Balances {
		entry := models.Balance{
			AssetType:   b.Asset.Type,
			AssetCode:   b.Asset.Code,
			AssetIssuer: b.Asset.Issuer,
			Amount:      b.Balance,
		}
		if b.Asset.Type == "native" {
			entry.AssetCode = "XLM"
			entry.AssetIssuer = "native"
		}
		out.Balances = append(out.Balances, entry)
	}
	return out, nil
}

func (g *Gateway) SubmitPayment(ctx context.Context, sourceSecret, destination string, asset models.Asset, amount string) (models.PaymentResult, error) {
	return g.submitSigned(ctx, sourceSecret, &txnbuild.Payment{
		Destination: destination,
		Amount:      amount,
		Asset:       txnbuild.CreditAsset{Code: asset.Code, Issuer: asset.IssuerPublicKey},
	})
}

func (g *Gateway) SubmitTrustChange(ctx context.Context, accountSecret string, asset models.Asset, limit string) (models.PaymentResult, error) {
	return g.submitSigned(ctx, accountSecret, &txnbuild.ChangeTrust{
		Line:  txnbuild.ChangeTrustAssetWrapper{Asset: txnbuild.CreditAsset{Code: asset.Code, Issuer: asset.IssuerPublicKey}},
		Limit: limit,
	})
}

// submitSigned builds a single-operation transaction, signs it, and submits
// it. The hash is computed before submission: a timed-out submission may
// still have applied, so failure is only reported after re-querying the
// transaction by hash.
func (g *Gateway) submitSigned(ctx context.Context, sourceSecret string, op txnbuild.Operation) (models.PaymentResult, error) {
	kp, err := keypair.ParseFull(sourceSecret)
	if err != nil {
		return models.PaymentResult{}, fmt.Errorf("parse secret: %w", err)
	}
	sourceAccount, err := g.client.AccountDetail(horizonclient.AccountRequest{AccountID: kp.Address()})
	if err != nil {
		if isNotFound(err) {
			return models.PaymentResult{}, fmt.Errorf("%w: %s", interfaces.ErrAccountNotFound, kp.Address())
		}
		return models.PaymentResult{}, fmt.Errorf("load source account: %w", err)
	}

	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        &sourceAccount,
		IncrementSequenceNum: true,
		BaseFee:              txnbuild.MinBaseFee,
		Preconditions:        txnbuild.Preconditions{TimeBounds: txnbuild.NewTimeout(int64(submissionTimeout.Seconds()))},
		Operations:           []txnbuild.Operation{op},
	})
	if err != nil {
		return models.PaymentResult{}, fmt.Errorf("build transaction: %w", err)
	}
	tx, err = tx.Sign(g.networkPassphrase, kp)
	if err != nil {
		return models.PaymentResult{}, fmt.Errorf("sign transaction: %w", err)
	}
	hash, err := tx.HashHex(g.networkPassphrase)
	if err != nil {
		return models.PaymentResult{}, fmt.Errorf("hash transaction: %w", err)
	}

	resp, err := g.client.SubmitTransaction(tx)
	if err != nil {
		if isTimeout(err) {
			if result, ok := g.requery(ctx, hash); ok {
				return result, nil
			}
		}
		return models.PaymentResult{}, ledgerError(err, hash)
	}

	return models.PaymentResult{Hash: resp.Hash, Ledger: resp.Ledger, Successful: resp.Successful}, nil
}

// requery polls for a transaction that may have applied despite a timed-out
// submission response.
func (g *Gateway) requery(ctx context.Context, hash string) (models.PaymentResult, bool) {
	for i := 0; i < requeryAttempts; i++ {
		select {
		case <-ctx.Done():
			return models.PaymentResult{}, false
		case <-time.After(requeryInterval):
		}
		detail, err := g.client.TransactionDetail(hash)
		if err == nil && detail.Successful {
			return models.PaymentResult{Hash: detail.Hash, Ledger: detail.Ledger, Successful: true}, true
		}
	}
	return models.PaymentResult{}, false
}

// PaymentsForAccount returns up to limit payment operations involving the
// account, most recent first.
func (g *Gateway) PaymentsForAccount(ctx context.Context, publicKey string, limit int) ([]models.PaymentRecord, error) {
	page, err := g.client.Payments(horizonclient.OperationRequest{
		ForAccount: publicKey,
		Order:      horizonclient.OrderDesc,
		Limit:      uint(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("load payments for %s: %w", publicKey, err)
	}
	return paymentRecords(page), nil
}

// PaymentsForTransaction returns the payment operations carried by the
// identified transaction.
func (g *Gateway) PaymentsForTransaction(ctx context.Context, hash string) ([]models.PaymentRecord, error) {
	page, err := g.client.Payments(horizonclient.OperationRequest{ForTransaction: hash})
	if err != nil {
		return nil, fmt.Errorf("load payments for transaction %s: %w", hash, err)
	}
	return paymentRecords(page), nil
}

func paymentRecords(page operations.OperationsPage) []models.PaymentRecord {
	var records []models.PaymentRecord
	for _, record := range page.Embedded.Records {
		payment, ok := record.(operations.Payment)
		if !ok {
			continue
		}
		records = append(records, models.PaymentRecord{
			From:        payment.From,
			To:          payment.To,
			AssetType:   payment.Asset.Type,
			AssetCode:   payment.Asset.Code,
			AssetIssuer: payment.Asset.Issuer,
			Amount:      payment.Amount,
		})
	}
	return records
}

func (g *Gateway) TransactionByHash(ctx context.Context, hash string) (models.PaymentResult, error) {
	detail, err := g.client.TransactionDetail(hash)
	if err != nil {
		if isNotFound(err) {
			return models.PaymentResult{}, fmt.Errorf("%w: %s", interfaces.ErrTransactionNotFound, hash)
		}
		return models.PaymentResult{}, fmt.Errorf("load transaction %s: %w", hash, err)
	}
	return models.PaymentResult{Hash: detail.Hash, Ledger: detail.Ledger, Successful: detail.Successful}, nil
}

// ledgerError extracts the Horizon result codes into a *interfaces.LedgerError.
func ledgerError(err error, hash string) error {
	out := &interfaces.LedgerError{Hash: hash, Err: err}
	var hErr *horizonclient.Error
	if errors.As(err, &hErr) {
		if codes, codesErr := hErr.ResultCodes(); codesErr == nil {
			out.TransactionCode = codes.TransactionCode
			out.OperationCodes = codes.OperationCodes
		}
	}
	return out
}

func isNotFound(err error) bool {
	var hErr *horizonclient.Error
	return errors.As(err, &hErr) && hErr.Problem.Status == http.StatusNotFound
}

func isTimeout(err error) bool {
	var hErr *horizonclient.Error
	if errors.As(err, &hErr) {
		return hErr.Problem.Status == http.StatusGatewayTimeout
	}
	// Transport-level failures: the submission may still have reached the
	// network.
	return errors.Is(err, context.DeadlineExceeded)
}

var _ interfaces.LedgerGateway = (*Gateway)(nil)
