package settlement

import (
	"errors"
	"fmt"
)

// Sentinel failures for the listing and purchase workflows. Each step of a
// workflow fails fast with exactly one of these (or one of the typed errors
// below); a caller never sees partial success.
var (
	ErrServiceNotFound      = errors.New("service not found")
	ErrServiceNotAvailable  = errors.New("service not available for purchase")
	ErrTrustlineRequired    = errors.New("account has no trustline for the asset")
	ErrInsufficientBalance  = errors.New("insufficient asset balance")
	ErrPaymentNotOnLedger   = errors.New("transaction hash not found or not successful on ledger")
)

// ValidationError reports malformed input, caught before any external call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InconsistentStateError reports the one failure mode where the ledger and
// the store diverge: the payment settled on-ledger but the local records
// could not be brought in line. It must never be coerced into a generic
// failure; the hash is what operators feed the repair path. The payment
// must not be retried.
type InconsistentStateError struct {
	ServiceID       string
	TransactionHash string
	Err             error
}

func (e *InconsistentStateError) Error() string {
	return fmt.Sprintf("payment %s settled on ledger but store update failed for service %s: %v",
		e.TransactionHash, e.ServiceID, e.Err)
}

func (e *InconsistentStateError) Unwrap() error { return e.Err }
