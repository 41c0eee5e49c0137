package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/blud-network/stellar-marketplace/internal/interfaces"
	"github.com/blud-network/stellar-marketplace/internal/settlement"
)

// envelope is the response shape for every endpoint: a success flag, a
// human-readable message, and either a result or a machine-readable error
// detail.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Result  any    `json:"result,omitempty"`
	Error   any    `json:"error,omitempty"`
}

func writeSuccess(w http.ResponseWriter, status int, message string, result any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Success: true, Message: message, Result: result})
}

func writeError(w http.ResponseWriter, status int, message string, detail any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Success: false, Message: message, Error: detail})
}

// writeFailure maps an error to its HTTP category: 400 for precondition
// failures, 404 for missing records, 500 for infrastructure failures and
// for the distinct inconsistent-state case.
func writeFailure(w http.ResponseWriter, message string, err error) {
	var validation *settlement.ValidationError
	var inconsistent *settlement.InconsistentStateError
	var ledgerErr *interfaces.LedgerError

	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, message, map[string]string{
			"code":   "validation_error",
			"field":  validation.Field,
			"detail": validation.Reason,
		})
	case errors.As(err, &inconsistent):
		// The ledger effect is confirmed but the store effect is not. This
		// must win over whatever sentinel it wraps: the hash keys the
		// repair path and operators need to see it.
		writeError(w, http.StatusInternalServerError, message, map[string]string{
			"code":             "inconsistent_state",
			"service_id":       inconsistent.ServiceID,
			"transaction_hash": inconsistent.TransactionHash,
			"detail":           inconsistent.Err.Error(),
		})
	case errors.Is(err, settlement.ErrServiceNotFound):
		writeError(w, http.StatusNotFound, message, map[string]string{"code": "service_not_found"})
	case errors.Is(err, interfaces.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, message, map[string]string{"code": "account_not_found", "detail": err.Error()})
	case errors.Is(err, settlement.ErrServiceNotAvailable):
		writeError(w, http.StatusBadRequest, message, map[string]string{"code": "service_not_available"})
	case errors.Is(err, settlement.ErrTrustlineRequired):
		writeError(w, http.StatusBadRequest, message, map[string]string{"code": "trustline_required"})
	case errors.Is(err, settlement.ErrInsufficientBalance):
		writeError(w, http.StatusBadRequest, message, map[string]string{"code": "insufficient_balance"})
	case errors.Is(err, settlement.ErrPaymentNotOnLedger):
		writeError(w, http.StatusBadRequest, message, map[string]string{"code": "payment_not_on_ledger"})
	case errors.As(err, &ledgerErr):
		writeError(w, http.StatusBadRequest, message, map[string]any{
			"code":             "ledger_submission_failed",
			"transaction_code": ledgerErr.TransactionCode,
			"operation_codes":  ledgerErr.OperationCodes,
		})
	default:
		writeError(w, http.StatusInternalServerError, message, map[string]string{
			"code":   "internal_error",
			"detail": err.Error(),
		})
	}
}
