package models

// Balance is one entry of an account's balance list as reported by the
// ledger. Amounts stay decimal strings exactly as the ledger returns them;
// callers compare them with exact decimal semantics, never floats.
type Balance struct {
	AssetType   string `json:"asset_type"`
	AssetCode   string `json:"asset_code"`
	AssetIssuer string `json:"asset_issuer"`
	Amount      string `json:"balance"`
}

// LedgerAccount is the live state of an account loaded from the ledger.
// It is never cached; every workflow re-loads it.
type LedgerAccount struct {
	PublicKey string    `json:"public_key"`
	Sequence  int64     `json:"sequence"`
	Balances  []Balance `json:"balances"`
}

// BalanceFor returns the balance entry for the given asset, if present.
// A present entry with a zero amount still means the account holds a
// trustline for the asset.
func (a LedgerAccount) BalanceFor(code, issuer string) (Balance, bool) {
	for _, b := range a.Balances {
		if b.AssetCode == code && b.AssetIssuer == issuer {
			return b, true
		}
	}
	return Balance{}, false
}

// PaymentResult is the ledger's acknowledgement of a submitted transaction.
type PaymentResult struct {
	Hash       string `json:"hash"`
	Ledger     int32  `json:"ledger"`
	Successful bool   `json:"successful"`
}

// PaymentRecord is one operation from an account's payment history.
type PaymentRecord struct {
	From        string `json:"from"`
	To          string `json:"to"`
	AssetType   string `json:"asset_type"`
	AssetCode   string `json:"asset_code"`
	AssetIssuer string `json:"asset_issuer"`
	Amount      string `json:"amount"`
}
