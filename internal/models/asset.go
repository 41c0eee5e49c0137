package models

import "time"

// Asset identifies a custom token on the ledger. Two assets are the same
// asset only when both the code and the issuing account match; the same
// code under a different issuer is a different asset.
type Asset struct {
	ID              string    `json:"id,omitempty"`
	Code            string    `json:"asset_code"`
	IssuerPublicKey string    `json:"issuer_public_key"`
	CreatedAt       time.Time `json:"created_at,omitempty"`
}

// Matches reports whether a (code, issuer) pair refers to this asset.
func (a Asset) Matches(code, issuer string) bool {
	return a.Code == code && a.IssuerPublicKey == issuer
}

// IsZero reports whether the asset reference is unset.
func (a Asset) IsZero() bool {
	return a.Code == "" && a.IssuerPublicKey == ""
}
