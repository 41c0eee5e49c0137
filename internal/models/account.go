package models

// AccountKeypair is a freshly generated ledger account: the public
// identifier and the private signing credential. The secret is persisted
// once as creation bookkeeping and never read back by the system.
type AccountKeypair struct {
	PublicKey string `json:"public_key"`
	SecretKey string `json:"secret_key"`
}
