package config

import (
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"

	"github.com/blud-network/stellar-marketplace/internal/models"
)

// Config is the process configuration, read from the environment. A .env
// file in the working directory is loaded first when present.
type Config struct {
	Port              string `env:"PORT,default=4002"`
	HorizonURL        string `env:"HORIZON_URL,default=https://horizon-testnet.stellar.org"`
	NetworkPassphrase string `env:"NETWORK_PASSPHRASE,default=Test SDF Network ; September 2015"`
	FriendbotURL      string `env:"FRIENDBOT_URL,default=https://friendbot.stellar.org"`

	// DefaultAsset fills requests that do not name an asset.
	DefaultAssetCode   string `env:"DEFAULT_ASSET_CODE,default=BLUD"`
	DefaultAssetIssuer string `env:"DEFAULT_ASSET_ISSUER"`

	// DatabaseURL selects the postgres store; when empty the in-memory
	// store is used.
	DatabaseURL string `env:"DATABASE_URL"`

	// KafkaBrokers is a comma-separated broker list; empty disables events.
	KafkaBrokers string `env:"KAFKA_BROKERS"`

	HolderScanLimit int `env:"HOLDER_SCAN_LIMIT,default=200"`
}

// Load reads the configuration from .env and the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultAsset returns the configured default asset reference.
func (c Config) DefaultAsset() models.Asset {
	return models.Asset{Code: c.DefaultAssetCode, IssuerPublicKey: c.DefaultAssetIssuer}
}

// Brokers returns the parsed broker list.
func (c Config) Brokers() []string {
	if c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
