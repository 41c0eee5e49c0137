package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stellar/go/keypair"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blud-network/stellar-marketplace/internal/ledgertest"
	"github.com/blud-network/stellar-marketplace/internal/models"
	"github.com/blud-network/stellar-marketplace/internal/registry"
	"github.com/blud-network/stellar-marketplace/internal/reporting"
	"github.com/blud-network/stellar-marketplace/internal/settlement"
	"github.com/blud-network/stellar-marketplace/internal/storage/memory"
)

type fixture struct {
	server  *httptest.Server
	gateway *ledgertest.FakeGateway

	issuer *keypair.Full
	seller *keypair.Full
	buyer  *keypair.Full
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	gateway := ledgertest.NewFakeGateway()
	store := memory.NewMarketplaceStore()

	issuer := keypair.MustRandom()
	seller := keypair.MustRandom()
	buyer := keypair.MustRandom()

	bludBalance := func(amount string) models.Balance {
		return models.Balance{
			AssetType:   "credit_alphanum4",
			AssetCode:   "BLUD",
			AssetIssuer: issuer.Address(),
			Amount:      amount,
		}
	}
	gateway.AddAccount(issuer.Address(), models.Balance{AssetType: "native", Amount: "10000.0000000"})
	gateway.AddAccount(seller.Address(), bludBalance("50.0000000"))
	gateway.AddAccount(buyer.Address(), bludBalance("50.0000000"))

	engine := settlement.New(gateway, store, log)
	engine.WithDefaultAsset(models.Asset{Code: "BLUD", IssuerPublicKey: issuer.Address()})
	handler := NewHandler(
		engine,
		registry.New(gateway, store, log),
		reporting.New(gateway, reporting.DefaultScanLimit, log),
		gateway,
		store,
		log,
	)

	server := httptest.NewServer(handler.Router())
	t.Cleanup(server.Close)

	return &fixture{server: server, gateway: gateway, issuer: issuer, seller: seller, buyer: buyer}
}

func (f *fixture) post(t *testing.T, path string, body any) (int, envelope) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	res, err := http.Post(f.server.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer res.Body.Close()
	return res.StatusCode, decodeEnvelope(t, res.Body)
}

func (f *fixture) get(t *testing.T, path string) (int, envelope) {
	t.Helper()
	res, err := http.Get(f.server.URL + path)
	require.NoError(t, err)
	defer res.Body.Close()
	return res.StatusCode, decodeEnvelope(t, res.Body)
}

func decodeEnvelope(t *testing.T, r io.Reader) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.NewDecoder(r).Decode(&env))
	return env
}

func resultMap(t *testing.T, env envelope) map[string]any {
	t.Helper()
	m, ok := env.Result.(map[string]any)
	require.True(t, ok, "result is not an object: %v", env.Result)
	return m
}

func errorMap(t *testing.T, env envelope) map[string]any {
	t.Helper()
	m, ok := env.Error.(map[string]any)
	require.True(t, ok, "error is not an object: %v", env.Error)
	return m
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	res, err := http.Get(f.server.URL + "/health")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestSellBuyRoundTrip(t *testing.T) {
	f := newFixture(t)

	status, env := f.post(t, "/api/stellar/service/sell", map[string]string{
		"sellerSecret": f.seller.Seed(),
		"serviceName":  "logo design",
		"description":  "one round of revisions",
		"bludAmount":   "20",
	})
	require.Equal(t, http.StatusOK, status)
	require.True(t, env.Success)
	serviceID, _ := resultMap(t, env)["id"].(string)
	require.NotEmpty(t, serviceID)

	status, env = f.get(t, "/api/stellar/service")
	require.Equal(t, http.StatusOK, status)
	listed, ok := env.Result.([]any)
	require.True(t, ok)
	require.Len(t, listed, 1)

	status, env = f.post(t, "/api/stellar/service/buy", map[string]string{
		"buyerSecret": f.buyer.Seed(),
		"serviceId":   serviceID,
	})
	require.Equal(t, http.StatusOK, status)
	require.True(t, env.Success)
	result := resultMap(t, env)
	record, ok := result["transaction_record"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, serviceID, record["service_id"])
	assert.Equal(t, f.buyer.Address(), record["buyer_public_key"])
	assert.NotEmpty(t, record["transaction_hash"])

	// Second buyer hits the sold guard.
	status, env = f.post(t, "/api/stellar/service/buy", map[string]string{
		"buyerSecret": f.buyer.Seed(),
		"serviceId":   serviceID,
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.False(t, env.Success)
	assert.Equal(t, "service_not_available", errorMap(t, env)["code"])
}

func TestBuyErrorStatuses(t *testing.T) {
	f := newFixture(t)

	t.Run("unknown service is 404", func(t *testing.T) {
		status, env := f.post(t, "/api/stellar/service/buy", map[string]string{
			"buyerSecret": f.buyer.Seed(),
			"serviceId":   "does-not-exist",
		})
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, "service_not_found", errorMap(t, env)["code"])
	})

	t.Run("buyer without trustline is 400", func(t *testing.T) {
		stranger := keypair.MustRandom()
		f.gateway.AddAccount(stranger.Address(), models.Balance{AssetType: "native", Amount: "100.0000000"})

		status, env := f.post(t, "/api/stellar/service/sell", map[string]string{
			"sellerSecret": f.seller.Seed(),
			"serviceName":  "consulting",
			"bludAmount":   "5",
		})
		require.Equal(t, http.StatusOK, status)
		serviceID, _ := resultMap(t, env)["id"].(string)

		status, env = f.post(t, "/api/stellar/service/buy", map[string]string{
			"buyerSecret": stranger.Seed(),
			"serviceId":   serviceID,
		})
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "trustline_required", errorMap(t, env)["code"])
	})

	t.Run("malformed body is 400", func(t *testing.T) {
		res, err := http.Post(f.server.URL+"/api/stellar/service/buy", "application/json", bytes.NewReader([]byte("{")))
		require.NoError(t, err)
		defer res.Body.Close()
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
		assert.Equal(t, "validation_error", errorMap(t, decodeEnvelope(t, res.Body))["code"])
	})
}

func TestSellValidation(t *testing.T) {
	f := newFixture(t)

	status, env := f.post(t, "/api/stellar/service/sell", map[string]string{
		"sellerSecret": f.seller.Seed(),
		"serviceName":  "",
		"bludAmount":   "20",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	detail := errorMap(t, env)
	assert.Equal(t, "validation_error", detail["code"])
	assert.Equal(t, "name", detail["field"])
}

func TestAccountEndpoints(t *testing.T) {
	f := newFixture(t)

	status, env := f.post(t, "/api/stellar/account/create", nil)
	require.Equal(t, http.StatusOK, status)
	created := resultMap(t, env)
	publicKey, _ := created["public_key"].(string)
	require.NotEmpty(t, publicKey)
	require.NotEmpty(t, created["secret_key"])

	status, env = f.get(t, "/api/stellar/account/balance/"+publicKey)
	require.Equal(t, http.StatusOK, status)
	balances, ok := env.Result.([]any)
	require.True(t, ok)
	require.NotEmpty(t, balances)

	status, env = f.get(t, "/api/stellar/account/balance/"+keypair.MustRandom().Address())
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "account_not_found", errorMap(t, env)["code"])
}

func TestCurrencyAndTrustlineEndpoints(t *testing.T) {
	f := newFixture(t)

	status, env := f.post(t, "/api/stellar/currency/create", map[string]string{
		"issuerSecret": f.issuer.Seed(),
		"assetCode":    "BLUD",
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "BLUD", resultMap(t, env)["asset_code"])

	status, env = f.get(t, "/api/stellar/currency")
	require.Equal(t, http.StatusOK, status)
	assets, ok := env.Result.([]any)
	require.True(t, ok)
	assert.Len(t, assets, 1)

	holder := keypair.MustRandom()
	f.gateway.AddAccount(holder.Address(), models.Balance{AssetType: "native", Amount: "100.0000000"})
	status, env = f.post(t, "/api/stellar/trustline/change", map[string]string{
		"accountSecret":   holder.Seed(),
		"assetCode":       "BLUD",
		"issuerPublicKey": f.issuer.Address(),
	})
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, resultMap(t, env)["hash"])

	status, env = f.post(t, "/api/stellar/currency/send", map[string]string{
		"sourceSecret":      f.issuer.Seed(),
		"receiverPublicKey": holder.Address(),
		"assetCode":         "BLUD",
		"issuerPublicKey":   f.issuer.Address(),
		"amount":            "7",
	})
	require.Equal(t, http.StatusOK, status)
	require.True(t, env.Success)

	status, env = f.post(t, "/api/stellar/issuer/holders", map[string]string{
		"issuerSecret": f.issuer.Seed(),
		"assetCode":    "BLUD",
	})
	require.Equal(t, http.StatusOK, status)
	holders, ok := env.Result.([]any)
	require.True(t, ok)
	require.Len(t, holders, 1)
	entry, ok := holders[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, holder.Address(), entry["public_key"])
	assert.Equal(t, "7.0000000", entry["balance"])
}

func TestRepairEndpoint(t *testing.T) {
	f := newFixture(t)

	status, env := f.post(t, "/api/stellar/service/sell", map[string]string{
		"sellerSecret": f.seller.Seed(),
		"serviceName":  "tutoring",
		"bludAmount":   "3",
	})
	require.Equal(t, http.StatusOK, status)
	serviceID, _ := resultMap(t, env)["id"].(string)

	status, env = f.post(t, "/api/stellar/service/buy", map[string]string{
		"buyerSecret": f.buyer.Seed(),
		"serviceId":   serviceID,
	})
	require.Equal(t, http.StatusOK, status)
	record, _ := resultMap(t, env)["transaction_record"].(map[string]any)
	hash, _ := record["transaction_hash"].(string)
	require.NotEmpty(t, hash)

	// Re-running the reconciliation for a settled purchase returns the
	// existing receipt.
	status, env = f.post(t, "/api/stellar/service/repair", map[string]string{
		"serviceId":       serviceID,
		"buyerPublicKey":  f.buyer.Address(),
		"transactionHash": hash,
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, record["id"], resultMap(t, env)["id"])

	// A hash the ledger never saw is rejected.
	status, env = f.post(t, "/api/stellar/service/repair", map[string]string{
		"serviceId":       serviceID,
		"buyerPublicKey":  f.buyer.Address(),
		"transactionHash": fmt.Sprintf("%064d", 0),
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "payment_not_on_ledger", errorMap(t, env)["code"])
}
