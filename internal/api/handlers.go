// Package api exposes the marketplace over HTTP. Routing and JSON mapping
// only; all behavior lives in the settlement, registry and reporting
// packages.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/blud-network/stellar-marketplace/internal/interfaces"
	"github.com/blud-network/stellar-marketplace/internal/metrics"
	"github.com/blud-network/stellar-marketplace/internal/models"
	"github.com/blud-network/stellar-marketplace/internal/registry"
	"github.com/blud-network/stellar-marketplace/internal/reporting"
	"github.com/blud-network/stellar-marketplace/internal/settlement"
)

// Handler wires the HTTP surface to the domain services.
type Handler struct {
	engine   *settlement.Engine
	registry *registry.Registry
	reporter *reporting.Reporter
	ledger   interfaces.LedgerGateway
	store    interfaces.MarketplaceStore
	log      logrus.FieldLogger
}

func NewHandler(engine *settlement.Engine, reg *registry.Registry, reporter *reporting.Reporter,
	ledger interfaces.LedgerGateway, store interfaces.MarketplaceStore, log logrus.FieldLogger) *Handler {
	return &Handler{engine: engine, registry: reg, reporter: reporter, ledger: ledger, store: store, log: log}
}

// Router builds the full route table.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(h.countRequests)

	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	s := r.PathPrefix("/api/stellar").Subrouter()
	s.HandleFunc("/account/create", h.createAccount).Methods(http.MethodPost)
	s.HandleFunc("/account/balance/{publicKey}", h.accountBalance).Methods(http.MethodGet)
	s.HandleFunc("/currency/create", h.registerAsset).Methods(http.MethodPost)
	s.HandleFunc("/currency", h.listAssets).Methods(http.MethodGet)
	s.HandleFunc("/currency/send", h.sendAsset).Methods(http.MethodPost)
	s.HandleFunc("/trustline/change", h.changeTrustline).Methods(http.MethodPost)
	s.HandleFunc("/service/sell", h.sellService).Methods(http.MethodPost)
	s.HandleFunc("/service/buy", h.buyService).Methods(http.MethodPost)
	s.HandleFunc("/service/repair", h.repairPurchase).Methods(http.MethodPost)
	s.HandleFunc("/service", h.listServices).Methods(http.MethodGet)
	s.HandleFunc("/issuer/holders", h.listHolders).Methods(http.MethodPost)
	return r
}

func (h *Handler) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}
		metrics.HTTPRequests.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func decode(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", map[string]string{"code": "validation_error", "detail": err.Error()})
		return false
	}
	return true
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	pair, err := h.ledger.CreateAccount(r.Context())
	if err != nil {
		writeFailure(w, "failed to create account", err)
		return
	}
	if err := h.store.SaveAccount(r.Context(), pair); err != nil {
		writeFailure(w, "account funded but bookkeeping failed", err)
		return
	}
	writeSuccess(w, http.StatusOK, "testnet account created and funded", pair)
}

func (h *Handler) accountBalance(w http.ResponseWriter, r *http.Request) {
	publicKey := mux.Vars(r)["publicKey"]
	account, err := h.ledger.LoadAccount(r.Context(), publicKey)
	if err != nil {
		writeFailure(w, "failed to fetch account balance", err)
		return
	}
	writeSuccess(w, http.StatusOK, "account balances fetched successfully", account.Balances)
}

func (h *Handler) registerAsset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IssuerSecret string `json:"issuerSecret"`
		AssetCode    string `json:"assetCode"`
	}
	if !decode(w, r, &req) {
		return
	}
	asset, err := h.registry.RegisterAsset(r.Context(), req.IssuerSecret, req.AssetCode)
	if err != nil {
		writeFailure(w, "failed to register asset", err)
		return
	}
	writeSuccess(w, http.StatusOK, "asset registered successfully", asset)
}

func (h *Handler) listAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := h.registry.ListAssets(r.Context())
	if err != nil {
		writeFailure(w, "failed to list assets", err)
		return
	}
	writeSuccess(w, http.StatusOK, "assets fetched successfully", assets)
}

func (h *Handler) sendAsset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SourceSecret      string `json:"sourceSecret"`
		ReceiverPublicKey string `json:"receiverPublicKey"`
		AssetCode         string `json:"assetCode"`
		IssuerPublicKey   string `json:"issuerPublicKey"`
		Amount            string `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	result, err := h.ledger.SubmitPayment(r.Context(), req.SourceSecret, req.ReceiverPublicKey,
		models.Asset{Code: req.AssetCode, IssuerPublicKey: req.IssuerPublicKey}, req.Amount)
	if err != nil {
		writeFailure(w, "failed to send asset", err)
		return
	}
	writeSuccess(w, http.StatusOK, "asset sent successfully", result)
}

func (h *Handler) changeTrustline(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountSecret   string `json:"accountSecret"`
		AssetCode       string `json:"assetCode"`
		IssuerPublicKey string `json:"issuerPublicKey"`
		Limit           string `json:"limit"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Limit == "" {
		req.Limit = "100000"
	}
	result, err := h.ledger.SubmitTrustChange(r.Context(), req.AccountSecret,
		models.Asset{Code: req.AssetCode, IssuerPublicKey: req.IssuerPublicKey}, req.Limit)
	if err != nil {
		writeFailure(w, "failed to establish trustline", err)
		return
	}
	writeSuccess(w, http.StatusOK, "trustline established", result)
}

func (h *Handler) sellService(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SellerSecret    string `json:"sellerSecret"`
		ServiceName     string `json:"serviceName"`
		Description     string `json:"description"`
		Amount          string `json:"bludAmount"`
		AssetCode       string `json:"assetCode"`
		IssuerPublicKey string `json:"issuerPublicKey"`
	}
	if !decode(w, r, &req) {
		return
	}
	service, err := h.engine.ListForSale(r.Context(), settlement.ListInput{
		SellerSecret: req.SellerSecret,
		Name:         req.ServiceName,
		Description:  req.Description,
		Price:        req.Amount,
		Asset:        models.Asset{Code: req.AssetCode, IssuerPublicKey: req.IssuerPublicKey},
	})
	if err != nil {
		writeFailure(w, "failed to list service", err)
		return
	}
	writeSuccess(w, http.StatusOK, "service listed for sale successfully", service)
}

func (h *Handler) buyService(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BuyerSecret     string `json:"buyerSecret"`
		ServiceID       string `json:"serviceId"`
		AssetCode       string `json:"assetCode"`
		IssuerPublicKey string `json:"issuerPublicKey"`
	}
	if !decode(w, r, &req) {
		return
	}
	result, err := h.engine.Purchase(r.Context(), settlement.PurchaseInput{
		BuyerSecret: req.BuyerSecret,
		ServiceID:   req.ServiceID,
		Asset:       models.Asset{Code: req.AssetCode, IssuerPublicKey: req.IssuerPublicKey},
	})
	if err != nil {
		writeFailure(w, "failed to purchase service", err)
		return
	}
	writeSuccess(w, http.StatusOK, "service purchased successfully", result)
}

func (h *Handler) repairPurchase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ServiceID       string `json:"serviceId"`
		BuyerPublicKey  string `json:"buyerPublicKey"`
		TransactionHash string `json:"transactionHash"`
	}
	if !decode(w, r, &req) {
		return
	}
	record, err := h.engine.Repair(r.Context(), req.ServiceID, req.BuyerPublicKey, req.TransactionHash)
	if err != nil {
		writeFailure(w, "failed to repair purchase", err)
		return
	}
	writeSuccess(w, http.StatusOK, "purchase record reconciled", record)
}

func (h *Handler) listServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.engine.Services(r.Context())
	if err != nil {
		writeFailure(w, "failed to fetch services", err)
		return
	}
	writeSuccess(w, http.StatusOK, "services fetched successfully", services)
}

func (h *Handler) listHolders(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IssuerSecret string `json:"issuerSecret"`
		AssetCode    string `json:"assetCode"`
	}
	if !decode(w, r, &req) {
		return
	}
	holders, err := h.reporter.ListHolders(r.Context(), req.IssuerSecret, req.AssetCode)
	if err != nil {
		writeFailure(w, "failed to build holder report", err)
		return
	}
	writeSuccess(w, http.StatusOK, "holder balances fetched successfully", holders)
}
