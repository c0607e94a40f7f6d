package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prosegate/prosegate/internal/domain"
	"github.com/prosegate/prosegate/internal/repository"
)

type AdminHandler struct {
	accounts repository.AccountRepository
	ledger   repository.Ledger
	mux      *http.ServeMux
}

func NewAdminHandler(accounts repository.AccountRepository, ledger repository.Ledger) *AdminHandler {
	h := &AdminHandler{
		accounts: accounts,
		ledger:   ledger,
		mux:      http.NewServeMux(),
	}

	h.mux.HandleFunc("GET /admin/accounts", h.listAccounts)
	h.mux.HandleFunc("POST /admin/accounts", h.createAccount)
	h.mux.HandleFunc("GET /admin/accounts/{id}", h.getAccount)
	h.mux.HandleFunc("PUT /admin/accounts/{id}", h.updateAccount)
	h.mux.HandleFunc("DELETE /admin/accounts/{id}", h.deleteAccount)
	h.mux.HandleFunc("POST /admin/accounts/{id}/topup", h.topUp)
	h.mux.HandleFunc("POST /admin/accounts/{id}/rotate-key", h.rotateAPIKey)

	return h
}

func (h *AdminHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *AdminHandler) listAccounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accounts, err := h.accounts.List(ctx)
	if err != nil {
		writeAdminError(w, http.StatusInternalServerError, "failed to list accounts")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"accounts": accounts,
		"count":    len(accounts),
	})
}

func (h *AdminHandler) createAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAdminError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" {
		writeAdminError(w, http.StatusBadRequest, "name is required")
		return
	}

	apiKey := generateAPIKey()
	account := &domain.Account{
		ID:           uuid.New().String(),
		Name:         req.Name,
		APIKeyHash:   repository.HashAPIKey(apiKey),
		Credits:      req.Credits,
		RateLimitRPM: req.RateLimitRPM,
		Enabled:      true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	if account.RateLimitRPM == 0 {
		account.RateLimitRPM = 60
	}

	if err := h.accounts.Create(ctx, account); err != nil {
		slog.Error("failed to create account", "error", err)
		writeAdminError(w, http.StatusInternalServerError, "failed to create account")
		return
	}

	slog.Info("account created", "account_id", account.ID, "name", account.Name)

	// The plaintext key is shown once, here. Only its hash is stored.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"account": account,
		"api_key": apiKey,
	})
}

func (h *AdminHandler) getAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	account, err := h.accounts.GetByID(ctx, id)
	if err != nil {
		writeAdminError(w, http.StatusNotFound, "account not found")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(account)
}

func (h *AdminHandler) updateAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	account, err := h.accounts.GetByID(ctx, id)
	if err != nil {
		writeAdminError(w, http.StatusNotFound, "account not found")
		return
	}

	var req UpdateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAdminError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name != "" {
		account.Name = req.Name
	}
	if req.RateLimitRPM != nil {
		account.RateLimitRPM = *req.RateLimitRPM
	}
	if req.Enabled != nil {
		account.Enabled = *req.Enabled
	}
	account.UpdatedAt = time.Now()

	if err := h.accounts.Update(ctx, account); err != nil {
		slog.Error("failed to update account", "error", err)
		writeAdminError(w, http.StatusInternalServerError, "failed to update account")
		return
	}

	slog.Info("account updated", "account_id", account.ID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(account)
}

func (h *AdminHandler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	if err := h.accounts.Delete(ctx, id); err != nil {
		writeAdminError(w, http.StatusNotFound, "account not found")
		return
	}

	slog.Info("account deleted", "account_id", id)

	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) topUp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	var req TopUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAdminError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Amount <= 0 {
		writeAdminError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	balance, err := h.ledger.Credit(ctx, id, req.Amount)
	if err != nil {
		writeAdminError(w, http.StatusNotFound, "account not found")
		return
	}

	slog.Info("credits granted", "account_id", id, "amount", req.Amount, "balance", balance)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"account_id": id,
		"credits":    balance,
	})
}

func (h *AdminHandler) rotateAPIKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	account, err := h.accounts.GetByID(ctx, id)
	if err != nil {
		writeAdminError(w, http.StatusNotFound, "account not found")
		return
	}

	apiKey := generateAPIKey()
	account.APIKeyHash = repository.HashAPIKey(apiKey)
	account.UpdatedAt = time.Now()

	if err := h.accounts.Update(ctx, account); err != nil {
		slog.Error("failed to rotate API key", "error", err)
		writeAdminError(w, http.StatusInternalServerError, "failed to rotate API key")
		return
	}

	slog.Info("API key rotated", "account_id", account.ID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"api_key": apiKey,
	})
}

type CreateAccountRequest struct {
	Name         string `json:"name"`
	Credits      int64  `json:"credits"`
	RateLimitRPM int    `json:"rate_limit_rpm"`
}

type UpdateAccountRequest struct {
	Name         string `json:"name,omitempty"`
	RateLimitRPM *int   `json:"rate_limit_rpm,omitempty"`
	Enabled      *bool  `json:"enabled,omitempty"`
}

type TopUpRequest struct {
	Amount int64 `json:"amount"`
}

func generateAPIKey() string {
	return "pg-" + uuid.New().String()
}

func writeAdminError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": message,
	})
}
