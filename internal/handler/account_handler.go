package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"wallet-service/internal/domain"
	"wallet-service/internal/errors"
	"wallet-service/internal/service"
)

type AccountHandler struct {
	accountService *service.AccountService
	logger         *slog.Logger
}

func NewAccountHandler(accountService *service.AccountService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
		logger:         logger,
	}
}

// RegisterRoutes mounts the account routes on router.
func (h *AccountHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/accounts", h.CreateAccount).Methods("POST")
	router.HandleFunc("/accounts", h.ListAccounts).Methods("GET")
	router.HandleFunc("/accounts/{account_id}", h.GetAccount).Methods("GET")
	router.HandleFunc("/accounts/{account_id}/balance", h.GetBalance).Methods("GET")
	router.HandleFunc("/accounts/{account_id}/deposit", h.Deposit).Methods("PUT")
	router.HandleFunc("/accounts/{account_id}/withdraw", h.Withdraw).Methods("PUT")
}

type CreateAccountRequest struct {
	OwnerID     int64  `json:"ownerId"`
	AccountType string `json:"accountType"`
}

type AmountRequest struct {
	Amount *decimal.Decimal `json:"amount"`
}

type AccountResponse struct {
	ID            string    `json:"id"`
	OwnerID       int64     `json:"ownerId"`
	AccountNumber string    `json:"accountNumber"`
	Balance       string    `json:"balance"`
	AccountType   string    `json:"accountType"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type AccountSummaryResponse struct {
	ID            string `json:"id"`
	OwnerID       int64  `json:"ownerId"`
	AccountNumber string `json:"accountNumber"`
	AccountType   string `json:"accountType"`
}

type BalanceResponse struct {
	ID            string    `json:"id"`
	AccountNumber string    `json:"accountNumber"`
	Balance       string    `json:"balance"`
	AccountType   string    `json:"accountType"`
	QueriedAt     time.Time `json:"queriedAt"`
}

func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	cred, ok := bearerCredential(r)
	if !ok {
		writeError(w, h.logger, r, errors.ErrUnauthorized)
		return
	}

	var req CreateAccountRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, h.logger, r, errors.NewAppError(errors.InvalidInput, "invalid request body").WithDetails(err.Error()))
		return
	}

	account, err := h.accountService.CreateAccount(r.Context(), cred, req.OwnerID, req.AccountType)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAccountResponse(account))
}

func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, err := accountIDFromPath(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	account, err := h.accountService.GetAccount(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *AccountHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	cred, ok := bearerCredential(r)
	if !ok {
		writeError(w, h.logger, r, errors.ErrUnauthorized)
		return
	}

	ownerID, err := strconv.ParseInt(r.URL.Query().Get("ownerId"), 10, 64)
	if err != nil || ownerID <= 0 {
		writeError(w, h.logger, r, errors.NewAppError(errors.InvalidInput, "ownerId query parameter must be a positive integer"))
		return
	}

	summaries, err := h.accountService.ListAccountsByOwner(r.Context(), cred, ownerID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	response := make([]AccountSummaryResponse, 0, len(summaries))
	for _, s := range summaries {
		response = append(response, AccountSummaryResponse{
			ID:            s.ID.String(),
			OwnerID:       s.OwnerID,
			AccountNumber: s.AccountNumber,
			AccountType:   s.AccountType,
		})
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *AccountHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id, err := accountIDFromPath(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	view, err := h.accountService.GetBalance(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toBalanceResponse(view))
}

func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.applyAmount(w, r, h.accountService.Deposit)
}

func (h *AccountHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.applyAmount(w, r, h.accountService.Withdraw)
}

type amountOperation func(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (*domain.BalanceView, error)

func (h *AccountHandler) applyAmount(w http.ResponseWriter, r *http.Request, op amountOperation) {
	id, err := accountIDFromPath(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	var req AmountRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, h.logger, r, errors.NewAppError(errors.InvalidAmount, "invalid amount format").WithDetails(err.Error()))
		return
	}
	if req.Amount == nil {
		writeError(w, h.logger, r, errors.NewAppError(errors.InvalidAmount, "amount is required"))
		return
	}

	view, err := op(r.Context(), id, *req.Amount)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toBalanceResponse(view))
}

func accountIDFromPath(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)["account_id"])
	if err != nil {
		return uuid.Nil, errors.ErrInvalidAccountID
	}
	return id, nil
}

func toAccountResponse(account *domain.Account) AccountResponse {
	return AccountResponse{
		ID:            account.ID.String(),
		OwnerID:       account.OwnerID,
		AccountNumber: account.AccountNumber,
		Balance:       account.Balance.StringFixed(2),
		AccountType:   account.AccountType,
		Active:        account.Active,
		CreatedAt:     account.CreatedAt,
		UpdatedAt:     account.UpdatedAt,
	}
}

func toBalanceResponse(view *domain.BalanceView) BalanceResponse {
	return BalanceResponse{
		ID:            view.ID.String(),
		AccountNumber: view.AccountNumber,
		Balance:       view.Balance.StringFixed(2),
		AccountType:   view.AccountType,
		QueriedAt:     view.QueriedAt,
	}
}
