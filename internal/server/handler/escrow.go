package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/dexengine/internal/domain"
	"github.com/alanyoungcy/dexengine/internal/num"
)

// EscrowService defines the escrow and balance operations.
type EscrowService interface {
	Deposit(ctx context.Context, caller, token common.Address, amount *num.Uint) (*num.Uint, error)
	Withdraw(ctx context.Context, caller, token common.Address, amount *num.Uint) (*num.Uint, error)
	Balances(account common.Address) ([]domain.Balance, error)
	Escrows(account common.Address) []domain.Balance
}

// EscrowHandler serves escrow movements and account balances.
type EscrowHandler struct {
	svc    EscrowService
	logger *slog.Logger
}

func NewEscrowHandler(svc EscrowService, logger *slog.Logger) *EscrowHandler {
	return &EscrowHandler{svc: svc, logger: logHandler(logger, "escrow")}
}

type escrowRequest struct {
	Account string `json:"account"`
	Token   string `json:"token"`
	Amount  string `json:"amount"`
}

type escrowResponse struct {
	Account common.Address `json:"account"`
	Token   common.Address `json:"token"`
	Escrow  *num.Uint      `json:"escrow"`
}

// Deposit moves ledger funds into the caller's escrow.
// POST /api/escrow/deposit
func (h *EscrowHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, h.svc.Deposit)
}

// Withdraw moves escrowed funds back to the caller's ledger balance.
// POST /api/escrow/withdraw
func (h *EscrowHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, h.svc.Withdraw)
}

func (h *EscrowHandler) move(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, caller, token common.Address, amount *num.Uint) (*num.Uint, error),
) {
	var req escrowRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	account, status, err := actingAccount(r, "account", req.Account)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	token, err := parseAddress("token", req.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	bal, err := op(r.Context(), account, token, amount)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, escrowResponse{Account: account, Token: token, Escrow: bal})
}

// GetBalances returns the ledger balances and escrows of an account.
// GET /api/balances/{account}
func (h *EscrowHandler) GetBalances(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress("account", pathParam(r, "account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	balances, err := h.svc.Balances(account)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	escrows := h.svc.Escrows(account)
	if balances == nil {
		balances = []domain.Balance{}
	}
	if escrows == nil {
		escrows = []domain.Balance{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account":  account,
		"balances": balances,
		"escrows":  escrows,
	})
}
