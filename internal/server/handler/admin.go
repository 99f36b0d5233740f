package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/dexengine/internal/crypto"
	"github.com/alanyoungcy/dexengine/internal/num"
)

// AdminService defines the owner operations. The caller is always the
// address recovered from the request signature.
type AdminService interface {
	AssignOracle(ctx context.Context, caller common.Address) error
	AssignOwner(ctx context.Context, caller, owner common.Address) error
	AssignFeeCollector(ctx context.Context, caller, collector common.Address) error
	RenounceOwnership(ctx context.Context, caller common.Address) error
	CreditAccount(ctx context.Context, caller, account, token common.Address, amount *num.Uint) error
}

// AdminHandler authenticates EIP-712 signed admin actions and forwards them
// to the service layer.
type AdminHandler struct {
	svc     AdminService
	chainID int64
	nonces  *crypto.NonceGuard
	now     func() time.Time
	logger  *slog.Logger
}

// NewAdminHandler creates an AdminHandler verifying signatures under chainID.
func NewAdminHandler(svc AdminService, chainID int64, nonces *crypto.NonceGuard, logger *slog.Logger) *AdminHandler {
	if nonces == nil {
		nonces = crypto.NewNonceGuard()
	}
	return &AdminHandler{
		svc:     svc,
		chainID: chainID,
		nonces:  nonces,
		now:     time.Now,
		logger:  logHandler(logger, "admin"),
	}
}

type adminRequest struct {
	Target    string `json:"target,omitempty"`
	Token     string `json:"token,omitempty"`
	Amount    string `json:"amount,omitempty"`
	Nonce     uint64 `json:"nonce"`
	Deadline  int64  `json:"deadline"`
	Signature string `json:"signature"`
}

// AssignOracle handles POST /api/admin/oracle.
func (h *AdminHandler) AssignOracle(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, crypto.ActionAssignOracle, func(ctx context.Context, caller common.Address, a crypto.AdminAction) error {
		return h.svc.AssignOracle(ctx, caller)
	})
}

// AssignOwner handles POST /api/admin/owner.
func (h *AdminHandler) AssignOwner(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, crypto.ActionAssignOwner, func(ctx context.Context, caller common.Address, a crypto.AdminAction) error {
		return h.svc.AssignOwner(ctx, caller, a.Target)
	})
}

// AssignFeeCollector handles POST /api/admin/fee-collector.
func (h *AdminHandler) AssignFeeCollector(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, crypto.ActionAssignFeeCollector, func(ctx context.Context, caller common.Address, a crypto.AdminAction) error {
		return h.svc.AssignFeeCollector(ctx, caller, a.Target)
	})
}

// Renounce handles POST /api/admin/renounce.
func (h *AdminHandler) Renounce(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, crypto.ActionRenounce, func(ctx context.Context, caller common.Address, a crypto.AdminAction) error {
		return h.svc.RenounceOwnership(ctx, caller)
	})
}

// Credit handles POST /api/admin/credit.
func (h *AdminHandler) Credit(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, crypto.ActionCredit, func(ctx context.Context, caller common.Address, a crypto.AdminAction) error {
		return h.svc.CreditAccount(ctx, caller, a.Target, a.Token, a.Amount)
	})
}

func (h *AdminHandler) handle(
	w http.ResponseWriter,
	r *http.Request,
	action string,
	op func(ctx context.Context, caller common.Address, a crypto.AdminAction) error,
) {
	var req adminRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	a, err := req.action(action)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	signer, err := crypto.RecoverAdminSigner(h.chainID, a, req.Signature)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if err := h.nonces.Use(signer, a.Nonce, a.Deadline, h.now()); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	if err := op(r.Context(), signer, a); err != nil {
		h.logger.WarnContext(r.Context(), "admin action rejected",
			slog.String("action", action),
			slog.String("signer", signer.Hex()),
			slog.String("error", err.Error()),
		)
		writeServiceError(w, r, h.logger, err)
		return
	}
	h.logger.InfoContext(r.Context(), "admin action applied",
		slog.String("action", action),
		slog.String("signer", signer.Hex()),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"action": action,
		"signer": signer,
	})
}

// action rebuilds the signed message. Omitted addresses stay zero and an
// omitted amount is left nil so it hashes as 0.
func (req adminRequest) action(action string) (crypto.AdminAction, error) {
	a := crypto.AdminAction{
		Action:   action,
		Nonce:    req.Nonce,
		Deadline: req.Deadline,
	}
	if req.Target != "" {
		target, err := parseAddress("target", req.Target)
		if err != nil {
			return a, err
		}
		a.Target = target
	}
	if req.Token != "" {
		token, err := parseAddress("token", req.Token)
		if err != nil {
			return a, err
		}
		a.Token = token
	}
	if req.Amount != "" {
		amount, err := parseAmount("amount", req.Amount)
		if err != nil {
			return a, err
		}
		a.Amount = amount
	}
	if action == crypto.ActionCredit && a.Amount == nil {
		return a, errInvalidParam("amount", "")
	}
	return a, nil
}
