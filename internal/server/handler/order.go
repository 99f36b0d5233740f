package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/dexengine/internal/domain"
	"github.com/alanyoungcy/dexengine/internal/num"
)

// OrderService defines the methods that the order handler requires from the
// service layer.
type OrderService interface {
	CreateOrder(ctx context.Context, maker, token common.Address, side domain.Side, deposit *num.Uint) (domain.Order, error)
	TakeOrder(ctx context.Context, taker common.Address, id uint64, amount *num.Uint) (domain.Fill, error)
	SettleOrders(ctx context.Context, caller, token common.Address, side domain.Side) ([]domain.Fill, error)
	ClearOrders(ctx context.Context) (int, error)
	ClearTokenOrders(ctx context.Context, token common.Address) (int, error)
	OrderRecord(ctx context.Context, id uint64) (domain.OrderRecord, error)
	OrdersByMaker(ctx context.Context, maker common.Address, opts domain.ListOpts) ([]domain.OrderRecord, error)
	ListOrders() []domain.Order
	ListTokenOrders(token common.Address) []domain.Order
	ViewOrderByToken(token common.Address, i int) (domain.Order, error)
}

// OrderHandler serves HTTP endpoints for the order book.
type OrderHandler struct {
	svc    OrderService
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler.
func NewOrderHandler(svc OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{svc: svc, logger: logHandler(logger, "order")}
}

type createOrderRequest struct {
	Maker string `json:"maker"`
	Token string `json:"token"`
	Side  string `json:"side"`
	// Deposit is in native units of the offered asset: base token for a
	// buy, the listed token for a sell.
	Deposit string `json:"deposit"`
}

type takeOrderRequest struct {
	Taker string `json:"taker"`
	// Amount is in native units of the asset the maker wants.
	Amount string `json:"amount"`
}

type settleRequest struct {
	Caller string `json:"caller"`
	Token  string `json:"token"`
	Side   string `json:"side"`
}

// CreateOrder books a new maker order.
// POST /api/orders
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	maker, status, err := actingAccount(r, "maker", req.Maker)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	token, err := parseAddress("token", req.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	side, err := domain.ParseSide(req.Side)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	deposit, err := parseAmount("deposit", req.Deposit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	o, err := h.svc.CreateOrder(r.Context(), maker, token, side, deposit)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	h.logger.InfoContext(r.Context(), "order created",
		slog.Uint64("order_id", o.ID),
		slog.String("side", string(o.Side)),
		slog.String("token", o.Token.Hex()),
	)
	writeJSON(w, http.StatusCreated, o)
}

// ListOrders returns the active book, or the order history of one maker when
// the maker query parameter is set.
// GET /api/orders?maker=0x...
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	if m := r.URL.Query().Get("maker"); m != "" {
		maker, err := parseAddress("maker", m)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		opts, err := parseListOpts(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		records, err := h.svc.OrdersByMaker(r.Context(), maker, opts)
		if err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}
		if records == nil {
			records = []domain.OrderRecord{}
		}
		writeJSON(w, http.StatusOK, records)
		return
	}

	orders := h.svc.ListOrders()
	if orders == nil {
		orders = []domain.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

// GetOrder returns a single order by id, including orders that have already
// left the book.
// GET /api/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := parseOrderID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := h.svc.OrderRecord(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// TakeOrder fills part or all of an order.
// POST /api/orders/{id}/take
func (h *OrderHandler) TakeOrder(w http.ResponseWriter, r *http.Request) {
	id, err := parseOrderID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req takeOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	taker, status, err := actingAccount(r, "taker", req.Taker)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	fill, err := h.svc.TakeOrder(r.Context(), taker, id, amount)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, fill)
}

// ListTokenOrders returns the active orders on one token in index order.
// GET /api/tokens/{token}/orders
func (h *OrderHandler) ListTokenOrders(w http.ResponseWriter, r *http.Request) {
	token, err := parseAddress("token", pathParam(r, "token"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	orders := h.svc.ListTokenOrders(token)
	if orders == nil {
		orders = []domain.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

// GetTokenOrder returns the order at a position in a token's book.
// GET /api/tokens/{token}/orders/{index}
func (h *OrderHandler) GetTokenOrder(w http.ResponseWriter, r *http.Request) {
	token, err := parseAddress("token", pathParam(r, "token"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	i, err := strconv.Atoi(pathParam(r, "index"))
	if err != nil || i < 0 {
		writeError(w, http.StatusBadRequest, "invalid order index")
		return
	}
	o, err := h.svc.ViewOrderByToken(token, i)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// SettleOrders fills one side of a token's book from the caller's escrow.
// POST /api/settlements
func (h *OrderHandler) SettleOrders(w http.ResponseWriter, r *http.Request) {
	var req settleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, status, err := actingAccount(r, "caller", req.Caller)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	token, err := parseAddress("token", req.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	side, err := domain.ParseSide(req.Side)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	fills, err := h.svc.SettleOrders(r.Context(), caller, token, side)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if fills == nil {
		fills = []domain.Fill{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"fills": fills})
}

// ClearOrders refunds and removes every expired order.
// POST /api/clearing
func (h *OrderHandler) ClearOrders(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.ClearOrders(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cleared": n})
}

// ClearTokenOrders refunds and removes the expired orders of one token.
// POST /api/clearing/{token}
func (h *OrderHandler) ClearTokenOrders(w http.ResponseWriter, r *http.Request) {
	token, err := parseAddress("token", pathParam(r, "token"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	n, err := h.svc.ClearTokenOrders(r.Context(), token)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cleared": n})
}

func parseOrderID(r *http.Request) (uint64, error) {
	raw := pathParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errInvalidParam("id", raw)
	}
	return id, nil
}
