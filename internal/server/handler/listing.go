package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/dexengine/internal/domain"
	"github.com/alanyoungcy/dexengine/internal/num"
)

// ListingService defines the methods the listing handler requires.
type ListingService interface {
	ListToken(ctx context.Context, caller, token common.Address, decimals uint8, source domain.PriceSource) (domain.Listing, error)
	Listings() []domain.Listing
	Listing(token common.Address) (domain.Listing, error)
	NextListingFee() *num.Uint
	PriceOf(token common.Address) (*num.Uint, error)
	RelativePrice(token common.Address) (*num.Uint, error)
}

// ListingHandler serves the token registry.
type ListingHandler struct {
	listings ListingService
	logger   *slog.Logger
}

// NewListingHandler creates a ListingHandler.
func NewListingHandler(listings ListingService, logger *slog.Logger) *ListingHandler {
	return &ListingHandler{listings: listings, logger: logHandler(logger, "listing")}
}

type listTokenRequest struct {
	Account  string `json:"account"`
	Token    string `json:"token"`
	Decimals uint8  `json:"decimals"`
	// Source is "oracle", "parity" or "fixed".
	Source        string `json:"source"`
	ParityAccount string `json:"parity_account,omitempty"`
	// Price is the fixed price as a decimal string, e.g. "2.5".
	Price string `json:"price,omitempty"`
}

type listingsResponse struct {
	Listings       []domain.Listing `json:"listings"`
	NextListingFee *num.Uint        `json:"next_listing_fee"`
}

// ListListings returns every listing in index order.
// GET /api/listings
func (h *ListingHandler) ListListings(w http.ResponseWriter, r *http.Request) {
	listings := h.listings.Listings()
	if listings == nil {
		listings = []domain.Listing{}
	}
	writeJSON(w, http.StatusOK, listingsResponse{
		Listings:       listings,
		NextListingFee: h.listings.NextListingFee(),
	})
}

// GetListing returns one listing.
// GET /api/listings/{token}
func (h *ListingHandler) GetListing(w http.ResponseWriter, r *http.Request) {
	token, err := parseAddress("token", pathParam(r, "token"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	l, err := h.listings.Listing(token)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// GetPrice returns the token's price and its price relative to the base
// token, both 18-decimal fixed point.
// GET /api/listings/{token}/price
func (h *ListingHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	token, err := parseAddress("token", pathParam(r, "token"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	price, err := h.listings.PriceOf(token)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	resp := map[string]any{
		"token":         token,
		"price":         price,
		"price_decimal": num.Decimal(price).String(),
	}
	// The base token has no relative price.
	if rel, err := h.listings.RelativePrice(token); err == nil {
		resp["relative_price"] = rel
		resp["relative_price_decimal"] = num.Decimal(rel).String()
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListToken registers a token. The first listing becomes the base token.
// POST /api/listings
func (h *ListingHandler) ListToken(w http.ResponseWriter, r *http.Request) {
	var req listTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, status, err := actingAccount(r, "account", req.Account)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	token, err := parseAddress("token", req.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	source, err := parseSource(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	l, err := h.listings.ListToken(r.Context(), caller, token, req.Decimals, source)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

func parseSource(req listTokenRequest) (domain.PriceSource, error) {
	switch domain.PriceSourceKind(strings.ToLower(strings.TrimSpace(req.Source))) {
	case domain.PriceSourceOracle, "":
		return domain.OracleSource(), nil
	case domain.PriceSourceParity:
		acct, err := parseAddress("parity_account", req.ParityAccount)
		if err != nil {
			return domain.PriceSource{}, err
		}
		return domain.ParitySource(acct), nil
	case domain.PriceSourceFixed:
		v, err := num.ParseFixed(req.Price)
		if err != nil {
			return domain.PriceSource{}, err
		}
		return domain.FixedSource(v), nil
	default:
		return domain.PriceSource{}, domain.ErrInvalidPriceSource
	}
}
