package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/dexengine/internal/domain"
	"github.com/alanyoungcy/dexengine/internal/num"
	"github.com/alanyoungcy/dexengine/internal/server/middleware"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps an engine or service error onto an HTTP status.
// Unexpected errors are logged and hidden from the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrOwnershipRenounced),
		errors.Is(err, domain.ErrAccountMismatch):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrOrderDoesNotExist),
		errors.Is(err, domain.ErrTokenNotListed),
		errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyListed), errors.Is(err, domain.ErrDependenciesUnset):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrInsufficientAllowance),
		errors.Is(err, domain.ErrExceedsPending),
		errors.Is(err, domain.ErrZeroAmount),
		errors.Is(err, domain.ErrZeroAddress),
		errors.Is(err, domain.ErrAmountOverflow),
		errors.Is(err, domain.ErrDuplicateTransferAddress),
		errors.Is(err, domain.ErrBaseTokenRequired),
		errors.Is(err, domain.ErrBaseTokenNotTradable),
		errors.Is(err, domain.ErrInvalidPriceSource),
		errors.Is(err, domain.ErrInvalidDecimals),
		errors.Is(err, domain.ErrOraclePriceUnset):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a JSON body into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// parseListOpts extracts pagination and range parameters from the query
// string. Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) (domain.ListOpts, error) {
	q := r.URL.Query()

	opts := domain.ListOpts{Limit: 50}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.Limit = n
		}
	}
	if opts.Limit > 500 {
		opts.Limit = 500
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			opts.Offset = n
		}
	}
	if v := q.Get("after_seq"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return opts, fmt.Errorf("invalid after_seq %q", v)
		}
		opts.AfterSeq = n
	}
	if v := q.Get("actor"); v != "" {
		actor, err := parseAddress("actor", v)
		if err != nil {
			return opts, err
		}
		opts.Actor = actor.Hex()
	}
	for name, dst := range map[string]**time.Time{"since": &opts.Since, "until": &opts.Until} {
		if v := q.Get(name); v != "" {
			ts, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return opts, fmt.Errorf("invalid %s %q: want RFC 3339", name, v)
			}
			*dst = &ts
		}
	}
	return opts, nil
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// parseAddress parses a 0x-prefixed hex address.
func parseAddress(field, s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid %s address %q", field, s)
	}
	return common.HexToAddress(s), nil
}

// actingAccount parses the account a request acts for. A request signed with
// an account-bound key may omit it and may not name another account.
func actingAccount(r *http.Request, field, value string) (common.Address, int, error) {
	bound, ok := middleware.BoundAccount(r.Context())
	if ok && strings.TrimSpace(value) == "" {
		return bound, http.StatusOK, nil
	}
	account, err := parseAddress(field, value)
	if err != nil {
		return common.Address{}, http.StatusBadRequest, err
	}
	if ok && account != bound {
		return common.Address{}, http.StatusForbidden,
			fmt.Errorf("%s %s: %w", field, account.Hex(), domain.ErrAccountMismatch)
	}
	return account, http.StatusOK, nil
}

// parseAmount parses a base 10 integer amount in native token units.
func parseAmount(field, s string) (*num.Uint, error) {
	v, err := num.UintFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: want a base 10 integer", field, s)
	}
	return v, nil
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}

func errInvalidParam(name, value string) error {
	return fmt.Errorf("invalid %s %q", name, value)
}
