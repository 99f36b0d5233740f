package domain

import "errors"

// Listing preconditions.
var (
	ErrAlreadyListed        = errors.New("token already listed")
	ErrBaseTokenRequired    = errors.New("base token must be listed first")
	ErrTokenNotListed       = errors.New("token not listed")
	ErrBaseTokenNotTradable = errors.New("base token cannot be traded against itself")
	ErrInvalidPriceSource   = errors.New("invalid price source")
	ErrInvalidDecimals      = errors.New("decimals must be between 0 and 18")
)

// Funds and request parameters.
var (
	ErrInsufficientBalance      = errors.New("insufficient balance")
	ErrInsufficientAllowance    = errors.New("insufficient allowance")
	ErrZeroAmount               = errors.New("amount must be greater than zero")
	ErrDuplicateTransferAddress = errors.New("transfer source and destination are the same")
	ErrExceedsPending           = errors.New("amount exceeds order pending")
	ErrAmountOverflow           = errors.New("amount out of range")
	ErrZeroAddress              = errors.New("address must not be zero")
)

// Orders and pricing.
var (
	ErrOrderDoesNotExist = errors.New("order does not exist")
	ErrOraclePriceUnset  = errors.New("price source unavailable")
)

// Authorization.
var (
	ErrUnauthorized       = errors.New("caller is not the owner")
	ErrOwnershipRenounced = errors.New("ownership has been renounced")
	ErrDependenciesUnset  = errors.New("price oracle and fee collector must be assigned first")
	ErrInvalidSignature   = errors.New("invalid signature")
	ErrAccountMismatch    = errors.New("api key may not act for this account")
)

// Infrastructure.
var (
	ErrNotFound    = errors.New("not found")
	ErrLockHeld    = errors.New("lock already held")
	ErrRateLimited = errors.New("rate limited")
)
