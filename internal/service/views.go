package service

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/dexengine/internal/domain"
	"github.com/alanyoungcy/dexengine/internal/num"
)

// Status summarises the engine for health and status endpoints.
type Status struct {
	LastSeq      uint64         `json:"last_seq"`
	Listings     int            `json:"listings"`
	Orders       int            `json:"orders"`
	NextFee      *num.Uint      `json:"next_listing_fee"`
	Owner        common.Address `json:"owner"`
	Renounced    bool           `json:"renounced"`
	FeeCollector common.Address `json:"fee_collector"`
	OracleSet    bool           `json:"oracle_set"`
	Custody      common.Address `json:"custody"`
}

// Status returns the current engine summary.
func (s *ExchangeService) Status() Status {
	auth := s.engine.Auth()
	return Status{
		LastSeq:      s.engine.LastSeq(),
		Listings:     len(s.engine.Listings()),
		Orders:       s.engine.OrderCount(),
		NextFee:      s.engine.NextListingFee(),
		Owner:        auth.Owner,
		Renounced:    auth.Renounced,
		FeeCollector: s.engine.FeeCollector(),
		OracleSet:    s.engine.HasOracle(),
		Custody:      s.engine.Custody(),
	}
}

func (s *ExchangeService) Listings() []domain.Listing { return s.engine.Listings() }

func (s *ExchangeService) Listing(token common.Address) (domain.Listing, error) {
	return s.engine.Listing(token)
}

func (s *ExchangeService) NextListingFee() *num.Uint { return s.engine.NextListingFee() }

func (s *ExchangeService) PriceOf(token common.Address) (*num.Uint, error) {
	return s.engine.PriceOf(token)
}

func (s *ExchangeService) RelativePrice(token common.Address) (*num.Uint, error) {
	return s.engine.RelativePrice(token)
}

func (s *ExchangeService) ListOrders() []domain.Order { return s.engine.ListOrders() }

func (s *ExchangeService) ListTokenOrders(token common.Address) []domain.Order {
	return s.engine.ListTokenOrders(token)
}

func (s *ExchangeService) ViewOrderByToken(token common.Address, i int) (domain.Order, error) {
	return s.engine.ViewOrderByToken(token, i)
}

func (s *ExchangeService) Escrows(account common.Address) []domain.Balance {
	return s.engine.Escrows(account)
}
