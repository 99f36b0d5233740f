package oracle_test

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dexengine/internal/domain"
	"github.com/alanyoungcy/dexengine/internal/num"
	"github.com/alanyoungcy/dexengine/internal/oracle"
)

func TestSnapshotPrice(t *testing.T) {
	base := common.HexToAddress("0x01")
	tok := common.HexToAddress("0x02")
	s := oracle.New(map[common.Address]*num.Uint{base: num.One()})

	p, err := s.Price(base)
	require.NoError(t, err)
	assert.True(t, p.EQ(num.One()))

	_, err = s.Price(tok)
	assert.ErrorIs(t, err, domain.ErrOraclePriceUnset)

	now := time.Unix(1700000000, 0)
	s.Set(tok, num.NewUint(5), now)
	p, err = s.Price(tok)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), p.Uint64())
	assert.Equal(t, now, s.UpdatedAt())

	s.Set(tok, num.Zero(), now)
	_, err = s.Price(tok)
	assert.ErrorIs(t, err, domain.ErrOraclePriceUnset)
}

func TestSnapshotMergeKeepsOtherPrices(t *testing.T) {
	a := common.HexToAddress("0x0a")
	b := common.HexToAddress("0x0b")
	s := oracle.New(map[common.Address]*num.Uint{a: num.NewUint(1), b: num.NewUint(2)})

	n := s.Merge(map[common.Address]*num.Uint{b: num.NewUint(3), a: num.Zero()}, time.Now())
	assert.Equal(t, 1, n)

	prices := s.Prices()
	assert.Equal(t, uint64(1), prices[a].Uint64())
	assert.Equal(t, uint64(3), prices[b].Uint64())
}
