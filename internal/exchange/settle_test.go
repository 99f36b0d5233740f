package exchange_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dexengine/internal/domain"
	"github.com/alanyoungcy/dexengine/internal/ledger"
	"github.com/alanyoungcy/dexengine/internal/num"
)

func TestSettleOrdersFillsInIndexOrder(t *testing.T) {
	f := newFixture(t)
	f.listed(t)
	f.fund(t, maker, baseTok, e18(10))
	f.fund(t, maker2, baseTok, e18(20))
	f.fund(t, maker2, tokX, e18(1))
	f.fund(t, taker, tokX, e18(8))

	first, err := f.eng.CreateBuyOrder(maker, tokX, e18(10))
	require.NoError(t, err)
	sell, err := f.eng.CreateSellOrder(maker2, tokX, e18(1))
	require.NoError(t, err)
	second, err := f.eng.CreateBuyOrder(maker2, tokX, e18(20))
	require.NoError(t, err)

	escrow, err := f.eng.Deposit(taker, tokX, e18(8))
	require.NoError(t, err)
	assert.True(t, escrow.EQ(e18(8)))

	fills, err := f.eng.SettleOrders(taker, tokX, domain.SideBuy)
	require.NoError(t, err)
	require.Len(t, fills, 2)

	assert.Equal(t, first.ID, fills[0].OrderID)
	assert.True(t, fills[0].Filled)
	assert.True(t, fills[0].ReleasedNative.EQ(e18(10)))

	assert.Equal(t, second.ID, fills[1].OrderID)
	assert.False(t, fills[1].Filled)
	assert.True(t, fills[1].TakenNative.EQ(e18(3)))
	assert.True(t, fills[1].ReleasedNative.EQ(e18(6)))

	assert.True(t, f.eng.Escrow(taker, tokX).IsZero())
	assert.True(t, f.balance(maker, tokX).EQ(e18(5)))
	assert.True(t, f.balance(maker2, tokX).EQ(e18(3)))
	assert.True(t, f.balance(taker, baseTok).EQ(e18(16)))

	_, err = f.eng.ViewOrder(first.ID)
	assert.ErrorIs(t, err, domain.ErrOrderDoesNotExist)
	rest, err := f.eng.ViewOrder(second.ID)
	require.NoError(t, err)
	assert.Equal(t, "7", num.Decimal(rest.Pending).String())
	assert.Equal(t, "14", num.Decimal(rest.Principal).String())

	untouched, err := f.eng.ViewOrder(sell.ID)
	require.NoError(t, err)
	assert.Equal(t, "2", num.Decimal(untouched.Pending).String())
}

func TestSettleOrdersSkipsOwnOrdersAndNeedsEscrow(t *testing.T) {
	f := newFixture(t)
	f.listed(t)
	f.fund(t, maker, baseTok, e18(10))
	f.fund(t, maker, tokX, e18(5))
	_, err := f.eng.CreateBuyOrder(maker, tokX, e18(10))
	require.NoError(t, err)

	_, err = f.eng.SettleOrders(maker, tokX, domain.SideBuy)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	_, err = f.eng.Deposit(maker, tokX, e18(5))
	require.NoError(t, err)
	fills, err := f.eng.SettleOrders(maker, tokX, domain.SideBuy)
	require.NoError(t, err)
	assert.Empty(t, fills)
	assert.True(t, f.eng.Escrow(maker, tokX).EQ(e18(5)))

	_, err = f.eng.SettleOrders(maker, baseTok, domain.SideBuy)
	assert.ErrorIs(t, err, domain.ErrBaseTokenNotTradable)
}

func TestSettleOrdersRollsBackOnLedgerFailure(t *testing.T) {
	fl := &failingLedger{Memory: ledger.NewMemory(), from: custody}
	f := newFixture(t, withLedger(fl))
	f.listed(t)
	f.fund(t, maker, baseTok, e18(10))
	f.fund(t, taker, tokX, e18(5))
	o, err := f.eng.CreateBuyOrder(maker, tokX, e18(10))
	require.NoError(t, err)
	_, err = f.eng.Deposit(taker, tokX, e18(5))
	require.NoError(t, err)

	fl.armed = true
	_, err = f.eng.SettleOrders(taker, tokX, domain.SideBuy)
	require.Error(t, err)

	assert.True(t, f.eng.Escrow(taker, tokX).EQ(e18(5)))
	got, err := f.eng.ViewOrder(o.ID)
	require.NoError(t, err)
	assert.Equal(t, "5", num.Decimal(got.Pending).String())
	assert.True(t, f.balance(maker, tokX).IsZero())
}

func TestDepositWithdraw(t *testing.T) {
	f := newFixture(t)
	f.listed(t)
	f.fund(t, taker, tokX, e18(8))

	_, err := f.eng.Deposit(taker, tokX, num.Zero())
	assert.ErrorIs(t, err, domain.ErrZeroAmount)
	_, err = f.eng.Deposit(taker, tokY, e18(1))
	assert.ErrorIs(t, err, domain.ErrTokenNotListed)
	_, err = f.eng.Deposit(taker, tokX, e18(9))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	_, err = f.eng.Deposit(taker, tokX, e18(8))
	require.NoError(t, err)
	left, err := f.eng.Withdraw(taker, tokX, e18(3))
	require.NoError(t, err)
	assert.True(t, left.EQ(e18(5)))
	assert.True(t, f.balance(taker, tokX).EQ(e18(3)))

	_, err = f.eng.Withdraw(taker, tokX, e18(6))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	escrows := f.eng.Escrows(taker)
	require.Len(t, escrows, 1)
	assert.Equal(t, tokX, escrows[0].Token)
}
