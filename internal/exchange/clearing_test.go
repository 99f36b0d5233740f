package exchange_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dexengine/internal/domain"
	"github.com/alanyoungcy/dexengine/internal/exchange"
)

func TestClearOrdersRefundsExpiredAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.listed(t)
	f.fund(t, maker, baseTok, e18(30))
	f.fund(t, taker, tokX, e18(1))

	old, err := f.eng.CreateBuyOrder(maker, tokX, e18(10))
	require.NoError(t, err)
	_, err = f.eng.TakeBuyOrder(taker, old.ID, e18(1))
	require.NoError(t, err)

	f.advance(3 * 24 * time.Hour)
	fresh, err := f.eng.CreateBuyOrder(maker, tokX, e18(20))
	require.NoError(t, err)

	f.advance(exchange.DefaultOrderTTL - 3*24*time.Hour - time.Second)
	n, err := f.eng.ClearOrders()
	require.NoError(t, err)
	assert.Zero(t, n)

	f.advance(time.Second)
	n, err = f.eng.ClearOrders()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	// 10 deposited, 2 released to the taker, 8 refunded.
	assert.True(t, f.balance(maker, baseTok).EQ(e18(8)))

	n, err = f.eng.ClearOrders()
	require.NoError(t, err)
	assert.Zero(t, n)

	orders := f.eng.ListOrders()
	require.Len(t, orders, 1)
	assert.Equal(t, fresh.ID, orders[0].ID)

	var expired int
	for _, ev := range f.eng.DrainEvents() {
		if ev.Type == domain.EventOrderExpired {
			expired++
			assert.Equal(t, old.ID, ev.OrderID)
			assert.True(t, ev.Amount.EQ(e18(8)))
		}
	}
	assert.Equal(t, 1, expired)
}

func TestClearTokenOrdersLeavesOtherTokensAlone(t *testing.T) {
	f := newFixture(t)
	f.listed(t)
	_, err := f.eng.ListToken(owner, tokZ, 18, domain.OracleSource())
	require.NoError(t, err)
	f.fund(t, maker, baseTok, e18(40))

	x1, err := f.eng.CreateBuyOrder(maker, tokX, e18(10))
	require.NoError(t, err)
	_, err = f.eng.CreateBuyOrder(maker, tokZ, e18(10))
	require.NoError(t, err)
	x2, err := f.eng.CreateBuyOrder(maker, tokX, e18(10))
	require.NoError(t, err)
	_, err = f.eng.CreateBuyOrder(maker, tokZ, e18(10))
	require.NoError(t, err)

	f.advance(exchange.DefaultOrderTTL)
	n, err := f.eng.ClearTokenOrders(tokZ)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, f.eng.ListTokenOrders(tokZ))

	xs := f.eng.ListTokenOrders(tokX)
	require.Len(t, xs, 2)
	assert.Equal(t, x1.ID, xs[0].ID)
	assert.Equal(t, x2.ID, xs[1].ID)
	at1, err := f.eng.ViewOrderByToken(tokX, 1)
	require.NoError(t, err)
	assert.Equal(t, x2.ID, at1.ID)

	_, err = f.eng.ClearTokenOrders(tokY)
	assert.ErrorIs(t, err, domain.ErrTokenNotListed)
}
