package exchange_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dexengine/internal/domain"
	"github.com/alanyoungcy/dexengine/internal/exchange"
	"github.com/alanyoungcy/dexengine/internal/ledger"
	"github.com/alanyoungcy/dexengine/internal/num"
	"github.com/alanyoungcy/dexengine/internal/oracle"
)

func TestNewValidatesConfig(t *testing.T) {
	_, err := exchange.New(exchange.Config{}, ledger.NewMemory())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "custody")
	assert.Contains(t, err.Error(), "denominator")

	cfg := exchange.DefaultConfig()
	cfg.Custody = custody
	_, err = exchange.New(cfg, nil)
	assert.Error(t, err)
}

func TestOwnerOperations(t *testing.T) {
	f := newFixture(t)

	assert.ErrorIs(t, f.eng.AssignFeeCollector(maker, collector), domain.ErrUnauthorized)
	assert.ErrorIs(t, f.eng.AssignOwner(owner, common.Address{}), domain.ErrZeroAddress)
	assert.ErrorIs(t, f.eng.CreditAccount(owner, maker, baseTok, num.Zero()), domain.ErrZeroAmount)

	require.NoError(t, f.eng.CreditAccount(owner, maker, baseTok, e18(3)))
	assert.True(t, f.balance(maker, baseTok).EQ(e18(3)))

	require.NoError(t, f.eng.AssignOwner(owner, maker))
	assert.Equal(t, maker, f.eng.Auth().Owner)
	assert.ErrorIs(t, f.eng.AssignPriceDAO(owner, f.oracle), domain.ErrUnauthorized)

	// The oracle is set but the fee collector is not.
	assert.ErrorIs(t, f.eng.RenounceOwnership(maker), domain.ErrDependenciesUnset)

	require.NoError(t, f.eng.AssignFeeCollector(maker, collector))
	require.NoError(t, f.eng.AssignPriceDAO(maker, oracle.New(nil)))
	require.NoError(t, f.eng.RenounceOwnership(maker))

	auth := f.eng.Auth()
	assert.True(t, auth.Renounced)
	assert.ErrorIs(t, f.eng.AssignOwner(maker, owner), domain.ErrOwnershipRenounced)
	assert.ErrorIs(t, f.eng.CreditAccount(maker, maker, baseTok, e18(1)), domain.ErrOwnershipRenounced)
	assert.Equal(t, collector, f.eng.FeeCollector())
}

func TestRenounceRequiresOracle(t *testing.T) {
	cfg := exchange.DefaultConfig()
	cfg.Custody = custody
	cfg.Owner = owner
	eng, err := exchange.New(cfg, ledger.NewMemory())
	require.NoError(t, err)
	require.NoError(t, eng.AssignFeeCollector(owner, collector))
	assert.ErrorIs(t, eng.RenounceOwnership(owner), domain.ErrDependenciesUnset)
	assert.False(t, eng.HasOracle())
}

func TestStateRestoreRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.listed(t)
	require.NoError(t, f.eng.AssignFeeCollector(owner, collector))
	f.fund(t, maker, baseTok, e18(30))
	f.fund(t, taker, tokX, e18(5))
	a, err := f.eng.CreateBuyOrder(maker, tokX, e18(10))
	require.NoError(t, err)
	_, err = f.eng.CreateBuyOrder(maker, tokX, e18(20))
	require.NoError(t, err)
	_, err = f.eng.Deposit(taker, tokX, e18(4))
	require.NoError(t, err)
	_, err = f.eng.TakeBuyOrder(taker, a.ID, e18(1))
	require.NoError(t, err)
	f.eng.DrainEvents()

	st := f.eng.State()
	assert.Equal(t, uint64(3), st.NextOrderID)
	assert.Len(t, st.Listings, 2)
	assert.Len(t, st.Orders, 2)
	assert.Len(t, st.Escrow, 1)

	cfg := exchange.DefaultConfig()
	cfg.Custody = custody
	restored, err := exchange.New(cfg, f.ledger, exchange.WithOracle(f.oracle))
	require.NoError(t, err)
	require.NoError(t, restored.Restore(st))
	assert.Equal(t, st, restored.State())

	// A single wei at price 2 asks for less than one wei of tokX.
	_, err = restored.CreateBuyOrder(maker, tokX, num.NewUint(1))
	assert.ErrorIs(t, err, domain.ErrZeroAmount)

	f.fund(t, maker, baseTok, e18(2))
	o, err := restored.CreateBuyOrder(maker, tokX, e18(2))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), o.ID)
	evs := restored.DrainEvents()
	require.Len(t, evs, 1)
	assert.Equal(t, st.LastSeq+1, evs[0].Seq)
	assert.Equal(t, collector, restored.FeeCollector())
}

func TestRestoreRejectsInconsistentState(t *testing.T) {
	f := newFixture(t)
	f.listed(t)
	f.fund(t, maker, baseTok, e18(10))
	_, err := f.eng.CreateBuyOrder(maker, tokX, e18(10))
	require.NoError(t, err)
	st := f.eng.State()

	bad := st
	bad.Listings = st.Listings[1:]
	assert.Error(t, f.eng.Restore(bad))

	bad = st
	bad.NextOrderID = 1
	assert.Error(t, f.eng.Restore(bad))

	// A failed restore leaves the engine as it was.
	assert.Equal(t, 1, f.eng.OrderCount())
}

func TestCheckpointPairsEngineAndLedger(t *testing.T) {
	f := newFixture(t)
	f.listed(t)
	f.fund(t, maker, baseTok, e18(10))
	_, err := f.eng.CreateBuyOrder(maker, tokX, e18(10))
	require.NoError(t, err)

	st, ls := f.eng.Checkpoint(f.mem)
	assert.Equal(t, f.eng.LastSeq(), st.LastSeq)
	assert.Len(t, st.Orders, 1)

	var custodyBase string
	for _, b := range ls.Balances {
		if b.Account == custody && b.Token == baseTok {
			custodyBase = b.Amount.String()
		}
	}
	// The deposit plus the tokX listing fee, paid to custody without a collector.
	assert.Equal(t, num.Zero().Add(e18(10), num.NewUint(1000)).String(), custodyBase)
}
