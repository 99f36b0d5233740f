package exchange_test

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dexengine/internal/domain"
	"github.com/alanyoungcy/dexengine/internal/exchange"
	"github.com/alanyoungcy/dexengine/internal/ledger"
	"github.com/alanyoungcy/dexengine/internal/num"
	"github.com/alanyoungcy/dexengine/internal/oracle"
)

var (
	owner     = common.HexToAddress("0x00000000000000000000000000000000000000e0")
	custody   = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	collector = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	maker     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	maker2    = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	taker     = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	parity    = common.HexToAddress("0x00000000000000000000000000000000000000d1")

	baseTok = common.HexToAddress("0x0000000000000000000000000000000000000b05")
	tokX    = common.HexToAddress("0x0000000000000000000000000000000000000001")
	tokY    = common.HexToAddress("0x0000000000000000000000000000000000000002")
	tokZ    = common.HexToAddress("0x0000000000000000000000000000000000000003")
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// e18 returns n whole units of an 18-decimal token.
func e18(n uint64) *num.Uint {
	return num.Zero().Mul(num.NewUint(n), num.One())
}

// units returns n whole tokens in native units of a token with decimals.
func units(n uint64, decimals uint8) *num.Uint {
	out, err := num.ToFixed(num.NewUint(n), num.Decimals-decimals)
	if err != nil {
		panic(err)
	}
	return out
}

type fixture struct {
	eng    *exchange.Engine
	ledger domain.BalanceLedger
	mem    *ledger.Memory
	oracle *oracle.Snapshot
	now    time.Time
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *fixture) balance(account, token common.Address) *num.Uint {
	return f.ledger.BalanceOf(account, token)
}

type fixtureOpt func(*exchange.Config, *fixtureDeps)

type fixtureDeps struct {
	ledger domain.BalanceLedger
}

func withConfig(mod func(*exchange.Config)) fixtureOpt {
	return func(c *exchange.Config, _ *fixtureDeps) { mod(c) }
}

func withLedger(l domain.BalanceLedger) fixtureOpt {
	return func(_ *exchange.Config, d *fixtureDeps) { d.ledger = l }
}

// newFixture builds an engine whose oracle prices the base token at 2 and
// every other token at 1, so oracle listings trade at a relative price of 2.
func newFixture(t *testing.T, opts ...fixtureOpt) *fixture {
	t.Helper()
	cfg := exchange.DefaultConfig()
	cfg.Custody = custody
	cfg.Owner = owner
	deps := fixtureDeps{}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}
	f := &fixture{now: t0}
	if deps.ledger == nil {
		f.mem = ledger.NewMemory()
		deps.ledger = f.mem
	}
	f.ledger = deps.ledger
	f.oracle = oracle.New(map[common.Address]*num.Uint{
		baseTok: e18(2),
		tokX:    e18(1),
		tokZ:    e18(1),
	})
	eng, err := exchange.New(cfg, f.ledger,
		exchange.WithOracle(f.oracle),
		exchange.WithClock(func() time.Time { return f.now }),
	)
	require.NoError(t, err)
	f.eng = eng
	return f
}

// listed lists the base token and tokX with the oracle source, paying the
// fee from owner.
func (f *fixture) listed(t *testing.T) {
	t.Helper()
	_, err := f.eng.ListToken(owner, baseTok, 18, domain.OracleSource())
	require.NoError(t, err)
	f.fund(t, owner, baseTok, num.NewUint(1_000_000))
	_, err = f.eng.ListToken(owner, tokX, 18, domain.OracleSource())
	require.NoError(t, err)
}

func (f *fixture) fund(t *testing.T, account, token common.Address, amount *num.Uint) {
	t.Helper()
	require.NoError(t, f.ledger.Credit(account, token, amount))
}

// failingLedger fails every transfer out of from once armed.
type failingLedger struct {
	*ledger.Memory
	from  common.Address
	armed bool
}

func (l *failingLedger) Transfer(from, to, token common.Address, amount *num.Uint) error {
	if l.armed && from == l.from {
		return errors.New("ledger unavailable")
	}
	return l.Memory.Transfer(from, to, token, amount)
}
