package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dexengine/internal/config"
	"github.com/alanyoungcy/dexengine/internal/domain"
	"github.com/alanyoungcy/dexengine/internal/num"
)

var (
	owner   = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	custody = common.HexToAddress("0x0000000000000000000000000000000000000a02")
	maker   = common.HexToAddress("0x0000000000000000000000000000000000000b01")
	baseTok = common.HexToAddress("0x0000000000000000000000000000000000000c01")
)

func standaloneConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Engine.Custody = custody.Hex()
	cfg.Engine.Owner = owner.Hex()
	cfg.Pebble.Dir = t.TempDir()
	cfg.Server.Enabled = false
	cfg.Oracle.Prices = map[string]string{baseTok.Hex(): "2"}
	require.NoError(t, cfg.Validate())
	return &cfg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWireStandalone(t *testing.T) {
	cfg := standaloneConfig(t)
	deps, cleanup, err := Wire(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	defer cleanup()

	assert.NotNil(t, deps.Snapshots)
	assert.NotNil(t, deps.Events)
	assert.NotNil(t, deps.SignalBus)
	assert.Nil(t, deps.History)
	assert.Nil(t, deps.Locks)
	assert.Nil(t, deps.Notifier, "no senders configured")
	assert.Len(t, deps.Publishers, 1)
	assert.Empty(t, deps.HealthChecks)
}

func TestStandaloneRestoresAfterRestart(t *testing.T) {
	ctx := context.Background()
	cfg := standaloneConfig(t)
	a := New(cfg, quietLogger())

	deps, cleanup, err := Wire(ctx, cfg, quietLogger())
	require.NoError(t, err)
	svc, _, err := a.buildExchange(ctx, deps)
	require.NoError(t, err)

	require.NoError(t, svc.AssignOracle(ctx, owner))
	_, err = svc.ListToken(ctx, owner, baseTok, 18, domain.OracleSource())
	require.NoError(t, err)
	require.NoError(t, svc.CreditAccount(ctx, owner, maker, baseTok, num.NewUint(500)))
	cleanup()

	deps, cleanup, err = Wire(ctx, cfg, quietLogger())
	require.NoError(t, err)
	defer cleanup()
	svc, _, err = a.buildExchange(ctx, deps)
	require.NoError(t, err)

	assert.Len(t, svc.Listings(), 1)
	assert.True(t, svc.Engine().HasOracle())
	bals, err := svc.Balances(maker)
	require.NoError(t, err)
	require.Len(t, bals, 1)
	assert.Equal(t, "500", bals[0].Amount.String())

	events, err := svc.Events(ctx, domain.ListOpts{})
	require.NoError(t, err)
	assert.NotEmpty(t, events)
}

func TestEngineConfigRejectsBadFee(t *testing.T) {
	cfg := standaloneConfig(t)
	cfg.Engine.BaseListingFee = "ten"
	_, err := New(cfg, quietLogger()).engineConfig()
	assert.Error(t, err)
}

func TestStandaloneModeStopsOnCancel(t *testing.T) {
	cfg := standaloneConfig(t)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	a := New(cfg, quietLogger())
	defer a.Close()
	assert.NoError(t, a.Run(ctx))
}
