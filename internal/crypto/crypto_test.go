package crypto

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dexengine/internal/domain"
	"github.com/alanyoungcy/dexengine/internal/num"
)

// Well-known hardhat account #0.
const (
	testKey     = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func TestSignAndRecoverAdminAction(t *testing.T) {
	s, err := NewSigner("0x"+testKey, 31337)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(testAddress), s.Address())

	action := AdminAction{
		Action:   ActionCredit,
		Target:   common.HexToAddress("0x01"),
		Token:    common.HexToAddress("0x02"),
		Amount:   num.NewUint(500),
		Nonce:    7,
		Deadline: 1_900_000_000,
	}
	sig, err := s.SignAdminAction(action)
	require.NoError(t, err)
	assert.Len(t, sig, 2+130)

	signer, err := RecoverAdminSigner(31337, action, sig)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), signer)

	// Any changed field, or another chain, recovers a different address.
	tampered := action
	tampered.Amount = num.NewUint(501)
	other, err := RecoverAdminSigner(31337, tampered, sig)
	require.NoError(t, err)
	assert.NotEqual(t, s.Address(), other)

	other, err = RecoverAdminSigner(1, action, sig)
	require.NoError(t, err)
	assert.NotEqual(t, s.Address(), other)

	_, err = RecoverAdminSigner(31337, action, "0x1234")
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestNonceGuard(t *testing.T) {
	g := NewNonceGuard()
	owner := common.HexToAddress(testAddress)
	now := time.Unix(1_000, 0)

	require.NoError(t, g.Use(owner, 1, 2_000, now))
	err := g.Use(owner, 1, 2_000, now)
	assert.ErrorIs(t, err, ErrNonceReused)
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)

	err = g.Use(owner, 2, 999, now)
	assert.ErrorIs(t, err, ErrSignatureExpired)

	// Another signer has its own nonce space.
	assert.NoError(t, g.Use(common.HexToAddress("0x01"), 1, 2_000, now))

	// Once the first deadline passes the entry is pruned.
	later := time.Unix(2_001, 0)
	require.NoError(t, g.Use(owner, 3, 3_000, later))
	assert.NotContains(t, g.used[owner], uint64(1))
}

func TestHMACAuthVerify(t *testing.T) {
	h := &HMACAuth{Key: "key-1", Secret: "s3cret"}
	now := time.Unix(1_700_000_000, 0)
	headers := h.HeadersAt("POST", "/api/orders", `{"side":"buy"}`, now.Unix())

	assert.Equal(t, "key-1", headers[HeaderKey])
	assert.NoError(t, h.Verify("POST", "/api/orders", `{"side":"buy"}`,
		headers[HeaderTimestamp], headers[HeaderSignature], now, time.Minute))

	err := h.Verify("POST", "/api/orders", `{"side":"sell"}`,
		headers[HeaderTimestamp], headers[HeaderSignature], now, time.Minute)
	assert.ErrorIs(t, err, ErrBadRequestSignature)

	err = h.Verify("POST", "/api/orders", `{"side":"buy"}`,
		headers[HeaderTimestamp], headers[HeaderSignature], now.Add(2*time.Minute), time.Minute)
	assert.ErrorIs(t, err, ErrBadRequestSignature)

	assert.Equal(t, "HMACAuth{key=key-****, secret=s3cr****}", h.String())
}

func TestEncryptedKeyRoundTrip(t *testing.T) {
	blob, err := EncryptKey("0x"+testKey, "pw")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "owner.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	cfg := KeyConfig{EncryptedKeyPath: path, KeyPassword: "pw"}
	assert.True(t, cfg.Configured())
	s, err := LoadSigner(cfg, 1)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(testAddress), s.Address())

	_, err = DecryptKey(blob, "wrong")
	assert.Error(t, err)

	owner, err := KeyFileAddress(blob)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(testAddress), owner)

	_, err = LoadKey(KeyConfig{})
	assert.Error(t, err)
	assert.False(t, KeyConfig{}.Configured())
}

func TestEncryptedKeyBindsAddress(t *testing.T) {
	blob, err := EncryptKey(testKey, "pw")
	require.NoError(t, err)

	var f map[string]any
	require.NoError(t, json.Unmarshal(blob, &f))
	f["address"] = "0x00000000000000000000000000000000000000ff"
	tampered, err := json.Marshal(f)
	require.NoError(t, err)

	_, err = DecryptKey(tampered, "pw")
	assert.Error(t, err)

	_, err = EncryptKey("0x1234", "pw")
	assert.Error(t, err)
}
