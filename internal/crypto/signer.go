package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/dexengine/internal/domain"
	"github.com/alanyoungcy/dexengine/internal/num"
)

// Admin actions accepted by the owner endpoints.
const (
	ActionAssignOracle       = "assign_oracle"
	ActionAssignOwner        = "assign_owner"
	ActionAssignFeeCollector = "assign_fee_collector"
	ActionRenounce           = "renounce"
	ActionCredit             = "credit"
)

const (
	domainName    = "DexEngine"
	domainVersion = "1"
)

var (
	// EIP712Domain(string name,string version,uint256 chainId)
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId)"),
	)

	adminActionTypeHash = ethcrypto.Keccak256(
		[]byte("AdminAction(string action,address target,address token,uint256 amount,uint256 nonce,uint256 deadline)"),
	)
)

// AdminAction is the EIP-712 message an owner signs to authorize a
// privileged call. Target is the oracle, new owner, fee collector or
// credited account depending on Action; Token and Amount are only used by
// credits.
type AdminAction struct {
	Action   string         `json:"action"`
	Target   common.Address `json:"target"`
	Token    common.Address `json:"token"`
	Amount   *num.Uint      `json:"amount,omitempty"`
	Nonce    uint64         `json:"nonce"`
	Deadline int64          `json:"deadline"`
}

// Digest returns the EIP-712 digest of a under chainID.
func (a AdminAction) Digest(chainID int64) []byte {
	amount := new(big.Int)
	if a.Amount != nil {
		amount = a.Amount.BigInt()
	}
	structHash := ethcrypto.Keccak256(
		concatBytes(
			adminActionTypeHash,
			ethcrypto.Keccak256([]byte(a.Action)),
			common.LeftPadBytes(a.Target.Bytes(), 32),
			common.LeftPadBytes(a.Token.Bytes(), 32),
			bigIntTo32Bytes(amount),
			bigIntTo32Bytes(new(big.Int).SetUint64(a.Nonce)),
			bigIntTo32Bytes(big.NewInt(a.Deadline)),
		),
	)
	return eip712Hash(domainSeparator(chainID), structHash)
}

// Signer signs admin actions with a secp256k1 key.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    int64
}

// NewSigner creates a Signer from a hex-encoded private key.
func NewSigner(privateKeyHex string, chainID int64) (*Signer, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		chainID:    chainID,
	}, nil
}

// Address returns the Ethereum address derived from the signer's private key.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignAdminAction returns the hex-encoded 65-byte signature of a, with v in
// {27,28}.
func (s *Signer) SignAdminAction(a AdminAction) (string, error) {
	sig, err := ethcrypto.Sign(a.Digest(s.chainID), s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing: %w", err)
	}
	// go-ethereum returns v in {0,1}; EIP-712 expects v in {27,28}.
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig), nil
}

// RecoverAdminSigner returns the address that produced sigHex over a.
func RecoverAdminSigner(chainID int64, a AdminAction, sigHex string) (common.Address, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil || len(sig) != 65 {
		return common.Address{}, fmt.Errorf("crypto/signer: malformed signature: %w", domain.ErrInvalidSignature)
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(a.Digest(chainID), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/signer: recover: %v: %w", err, domain.ErrInvalidSignature)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// domainSeparator returns keccak256(abi.encode(typeHash, nameHash, versionHash, chainId)).
func domainSeparator(chainID int64) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			eip712DomainTypeHash,
			ethcrypto.Keccak256([]byte(domainName)),
			ethcrypto.Keccak256([]byte(domainVersion)),
			bigIntTo32Bytes(big.NewInt(chainID)),
		),
	)
}

// eip712Hash computes the final EIP-712 digest:
//
//	keccak256("\x19\x01" || domainSeparator || structHash)
func eip712Hash(domainSep, structHash []byte) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			[]byte{0x19, 0x01},
			domainSep,
			structHash,
		),
	)
}

// bigIntTo32Bytes returns a 32-byte big-endian representation of n.
func bigIntTo32Bytes(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= 32 {
		return b[len(b)-32:]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

// concatBytes concatenates multiple byte slices into one.
func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
