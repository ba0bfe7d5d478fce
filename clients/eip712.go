package clients

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	x402types "github.com/vitwit/x402-facilitator/types"
)

// EIP-712 hashing for TransferWithAuthorization (EIP-3009). The domain is
// bound to the token contract and chain id; name and version default to the
// USDC deployment values unless the requirements override them.

const (
	defaultDomainName    = "USD Coin"
	defaultDomainVersion = "2"
)

var (
	eip712DomainTypeHash = crypto.Keccak256([]byte(
		"EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	transferWithAuthorizationTypeHash = crypto.Keccak256([]byte(
		"TransferWithAuthorization(address from,address to,uint256 value,uint256 validAfter,uint256 validBefore,bytes32 nonce)"))
)

// authorizationDigest computes the EIP-712 digest the payer signed.
func authorizationDigest(
	auth x402types.ExactEvmAuthorization,
	chainID *big.Int,
	verifyingContract string,
	domainName, domainVersion string,
) ([]byte, error) {
	value, ok := new(big.Int).SetString(auth.Value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid authorization value %q", auth.Value)
	}
	validAfter, ok := new(big.Int).SetString(auth.ValidAfter, 10)
	if !ok {
		return nil, fmt.Errorf("invalid validAfter %q", auth.ValidAfter)
	}
	validBefore, ok := new(big.Int).SetString(auth.ValidBefore, 10)
	if !ok {
		return nil, fmt.Errorf("invalid validBefore %q", auth.ValidBefore)
	}
	nonce, err := hexToBytes32(auth.Nonce)
	if err != nil {
		return nil, fmt.Errorf("invalid nonce: %w", err)
	}

	domainSeparator := crypto.Keccak256(
		eip712DomainTypeHash,
		crypto.Keccak256([]byte(domainName)),
		crypto.Keccak256([]byte(domainVersion)),
		leftPadBig(chainID, 32),
		leftPadAddress(verifyingContract),
	)

	structHash := crypto.Keccak256(
		transferWithAuthorizationTypeHash,
		leftPadAddress(auth.From),
		leftPadAddress(auth.To),
		leftPadBig(value, 32),
		leftPadBig(validAfter, 32),
		leftPadBig(validBefore, 32),
		nonce[:],
	)

	return crypto.Keccak256([]byte("\x19\x01"), domainSeparator, structHash), nil
}

// recoverAuthorizationSigner recovers the address that signed the typed
// authorization. Both v conventions (0/1 and 27/28) are accepted.
func recoverAuthorizationSigner(
	auth x402types.ExactEvmAuthorization,
	sigHex string,
	chainID *big.Int,
	verifyingContract string,
	domainName, domainVersion string,
) (string, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("invalid signature hex: %w", err)
	}
	if len(sig) != 65 {
		return "", fmt.Errorf("invalid signature length %d", len(sig))
	}
	if sig[64] >= 27 {
		sig = append([]byte(nil), sig...)
		sig[64] -= 27
	}

	digest, err := authorizationDigest(auth, chainID, verifyingContract, domainName, domainVersion)
	if err != nil {
		return "", err
	}

	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return "", fmt.Errorf("recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

// splitSignature splits a 65-byte hex signature into its v, r, s components
// with v normalized to 27/28 as transferWithAuthorization expects.
func splitSignature(sigHex string) (v uint8, r [32]byte, s [32]byte, err error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return
	}
	if len(sig) != 65 {
		err = fmt.Errorf("invalid signature length %d", len(sig))
		return
	}
	copy(r[:], sig[0:32])
	copy(s[:], sig[32:64])
	v = sig[64]
	if v < 27 {
		v += 27
	}
	return
}

func hexToBytes32(hexStr string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(strings.TrimPrefix(hexStr, "0x"))
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

func leftPadBig(n *big.Int, size int) []byte {
	b := n.Bytes()
	if len(b) >= size {
		return b
	}
	padded := make([]byte, size)
	copy(padded[size-len(b):], b)
	return padded
}

func leftPadAddress(addr string) []byte {
	a := common.HexToAddress(addr)
	return append(make([]byte, 12), a.Bytes()...)
}
