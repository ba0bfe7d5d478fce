package clients

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Minimal ABI surface of an EIP-3009 token: the read calls verification
// needs plus the authorized transfer settlement submits.
const eip3009TokenABI = `
[
  {
    "name": "balanceOf",
    "type": "function",
    "stateMutability": "view",
    "inputs": [{ "name": "account", "type": "address" }],
    "outputs": [{ "name": "", "type": "uint256" }]
  },
  {
    "name": "authorizationState",
    "type": "function",
    "stateMutability": "view",
    "inputs": [
      { "name": "authorizer", "type": "address" },
      { "name": "nonce", "type": "bytes32" }
    ],
    "outputs": [{ "name": "", "type": "bool" }]
  },
  {
    "name": "transferWithAuthorization",
    "type": "function",
    "stateMutability": "nonpayable",
    "inputs": [
      { "name": "from", "type": "address" },
      { "name": "to", "type": "address" },
      { "name": "value", "type": "uint256" },
      { "name": "validAfter", "type": "uint256" },
      { "name": "validBefore", "type": "uint256" },
      { "name": "nonce", "type": "bytes32" },
      { "name": "v", "type": "uint8" },
      { "name": "r", "type": "bytes32" },
      { "name": "s", "type": "bytes32" }
    ],
    "outputs": []
  }
]
`

func mustTokenABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(eip3009TokenABI))
	if err != nil {
		panic(err)
	}
	return parsed
}

// erc20Caller issues read calls against an EIP-3009 token contract through
// a raw eth_call backend.
type erc20Caller struct {
	token common.Address
	abi   abi.ABI
	chain ethCaller
}

type ethCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

func newERC20Caller(token string, chain ethCaller) *erc20Caller {
	return &erc20Caller{
		token: common.HexToAddress(token),
		abi:   mustTokenABI(),
		chain: chain,
	}
}

func (e *erc20Caller) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := e.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := e.chain.CallContract(ctx, ethereum.CallMsg{To: &e.token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	vals, err := e.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return vals, nil
}

// BalanceOf reads the token balance of owner.
func (e *erc20Caller) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	vals, err := e.call(ctx, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	bal, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("balanceOf returned unexpected type %T", vals[0])
	}
	return bal, nil
}

// AuthorizationState reports whether (authorizer, nonce) has been consumed.
func (e *erc20Caller) AuthorizationState(ctx context.Context, authorizer common.Address, nonce [32]byte) (bool, error) {
	vals, err := e.call(ctx, "authorizationState", authorizer, nonce)
	if err != nil {
		return false, err
	}
	used, ok := vals[0].(bool)
	if !ok {
		return false, fmt.Errorf("authorizationState returned unexpected type %T", vals[0])
	}
	return used, nil
}
