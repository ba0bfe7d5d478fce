package clients

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/vitwit/x402-facilitator/logger"
	x402types "github.com/vitwit/x402-facilitator/types"
)

// evmChain is the slice of the Ethereum RPC surface the backend uses.
// *ethclient.Client satisfies it; tests substitute a fake.
type evmChain interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	Close()
}

const settleGasLimit = 150_000

var _ Client = (*EVMClient)(nil)

// EVMClient is the account-authorization backend. The payer signs an
// EIP-3009 authorization off chain; the facilitator verifies it and, on
// settlement, redeems it through transferWithAuthorization paid for by the
// facilitator's funding key.
type EVMClient struct {
	network   x402types.Network
	chainID   *big.Int
	chain     evmChain
	tokenABI  abi.ABI
	signerKey *ecdsa.PrivateKey
	log       logger.Logger

	confirmInterval time.Duration
	now             func() time.Time
}

// NewEVMClient connects to rpcURL for the given network. privateKeyHex may
// be empty, which disables settlement for this backend only.
func NewEVMClient(network x402types.Network, rpcURL, privateKeyHex string, log logger.Logger) (*EVMClient, error) {
	chainID, ok := network.ChainID()
	if !ok {
		return nil, fmt.Errorf("network %s is not an EVM network", network)
	}
	chain, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("connect to EVM RPC: %w", err)
	}

	var key *ecdsa.PrivateKey
	if privateKeyHex != "" {
		key, err = crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
		if err != nil {
			return nil, fmt.Errorf("parse funding key: %w", err)
		}
	}

	if log == nil {
		log = logger.NoopLogger{}
	}
	return &EVMClient{
		network:         network,
		chainID:         chainID,
		chain:           chain,
		tokenABI:        mustTokenABI(),
		signerKey:       key,
		log:             log,
		confirmInterval: 2 * time.Second,
		now:             time.Now,
	}, nil
}

// Network implements Client.
func (c *EVMClient) Network() x402types.Network { return c.network }

// SignerAddress implements Client.
func (c *EVMClient) SignerAddress() string {
	if c.signerKey == nil {
		return ""
	}
	return crypto.PubkeyToAddress(c.signerKey.PublicKey).Hex()
}

// Close implements Client.
func (c *EVMClient) Close() { c.chain.Close() }

// Verify implements Client. Checks run in a fixed order and short-circuit at
// the first failure: timing, amount, recipient, signature, balance, nonce.
// Chain reads happen only after the pure checks pass.
func (c *EVMClient) Verify(
	ctx context.Context,
	payload *x402types.PaymentPayload,
	reqs *x402types.PaymentRequirements,
) (*x402types.VerifyResponse, error) {
	p, err := payload.ExactEvm()
	if err != nil {
		return invalid(x402types.ReasonInvalidPayload, ""), nil
	}
	auth := p.Authorization
	payer := auth.From

	validAfter, ok := new(big.Int).SetString(auth.ValidAfter, 10)
	if !ok {
		return invalid(x402types.ReasonInvalidPayload, payer), nil
	}
	validBefore, ok := new(big.Int).SetString(auth.ValidBefore, 10)
	if !ok {
		return invalid(x402types.ReasonInvalidPayload, payer), nil
	}
	// The window is inclusive at both ends.
	now := big.NewInt(c.now().Unix())
	if now.Cmp(validAfter) < 0 || now.Cmp(validBefore) > 0 {
		return invalid(x402types.ReasonPaymentExpired, payer), nil
	}

	value, ok := new(big.Int).SetString(auth.Value, 10)
	if !ok {
		return invalid(x402types.ReasonInvalidPayload, payer), nil
	}
	required, ok := new(big.Int).SetString(reqs.MaxAmountRequired, 10)
	if !ok {
		return invalid(x402types.ReasonInvalidPayload, payer), nil
	}
	if value.Cmp(required) != 0 {
		return invalid(x402types.ReasonAmountMismatch, payer), nil
	}

	if !strings.EqualFold(auth.To, reqs.PayTo) {
		return invalid(x402types.ReasonRecipientMismatch, payer), nil
	}

	name, version := c.domainValues(reqs)
	signer, err := recoverAuthorizationSigner(auth, p.Signature, c.chainID, reqs.Asset, name, version)
	if err != nil || !strings.EqualFold(signer, auth.From) {
		return invalid(x402types.ReasonInvalidSignature, payer), nil
	}

	token := newERC20Caller(reqs.Asset, c.chain)
	balance, err := token.BalanceOf(ctx, common.HexToAddress(auth.From))
	if err != nil {
		return nil, fmt.Errorf("read balance: %w", err)
	}
	if balance.Cmp(value) < 0 {
		return invalid(x402types.ReasonInsufficientFunds, payer), nil
	}

	nonce, err := hexToBytes32(auth.Nonce)
	if err != nil {
		return invalid(x402types.ReasonInvalidPayload, payer), nil
	}
	used, err := token.AuthorizationState(ctx, common.HexToAddress(auth.From), nonce)
	if err != nil {
		return nil, fmt.Errorf("read authorization state: %w", err)
	}
	if used {
		// Consumed nonce shares the invalid_payload tag with malformed
		// payloads; the taxonomy keeps one code for both.
		return invalid(x402types.ReasonInvalidPayload, payer), nil
	}

	return &x402types.VerifyResponse{IsValid: true, Payer: payer}, nil
}

// Settle implements Client. It re-runs Verify in full before touching the
// chain so settlement never proceeds on stale or already-settled state, then
// submits transferWithAuthorization signed by the funding key and blocks
// until the transaction is mined.
func (c *EVMClient) Settle(
	ctx context.Context,
	payload *x402types.PaymentPayload,
	reqs *x402types.PaymentRequirements,
) (*x402types.SettleResponse, error) {
	// No funding key means settlement is disabled for this backend; bail
	// before any chain interaction.
	if c.signerKey == nil {
		return settleFailure(x402types.ReasonSettlementFailed, c.network, "", ""), nil
	}

	vr, err := c.Verify(ctx, payload, reqs)
	if err != nil {
		c.log.Error("settle re-verify failed", map[string]any{"network": c.network, "error": err.Error()})
		return settleFailure(x402types.ReasonSettlementFailed, c.network, "", ""), nil
	}
	if !vr.IsValid {
		return settleFailure(vr.InvalidReason, c.network, "", vr.Payer), nil
	}

	p, err := payload.ExactEvm()
	if err != nil {
		return settleFailure(x402types.ReasonInvalidPayload, c.network, "", vr.Payer), nil
	}
	auth := p.Authorization

	v, r, s, err := splitSignature(p.Signature)
	if err != nil {
		return settleFailure(x402types.ReasonInvalidPayload, c.network, "", vr.Payer), nil
	}
	nonce32, err := hexToBytes32(auth.Nonce)
	if err != nil {
		return settleFailure(x402types.ReasonInvalidPayload, c.network, "", vr.Payer), nil
	}
	callData, err := c.tokenABI.Pack(
		"transferWithAuthorization",
		common.HexToAddress(auth.From),
		common.HexToAddress(auth.To),
		mustBig(auth.Value),
		mustBig(auth.ValidAfter),
		mustBig(auth.ValidBefore),
		nonce32,
		v, r, s,
	)
	if err != nil {
		return settleFailure(x402types.ReasonSettlementFailed, c.network, "", vr.Payer), nil
	}

	from := crypto.PubkeyToAddress(c.signerKey.PublicKey)
	txNonce, err := c.chain.PendingNonceAt(ctx, from)
	if err != nil {
		return settleFailure(x402types.ReasonSettlementFailed, c.network, "", vr.Payer), nil
	}
	gasPrice, err := c.chain.SuggestGasPrice(ctx)
	if err != nil {
		return settleFailure(x402types.ReasonSettlementFailed, c.network, "", vr.Payer), nil
	}

	token := common.HexToAddress(reqs.Asset)
	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    txNonce,
		To:       &token,
		Gas:      settleGasLimit,
		GasPrice: gasPrice,
		Data:     callData,
	})
	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(c.chainID), c.signerKey)
	if err != nil {
		return settleFailure(x402types.ReasonSettlementFailed, c.network, "", vr.Payer), nil
	}

	if err := c.chain.SendTransaction(ctx, signed); err != nil {
		c.log.Error("settlement broadcast failed", map[string]any{
			"network": c.network, "payer": vr.Payer, "error": err.Error(),
		})
		return settleFailure(x402types.ReasonSettlementFailed, c.network, "", vr.Payer), nil
	}

	txHash := signed.Hash()
	receipt, err := c.waitMined(ctx, txHash)
	if err != nil {
		return settleFailure(x402types.ReasonSettlementFailed, c.network, txHash.Hex(), vr.Payer), nil
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		// Reverted on chain. The hash still goes back so the caller can
		// inspect it on an explorer.
		return settleFailure(x402types.ReasonSettlementFailed, c.network, txHash.Hex(), vr.Payer), nil
	}

	c.log.Info("payment settled", map[string]any{
		"network": c.network, "payer": vr.Payer, "tx": txHash.Hex(),
	})
	return &x402types.SettleResponse{
		Success:     true,
		Transaction: txHash.Hex(),
		Network:     c.network.String(),
		Payer:       vr.Payer,
	}, nil
}

// waitMined polls for the receipt until the transaction is included or the
// context expires.
func (c *EVMClient) waitMined(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	for {
		receipt, err := c.chain.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.confirmInterval):
		}
	}
}

// domainValues extracts the EIP-712 domain name and version from the
// requirements, defaulting to the USDC deployment values.
func (c *EVMClient) domainValues(reqs *x402types.PaymentRequirements) (string, string) {
	name, version := defaultDomainName, defaultDomainVersion
	if v, ok := reqs.Extra["name"].(string); ok && v != "" {
		name = v
	}
	if v, ok := reqs.Extra["version"].(string); ok && v != "" {
		version = v
	}
	return name, version
}

func invalid(reason, payer string) *x402types.VerifyResponse {
	return &x402types.VerifyResponse{IsValid: false, InvalidReason: reason, Payer: payer}
}

func settleFailure(reason string, network x402types.Network, tx, payer string) *x402types.SettleResponse {
	return &x402types.SettleResponse{
		Success:     false,
		ErrorReason: reason,
		Network:     network.String(),
		Transaction: tx,
		Payer:       payer,
	}
}

func mustBig(s string) *big.Int {
	n, _ := new(big.Int).SetString(s, 10)
	return n
}
