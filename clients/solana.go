package clients

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"

	"github.com/vitwit/x402-facilitator/logger"
	x402types "github.com/vitwit/x402-facilitator/types"
)

// svmRPC is the slice of the Solana RPC surface the backend uses.
// *rpc.Client satisfies it; tests substitute a fake.
type svmRPC interface {
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
}

var _ Client = (*SolanaClient)(nil)

// SolanaClient is the signed-transaction backend. The payer supplies a fully
// signed transaction; the facilitator checks solvency and relays the bytes
// untouched. Unlike the EVM backend it does not match the transaction's
// inner instructions against the requirements: content is covered by the
// payer having pre-signed this exact transfer, so the enforced invariant is
// solvency only.
type SolanaClient struct {
	network x402types.Network
	rpc     svmRPC
	signer  solana.PrivateKey
	log     logger.Logger

	confirmInterval time.Duration
	confirmAttempts int
}

// NewSolanaClient connects to rpcURL for the given network. privateKey may
// be empty, which disables settlement for this backend only.
func NewSolanaClient(network x402types.Network, rpcURL, privateKey string, log logger.Logger) (*SolanaClient, error) {
	if !network.IsSVM() {
		return nil, fmt.Errorf("network %s is not a Solana network", network)
	}

	var signer solana.PrivateKey
	if privateKey != "" {
		key, err := solana.PrivateKeyFromBase58(privateKey)
		if err != nil {
			return nil, fmt.Errorf("parse funding key: %w", err)
		}
		signer = key
	}

	if log == nil {
		log = logger.NoopLogger{}
	}
	return &SolanaClient{
		network:         network,
		rpc:             rpc.New(rpcURL),
		signer:          signer,
		log:             log,
		confirmInterval: 3 * time.Second,
		confirmAttempts: 10,
	}, nil
}

// Network implements Client.
func (c *SolanaClient) Network() x402types.Network { return c.network }

// SignerAddress implements Client.
func (c *SolanaClient) SignerAddress() string {
	if c.signer == nil {
		return ""
	}
	return c.signer.PublicKey().String()
}

// Close implements Client.
func (c *SolanaClient) Close() {}

// Verify implements Client. The payload carries no independent payer, amount
// or recipient; everything derives from decoding the opaque transaction. The
// fee payer (first account key) is the payer, and its associated token
// account for the required asset must cover maxAmountRequired.
func (c *SolanaClient) Verify(
	ctx context.Context,
	payload *x402types.PaymentPayload,
	reqs *x402types.PaymentRequirements,
) (*x402types.VerifyResponse, error) {
	tx, resp := c.decodePayload(payload)
	if resp != nil {
		return resp, nil
	}
	payer := tx.Message.AccountKeys[0]

	mint, err := solana.PublicKeyFromBase58(reqs.Asset)
	if err != nil {
		return invalid(x402types.ReasonInvalidPayload, payer.String()), nil
	}
	ata, _, err := solana.FindAssociatedTokenAddress(payer, mint)
	if err != nil {
		return nil, fmt.Errorf("derive token account: %w", err)
	}

	balance, err := c.rpc.GetTokenAccountBalance(ctx, ata, rpc.CommitmentConfirmed)
	if err != nil {
		// A payer who never opened the token account cannot pay.
		if strings.Contains(err.Error(), "could not find account") {
			return invalid(x402types.ReasonInsufficientFunds, payer.String()), nil
		}
		return nil, fmt.Errorf("read token balance: %w", err)
	}
	if balance == nil || balance.Value == nil {
		return invalid(x402types.ReasonInsufficientFunds, payer.String()), nil
	}

	amount, err := decimal.NewFromString(balance.Value.Amount)
	if err != nil {
		return nil, fmt.Errorf("parse token balance: %w", err)
	}
	required, err := decimal.NewFromString(reqs.MaxAmountRequired)
	if err != nil {
		return invalid(x402types.ReasonInvalidPayload, payer.String()), nil
	}
	if amount.LessThan(required) {
		return invalid(x402types.ReasonInsufficientFunds, payer.String()), nil
	}

	return &x402types.VerifyResponse{IsValid: true, Payer: payer.String()}, nil
}

// Settle implements Client. It re-runs Verify in full, broadcasts the
// transaction exactly as received (no re-signing, no mutation) and polls
// until the cluster reports it confirmed.
func (c *SolanaClient) Settle(
	ctx context.Context,
	payload *x402types.PaymentPayload,
	reqs *x402types.PaymentRequirements,
) (*x402types.SettleResponse, error) {
	// The transaction is already signed by the payer, but a facilitator
	// without a funding key for this family does not settle; bail before any
	// chain interaction.
	if c.signer == nil {
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

	tx, resp := c.decodePayload(payload)
	if resp != nil {
		return settleFailure(x402types.ReasonInvalidPayload, c.network, "", vr.Payer), nil
	}

	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		c.log.Error("settlement broadcast failed", map[string]any{
			"network": c.network, "payer": vr.Payer, "error": err.Error(),
		})
		return settleFailure(x402types.ReasonSettlementFailed, c.network, "", vr.Payer), nil
	}

	for i := 0; i < c.confirmAttempts; i++ {
		select {
		case <-ctx.Done():
			return settleFailure(x402types.ReasonSettlementFailed, c.network, sig.String(), vr.Payer), nil
		case <-time.After(c.confirmInterval):
		}

		statuses, err := c.rpc.GetSignatureStatuses(ctx, false, sig)
		if err != nil || len(statuses.Value) == 0 || statuses.Value[0] == nil {
			continue
		}
		status := statuses.Value[0]
		if status.ConfirmationStatus != rpc.ConfirmationStatusConfirmed &&
			status.ConfirmationStatus != rpc.ConfirmationStatusFinalized {
			continue
		}
		if status.Err != nil {
			// Included but failed on chain. The signature still goes back so
			// the caller can inspect it.
			return settleFailure(x402types.ReasonSettlementFailed, c.network, sig.String(), vr.Payer), nil
		}
		c.log.Info("payment settled", map[string]any{
			"network": c.network, "payer": vr.Payer, "tx": sig.String(),
		})
		return &x402types.SettleResponse{
			Success:     true,
			Transaction: sig.String(),
			Network:     c.network.String(),
			Payer:       vr.Payer,
		}, nil
	}

	return settleFailure(x402types.ReasonSettlementFailed, c.network, sig.String(), vr.Payer), nil
}

// decodePayload extracts and decodes the transaction, returning a ready
// invalid_payload response when anything about the blob is unusable.
func (c *SolanaClient) decodePayload(payload *x402types.PaymentPayload) (*solana.Transaction, *x402types.VerifyResponse) {
	p, err := payload.ExactSvm()
	if err != nil {
		return nil, invalid(x402types.ReasonInvalidPayload, "")
	}
	raw, err := base64.StdEncoding.DecodeString(p.Transaction)
	if err != nil {
		return nil, invalid(x402types.ReasonInvalidPayload, "")
	}
	tx, err := decodeTransaction(raw)
	if err != nil {
		return nil, invalid(x402types.ReasonInvalidPayload, "")
	}
	if len(tx.Message.AccountKeys) == 0 {
		return nil, invalid(x402types.ReasonInvalidPayload, "")
	}
	return tx, nil
}

// decodeTransaction tries the versioned wire format first and falls back to
// a strict legacy decode, mirroring how clients serialize either form.
func decodeTransaction(raw []byte) (*solana.Transaction, error) {
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err == nil {
		return tx, nil
	}

	legacy, lerr := decodeLegacyTransaction(raw)
	if lerr != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	return legacy, nil
}

func decodeLegacyTransaction(raw []byte) (*solana.Transaction, error) {
	dec := bin.NewBinDecoder(raw)
	numSigs, err := dec.ReadCompactU16()
	if err != nil {
		return nil, err
	}
	tx := &solana.Transaction{}
	for i := 0; i < numSigs; i++ {
		b, err := dec.ReadNBytes(64)
		if err != nil {
			return nil, err
		}
		tx.Signatures = append(tx.Signatures, solana.SignatureFromBytes(b))
	}
	if err := tx.Message.UnmarshalLegacy(dec); err != nil {
		return nil, err
	}
	return tx, nil
}
