package clients

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/x402-facilitator/logger"
	x402types "github.com/vitwit/x402-facilitator/types"
)

const testMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

type fakeSVMRPC struct {
	balance      string
	balanceErr   error
	balanceCalls int

	sendErr error
	sends   int

	status    *rpc.SignatureStatusesResult
	statusErr error
}

func (f *fakeSVMRPC) GetTokenAccountBalance(context.Context, solana.PublicKey, rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error) {
	f.balanceCalls++
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	return &rpc.GetTokenAccountBalanceResult{
		Value: &rpc.UiTokenAmount{Amount: f.balance},
	}, nil
}

func (f *fakeSVMRPC) SendTransactionWithOpts(_ context.Context, tx *solana.Transaction, _ rpc.TransactionOpts) (solana.Signature, error) {
	if f.sendErr != nil {
		return solana.Signature{}, f.sendErr
	}
	f.sends++
	return tx.Signatures[0], nil
}

func (f *fakeSVMRPC) GetSignatureStatuses(context.Context, bool, ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return &rpc.GetSignatureStatusesResult{
		Value: []*rpc.SignatureStatusesResult{f.status},
	}, nil
}

func newSolanaFixture(balance string) (*SolanaClient, *fakeSVMRPC) {
	chain := &fakeSVMRPC{
		balance: balance,
		status:  &rpc.SignatureStatusesResult{ConfirmationStatus: rpc.ConfirmationStatusFinalized},
	}
	return &SolanaClient{
		network:         x402types.NetworkSolanaDevnet,
		rpc:             chain,
		signer:          solana.NewWallet().PrivateKey,
		log:             logger.NoopLogger{},
		confirmInterval: time.Millisecond,
		confirmAttempts: 3,
	}, chain
}

func solanaRequirements() *x402types.PaymentRequirements {
	return &x402types.PaymentRequirements{
		Scheme:            x402types.SchemeExact,
		Network:           "solana-devnet",
		MaxAmountRequired: "10000",
		Resource:          "https://api.example.com/reports",
		PayTo:             "7v91N7iZ9mNicL8WfG6cgSCKyRXydQjLh6UYBWwm6y1Q",
		Asset:             testMint,
	}
}

// signedTransferPayload builds a fully signed legacy transaction and wraps it
// in a payment payload the way paying clients do.
func signedTransferPayload(t *testing.T) (*x402types.PaymentPayload, string) {
	t.Helper()
	payer := solana.NewWallet()
	recipient := solana.NewWallet()

	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(10000, payer.PublicKey(), recipient.PublicKey()).Build(),
		},
		solana.Hash{},
		solana.TransactionPayer(payer.PublicKey()),
	)
	require.NoError(t, err)

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(payer.PublicKey()) {
			return &payer.PrivateKey
		}
		return nil
	})
	require.NoError(t, err)

	raw, err := tx.MarshalBinary()
	require.NoError(t, err)

	body, err := json.Marshal(x402types.ExactSvmPayload{
		Transaction: base64.StdEncoding.EncodeToString(raw),
	})
	require.NoError(t, err)

	return &x402types.PaymentPayload{
		X402Version: 1,
		Scheme:      x402types.SchemeExact,
		Network:     "solana-devnet",
		Payload:     body,
	}, payer.PublicKey().String()
}

func TestSolanaVerifyValid(t *testing.T) {
	client, _ := newSolanaFixture("10000")
	payload, payer := signedTransferPayload(t)

	resp, err := client.Verify(context.Background(), payload, solanaRequirements())
	require.NoError(t, err)
	assert.True(t, resp.IsValid)
	assert.Equal(t, payer, resp.Payer, "fee payer is reported as the payer")
}

func TestSolanaVerifyInsufficientFunds(t *testing.T) {
	client, _ := newSolanaFixture("9999")
	payload, payer := signedTransferPayload(t)

	resp, err := client.Verify(context.Background(), payload, solanaRequirements())
	require.NoError(t, err)
	assert.False(t, resp.IsValid)
	assert.Equal(t, x402types.ReasonInsufficientFunds, resp.InvalidReason)
	assert.Equal(t, payer, resp.Payer)
}

func TestSolanaVerifyMissingTokenAccount(t *testing.T) {
	client, chain := newSolanaFixture("0")
	chain.balanceErr = fmt.Errorf("rpc: could not find account")
	payload, _ := signedTransferPayload(t)

	resp, err := client.Verify(context.Background(), payload, solanaRequirements())
	require.NoError(t, err)
	assert.Equal(t, x402types.ReasonInsufficientFunds, resp.InvalidReason,
		"an unopened token account means the payer cannot pay")
}

func TestSolanaVerifyRPCFaultSurfacesAsError(t *testing.T) {
	client, chain := newSolanaFixture("10000")
	chain.balanceErr = fmt.Errorf("connection refused")
	payload, _ := signedTransferPayload(t)

	_, err := client.Verify(context.Background(), payload, solanaRequirements())
	assert.Error(t, err)
}

func TestSolanaVerifyGarbageTransaction(t *testing.T) {
	client, _ := newSolanaFixture("10000")
	payload := &x402types.PaymentPayload{
		X402Version: 1,
		Scheme:      x402types.SchemeExact,
		Network:     "solana-devnet",
		Payload:     json.RawMessage(`{"transaction": "bm90LWEtdHJhbnNhY3Rpb24="}`),
	}

	resp, err := client.Verify(context.Background(), payload, solanaRequirements())
	require.NoError(t, err)
	assert.Equal(t, x402types.ReasonInvalidPayload, resp.InvalidReason)
}

func TestSolanaVerifyBadBase64(t *testing.T) {
	client, _ := newSolanaFixture("10000")
	payload := &x402types.PaymentPayload{
		X402Version: 1,
		Scheme:      x402types.SchemeExact,
		Network:     "solana-devnet",
		Payload:     json.RawMessage(`{"transaction": "%%%"}`),
	}

	resp, err := client.Verify(context.Background(), payload, solanaRequirements())
	require.NoError(t, err)
	assert.Equal(t, x402types.ReasonInvalidPayload, resp.InvalidReason)
}

func TestSolanaSettleSuccess(t *testing.T) {
	client, chain := newSolanaFixture("10000")
	payload, payer := signedTransferPayload(t)

	resp, err := client.Settle(context.Background(), payload, solanaRequirements())
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.Transaction)
	assert.Equal(t, "solana-devnet", resp.Network)
	assert.Equal(t, payer, resp.Payer)
	assert.Equal(t, 1, chain.sends)
}

func TestSolanaSettleOnChainFailure(t *testing.T) {
	client, chain := newSolanaFixture("10000")
	chain.status = &rpc.SignatureStatusesResult{
		ConfirmationStatus: rpc.ConfirmationStatusFinalized,
		Err:                map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}},
	}
	payload, _ := signedTransferPayload(t)

	resp, err := client.Settle(context.Background(), payload, solanaRequirements())
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, x402types.ReasonSettlementFailed, resp.ErrorReason)
	assert.NotEmpty(t, resp.Transaction, "failed but included transactions report their signature")
}

func TestSolanaSettleBroadcastFailure(t *testing.T) {
	client, chain := newSolanaFixture("10000")
	chain.sendErr = fmt.Errorf("blockhash not found")
	payload, _ := signedTransferPayload(t)

	resp, err := client.Settle(context.Background(), payload, solanaRequirements())
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, x402types.ReasonSettlementFailed, resp.ErrorReason)
	assert.Empty(t, resp.Transaction)
}

func TestSolanaSettleWithoutFundingKey(t *testing.T) {
	client, chain := newSolanaFixture("10000")
	client.signer = nil
	payload, _ := signedTransferPayload(t)

	resp, err := client.Settle(context.Background(), payload, solanaRequirements())
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, x402types.ReasonSettlementFailed, resp.ErrorReason)
	assert.Zero(t, chain.sends, "no broadcast without a funding key")
	assert.Zero(t, chain.balanceCalls, "no chain reads without a funding key")
}

func TestSolanaSettleAbortsOnFailedVerify(t *testing.T) {
	client, chain := newSolanaFixture("1")
	payload, _ := signedTransferPayload(t)

	resp, err := client.Settle(context.Background(), payload, solanaRequirements())
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, x402types.ReasonInsufficientFunds, resp.ErrorReason)
	assert.Zero(t, chain.sends, "no broadcast when re-verification fails")
}

func TestSolanaSignerAddress(t *testing.T) {
	client, _ := newSolanaFixture("10000")
	assert.Equal(t, client.signer.PublicKey().String(), client.SignerAddress())

	client.signer = nil
	assert.Empty(t, client.SignerAddress())
}
