// Package clients implements the per-chain-family payment backends. Each
// backend verifies signed payment payloads against requirements and, when
// asked, settles them on chain.
package clients

import (
	"context"

	x402types "github.com/vitwit/x402-facilitator/types"
)

// Client is the capability contract a chain backend implements. The two
// implementations (EVMClient, SolanaClient) model structurally different
// ledgers and are selected by network, never subclassed.
type Client interface {
	// Verify checks the payment payload against the requirements without
	// touching chain state beyond reads. It reports failures through the
	// response's InvalidReason, not through the error return; a non-nil
	// error is reserved for unexpected faults (RPC unavailability, decode
	// of malformed chain responses) and is normalized by the caller.
	Verify(ctx context.Context, payload *x402types.PaymentPayload, reqs *x402types.PaymentRequirements) (*x402types.VerifyResponse, error)

	// Settle re-verifies the payment in full and then executes it on chain,
	// blocking until the chain reports inclusion. Failures are reported
	// through the response; a transaction id is attached whenever the
	// transaction reached the chain, reverted or not.
	Settle(ctx context.Context, payload *x402types.PaymentPayload, reqs *x402types.PaymentRequirements) (*x402types.SettleResponse, error)

	// SignerAddress returns the facilitator's funding address for this
	// backend, or "" when no funding key is configured (settlement
	// disabled, verification unaffected).
	SignerAddress() string

	// Network returns the canonical network this backend instance serves.
	Network() x402types.Network

	// Close releases any held connections.
	Close()
}
