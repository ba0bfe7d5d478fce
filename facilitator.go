// Package facilitator verifies and settles x402 micro-payments across two
// ledger families: an account-authorization model (EVM) and a
// signed-transaction model (Solana). It is the façade the HTTP layer calls
// into; backends do the chain work, the discovery catalog records payable
// resources as a side effect of successful verifications.
package facilitator

import (
	"context"
	"fmt"
	"time"

	"github.com/vitwit/x402-facilitator/clients"
	"github.com/vitwit/x402-facilitator/config"
	"github.com/vitwit/x402-facilitator/discovery"
	"github.com/vitwit/x402-facilitator/logger"
	"github.com/vitwit/x402-facilitator/metrics"
	"github.com/vitwit/x402-facilitator/types"
)

// Facilitator routes verify/settle requests to the backend that owns the
// request's network and layers the discovery side effect on successful
// verifications.
type Facilitator struct {
	backends map[types.Network]clients.Client
	store    discovery.Store
	log      logger.Logger
	metrics  metrics.Recorder
}

// New builds a Facilitator from process configuration. Each configured
// family registers both of its networks against the family's RPC endpoint;
// a family with no RPC endpoint is simply absent and its networks resolve to
// unsupported_network.
func New(cfg *config.Config, opts ...Option) (*Facilitator, error) {
	f := &Facilitator{
		backends: make(map[types.Network]clients.Client),
		store:    discovery.NewMemoryStore(),
		log:      logger.NoopLogger{},
		metrics:  metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(f)
	}

	if cfg != nil && cfg.EVM.RPCURL != "" {
		for _, network := range []types.Network{types.NetworkBase, types.NetworkBaseSepolia} {
			if _, ok := f.backends[network]; ok {
				continue
			}
			backend, err := clients.NewEVMClient(network, cfg.EVM.RPCURL, cfg.EVM.PrivateKey, f.log)
			if err != nil {
				return nil, fmt.Errorf("create EVM backend for %s: %w", network, err)
			}
			f.backends[network] = backend
		}
	}
	if cfg != nil && cfg.SVM.RPCURL != "" {
		for _, network := range []types.Network{types.NetworkSolana, types.NetworkSolanaDevnet} {
			if _, ok := f.backends[network]; ok {
				continue
			}
			backend, err := clients.NewSolanaClient(network, cfg.SVM.RPCURL, cfg.SVM.PrivateKey, f.log)
			if err != nil {
				return nil, fmt.Errorf("create Solana backend for %s: %w", network, err)
			}
			f.backends[network] = backend
		}
	}

	return f, nil
}

// resolve maps a network identifier (legacy short form or CAIP-2 URN) to the
// backend that owns it. ok is false for identifiers outside both families'
// vocabularies or families that are not configured.
func (f *Facilitator) resolve(id string) (clients.Client, types.Network, bool) {
	network, ok := types.ResolveNetwork(id)
	if !ok {
		return nil, "", false
	}
	backend, ok := f.backends[network]
	return backend, network, ok
}

// Verify checks a payment without settling it. It never returns a fault to
// the caller: unexpected errors are normalized to unexpected_error.
func (f *Facilitator) Verify(ctx context.Context, req *types.VerifyRequest) *types.VerifyResponse {
	start := time.Now()
	network := req.PaymentRequirements.Network

	if err := req.Validate(); err != nil {
		f.metrics.CountResult("verify", network, types.ReasonInvalidPayload)
		return &types.VerifyResponse{IsValid: false, InvalidReason: types.ReasonInvalidPayload}
	}

	backend, canonical, ok := f.resolve(network)
	if !ok {
		f.metrics.CountResult("verify", network, types.ReasonUnsupportedNetwork)
		return &types.VerifyResponse{IsValid: false, InvalidReason: types.ReasonUnsupportedNetwork}
	}

	resp, err := backend.Verify(ctx, &req.PaymentPayload, &req.PaymentRequirements)
	if err != nil {
		f.log.Error("verification fault", map[string]any{
			"network": canonical, "error": err.Error(),
		})
		f.metrics.CountResult("verify", canonical.String(), types.ReasonUnexpectedError)
		return &types.VerifyResponse{IsValid: false, InvalidReason: types.ReasonUnexpectedError}
	}

	outcome := resp.InvalidReason
	if resp.IsValid {
		outcome = "ok"
		f.catalog(req.X402Version, &req.PaymentRequirements)
	}
	f.metrics.CountResult("verify", canonical.String(), outcome)
	f.metrics.ObserveDuration("verify", canonical.String(), time.Since(start))
	f.log.Debug("payment verified", map[string]any{
		"network": canonical, "valid": resp.IsValid, "reason": resp.InvalidReason, "payer": resp.Payer,
	})
	return resp
}

// Settle verifies and then executes a payment on chain, blocking until the
// chain reports inclusion.
func (f *Facilitator) Settle(ctx context.Context, req *types.VerifyRequest) *types.SettleResponse {
	start := time.Now()
	network := req.PaymentRequirements.Network
	// Report the canonical form whenever the identifier resolves, even on
	// early failures; the raw identifier survives only when it is unknown.
	if canonical, ok := types.ResolveNetwork(network); ok {
		network = canonical.String()
	}

	if err := req.Validate(); err != nil {
		f.metrics.CountResult("settle", network, types.ReasonInvalidPayload)
		return &types.SettleResponse{Success: false, ErrorReason: types.ReasonInvalidPayload, Network: network}
	}

	backend, canonical, ok := f.resolve(network)
	if !ok {
		f.metrics.CountResult("settle", network, types.ReasonUnsupportedNetwork)
		return &types.SettleResponse{Success: false, ErrorReason: types.ReasonUnsupportedNetwork, Network: network}
	}

	resp, err := backend.Settle(ctx, &req.PaymentPayload, &req.PaymentRequirements)
	if err != nil {
		f.log.Error("settlement fault", map[string]any{
			"network": canonical, "error": err.Error(),
		})
		f.metrics.CountResult("settle", canonical.String(), types.ReasonSettlementFailed)
		return &types.SettleResponse{
			Success:     false,
			ErrorReason: types.ReasonSettlementFailed,
			Network:     canonical.String(),
		}
	}

	outcome := resp.ErrorReason
	if resp.Success {
		outcome = "ok"
	}
	f.metrics.CountResult("settle", canonical.String(), outcome)
	f.metrics.ObserveDuration("settle", canonical.String(), time.Since(start))
	return resp
}

// Supported lists every version × scheme × network combination this
// facilitator can verify, plus the funding addresses per family. Families
// without a funding key report an empty signer list.
func (f *Facilitator) Supported() *types.SupportedResponse {
	resp := &types.SupportedResponse{
		Kinds: make([]types.SupportedKind, 0, len(f.backends)),
		Signers: map[string][]string{
			string(types.FamilyEVM): {},
			string(types.FamilySVM): {},
		},
	}
	for _, network := range types.SupportedNetworks() {
		backend, ok := f.backends[network]
		if !ok {
			continue
		}
		resp.Kinds = append(resp.Kinds, types.SupportedKind{
			X402Version: types.X402Version,
			Scheme:      types.SchemeExact,
			Network:     network.String(),
		})
		family := string(network.Family())
		if addr := backend.SignerAddress(); addr != "" && !contains(resp.Signers[family], addr) {
			resp.Signers[family] = append(resp.Signers[family], addr)
		}
	}
	return resp
}

// Resources pages through the discovery catalog.
func (f *Facilitator) Resources(resourceType string, limit, offset int) ([]discovery.Resource, int) {
	return f.store.List(resourceType, limit, offset)
}

// ResourceStats summarizes the discovery catalog.
func (f *Facilitator) ResourceStats() discovery.Stats {
	return f.store.Stats()
}

// Close releases all backend connections.
func (f *Facilitator) Close() {
	for _, backend := range f.backends {
		backend.Close()
	}
}

// catalog records the resource when the requirements opt into discovery.
func (f *Facilitator) catalog(version int, reqs *types.PaymentRequirements) {
	res, ok := discovery.FromRequirements(version, reqs)
	if !ok {
		return
	}
	f.store.Merge(res)
	f.log.Debug("resource cataloged", map[string]any{"resource": res.Resource})
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
