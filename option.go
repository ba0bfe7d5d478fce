package facilitator

import (
	"github.com/vitwit/x402-facilitator/clients"
	"github.com/vitwit/x402-facilitator/discovery"
	"github.com/vitwit/x402-facilitator/logger"
	"github.com/vitwit/x402-facilitator/metrics"
	"github.com/vitwit/x402-facilitator/types"
)

type Option func(*Facilitator)

func WithLogger(l logger.Logger) Option {
	return func(f *Facilitator) {
		f.log = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(f *Facilitator) {
		f.metrics = r
	}
}

// WithStore swaps the discovery catalog backing store.
func WithStore(s discovery.Store) Option {
	return func(f *Facilitator) {
		f.store = s
	}
}

// WithBackend registers a backend for a network directly, replacing whatever
// configuration would have built for it.
func WithBackend(network types.Network, c clients.Client) Option {
	return func(f *Facilitator) {
		f.backends[network] = c
	}
}
