// Package discovery keeps an in-memory catalog of payable resources the
// facilitator has seen. The catalog is best-effort: it is rebuilt from
// traffic after a restart and is never persisted.
package discovery

import (
	"time"

	x402types "github.com/vitwit/x402-facilitator/types"
)

// ExtensionKey is the requirements.extra key that opts a resource into the
// catalog. Requirements without it are never recorded.
const ExtensionKey = "discovery"

// DefaultType is the resource type assumed when the extension does not name
// one.
const DefaultType = "http"

// Accept is one way a resource can be paid: a (network, asset) pair with the
// scheme, amount and recipient that apply to it.
type Accept struct {
	Scheme  string `json:"scheme"`
	Network string `json:"network"`
	Amount  string `json:"amount"`
	Asset   string `json:"asset"`
	PayTo   string `json:"payTo"`
}

// Resource is one catalog entry, keyed by its URL.
type Resource struct {
	Resource    string                 `json:"resource"`
	Type        string                 `json:"type"`
	X402Version int                    `json:"x402Version"`
	Accepts     []Accept               `json:"accepts"`
	LastUpdated time.Time              `json:"lastUpdated"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Stats summarizes the catalog.
type Stats struct {
	Resources int      `json:"resources"`
	Networks  []string `json:"networks"`
}

// Store is the catalog contract. Implementations must serialize concurrent
// Merge/List calls and give List and Stats a consistent snapshot. The
// in-memory store is the only implementation today; the interface exists so
// a durable one can replace it without touching the orchestrator.
type Store interface {
	Merge(res Resource)

	// List returns the page [offset, offset+limit) of entries of the given
	// type plus the total count before slicing. limit <= 0 means no limit;
	// callers exposing List externally are expected to clamp it.
	List(resourceType string, limit, offset int) ([]Resource, int)

	Stats() Stats
}

// FromRequirements builds a catalog entry from payment requirements. ok is
// false when the requirements do not carry the discovery extension; the
// catalog is strictly opt-in.
func FromRequirements(version int, reqs *x402types.PaymentRequirements) (Resource, bool) {
	ext, ok := reqs.Extra[ExtensionKey].(map[string]interface{})
	if !ok || reqs.Resource == "" {
		return Resource{}, false
	}

	resourceType := DefaultType
	if t, ok := ext["type"].(string); ok && t != "" {
		resourceType = t
	}

	metadata := map[string]interface{}{}
	if reqs.Description != "" {
		metadata["description"] = reqs.Description
	}
	for _, key := range []string{"description", "input", "output", "schemas"} {
		if v, ok := ext[key]; ok {
			metadata[key] = v
		}
	}

	network := reqs.Network
	if canonical, ok := x402types.ResolveNetwork(reqs.Network); ok {
		network = canonical.String()
	}

	return Resource{
		Resource:    reqs.Resource,
		Type:        resourceType,
		X402Version: version,
		Accepts: []Accept{{
			Scheme:  reqs.Scheme,
			Network: network,
			Amount:  reqs.MaxAmountRequired,
			Asset:   reqs.Asset,
			PayTo:   reqs.PayTo,
		}},
		Metadata: metadata,
	}, true
}
