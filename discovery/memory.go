package discovery

import (
	"sort"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

type entry struct {
	res Resource
	seq int64
}

// MemoryStore is the process-wide catalog. A single RWMutex guards the map;
// List and Stats copy under the read lock so iteration never observes a
// half-applied merge.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*entry
	nextSeq int64
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Merge inserts or updates the entry for res.Resource. On update the accepts
// list is unioned by (network, asset) key with existing entries left
// untouched, the larger x402Version wins, lastUpdated is overwritten and
// metadata is shallow-merged.
func (s *MemoryStore) Merge(res Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.entries[res.Resource]
	if !ok {
		res.LastUpdated = s.now()
		s.entries[res.Resource] = &entry{res: res, seq: s.nextSeq}
		s.nextSeq++
		return
	}

	cur := &existing.res
	for _, accept := range res.Accepts {
		if !hasAccept(cur.Accepts, accept.Network, accept.Asset) {
			cur.Accepts = append(cur.Accepts, accept)
		}
	}
	if res.X402Version > cur.X402Version {
		cur.X402Version = res.X402Version
	}
	if res.Type != "" {
		cur.Type = res.Type
	}
	if cur.Metadata == nil && len(res.Metadata) > 0 {
		cur.Metadata = make(map[string]interface{}, len(res.Metadata))
	}
	for k, v := range res.Metadata {
		cur.Metadata[k] = v
	}
	cur.LastUpdated = s.now()
}

// List returns the page [offset, offset+limit) of resources of the given
// type, newest first, plus the total count before slicing. limit <= 0 means
// no limit. Entries with the same timestamp keep their insertion order.
func (s *MemoryStore) List(resourceType string, limit, offset int) ([]Resource, int) {
	s.mu.RLock()
	matched := make([]entry, 0, len(s.entries))
	for _, e := range s.entries {
		if resourceType != "" && e.res.Type != resourceType {
			continue
		}
		matched = append(matched, entry{res: cloneResource(e.res), seq: e.seq})
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.res.LastUpdated.Equal(b.res.LastUpdated) {
			return a.res.LastUpdated.After(b.res.LastUpdated)
		}
		return a.seq < b.seq
	})

	total := len(matched)
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}

	page := make([]Resource, 0, end-offset)
	for _, e := range matched[offset:end] {
		page = append(page, e.res)
	}
	return page, total
}

// Stats reports the entry count and the distinct networks referenced across
// all accepts lists.
func (s *MemoryStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, e := range s.entries {
		for _, accept := range e.res.Accepts {
			seen[accept.Network] = struct{}{}
		}
	}
	networks := make([]string, 0, len(seen))
	for n := range seen {
		networks = append(networks, n)
	}
	sort.Strings(networks)

	return Stats{Resources: len(s.entries), Networks: networks}
}

func hasAccept(accepts []Accept, network, asset string) bool {
	for _, a := range accepts {
		if a.Network == network && a.Asset == asset {
			return true
		}
	}
	return false
}

func cloneResource(res Resource) Resource {
	out := res
	out.Accepts = append([]Accept(nil), res.Accepts...)
	if res.Metadata != nil {
		out.Metadata = make(map[string]interface{}, len(res.Metadata))
		for k, v := range res.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
