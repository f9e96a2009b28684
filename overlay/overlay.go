// Package overlay provides the close-group resolution the vault core needs
// to find a chunk's chunk-info holders (§4.7) without owning any routing
// algorithm itself: a Kademlia-style DHT is a Non-goal (spec §1), so this
// package only defines the Overlay interface the core calls plus an
// in-memory implementation suitable for a single-process deployment or for
// tests, grounded on accountholdersmanager.h's XOR-distance close-group
// selection over a Kademlia id space.
package overlay

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"vaultd.dev/vault/types"
)

// Overlay resolves the K peers whose id is closest (by XOR distance) to a
// key in the 64-byte identifier space shared by every Pmid/ChunkName.
// amendment.Handler and servicelogic depend on this exact shape so either
// a StaticOverlay or a GroupCache-wrapped one can be handed to them
// directly.
type Overlay interface {
	FindCloseNodes(ctx context.Context, key types.ChunkName) ([]types.Pmid, error)
}

// Peer is one overlay-known contact: a vault identity plus its network
// address. Address is opaque to this package; only transport code
// (httpapi.Client) dials it.
type Peer struct {
	ID   types.Pmid
	Addr string
}

// StaticOverlay is a fixed-membership routing table: every peer it knows
// about is kept in one slice, and FindCloseNodes sorts by XOR distance
// on every call. Adequate for a devnet of a few hundred peers; a real
// deployment would replace this with a k-bucket routing table, but the
// Overlay interface above is all any caller needs.
type StaticOverlay struct {
	k int

	mu    sync.RWMutex
	peers map[types.Pmid]Peer
}

// NewStaticOverlay builds a StaticOverlay returning up to k peers per
// FindCloseNodes call.
func NewStaticOverlay(k int) *StaticOverlay {
	return &StaticOverlay{k: k, peers: make(map[types.Pmid]Peer)}
}

// Join adds or updates a peer's address.
func (o *StaticOverlay) Join(p Peer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.peers[p.ID] = p
}

// Leave removes a peer.
func (o *StaticOverlay) Leave(id types.Pmid) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.peers, id)
}

// Count reports how many peers are currently known.
func (o *StaticOverlay) Count() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.peers)
}

// Addr returns the network address a known peer registered with Join, for
// httpapi.Client to dial. Ok is false for a peer this overlay has never
// seen (or has since Leave'd).
func (o *StaticOverlay) Addr(id types.Pmid) (string, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	p, ok := o.peers[id]
	return p.Addr, ok
}

// Peers returns a defensive copy of every peer currently known, for
// diagnostics and for cmd/vaultd's startup sync, which tries the known
// peers in turn.
func (o *StaticOverlay) Peers() []Peer {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]Peer, 0, len(o.peers))
	for _, p := range o.peers {
		out = append(out, p)
	}
	return out
}

// FindCloseNodes returns the k known peer ids closest to key by XOR
// distance, ascending. Returns an error only if ctx is already done; an
// undersized result (fewer than k peers known) is returned as-is, letting
// amendment.Handler's upperThreshold check reject it if that's too few.
func (o *StaticOverlay) FindCloseNodes(ctx context.Context, key types.ChunkName) ([]types.Pmid, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("overlay: %w", err)
	}

	o.mu.RLock()
	ids := make([]types.Pmid, 0, len(o.peers))
	for id := range o.peers {
		ids = append(ids, id)
	}
	o.mu.RUnlock()

	sortByDistance(ids, key)

	if len(ids) > o.k {
		ids = ids[:o.k]
	}
	return ids, nil
}

// sortByDistance orders ids ascending by XOR distance to key.
func sortByDistance(ids []types.Pmid, key types.ChunkName) {
	sort.Slice(ids, func(i, j int) bool {
		return less(xorDistance(ids[i], key), xorDistance(ids[j], key))
	})
}

// xorDistance computes the XOR of id and key as a fixed-width byte array,
// the standard Kademlia distance metric.
func xorDistance(id types.Pmid, key types.ChunkName) [types.IDLen]byte {
	var out [types.IDLen]byte
	for i := 0; i < types.IDLen; i++ {
		out[i] = id[i] ^ key[i]
	}
	return out
}

// less compares two distances as big-endian unsigned integers.
func less(a, b [types.IDLen]byte) bool {
	for i := 0; i < types.IDLen; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
