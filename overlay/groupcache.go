package overlay

import (
	"context"
	"sync"

	"vaultd.dev/vault/types"
)

// GroupCache wraps an Overlay with the account-holder-group caching
// pattern of the original AccountHoldersManager: rather than re-running a
// close-nodes lookup for every amendment against the same account, cache
// the resolved group for up to maxAge and only refresh early if enough of
// the cached peers have individually failed.
//
// kMaxFailedNodes_ in the source is kKadLowerThreshold - 1: the cache is
// invalidated once that many distinct cached peers have been reported
// failing, even if maxAge hasn't elapsed, because the group can no longer
// reach quorum. kMaxFailsPerNode_ bounds how many failures a single peer
// tolerates before it alone is evicted from the cached group.
type GroupCache struct {
	upstream        Overlay
	maxAgeMillis    int64
	maxFailedNodes  int
	maxFailsPerNode int
	now             func() int64

	mu     sync.Mutex
	groups map[types.ChunkName]*cachedGroup
}

type cachedGroup struct {
	peers     []types.Pmid
	fetchedAt int64
	fails     map[types.Pmid]int
}

// NewGroupCache constructs a GroupCache. maxFailedNodes should be
// kKadLowerThreshold-1 (the quorum lower bound minus one, per the source);
// maxFailsPerNode is typically 2.
func NewGroupCache(upstream Overlay, maxAgeMillis int64, maxFailedNodes, maxFailsPerNode int, now func() int64) *GroupCache {
	if now == nil {
		now = func() int64 { return 0 }
	}
	return &GroupCache{
		upstream: upstream, maxAgeMillis: maxAgeMillis,
		maxFailedNodes: maxFailedNodes, maxFailsPerNode: maxFailsPerNode,
		now: now, groups: make(map[types.ChunkName]*cachedGroup),
	}
}

// FindCloseNodes satisfies the Overlay interface, serving from cache when
// fresh and not excessively failed, else delegating upstream and
// refreshing the entry.
func (g *GroupCache) FindCloseNodes(ctx context.Context, key types.ChunkName) ([]types.Pmid, error) {
	g.mu.Lock()
	cached, ok := g.groups[key]
	if ok && g.updateRequiredLocked(cached) {
		ok = false
	}
	g.mu.Unlock()

	if ok {
		return append([]types.Pmid(nil), cached.peers...), nil
	}

	peers, err := g.upstream.FindCloseNodes(ctx, key)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.groups[key] = &cachedGroup{peers: peers, fetchedAt: g.now(), fails: make(map[types.Pmid]int)}
	g.mu.Unlock()
	return append([]types.Pmid(nil), peers...), nil
}

// updateRequiredLocked mirrors AccountHoldersManager::UpdateRequired: a
// cached group is stale once it has aged past maxAgeMillis, or once at
// least maxFailedNodes of its peers have been reported as failed. Caller
// must hold g.mu.
func (g *GroupCache) updateRequiredLocked(c *cachedGroup) bool {
	if g.now()-c.fetchedAt > g.maxAgeMillis {
		return true
	}
	return len(c.fails) >= g.maxFailedNodes
}

// ReportFailure records a failed RPC to peer for key's cached group. Once
// a peer accumulates maxFailsPerNode failures it is dropped from the
// cached group immediately (the next FindCloseNodes call for other peers
// still serves from cache); once maxFailedNodes distinct peers have
// failed at all, the whole group is invalidated on the next lookup.
func (g *GroupCache) ReportFailure(key types.ChunkName, peer types.Pmid) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.groups[key]
	if !ok {
		return
	}
	c.fails[peer]++
	if c.fails[peer] < g.maxFailsPerNode {
		return
	}
	for i, p := range c.peers {
		if p == peer {
			c.peers = append(c.peers[:i], c.peers[i+1:]...)
			break
		}
	}
}

// Invalidate drops key's cached group outright, forcing the next
// FindCloseNodes call to re-resolve upstream.
func (g *GroupCache) Invalidate(key types.ChunkName) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.groups, key)
}
