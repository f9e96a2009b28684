package vaultservice

import (
	"context"
	"sync"

	"vaultd.dev/vault/amendment"
	"vaultd.dev/vault/types"
)

// LoopbackTransport dispatches Transport calls directly to other
// Orchestrators registered in the same process, skipping any wire
// encoding. Used by tests and by a single-process devnet; a real
// deployment uses httpapi's HTTP-backed Transport instead.
type LoopbackTransport struct {
	mu    sync.RWMutex
	peers map[types.Pmid]*Orchestrator
}

func NewLoopbackTransport() *LoopbackTransport {
	return &LoopbackTransport{peers: make(map[types.Pmid]*Orchestrator)}
}

// Register makes o reachable under its own PMID.
func (t *LoopbackTransport) Register(pmid types.Pmid, o *Orchestrator) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peers[pmid] = o
}

func (t *LoopbackTransport) peer(pmid types.Pmid) (*Orchestrator, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	o, ok := t.peers[pmid]
	return o, ok
}

func (t *LoopbackTransport) AddToReferenceList(ctx context.Context, peer types.Pmid, chunkName types.ChunkName, contract types.StoreContract) (types.Result, error) {
	o, ok := t.peer(peer)
	if !ok {
		return types.ResultNack, types.NewError(types.ErrNotFromClosestGroup, "unknown peer")
	}
	return o.AddToReferenceList(chunkName, contract), nil
}

func (t *LoopbackTransport) AmendAccount(ctx context.Context, peer types.Pmid, req amendment.Request) (types.Result, error) {
	o, ok := t.peer(peer)
	if !ok {
		return types.ResultNack, types.NewError(types.ErrNotFromClosestGroup, "unknown peer")
	}
	return o.AmendAccount(ctx, req, false), nil
}

func (t *LoopbackTransport) DeleteChunk(ctx context.Context, peer types.Pmid, chunkName types.ChunkName) (types.Result, error) {
	o, ok := t.peer(peer)
	if !ok {
		return types.ResultNack, types.NewError(types.ErrNotFromClosestGroup, "unknown peer")
	}
	return o.Deref(chunkName), nil
}
