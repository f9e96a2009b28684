// Package servicelogic implements VaultServiceLogic (spec §2): the thin
// layer that turns a local decision ("fan this RPC out to chunk Y's
// chunk-info group") into concurrent calls against the overlay's k
// closest nodes and aggregates the Ack/Nack responses. It owns no state
// of its own beyond the overlay handed to it; every call is a pure
// fan-out-and-collect.
package servicelogic

import (
	"context"
	"sync"
	"time"

	"vaultd.dev/vault/overlay"
	"vaultd.dev/vault/types"
)

// rpcTimeout bounds every individual outgoing call (§5: "outgoing RPCs
// are fire-and-forget with per-request timeouts of ~20 seconds").
const rpcTimeout = 20 * time.Second

// Caller issues one outgoing RPC to peer and reports its Ack/Nack
// outcome. vaultservice supplies the concrete implementation (an HTTP
// client call against the peer's RPC surface); this package only needs
// the result.
type Caller interface {
	Call(ctx context.Context, peer types.Pmid) (types.Result, error)
}

// CallerFunc adapts a plain function to Caller.
type CallerFunc func(ctx context.Context, peer types.Pmid) (types.Result, error)

func (f CallerFunc) Call(ctx context.Context, peer types.Pmid) (types.Result, error) {
	return f(ctx, peer)
}

// Logic fans local decisions out to an overlay group and aggregates
// responses.
type Logic struct {
	ov overlay.Overlay
}

func New(ov overlay.Overlay) *Logic {
	return &Logic{ov: ov}
}

// Outcome summarises one fan-out round.
type Outcome struct {
	Total     int
	Acks      int
	Nacks     int
	Failed    int // transport/timeout failures, counted separately from an explicit Nack
	Responded []types.Pmid
}

// FanOut resolves key's closest group via the overlay and calls every
// member concurrently through caller, each under its own rpcTimeout.
// Results are aggregated without any quorum judgement of its own — the
// caller (the orchestrator, for both its AddToReferenceList and
// AmendAccount fan-outs) decides what a given Outcome means.
func (l *Logic) FanOut(ctx context.Context, key types.ChunkName, caller Caller) (Outcome, error) {
	peers, err := l.ov.FindCloseNodes(ctx, key)
	if err != nil {
		return Outcome{}, err
	}

	var (
		mu  sync.Mutex
		out Outcome
		wg  sync.WaitGroup
	)
	out.Total = len(peers)
	for _, p := range peers {
		wg.Add(1)
		go func(peer types.Pmid) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, rpcTimeout)
			defer cancel()
			result, callErr := caller.Call(cctx, peer)

			mu.Lock()
			defer mu.Unlock()
			if callErr != nil {
				out.Failed++
				return
			}
			out.Responded = append(out.Responded, peer)
			if result == types.ResultAck {
				out.Acks++
			} else {
				out.Nacks++
			}
		}(p)
	}
	wg.Wait()
	return out, nil
}

// Quorum reports whether o has at least threshold acks, the aggregation
// rule used for both AddToReferenceList's chunk-info fan-out and
// AmendAccount's account-holder fan-out.
func (o Outcome) Quorum(threshold int) bool {
	return o.Acks >= threshold
}
