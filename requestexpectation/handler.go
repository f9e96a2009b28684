// Package requestexpectation implements the short-lived "I was told to
// expect an AmendAccount for X" record of spec §2/§5. The orchestrator
// consults it when an amendment arrives at an account holder and logs one
// that has no matching record; such an amendment is not rejected.
package requestexpectation

import (
	"sync"

	"vaultd.dev/vault/types"
)

// Clock mirrors chunkinfo.Clock so this package stays free of a direct
// wall-clock dependency, matching the orchestrator's single time source.
type Clock func() int64

type expectation struct {
	chunk     types.ChunkName
	signer    types.Pmid
	expiresAt int64
}

// Handler is the mutex-guarded expectation set (§5: "RequestExpectationHandler
// ... own mutex").
type Handler struct {
	now Clock
	ttl int64

	mu      sync.Mutex
	entries map[types.AccountName][]expectation
}

func NewHandler(ttlSeconds int64, now Clock) *Handler {
	if now == nil {
		now = func() int64 { return 0 }
	}
	return &Handler{now: now, ttl: ttlSeconds, entries: make(map[types.AccountName][]expectation)}
}

// Expect records that amendments against account A referencing chunk C
// and signed by signer should be accepted for the handler's TTL window.
// Called by the orchestrator when it accepts an incoming
// AddToReferenceList, ahead of the AmendAccount assertions that follow.
func (h *Handler) Expect(account types.AccountName, c types.ChunkName, signer types.Pmid) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[account] = append(h.entries[account], expectation{
		chunk: c, signer: signer, expiresAt: h.now() + h.ttl,
	})
}

// IsExpected reports whether an amendment against account A referencing
// chunk C from signer is currently expected, consuming the matching entry
// so a second replay of the same signer/chunk is reported as unexpected.
func (h *Handler) IsExpected(account types.AccountName, c types.ChunkName, signer types.Pmid) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := h.entries[account]
	now := h.now()
	kept := list[:0]
	found := false
	for _, e := range list {
		if e.expiresAt < now {
			continue
		}
		if !found && e.chunk == c && e.signer == signer {
			found = true
			continue
		}
		kept = append(kept, e)
	}
	if len(kept) == 0 {
		delete(h.entries, account)
	} else {
		h.entries[account] = kept
	}
	return found
}

// CleanUp evicts every expired entry across all accounts and reports how
// many were removed, mirroring the expiry-sweep pattern used by
// amendment.Handler.CleanUp.
func (h *Handler) CleanUp() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.now()
	removed := 0
	for account, list := range h.entries {
		kept := list[:0]
		for _, e := range list {
			if e.expiresAt < now {
				removed++
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) == 0 {
			delete(h.entries, account)
		} else {
			h.entries[account] = kept
		}
	}
	return removed
}

// Pending reports the number of outstanding expectations for an account,
// for diagnostics and tests.
func (h *Handler) Pending(account types.AccountName) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries[account])
}
