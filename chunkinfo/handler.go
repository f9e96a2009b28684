// Package chunkinfo implements the dedup/reference-counting brain of
// spec §4.4: the per-chunk watch-list engine. A chunk is stored at most
// once per holder regardless of how many clients watch it; removal is
// only effective once the last watcher departs.
package chunkinfo

import (
	"sync"

	"vaultd.dev/vault/types"
	"vaultd.dev/vault/vcrypto"
)

// watchRow is one entry of a chunk's watch_list (§3.1), extended with the
// internal paymentsDone/prepaidK bookkeeping needed to drive
// TryCommitToWatchList and the prepayment/refund model of §4.4.1. The
// wire-visible projection is WatchRowSnapshot (snapshot.go).
type watchRow struct {
	pmid         types.Pmid
	paymentsDone bool
	prepaidK     bool
	requestedAt  int64
	dupCount     int
}

// waitingRow is one entry of a chunk's waiting_list: a watcher queued
// behind a full watch_list, possibly already slated to replace a specific
// probationary row.
type waitingRow struct {
	pmid          types.Pmid
	paymentsDone  bool
	prepaidK      bool
	requestedAt   int64
	dupCount      int
	replaceTarget *types.Pmid
}

// chunkInfo is the full internal state of one chunk (§3.1).
type chunkInfo struct {
	size          uint64
	watchList     []watchRow
	waitingList   []waitingRow
	referenceList []types.ReferenceListEntry
	watcherCount  uint64
	checksum      [32]byte
}

// Clock lets tests and the orchestrator supply a monotonic-ish time
// source without this package depending on wall-clock time directly.
type Clock func() int64

// Handler is the mutex-guarded chunk-info map (§5: "ChunkInfoHandler: one
// mutex per handler guarding the map").
type Handler struct {
	k      int
	crypto vcrypto.Provider
	now    Clock

	mu    sync.Mutex
	infos map[types.ChunkName]*chunkInfo
}

func NewHandler(k int, crypto vcrypto.Provider, now Clock) *Handler {
	if now == nil {
		now = func() int64 { return 0 }
	}
	return &Handler{k: k, crypto: crypto, now: now, infos: make(map[types.ChunkName]*chunkInfo)}
}

func hasReference(ci *chunkInfo) bool { return len(ci.referenceList) > 0 }

// isProbationary reports whether row is a candidate for displacement: an
// unpaid watcher with no store yet confirmed anywhere for this chunk
// (§3.1 invariant 3).
func isProbationary(row watchRow, ci *chunkInfo) bool {
	return !row.paymentsDone && !hasReference(ci)
}

func (h *Handler) recomputeChecksum(ci *chunkInfo) {
	buf := make([]byte, 0, 64*len(ci.watchList))
	for _, r := range ci.watchList {
		buf = append(buf, r.pmid[:]...)
		if r.paymentsDone {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	}
	ci.checksum = h.crypto.ChecksumSeed(buf)
}

// PrepareAddToWatchList registers a newcomer watcher W for chunk C of
// size S, per §4.4. Returns the number of references the caller should
// still try to obtain and the number of payment units W owes.
func (h *Handler) PrepareAddToWatchList(c types.ChunkName, w types.Pmid, size uint64) (requiredReferences, requiredPayments int, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ci, ok := h.infos[c]
	if !ok {
		ci = &chunkInfo{size: size}
		h.infos[c] = ci
	} else if ci.size != size {
		return 0, 0, types.NewError(types.ErrChunkInfoInvalidSize, "chunk size does not match stored size")
	}

	now := h.now()

	if idx := findWatchRow(ci, w); idx >= 0 {
		ci.watchList[idx].dupCount++
		ci.watcherCount++
		return 0, 0, nil
	}
	if idx := findWaitingRow(ci, w); idx >= 0 {
		ci.waitingList[idx].dupCount++
		ci.watcherCount++
		return 0, 0, nil
	}

	if len(ci.watchList) < h.k {
		ci.watchList = append(ci.watchList, watchRow{pmid: w, requestedAt: now, dupCount: 1})
		ci.watcherCount++
		h.recomputeChecksum(ci)
		requiredReferences = 0
		if len(ci.referenceList) < h.k {
			requiredReferences = h.k - len(ci.referenceList)
		}
		return requiredReferences, 1, nil
	}

	// watch_list is full: look for the oldest probationary entry.
	pIdx := oldestProbationary(ci)
	ci.watcherCount++
	if pIdx >= 0 {
		target := ci.watchList[pIdx].pmid
		ci.waitingList = append(ci.waitingList, waitingRow{
			pmid: w, requestedAt: now, dupCount: 1,
			prepaidK: true, replaceTarget: &target,
		})
		return 0, h.k, nil
	}

	ci.waitingList = append(ci.waitingList, waitingRow{pmid: w, requestedAt: now, dupCount: 1})
	return 0, 1, nil
}

func findWatchRow(ci *chunkInfo, w types.Pmid) int {
	for i, r := range ci.watchList {
		if r.pmid == w {
			return i
		}
	}
	return -1
}

func findWaitingRow(ci *chunkInfo, w types.Pmid) int {
	for i, r := range ci.waitingList {
		if r.pmid == w {
			return i
		}
	}
	return -1
}

func oldestProbationary(ci *chunkInfo) int {
	best := -1
	for i, r := range ci.watchList {
		if !isProbationary(r, ci) {
			continue
		}
		if best == -1 || r.requestedAt < ci.watchList[best].requestedAt {
			best = i
		}
	}
	return best
}

// MarkPaymentsDone flags W's pending row (active or waiting) as paid,
// mirroring the source's SetPaymentsDone. The orchestrator calls this
// once the corresponding SpaceTakenInc amendment reaches quorum.
func (h *Handler) MarkPaymentsDone(c types.ChunkName, w types.Pmid) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	ci, ok := h.infos[c]
	if !ok {
		return types.NewError(types.ErrChunkInfoInvalidName, "unknown chunk")
	}
	if idx := findWatchRow(ci, w); idx >= 0 {
		ci.watchList[idx].paymentsDone = true
		h.recomputeChecksum(ci)
		return nil
	}
	if idx := findWaitingRow(ci, w); idx >= 0 {
		ci.waitingList[idx].paymentsDone = true
		return nil
	}
	return types.NewError(types.ErrChunkInfoInvalidName, "unknown watcher")
}

// TryCommitToWatchList attempts to commit W's row for chunk C, per §4.4.
// A row is committed iff payments_done AND the chunk has at least one
// reference anywhere (the dedup invariant: watchers don't need a holder
// matching their own pmid, only proof the chunk is stored somewhere).
func (h *Handler) TryCommitToWatchList(c types.ChunkName, w types.Pmid) (committed bool, replaced *types.Pmid, refunds uint16, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ci, ok := h.infos[c]
	if !ok {
		return false, nil, 0, types.NewError(types.ErrChunkInfoInvalidName, "unknown chunk")
	}

	if idx := findWatchRow(ci, w); idx >= 0 {
		row := ci.watchList[idx]
		if row.paymentsDone && hasReference(ci) {
			return true, nil, 0, nil
		}
		return false, nil, 0, nil
	}

	idx := findWaitingRow(ci, w)
	if idx < 0 {
		return false, nil, 0, types.NewError(types.ErrChunkInfoInvalidName, "unknown watcher")
	}
	row := ci.waitingList[idx]
	if !(row.paymentsDone && hasReference(ci)) {
		return false, nil, 0, nil
	}

	refundUnits := uint16(0)
	if row.prepaidK {
		refundUnits = uint16(h.k - 1)
	}

	if row.replaceTarget != nil {
		if pIdx := findWatchRow(ci, *row.replaceTarget); pIdx >= 0 {
			replacedPmid := ci.watchList[pIdx].pmid
			ci.watchList[pIdx] = watchRow{
				pmid: w, paymentsDone: true, requestedAt: row.requestedAt, dupCount: row.dupCount,
			}
			ci.waitingList = append(ci.waitingList[:idx], ci.waitingList[idx+1:]...)
			h.recomputeChecksum(ci)
			return true, &replacedPmid, refundUnits, nil
		}
	}

	if len(ci.watchList) < h.k {
		ci.watchList = append(ci.watchList, watchRow{
			pmid: w, paymentsDone: true, requestedAt: row.requestedAt, dupCount: row.dupCount,
		})
		ci.waitingList = append(ci.waitingList[:idx], ci.waitingList[idx+1:]...)
		h.recomputeChecksum(ci)
		return true, nil, refundUnits, nil
	}

	return false, nil, 0, nil
}

// AddToReferenceList records that holder H now stores chunk C at size S
// (§4.4/§4.5). Once it returns, the caller should invoke
// SweepWaitingList(C) to attempt promotion of any queued watcher now that
// a reference exists, collecting the replaced-pmid/refund results needed
// to issue the matching account credits.
func (h *Handler) AddToReferenceList(c types.ChunkName, holder types.Pmid, size uint64) error {
	h.mu.Lock()
	ci, ok := h.infos[c]
	if !ok {
		h.mu.Unlock()
		return types.NewError(types.ErrChunkInfoInvalidName, "unknown chunk")
	}
	if ci.size != size {
		h.mu.Unlock()
		return types.NewError(types.ErrChunkInfoInvalidSize, "size does not match stored size")
	}
	for _, r := range ci.referenceList {
		if r.Pmid == holder {
			h.mu.Unlock()
			return types.NewError(types.ErrChunkInfoInvalidName, "holder already on reference list")
		}
	}
	ci.referenceList = append(ci.referenceList, types.ReferenceListEntry{Pmid: holder, Size: size, StoredAt: h.now()})
	h.mu.Unlock()
	return nil
}

// Promotion describes one waiting watcher committed by SweepWaitingList.
type Promotion struct {
	Pmid     types.Pmid
	Replaced *types.Pmid
	Refunds  uint16
}

// WaitingWatchers returns the FIFO-ordered waiting_list pmids for C.
func (h *Handler) WaitingWatchers(c types.ChunkName) []types.Pmid {
	h.mu.Lock()
	defer h.mu.Unlock()
	ci, ok := h.infos[c]
	if !ok {
		return nil
	}
	out := make([]types.Pmid, 0, len(ci.waitingList))
	for _, r := range ci.waitingList {
		out = append(out, r.pmid)
	}
	return out
}

// SweepWaitingList attempts TryCommitToWatchList for every currently
// waiting watcher of C, in FIFO order, repeating passes until one
// produces no further promotion. Callers use the returned Promotions to
// issue the matching SpaceTakenDec account credits.
func (h *Handler) SweepWaitingList(c types.ChunkName) []Promotion {
	var promoted []Promotion
	for {
		candidates := h.WaitingWatchers(c)
		if len(candidates) == 0 {
			return promoted
		}
		progressed := false
		for _, w := range candidates {
			committed, replaced, refunds, err := h.TryCommitToWatchList(c, w)
			if err != nil {
				return promoted
			}
			if committed {
				promoted = append(promoted, Promotion{Pmid: w, Replaced: replaced, Refunds: refunds})
				progressed = true
			}
		}
		if !progressed {
			return promoted
		}
	}
}

// GetActiveReferences returns the holder set for C, failing with
// ErrChunkInfoNoActiveWatchers if watcher_count is zero.
func (h *Handler) GetActiveReferences(c types.ChunkName) ([]types.Pmid, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ci, ok := h.infos[c]
	if !ok || ci.watcherCount == 0 {
		return nil, types.NewError(types.ErrChunkInfoNoActiveWatchers, "no active watchers")
	}
	out := make([]types.Pmid, 0, len(ci.referenceList))
	for _, r := range ci.referenceList {
		out = append(out, r.Pmid)
	}
	return out, nil
}

// RemoveFromWatchList removes watcher W's interest in C, per §4.4.
// credit_pmids are PMIDs owed one refunded payment unit each (W once per
// paid unit it holds — 1 normally, K if it was a prepaying replacement
// that never got its K-1 refund, preserving the pay-in/pay-out invariant
// of §8). deref_pmids are reference holders to instruct to delete C,
// populated only once both lists become empty.
func (h *Handler) RemoveFromWatchList(c types.ChunkName, w types.Pmid) (chunkSize uint64, creditPmids []types.Pmid, derefPmids []types.Pmid, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ci, ok := h.infos[c]
	if !ok {
		return 0, nil, nil, types.NewError(types.ErrChunkInfoInvalidName, "unknown chunk")
	}

	removed := false
	if idx := findWatchRow(ci, w); idx >= 0 {
		ci.watcherCount--
		ci.watchList[idx].dupCount--
		if ci.watchList[idx].dupCount <= 0 {
			units := 1
			if ci.watchList[idx].prepaidK {
				units = h.k
			}
			for i := 0; i < units; i++ {
				creditPmids = append(creditPmids, w)
			}
			ci.watchList = append(ci.watchList[:idx], ci.watchList[idx+1:]...)
			removed = true
		}
		h.recomputeChecksum(ci)
	} else if idx := findWaitingRow(ci, w); idx >= 0 {
		ci.watcherCount--
		ci.waitingList[idx].dupCount--
		if ci.waitingList[idx].dupCount <= 0 {
			units := 1
			if ci.waitingList[idx].prepaidK {
				units = h.k
			}
			for i := 0; i < units; i++ {
				creditPmids = append(creditPmids, w)
			}
			ci.waitingList = append(ci.waitingList[:idx], ci.waitingList[idx+1:]...)
			removed = true
		}
	} else {
		return 0, nil, nil, types.NewError(types.ErrChunkInfoInvalidName, "watcher not found")
	}

	if removed && len(ci.watchList) == 0 && len(ci.waitingList) == 0 {
		for _, r := range ci.referenceList {
			derefPmids = append(derefPmids, r.Pmid)
		}
		ci.referenceList = nil
		delete(h.infos, c)
	}

	return ci.size, creditPmids, derefPmids, nil
}

// ChunkSize returns the fixed size of C, if known.
func (h *Handler) ChunkSize(c types.ChunkName) (uint64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ci, ok := h.infos[c]
	if !ok {
		return 0, false
	}
	return ci.size, true
}

// WatcherCount returns the monotonic watcher_count for C.
func (h *Handler) WatcherCount(c types.ChunkName) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ci, ok := h.infos[c]; ok {
		return ci.watcherCount
	}
	return 0
}

// WatchListLen and ReferenceListLen expose the two list sizes, for the
// §8 invariant checks (|watch_list| ≤ K, |reference_list| ≤ K).
func (h *Handler) WatchListLen(c types.ChunkName) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ci, ok := h.infos[c]; ok {
		return len(ci.watchList)
	}
	return 0
}

func (h *Handler) ReferenceListLen(c types.ChunkName) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ci, ok := h.infos[c]; ok {
		return len(ci.referenceList)
	}
	return 0
}

// Checksum returns the chunk's current watcher_checksum rolling summary.
func (h *Handler) Checksum(c types.ChunkName) ([32]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ci, ok := h.infos[c]; ok {
		return ci.checksum, true
	}
	return [32]byte{}, false
}

// Exists reports whether C has any tracked state.
func (h *Handler) Exists(c types.ChunkName) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.infos[c]
	return ok
}
