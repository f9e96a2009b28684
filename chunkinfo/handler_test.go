package chunkinfo

import (
	"testing"

	"vaultd.dev/vault/types"
	"vaultd.dev/vault/vcrypto"
)

func pmid(b byte) types.Pmid {
	var p types.Pmid
	p[0] = b
	return p
}

func chunk(b byte) types.ChunkName {
	var c types.ChunkName
	c[0] = b
	return c
}

func newTestHandler(k int) *Handler {
	var tick int64
	clk := func() int64 { tick++; return tick }
	return NewHandler(k, vcrypto.StdProvider{}, clk)
}

func TestPrepareAddToWatchListColdStore(t *testing.T) {
	h := newTestHandler(4)
	c := chunk(1)
	w := pmid(1)

	reqRefs, reqPay, err := h.PrepareAddToWatchList(c, w, 100)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if reqRefs != 4 || reqPay != 1 {
		t.Fatalf("expected (4,1) on cold store, got (%d,%d)", reqRefs, reqPay)
	}
	if h.WatchListLen(c) != 1 {
		t.Fatalf("expected 1 watch_list row, got %d", h.WatchListLen(c))
	}
}

func TestPrepareAddToWatchListDedupOnSecondWatcher(t *testing.T) {
	h := newTestHandler(4)
	c := chunk(2)
	w1, w2 := pmid(1), pmid(2)

	if _, _, err := h.PrepareAddToWatchList(c, w1, 100); err != nil {
		t.Fatalf("prepare w1: %v", err)
	}
	if err := h.AddToReferenceList(c, pmid(50), 100); err != nil {
		t.Fatalf("add reference: %v", err)
	}
	reqRefs, reqPay, err := h.PrepareAddToWatchList(c, w2, 100)
	if err != nil {
		t.Fatalf("prepare w2: %v", err)
	}
	if reqRefs != 3 || reqPay != 1 {
		t.Fatalf("expected (3,1) for second watcher, got (%d,%d)", reqRefs, reqPay)
	}
	if h.WatchListLen(c) != 2 {
		t.Fatalf("expected 2 watch_list rows, got %d", h.WatchListLen(c))
	}
}

func TestPrepareAddToWatchListSizeMismatchRejected(t *testing.T) {
	h := newTestHandler(4)
	c := chunk(3)
	w1, w2 := pmid(1), pmid(2)
	if _, _, err := h.PrepareAddToWatchList(c, w1, 100); err != nil {
		t.Fatalf("prepare w1: %v", err)
	}
	if _, _, err := h.PrepareAddToWatchList(c, w2, 200); types.CodeOf(err) != types.ErrChunkInfoInvalidSize {
		t.Fatalf("expected ErrChunkInfoInvalidSize, got %v", err)
	}
}

func TestDuplicateWatchIncrementsCountWithoutNewRow(t *testing.T) {
	h := newTestHandler(4)
	c := chunk(4)
	w := pmid(1)
	if _, _, err := h.PrepareAddToWatchList(c, w, 100); err != nil {
		t.Fatalf("prepare 1: %v", err)
	}
	reqRefs, reqPay, err := h.PrepareAddToWatchList(c, w, 100)
	if err != nil {
		t.Fatalf("prepare 2: %v", err)
	}
	if reqRefs != 0 || reqPay != 0 {
		t.Fatalf("expected (0,0) for duplicate watch, got (%d,%d)", reqRefs, reqPay)
	}
	if h.WatchListLen(c) != 1 {
		t.Fatalf("expected still 1 row, got %d", h.WatchListLen(c))
	}
	if h.WatcherCount(c) != 2 {
		t.Fatalf("expected watcher_count=2, got %d", h.WatcherCount(c))
	}
}

func TestTryCommitAlreadyActiveIsTrivialTrue(t *testing.T) {
	h := newTestHandler(4)
	c := chunk(5)
	w := pmid(1)
	if _, _, err := h.PrepareAddToWatchList(c, w, 100); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if err := h.MarkPaymentsDone(c, w); err != nil {
		t.Fatalf("mark payments done: %v", err)
	}
	if err := h.AddToReferenceList(c, pmid(50), 100); err != nil {
		t.Fatalf("add reference: %v", err)
	}
	committed, replaced, refunds, err := h.TryCommitToWatchList(c, w)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if !committed || replaced != nil || refunds != 0 {
		t.Fatalf("expected (true,nil,0), got (%v,%v,%d)", committed, replaced, refunds)
	}
}

func TestAddToReferenceListPromotesWaitingWatcherIntoFullList(t *testing.T) {
	h := newTestHandler(2)
	c := chunk(6)

	for i := byte(1); i <= 2; i++ {
		if _, _, err := h.PrepareAddToWatchList(c, pmid(i), 100); err != nil {
			t.Fatalf("prepare w%d: %v", i, err)
		}
	}
	if h.WatchListLen(c) != 2 {
		t.Fatalf("expected watch_list full at K=2, got %d", h.WatchListLen(c))
	}

	w3 := pmid(3)
	_, reqPay, err := h.PrepareAddToWatchList(c, w3, 100)
	if err != nil {
		t.Fatalf("prepare w3: %v", err)
	}
	if reqPay != 2 {
		t.Fatalf("expected prepay K=2 for probationary displacement, got %d", reqPay)
	}

	if err := h.MarkPaymentsDone(c, w3); err != nil {
		t.Fatalf("mark payments done: %v", err)
	}
	committed, _, _, err := h.TryCommitToWatchList(c, w3)
	if err != nil {
		t.Fatalf("commit w3 before any reference: %v", err)
	}
	if committed {
		t.Fatalf("expected w3 not committed before any reference exists")
	}

	holder := pmid(100)
	if err := h.AddToReferenceList(c, holder, 100); err != nil {
		t.Fatalf("add reference: %v", err)
	}

	promotions := h.SweepWaitingList(c)
	if len(promotions) != 1 || promotions[0].Pmid != w3 {
		t.Fatalf("expected w3 to be the sole promotion, got %+v", promotions)
	}
	if promotions[0].Replaced == nil {
		t.Fatalf("expected a displaced probationary watcher")
	}
	if promotions[0].Refunds != 1 {
		t.Fatalf("expected refunds=K-1=1, got %d", promotions[0].Refunds)
	}
	if h.WatchListLen(c) != 2 {
		t.Fatalf("expected watch_list to stay at K=2 after promotion, got %d", h.WatchListLen(c))
	}
}

func TestRemoveFromWatchListLastWatcherDerefsHolders(t *testing.T) {
	h := newTestHandler(4)
	c := chunk(7)
	w := pmid(1)
	holder := pmid(50)

	if _, _, err := h.PrepareAddToWatchList(c, w, 100); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if err := h.AddToReferenceList(c, holder, 100); err != nil {
		t.Fatalf("add reference: %v", err)
	}

	size, credits, derefs, err := h.RemoveFromWatchList(c, w)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if size != 100 {
		t.Fatalf("expected chunk size 100, got %d", size)
	}
	if len(credits) != 1 || credits[0] != w {
		t.Fatalf("expected credit to w alone, got %v", credits)
	}
	if len(derefs) != 1 || derefs[0] != holder {
		t.Fatalf("expected deref of holder, got %v", derefs)
	}
	if h.Exists(c) {
		t.Fatalf("expected chunk info to be destroyed once empty")
	}
}

func TestRemoveFromWatchListWithRemainingWatcherKeepsChunkAlive(t *testing.T) {
	h := newTestHandler(4)
	c := chunk(8)
	w1, w2 := pmid(1), pmid(2)
	holder := pmid(50)

	if _, _, err := h.PrepareAddToWatchList(c, w1, 100); err != nil {
		t.Fatalf("prepare w1: %v", err)
	}
	if _, _, err := h.PrepareAddToWatchList(c, w2, 100); err != nil {
		t.Fatalf("prepare w2: %v", err)
	}
	if err := h.AddToReferenceList(c, holder, 100); err != nil {
		t.Fatalf("add reference: %v", err)
	}

	_, _, derefs, err := h.RemoveFromWatchList(c, w1)
	if err != nil {
		t.Fatalf("remove w1: %v", err)
	}
	if len(derefs) != 0 {
		t.Fatalf("expected no deref while w2 remains, got %v", derefs)
	}
	if !h.Exists(c) {
		t.Fatalf("expected chunk info to survive while w2 remains")
	}
}

func TestGetActiveReferencesFailsWhenNoWatchers(t *testing.T) {
	h := newTestHandler(4)
	c := chunk(9)
	if _, err := h.GetActiveReferences(c); types.CodeOf(err) != types.ErrChunkInfoNoActiveWatchers {
		t.Fatalf("expected ErrChunkInfoNoActiveWatchers, got %v", err)
	}
}

func TestAddToReferenceListRejectsDuplicateHolder(t *testing.T) {
	h := newTestHandler(4)
	c := chunk(10)
	w := pmid(1)
	holder := pmid(50)
	if _, _, err := h.PrepareAddToWatchList(c, w, 100); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if err := h.AddToReferenceList(c, holder, 100); err != nil {
		t.Fatalf("add reference: %v", err)
	}
	if err := h.AddToReferenceList(c, holder, 100); err == nil {
		t.Fatalf("expected rejection of duplicate holder")
	}
}

func TestGetInfoReflectsWatchAndReferenceLists(t *testing.T) {
	h := newTestHandler(4)
	c := chunk(11)
	w := pmid(1)
	holder := pmid(51)

	if _, ok := h.GetInfo(c); ok {
		t.Fatalf("expected no info for an unknown chunk")
	}

	if _, _, err := h.PrepareAddToWatchList(c, w, 100); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if err := h.AddToReferenceList(c, holder, 100); err != nil {
		t.Fatalf("add reference: %v", err)
	}

	snap, ok := h.GetInfo(c)
	if !ok {
		t.Fatalf("expected info for a known chunk")
	}
	if snap.Size != 100 {
		t.Fatalf("expected size 100, got %d", snap.Size)
	}
	if len(snap.WatchList) != 1 || snap.WatchList[0].Pmid != w {
		t.Fatalf("expected watcher %v in snapshot, got %+v", w, snap.WatchList)
	}
	if len(snap.ReferenceList) != 1 || snap.ReferenceList[0].Pmid != holder {
		t.Fatalf("expected holder %v in snapshot, got %+v", holder, snap.ReferenceList)
	}
}
