package chunkinfo

import "vaultd.dev/vault/types"

// WatchRowSnapshot is the wire projection of one watch_list row, shared by
// the bbolt persistence layer (store.go) and the startup-sync payload
// (§4.9).
type WatchRowSnapshot struct {
	Pmid         types.Pmid `json:"pmid"`
	PaymentsDone bool       `json:"payments_done"`
	PrepaidK     bool       `json:"prepaid_k"`
	RequestedAt  int64      `json:"requested_at"`
	DupCount     int        `json:"dup_count"`
}

// WaitingRowSnapshot is the wire projection of one waiting_list row.
type WaitingRowSnapshot struct {
	WatchRowSnapshot
	ReplaceTarget *types.Pmid `json:"replace_target,omitempty"`
}

// ChunkInfoSnapshot is the full wire projection of one chunk's state.
type ChunkInfoSnapshot struct {
	Size          uint64                     `json:"size"`
	WatchList     []WatchRowSnapshot         `json:"watch_list"`
	WaitingList   []WaitingRowSnapshot       `json:"waiting_list"`
	ReferenceList []types.ReferenceListEntry `json:"reference_list"`
	WatcherCount  uint64                     `json:"watcher_count"`
}

// Snapshot pairs a ChunkInfoSnapshot with the chunk name it belongs to,
// the unit GetSyncData hands across the wire (§4.9: "serialised ...
// ChunkInfoMap").
type Snapshot struct {
	Name types.ChunkName   `json:"name"`
	Info ChunkInfoSnapshot `json:"info"`
}

func infoToSnapshot(ci *chunkInfo) ChunkInfoSnapshot {
	w := ChunkInfoSnapshot{
		Size:          ci.size,
		ReferenceList: append([]types.ReferenceListEntry(nil), ci.referenceList...),
		WatcherCount:  ci.watcherCount,
	}
	for _, r := range ci.watchList {
		w.WatchList = append(w.WatchList, WatchRowSnapshot{
			Pmid: r.pmid, PaymentsDone: r.paymentsDone, PrepaidK: r.prepaidK,
			RequestedAt: r.requestedAt, DupCount: r.dupCount,
		})
	}
	for _, r := range ci.waitingList {
		wr := WaitingRowSnapshot{WatchRowSnapshot: WatchRowSnapshot{
			Pmid: r.pmid, PaymentsDone: r.paymentsDone, PrepaidK: r.prepaidK,
			RequestedAt: r.requestedAt, DupCount: r.dupCount,
		}}
		if r.replaceTarget != nil {
			t := *r.replaceTarget
			wr.ReplaceTarget = &t
		}
		w.WaitingList = append(w.WaitingList, wr)
	}
	return w
}

func (h *Handler) snapshotToInfo(w ChunkInfoSnapshot) *chunkInfo {
	ci := &chunkInfo{
		size:          w.Size,
		referenceList: w.ReferenceList,
		watcherCount:  w.WatcherCount,
	}
	for _, r := range w.WatchList {
		ci.watchList = append(ci.watchList, watchRow{
			pmid: r.Pmid, paymentsDone: r.PaymentsDone, prepaidK: r.PrepaidK,
			requestedAt: r.RequestedAt, dupCount: r.DupCount,
		})
	}
	for _, r := range w.WaitingList {
		wr := waitingRow{
			pmid: r.Pmid, paymentsDone: r.PaymentsDone, prepaidK: r.PrepaidK,
			requestedAt: r.RequestedAt, dupCount: r.DupCount,
		}
		if r.ReplaceTarget != nil {
			t := *r.ReplaceTarget
			wr.replaceTarget = &t
		}
		ci.waitingList = append(ci.waitingList, wr)
	}
	h.recomputeChecksum(ci)
	return ci
}

func (h *Handler) snapshotMap() map[types.ChunkName]ChunkInfoSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[types.ChunkName]ChunkInfoSnapshot, len(h.infos))
	for name, ci := range h.infos {
		out[name] = infoToSnapshot(ci)
	}
	return out
}

// GetInfo returns the wire projection of a single chunk's state, for the
// GetChunkInfo RPC (§6.1).
func (h *Handler) GetInfo(c types.ChunkName) (ChunkInfoSnapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ci, ok := h.infos[c]
	if !ok {
		return ChunkInfoSnapshot{}, false
	}
	return infoToSnapshot(ci), true
}

// Snapshot returns every tracked chunk's state as a flat, wire-ready
// slice, for GetSyncData (§4.9).
func (h *Handler) Snapshot() []Snapshot {
	m := h.snapshotMap()
	out := make([]Snapshot, 0, len(m))
	for name, info := range m {
		out = append(out, Snapshot{Name: name, Info: info})
	}
	return out
}

// Restore replaces the entire chunk-info map with snaps, used when
// applying a deserialised ChunkInfoMap from GetSyncData (§4.9).
func (h *Handler) Restore(snaps []Snapshot) {
	infos := make(map[types.ChunkName]*chunkInfo, len(snaps))
	for _, s := range snaps {
		infos[s.Name] = h.snapshotToInfo(s.Info)
	}
	h.mu.Lock()
	h.infos = infos
	h.mu.Unlock()
}
