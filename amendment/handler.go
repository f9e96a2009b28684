// Package amendment implements the k-of-K quorum consensus for account
// mutations (spec §4.7): an amendment to PMID A's account is only applied
// once at least kKadUpperThreshold of the chunk-info holders of the
// referenced chunk have independently asserted the same amendment.
package amendment

import (
	"context"
	"fmt"
	"sync"

	"vaultd.dev/vault/account"
	"vaultd.dev/vault/types"
	"vaultd.dev/vault/vcrypto"
)

// AmendmentType enumerates the four quorum-gated amendment kinds.
// SpaceOffered is self-signed and applied directly by the orchestrator
// without going through this package (spec §4.6).
type AmendmentType int

const (
	SpaceGivenInc AmendmentType = iota
	SpaceGivenDec
	SpaceTakenInc
	SpaceTakenDec
)

func (t AmendmentType) fieldAndDirection() (account.Field, bool, error) {
	switch t {
	case SpaceGivenInc:
		return account.FieldSpaceGiven, true, nil
	case SpaceGivenDec:
		return account.FieldSpaceGiven, false, nil
	case SpaceTakenInc:
		return account.FieldSpaceTaken, true, nil
	case SpaceTakenDec:
		return account.FieldSpaceTaken, false, nil
	default:
		return 0, false, fmt.Errorf("amendment: unknown amendment type %d", t)
	}
}

// Request is one holder's assertion that account AccountPmid should be
// amended, attributed to chunk ChunkName, and signed by Signer (one of
// that chunk's chunk-info holders).
type Request struct {
	AccountPmid   types.Pmid
	ChunkName     types.ChunkName
	AmendmentType AmendmentType
	DataSize      uint64
	Signer        types.Pmid
}

// Result is the eventual outcome delivered on a ProcessRequest channel,
// the same Ack/Nack pair every other handler answers with.
type Result = types.Result

const (
	ResultAck  = types.ResultAck
	ResultNack = types.ResultNack
)

// Overlay resolves the chunk-info holder group for a chunk, so the
// handler knows which signers are eligible to contribute to quorum.
// Grounded on the source's VaultServiceLogic/kadops FindCloseNodes call.
type Overlay interface {
	FindCloseNodes(ctx context.Context, key types.ChunkName) ([]types.Pmid, error)
}

// Clock mirrors chunkinfo.Clock.
type Clock func() int64

type pendingAmending struct {
	req      Request
	resultCh chan Result
}

type accountAmendment struct {
	pmid             types.Pmid
	chunkName        types.ChunkName
	amendmentType    AmendmentType
	field            account.Field
	offer            uint64
	increase         bool
	accountName      types.AccountName
	chunkInfoHolders map[types.Pmid]bool // nil until FindCloseNodes resolves
	pendings         []pendingAmending
	probablePendings []pendingAmending
	expiryAt         int64
	successCount     int
	resolved         bool
	applyErr         error

	// finished marks an amendment that has reached quorum (one whose holder
	// group is too small to reach it is Nacked and erased instead);
	// finishedAt is when it is actually forgotten. Kept around unresolvable to new
	// contributions until then, so a late or repeated assertion from an
	// already-counted holder gets ErrAccountAmendmentNotFound immediately
	// instead of spawning a new amendment that only Nacks once it times
	// out (§6.3 kAccountAmendmentResultTimeout, §8 scenario 4).
	finished   bool
	finishedAt int64
}

type amendKey struct {
	pmid     types.Pmid
	chunk    types.ChunkName
	field    account.Field
	offer    uint64
	increase bool
}

type repeatedKey struct {
	pmid     types.Pmid
	field    account.Field
	offer    uint64
	increase bool
}

// Handler is the mutex-guarded amendment set (§5: "AccountAmendmentHandler:
// one mutex over the multi-index").
type Handler struct {
	accounts *account.Handler
	overlay  Overlay
	crypto   vcrypto.Provider
	now      Clock

	upperThreshold      int
	maxAmendments       int
	maxRepeated         int
	timeoutMillis       int64
	resultTimeoutMillis int64

	mu             sync.Mutex
	amendments     map[amendKey]*accountAmendment
	repeatedCounts map[repeatedKey]int
}

func NewHandler(accounts *account.Handler, overlay Overlay, crypto vcrypto.Provider,
	upperThreshold, maxAmendments, maxRepeated int, timeoutMillis, resultTimeoutMillis int64, now Clock) *Handler {
	if now == nil {
		now = func() int64 { return 0 }
	}
	return &Handler{
		accounts: accounts, overlay: overlay, crypto: crypto, now: now,
		upperThreshold: upperThreshold, maxAmendments: maxAmendments, maxRepeated: maxRepeated,
		timeoutMillis:       timeoutMillis,
		resultTimeoutMillis: resultTimeoutMillis,
		amendments:          make(map[amendKey]*accountAmendment),
		repeatedCounts:      make(map[repeatedKey]int),
	}
}

// ProcessRequest matches req against an existing amendment or creates a
// new one, per §4.7. On success it returns a channel that will receive
// exactly one Result once quorum is reached or the amendment expires.
// A non-nil error means the request was rejected immediately (type or
// count error, or an unrecognised/duplicate signer for an existing
// amendment) and no channel is returned.
func (h *Handler) ProcessRequest(req Request) (<-chan Result, error) {
	field, increase, err := req.AmendmentType.fieldAndDirection()
	if err != nil {
		return nil, types.NewError(types.ErrAmendAccountTypeError, err.Error())
	}

	rk := repeatedKey{pmid: req.AccountPmid, field: field, offer: req.DataSize, increase: increase}
	ak := amendKey{pmid: req.AccountPmid, chunk: req.ChunkName, field: field, offer: req.DataSize, increase: increase}
	p := pendingAmending{req: req, resultCh: make(chan Result, 1)}

	h.mu.Lock()
	if len(h.amendments) >= h.maxAmendments || h.repeatedCounts[rk] >= h.maxRepeated {
		h.mu.Unlock()
		return nil, types.NewError(types.ErrAmendAccountCountError, "amendment limit exceeded")
	}
	if am, exists := h.amendments[ak]; exists {
		if am.finished && h.now() < am.finishedAt {
			h.mu.Unlock()
			return nil, types.NewError(types.ErrAccountAmendmentNotFound, "amendment already finished")
		}
		if am.finished {
			// Result-timeout window elapsed: forget it so a fresh
			// amendment for the same tuple can start from scratch.
			h.erase(ak, rk)
		} else {
			status := h.assessAmendment(am, p)
			if status == assessFinished {
				am.finished = true
				am.finishedAt = h.now() + h.resultTimeoutMillis
			}
			h.mu.Unlock()
			if status == assessNotFound {
				return nil, types.NewError(types.ErrAccountAmendmentNotFound, "signer not recognised for this amendment")
			}
			return p.resultCh, nil
		}
	}

	am := &accountAmendment{
		pmid: req.AccountPmid, chunkName: req.ChunkName, amendmentType: req.AmendmentType,
		field: field, offer: req.DataSize, increase: increase,
		accountName:      types.DeriveAccountName(req.AccountPmid, h.crypto.Hash512),
		probablePendings: []pendingAmending{p},
		expiryAt:         h.now() + h.timeoutMillis,
	}
	h.amendments[ak] = am
	h.repeatedCounts[rk]++
	h.mu.Unlock()

	h.resolveHolders(ak, rk)
	return p.resultCh, nil
}

// resolveHolders runs the overlay lookup outside the handler's mutex and
// then populates chunk_info_holders, assessing every queued probable
// pending against the now-known group. Called synchronously by the
// request that creates a new amendment; subsequent requests for the same
// (pmid, chunk, field, offer, increase) tuple find chunk_info_holders
// already populated and skip straight to assessAmendment.
func (h *Handler) resolveHolders(ak amendKey, rk repeatedKey) {
	contacts, err := h.overlay.FindCloseNodes(context.Background(), ak.chunk)

	h.mu.Lock()
	defer h.mu.Unlock()
	am, ok := h.amendments[ak]
	if !ok {
		return // expired or already resolved by CleanUp meanwhile
	}
	if err != nil || len(contacts) < h.upperThreshold {
		for _, q := range am.probablePendings {
			deliver(q, ResultNack)
		}
		h.erase(ak, rk)
		return
	}

	am.chunkInfoHolders = make(map[types.Pmid]bool, len(contacts))
	for _, c := range contacts {
		am.chunkInfoHolders[c] = false
	}
	queue := am.probablePendings
	am.probablePendings = nil
	for _, q := range queue {
		if h.assessAmendment(am, q) == assessNotFound {
			deliver(q, ResultNack)
		}
	}
	if len(am.chunkInfoHolders) > 0 && am.successCount >= len(am.chunkInfoHolders) {
		am.finished = true
		am.finishedAt = h.now() + h.resultTimeoutMillis
	}
}

const (
	assessNotFound = iota
	assessUpdated
	assessFinished
)

// assessAmendment mutates am in response to pending, applying the account
// amendment once quorum is reached. Caller must hold h.mu.
func (h *Handler) assessAmendment(am *accountAmendment, p pendingAmending) int {
	if am.chunkInfoHolders == nil {
		for _, q := range am.probablePendings {
			if q.req.Signer == p.req.Signer {
				return assessNotFound
			}
		}
		am.probablePendings = append(am.probablePendings, p)
		return assessUpdated
	}

	done, known := am.chunkInfoHolders[p.req.Signer]
	if !known || done {
		return assessNotFound
	}
	am.chunkInfoHolders[p.req.Signer] = true
	am.successCount++
	am.pendings = append(am.pendings, p)

	if am.successCount >= h.upperThreshold {
		if !am.resolved {
			am.resolved = true
			am.applyErr = h.accounts.Amend(am.pmid, am.field, am.offer, am.increase)
		}
		result := ResultAck
		if am.applyErr != nil {
			result = ResultNack
		}
		for _, q := range am.pendings {
			deliver(q, result)
		}
		am.pendings = nil
	}

	if am.successCount >= len(am.chunkInfoHolders) {
		return assessFinished
	}
	return assessUpdated
}

func deliver(p pendingAmending, r Result) {
	p.resultCh <- r
	close(p.resultCh)
}

// erase removes an amendment and decrements its repeated-count bucket.
// Caller must hold h.mu.
func (h *Handler) erase(ak amendKey, rk repeatedKey) {
	delete(h.amendments, ak)
	h.repeatedCounts[rk]--
	if h.repeatedCounts[rk] <= 0 {
		delete(h.repeatedCounts, rk)
	}
}

// CleanUp erases every amendment whose result-timeout window has elapsed
// (Nacking any assertions that never got a final answer) and every
// unfinished amendment whose expiry has passed, returning the count
// removed. Run on a timer by the orchestrator.
func (h *Handler) CleanUp() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.now()
	removed := 0
	for ak, am := range h.amendments {
		rk := repeatedKey{pmid: am.pmid, field: am.field, offer: am.offer, increase: am.increase}

		if am.finished {
			if now < am.finishedAt {
				continue
			}
			h.erase(ak, rk)
			removed++
			continue
		}

		if am.expiryAt >= now {
			continue
		}
		for _, q := range am.probablePendings {
			deliver(q, ResultNack)
		}
		for _, q := range am.pendings {
			deliver(q, ResultNack)
		}
		h.erase(ak, rk)
		removed++
	}
	return removed
}

// Outstanding returns the number of amendments still tracked, whether still
// collecting signatures or finished and held for their result-timeout
// window, for diagnostics and tests.
func (h *Handler) Outstanding() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.amendments)
}
