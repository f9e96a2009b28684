// Package vaultservice wires every handler package into the single
// per-vault state machine of spec §4.8: IdentityValidator, ChunkStore,
// AccountHandler, ChunkInfoHandler, RequestExpectationHandler and
// AccountAmendmentHandler are all leaves; Orchestrator is the one type
// that owns all of them and answers the RPC surface of §6.1.
package vaultservice

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"vaultd.dev/vault/account"
	"vaultd.dev/vault/amendment"
	"vaultd.dev/vault/chunkinfo"
	"vaultd.dev/vault/chunkstore"
	"vaultd.dev/vault/config"
	"vaultd.dev/vault/identity"
	"vaultd.dev/vault/requestexpectation"
	"vaultd.dev/vault/servicelogic"
	"vaultd.dev/vault/types"
	"vaultd.dev/vault/vcrypto"
)

// Transport issues the outgoing half of the three fan-outs this vault
// originates: telling the rest of a chunk's chunk-info group about a new
// reference, asserting a payment amendment to an account's holder group,
// and instructing a holder that no watcher remains on its copy of a
// chunk. httpapi/client.go supplies the production implementation; tests
// use an in-process LoopbackTransport.
type Transport interface {
	AddToReferenceList(ctx context.Context, peer types.Pmid, chunkName types.ChunkName, contract types.StoreContract) (types.Result, error)
	AmendAccount(ctx context.Context, peer types.Pmid, req amendment.Request) (types.Result, error)
	DeleteChunk(ctx context.Context, peer types.Pmid, chunkName types.ChunkName) (types.Result, error)
}

type prepState int

const (
	prepAccepted prepState = iota
	prepStored
	prepReferenced
	prepCommitted
)

type prepEntry struct {
	size     types.SignedSize
	contract types.StoreContract
	state    prepState
	attempts int
}

// Orchestrator is the per-vault state machine of §4.8. Each RPC of §6.1 is
// answered by one exported method; the other exported methods (SetLogger,
// MarkStarted, CleanUp, Deref, GetSyncData, ApplySyncData) serve cmd/vaultd
// and the vault-to-vault routes.
type Orchestrator struct {
	cfg  config.Config
	self types.Pmid

	identity   *identity.Validator
	chunks     *chunkstore.Store
	accounts   *account.Handler
	chunkInfo  *chunkinfo.Handler
	expect     *requestexpectation.Handler
	amendments *amendment.Handler
	logic      *servicelogic.Logic
	transport  Transport

	mu      sync.Mutex
	preps   map[types.ChunkName]*prepEntry
	started bool

	log *logrus.Logger
}

// New assembles an Orchestrator from its component handlers. Callers
// build each handler package themselves (so store paths, bbolt files and
// the overlay are configured once, at process startup) and hand the
// finished set here.
func New(cfg config.Config, self types.Pmid, crypto vcrypto.Provider,
	chunks *chunkstore.Store, accounts *account.Handler, chunkInfo *chunkinfo.Handler,
	expect *requestexpectation.Handler, amendments *amendment.Handler, logic *servicelogic.Logic,
	transport Transport) *Orchestrator {
	return &Orchestrator{
		cfg: cfg, self: self,
		identity: identity.New(crypto), chunks: chunks, accounts: accounts,
		chunkInfo: chunkInfo, expect: expect, amendments: amendments, logic: logic,
		transport: transport, preps: make(map[types.ChunkName]*prepEntry),
	}
}

// discardLogger is the logger every Orchestrator starts with: it never
// writes anywhere, so tests and callers that don't care about logs (most
// of vaultservice's own test suite) don't need to wire one up. cmd/vaultd
// calls SetLogger with a real, level-configured logrus.Logger at startup.
var discardLogger = newDiscardLogger()

func newDiscardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(discardWriter{})
	return l
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// SetLogger attaches l as the destination for every RPC-level log line
// this Orchestrator emits from here on (§7 ambient stack: "Info for
// accepted RPCs, Warn for Nacked RPCs with a reason code, Error for I/O
// failures"). Intended to be called once, before the Orchestrator starts
// serving RPCs; it is not itself synchronised against concurrent RPC
// dispatch, the same single-assignment-before-serving contract MarkStarted
// relies on for o.started.
func (o *Orchestrator) SetLogger(l *logrus.Logger) {
	if l == nil {
		l = discardLogger
	}
	o.log = l
}

func (o *Orchestrator) logger() *logrus.Logger {
	if o.log == nil {
		return discardLogger
	}
	return o.log
}

// MarkStarted flips the vault out of startup-sync mode (§4.9): mutating
// RPCs are rejected with NotInitialised until this is called.
func (o *Orchestrator) MarkStarted() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = true
}

func (o *Orchestrator) requireStarted() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.started {
		return types.NewError(types.ErrNotInitialised, "vault has not completed startup sync")
	}
	return nil
}

// StorePrepRequest is the payload of a StorePrep RPC.
type StorePrepRequest struct {
	ChunkName  types.ChunkName
	SignedSize types.SignedSize
}

// StorePrep validates the signed size and records a short-lived prep
// entry, then returns a signed StoreContract binding this holder to the
// client for ChunkName (§4.5).
func (o *Orchestrator) StorePrep(req StorePrepRequest, holderPubKey, holderPKSig, outerSig []byte) (types.StoreContract, error) {
	reqID := uuid.NewString()
	log := o.logger().WithFields(logrus.Fields{"rpc": "StorePrep", "request_id": reqID, "chunkname": req.ChunkName})

	if err := o.requireStarted(); err != nil {
		log.WithError(err).Warn("rejected: vault not started")
		return types.StoreContract{}, err
	}
	if !o.identity.ValidateSignedSize(req.SignedSize) {
		log.Warn("nack: signed size failed verification")
		return types.StoreContract{}, types.NewError(types.ErrSizeSignatureInvalid, "signed size failed verification")
	}
	if req.SignedSize.PmidOfClient == o.self {
		log.Warn("nack: holder cannot store its own client chunk")
		return types.StoreContract{}, types.NewError(types.ErrIdentityInvalid, "holder cannot store its own client chunk")
	}

	contract := types.StoreContract{
		PmidOfHolder:       o.self,
		PublicKey:          holderPubKey,
		PublicKeySignature: holderPKSig,
		Inner: types.InnerContract{
			Result:     types.ResultAck,
			SignedSize: req.SignedSize,
		},
		OuterSignature: outerSig,
	}

	o.mu.Lock()
	o.preps[req.ChunkName] = &prepEntry{size: req.SignedSize, contract: contract, state: prepAccepted}
	o.mu.Unlock()
	return contract, nil
}

// StoreChunk validates data against the matching prep entry, persists it,
// fans AddToReferenceList out to the chunk-info group, and on quorum fans
// AmendAccount out to both the holder's and the client's account groups
// (§4.5, §4.8). Returns the final Ack/Nack result; internal fan-out
// failures surface as Nack, never as a panic or unhandled error.
func (o *Orchestrator) StoreChunk(ctx context.Context, name types.ChunkName, data []byte) types.Result {
	reqID := uuid.NewString()
	log := o.logger().WithFields(logrus.Fields{"rpc": "StoreChunk", "request_id": reqID, "chunkname": name})

	if err := o.requireStarted(); err != nil {
		log.WithError(err).Warn("rejected: vault not started")
		return types.ResultNack
	}

	o.mu.Lock()
	entry, ok := o.preps[name]
	o.mu.Unlock()
	if !ok {
		log.Warn("nack: no matching prep entry")
		return types.ResultNack
	}
	if uint64(len(data)) != entry.size.DataSize {
		log.Warn("nack: data size does not match prep entry")
		return types.ResultNack
	}
	if err := o.chunks.Store(name, data, true, chunkstore.CategoryNormal); err != nil {
		log.WithError(err).Error("failed to persist chunk")
		return types.ResultNack
	}

	o.mu.Lock()
	entry.state = prepStored
	o.mu.Unlock()

	refOutcome, err := o.logic.FanOut(ctx, name, servicelogic.CallerFunc(
		func(ctx context.Context, peer types.Pmid) (types.Result, error) {
			return o.transport.AddToReferenceList(ctx, peer, name, entry.contract)
		}))
	if err != nil || !refOutcome.Quorum(o.cfg.KadUpperThreshold) {
		log.Warn("nack: AddToReferenceList fan-out did not reach quorum")
		return types.ResultNack
	}

	o.mu.Lock()
	entry.state = prepReferenced
	o.mu.Unlock()

	holderOK := o.fanOutAmendment(ctx, o.self, amendment.SpaceGivenInc, name, entry.size.DataSize, o.self)
	clientOK := o.fanOutAmendment(ctx, entry.size.PmidOfClient, amendment.SpaceTakenInc, name, entry.size.DataSize, o.self)
	if !holderOK || !clientOK {
		log.Warn("nack: AmendAccount fan-out did not reach quorum")
		return types.ResultNack
	}

	o.mu.Lock()
	entry.state = prepCommitted
	delete(o.preps, name)
	o.mu.Unlock()
	log.Info("accepted")
	return types.ResultAck
}

// fanOutAmendment dispatches an AmendAccount assertion, signed by signer,
// to target account's holder group and reports whether at least
// KadUpperThreshold members of the group acked.
func (o *Orchestrator) fanOutAmendment(ctx context.Context, target types.Pmid, kind amendment.AmendmentType, chunkName types.ChunkName, size uint64, signer types.Pmid) bool {
	accountKey := types.ChunkName(types.DeriveAccountName(target, o.identity.Crypto.Hash512))
	req := amendment.Request{AccountPmid: target, ChunkName: chunkName, AmendmentType: kind, DataSize: size, Signer: signer}
	outcome, err := o.logic.FanOut(ctx, accountKey, servicelogic.CallerFunc(
		func(ctx context.Context, peer types.Pmid) (types.Result, error) {
			return o.transport.AmendAccount(ctx, peer, req)
		}))
	if err != nil {
		return false
	}
	return outcome.Quorum(o.cfg.KadUpperThreshold)
}

// AddToReferenceList is the incoming half of the chunk-info fan-out: a
// peer holder reports it has stored chunkName under contract, and this
// vault (a chunk-info holder for chunkName) adds it to the reference list
// and attempts to promote any waiting watchers, crediting the refund owed
// to each promoted watcher that had prepaid K units to hold its place in
// line (§4.4.1, §8 scenario 3).
func (o *Orchestrator) AddToReferenceList(name types.ChunkName, contract types.StoreContract) types.Result {
	reqID := uuid.NewString()
	log := o.logger().WithFields(logrus.Fields{"rpc": "AddToReferenceList", "request_id": reqID, "chunkname": name})

	if err := o.requireStarted(); err != nil {
		log.WithError(err).Warn("rejected: vault not started")
		return types.ResultNack
	}
	if !o.identity.ValidateStoreContract(contract) {
		log.Warn("nack: store contract failed validation")
		return types.ResultNack
	}
	if err := o.chunkInfo.AddToReferenceList(name, contract.PmidOfHolder, contract.Inner.SignedSize.DataSize); err != nil {
		log.WithError(err).Warn("nack: AddToReferenceList rejected")
		return types.ResultNack
	}

	// This vault only knows the account it is itself watching/holding for;
	// the account holders that will receive the matching AmendAccount are
	// generally a different overlay group (resolved by account name, not
	// chunk name), so these Expect calls are best-effort and only coincide
	// with the real recipient when the two groups overlap (as they do in a
	// small devnet). AmendAccount treats a miss here as a Warn, never a
	// reject, for exactly that reason.
	o.expect.Expect(types.DeriveAccountName(o.self, o.identity.Crypto.Hash512), name, o.self)
	o.expect.Expect(types.DeriveAccountName(contract.Inner.SignedSize.PmidOfClient, o.identity.Crypto.Hash512), name, contract.PmidOfHolder)

	size := contract.Inner.SignedSize.DataSize
	for _, promo := range o.chunkInfo.SweepWaitingList(name) {
		o.creditPromotion(context.Background(), name, size, promo, log)
	}
	log.Info("accepted")
	return types.ResultAck
}

// creditPromotion fans out the SpaceTakenDec refund a promoted watcher is
// owed for overpaying K units to hold a probationary slot in line, per
// chunkinfo.Handler.TryCommitToWatchList's refundUnits calculation. A
// failed fan-out is logged and otherwise swallowed: the promotion itself
// already committed in chunkInfo and is not rolled back for a refund that
// fails to reach quorum.
func (o *Orchestrator) creditPromotion(ctx context.Context, name types.ChunkName, size uint64, promo chunkinfo.Promotion, log *logrus.Entry) {
	if promo.Refunds == 0 {
		return
	}
	amount := uint64(promo.Refunds) * size
	if !o.fanOutAmendment(ctx, promo.Pmid, amendment.SpaceTakenDec, name, amount, o.self) {
		log.WithField("pmid", promo.Pmid).Warn("failed to fan out promotion refund")
	}
}

// AddToWatchListRequest is the payload of an AddToWatchList RPC.
type AddToWatchListRequest struct {
	ChunkName  types.ChunkName
	SignedSize types.SignedSize
}

// AddToWatchList runs PrepareAddToWatchList and reports the number of
// references the chunk still needs as the upload count (§6.1:
// "upload_count, result").
func (o *Orchestrator) AddToWatchList(req AddToWatchListRequest) (uploadCount int, result types.Result) {
	if err := o.requireStarted(); err != nil {
		return 0, types.ResultNack
	}
	if !o.identity.ValidateSignedSize(req.SignedSize) {
		return 0, types.ResultNack
	}
	requiredReferences, _, err := o.chunkInfo.PrepareAddToWatchList(req.ChunkName, req.SignedSize.PmidOfClient, req.SignedSize.DataSize)
	if err != nil {
		return 0, types.ResultNack
	}
	return requiredReferences, types.ResultAck
}

// RemoveFromWatchList tears down watcher w's row for name, per §8
// scenario 6: every unit w had paid for is refunded as a SpaceTakenDec
// credit to w's own account, and if removal emptied both the watch_list
// and the waiting_list, every remaining reference holder is told to
// delete its copy (Transport.DeleteChunk) and credited a SpaceGivenDec
// for the space it no longer holds on this chunk's behalf. The
// credit/deref PMID sets are also returned for callers (diagnostics,
// tests) that want to observe what was fanned out.
func (o *Orchestrator) RemoveFromWatchList(ctx context.Context, name types.ChunkName, w types.Pmid) (chunkSize uint64, creditPmids, derefPmids []types.Pmid, result types.Result) {
	reqID := uuid.NewString()
	log := o.logger().WithFields(logrus.Fields{"rpc": "RemoveFromWatchList", "request_id": reqID, "chunkname": name, "pmid": w})

	if err := o.requireStarted(); err != nil {
		log.WithError(err).Warn("rejected: vault not started")
		return 0, nil, nil, types.ResultNack
	}
	size, credits, derefs, err := o.chunkInfo.RemoveFromWatchList(name, w)
	if err != nil {
		log.WithError(err).Warn("nack: RemoveFromWatchList rejected")
		return 0, nil, nil, types.ResultNack
	}

	for _, credit := range credits {
		if !o.fanOutAmendment(ctx, credit, amendment.SpaceTakenDec, name, size, o.self) {
			log.WithField("credit_pmid", credit).Warn("failed to fan out watch-list removal refund")
		}
	}
	for _, deref := range derefs {
		if !o.fanOutAmendment(ctx, deref, amendment.SpaceGivenDec, name, size, o.self) {
			log.WithField("deref_pmid", deref).Warn("failed to fan out holder space-given credit")
		}
		if res, err := o.transport.DeleteChunk(ctx, deref, name); err != nil || res != types.ResultAck {
			log.WithField("deref_pmid", deref).WithError(err).Warn("holder did not ack chunk deletion")
		}
	}

	log.Info("accepted")
	return size, credits, derefs, types.ResultAck
}

// GetChunkReferences returns the active reference holders for name.
func (o *Orchestrator) GetChunkReferences(name types.ChunkName) ([]types.Pmid, types.Result) {
	refs, err := o.chunkInfo.GetActiveReferences(name)
	if err != nil {
		return nil, types.ResultNack
	}
	return refs, types.ResultAck
}

// AmendAccount is the incoming half of the AmendAccount RPC (§4.6, §4.7).
// A self-signed SpaceOffered request is applied directly; every other
// type goes through the quorum handler and this call blocks (bounded by
// ctx) until the quorum resolves or the context is cancelled.
func (o *Orchestrator) AmendAccount(ctx context.Context, req amendment.Request, selfSigned bool) types.Result {
	reqID := uuid.NewString()
	log := o.logger().WithFields(logrus.Fields{"rpc": "AmendAccount", "request_id": reqID, "pmid": req.AccountPmid, "chunkname": req.ChunkName})

	if err := o.requireStarted(); err != nil {
		log.WithError(err).Warn("rejected: vault not started")
		return types.ResultNack
	}
	if selfSigned && req.Signer == req.AccountPmid {
		increase := req.AmendmentType == amendment.SpaceGivenInc || req.AmendmentType == amendment.SpaceTakenInc
		if err := o.accounts.Amend(req.AccountPmid, account.FieldSpaceOffered, req.DataSize, increase); err != nil {
			log.WithError(err).Warn("nack: self-signed SpaceOffered amendment rejected")
			return types.ResultNack
		}
		log.Info("accepted self-signed SpaceOffered amendment")
		return types.ResultAck
	}

	// A miss here is logged, never rejected: the chunk-info holder group
	// (resolved by chunk name) and this account's holder group (resolved
	// by account name) are generally different vault sets, so the two
	// only coincidentally overlap. Gating on IsExpected would reject
	// legitimate quorum amendments whenever they don't.
	if !o.expect.IsExpected(types.DeriveAccountName(req.AccountPmid, o.identity.Crypto.Hash512), req.ChunkName, req.Signer) {
		log.Warn("anomaly: amendment arrived with no matching expectation on record")
	}

	ch, err := o.amendments.ProcessRequest(req)
	if err != nil {
		log.WithError(err).Warn("nack: amendment rejected")
		return types.ResultNack
	}
	var result types.Result
	select {
	case result = <-ch:
	case <-ctx.Done():
		log.Warn("nack: context cancelled before quorum resolved")
		return types.ResultNack
	}

	if result == types.ResultAck && !req.ChunkName.IsZero() && req.AmendmentType == amendment.SpaceTakenInc {
		o.settlePayment(ctx, req.ChunkName, req.AccountPmid, log)
	}
	log.WithField("result", result).Info("resolved")
	return result
}

// settlePayment marks watcher w's payment for c done now that its
// SpaceTakenInc amendment reached quorum, then attempts to commit w off
// the waiting_list (or confirm it on the watch_list), crediting any
// refund a displaced prepaying watcher is owed. Best-effort: c or w may
// belong to a chunk this vault's chunkInfo handler never tracked (e.g. a
// different chunk-info holder group than the one that resolved quorum),
// in which case there is nothing local to settle.
func (o *Orchestrator) settlePayment(ctx context.Context, c types.ChunkName, w types.Pmid, log *logrus.Entry) {
	if !o.chunkInfo.Exists(c) {
		return
	}
	if err := o.chunkInfo.MarkPaymentsDone(c, w); err != nil {
		log.WithError(err).Warn("could not mark payment done locally")
		return
	}
	size, ok := o.chunkInfo.ChunkSize(c)
	if !ok {
		return
	}
	committed, replaced, refunds, err := o.chunkInfo.TryCommitToWatchList(c, w)
	if err != nil || !committed {
		return
	}
	o.creditPromotion(ctx, c, size, chunkinfo.Promotion{Pmid: w, Replaced: replaced, Refunds: refunds}, log)
}

// AccountStatus returns the offered/given/taken triple for pmid.
func (o *Orchestrator) AccountStatus(pmid types.Pmid) (offered, given, taken uint64, result types.Result) {
	offered, given, taken, err := o.accounts.Get(pmid)
	if err != nil {
		return 0, 0, 0, types.ResultNack
	}
	return offered, given, taken, types.ResultAck
}

// GetAccount returns a defensive snapshot row for pmid, for serialisation
// onto the wire.
func (o *Orchestrator) GetAccount(pmid types.Pmid) (account.Account, types.Result) {
	offered, given, taken, err := o.accounts.Get(pmid)
	if err != nil {
		return account.Account{}, types.ResultNack
	}
	return account.Account{Pmid: pmid, SpaceOffered: offered, SpaceGiven: given, SpaceTaken: taken}, types.ResultAck
}

// GetChunkInfo returns the serialised chunk-info row for name, for the
// GetChunkInfo RPC of §6.1.
func (o *Orchestrator) GetChunkInfo(name types.ChunkName) (chunkinfo.ChunkInfoSnapshot, types.Result) {
	snap, ok := o.chunkInfo.GetInfo(name)
	if !ok {
		return chunkinfo.ChunkInfoSnapshot{}, types.ResultNack
	}
	return snap, types.ResultAck
}

// CheckChunk reports whether name is present locally.
func (o *Orchestrator) CheckChunk(name types.ChunkName) types.Result {
	if o.chunks.Has(name) {
		return types.ResultAck
	}
	return types.ResultNack
}

// GetChunk returns the bytes stored under name.
func (o *Orchestrator) GetChunk(name types.ChunkName) ([]byte, types.Result) {
	data, err := o.chunks.Load(name)
	if err != nil {
		return nil, types.ResultNack
	}
	return data, types.ResultAck
}

// DeleteChunk removes name from local storage after validating the
// caller's signed size. This is the client-facing RPC of §6.1; the
// internal deref instruction a chunk-info holder issues to a reference
// holder once a chunk's last watcher departs (§8 scenario 6) goes through
// Deref instead, which trusts the caller (another vault, reached
// only via Transport, never a client) and skips the signed-size check.
func (o *Orchestrator) DeleteChunk(name types.ChunkName, signedSize types.SignedSize) types.Result {
	if !o.identity.ValidateSignedSize(signedSize) {
		return types.ResultNack
	}
	if err := o.chunks.Delete(name); err != nil {
		return types.ResultNack
	}
	return types.ResultAck
}

// Deref is the Transport-facing half of a remove-cycle deref (§8 scenario
// 6): it removes name from local storage without a client signature to
// check, since the instruction's legitimacy was already established by
// the chunk-info holder that issued it. httpapi exposes this on a
// vault-to-vault path distinct from the client-facing DeleteChunk RPC.
func (o *Orchestrator) Deref(name types.ChunkName) types.Result {
	if err := o.chunks.Delete(name); err != nil {
		return types.ResultNack
	}
	return types.ResultAck
}

// CacheChunk stores chunkcontent as a cache-category blob: no watch_list
// or reference_list accounting is touched (spec §9 open question,
// resolved: caching stays free).
func (o *Orchestrator) CacheChunk(name types.ChunkName, content []byte) types.Result {
	if err := o.chunks.Store(name, content, true, chunkstore.CategoryCache); err != nil {
		return types.ResultNack
	}
	return types.ResultAck
}

// ValidityCheck answers SHA-512(chunk || randomData) without mutating any
// state, letting a caller spot-check that this vault still holds the
// bytes it claims to.
func (o *Orchestrator) ValidityCheck(name types.ChunkName, randomData []byte, crypto vcrypto.Provider) ([64]byte, types.Result) {
	data, err := o.chunks.Load(name)
	if err != nil {
		return [64]byte{}, types.ResultNack
	}
	buf := make([]byte, 0, len(data)+len(randomData))
	buf = append(buf, data...)
	buf = append(buf, randomData...)
	return crypto.Hash512(buf), types.ResultAck
}

// VaultStatus reports this vault's local storage figures.
func (o *Orchestrator) VaultStatus() (used, available uint64) {
	return o.chunks.Used(), o.chunks.Available()
}

// CleanUp runs the periodic expiry sweeps of §4.7/§5 plus the prep-entry
// garbage collection of §4.8 ("a PREP_ACCEPTED entry ... garbage
// collected after kMaxChunkStoreRetries store attempts elapse"). Intended
// to be called on a fixed timer by cmd/vaultd.
func (o *Orchestrator) CleanUp() (amendmentsExpired, expectationsExpired, prepsReaped int) {
	amendmentsExpired = o.amendments.CleanUp()
	expectationsExpired = o.expect.CleanUp()

	o.mu.Lock()
	defer o.mu.Unlock()
	for name, entry := range o.preps {
		if entry.state != prepAccepted {
			continue
		}
		entry.attempts++
		if entry.attempts > o.cfg.MaxChunkStoreRetries {
			delete(o.preps, name)
			prepsReaped++
		}
	}
	return amendmentsExpired, expectationsExpired, prepsReaped
}

// SyncSnapshot is the payload of GetSyncData: a full copy of this vault's
// accounts and chunk-info map (§4.9). The payload is not signed, and the
// responder does not check whether the requester lies within its own K
// closest contacts: neither this type nor httpapi.Server signs the
// response or authenticates the caller.
type SyncSnapshot struct {
	Accounts   []account.Account    `json:"accounts"`
	ChunkInfos []chunkinfo.Snapshot `json:"chunk_infos"`
}

// GetSyncData exports the full local state for a newly joining neighbour
// to bootstrap from.
func (o *Orchestrator) GetSyncData() SyncSnapshot {
	return SyncSnapshot{
		Accounts:   o.accounts.Snapshot(),
		ChunkInfos: o.chunkInfo.Snapshot(),
	}
}

// ApplySyncData restores a SyncSnapshot received from a neighbour and
// marks the vault started. The snapshot is applied as received: neither
// this method nor its callers (cmd/vaultd's bootstrapSync and httpapi's
// POST /v1/sync-data route) verify a signature or the responder's overlay
// membership.
func (o *Orchestrator) ApplySyncData(snap SyncSnapshot) {
	o.accounts.Restore(snap.Accounts)
	o.chunkInfo.Restore(snap.ChunkInfos)
	o.MarkStarted()
}
