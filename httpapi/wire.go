// Package httpapi exposes vaultservice.Orchestrator over the JSON/HTTP RPC
// surface of spec §6.1, using go-chi/chi/v5 for routing: one route per RPC
// (POST, except GET for vault-status and sync-data; sync-data also takes a
// POST that applies a snapshot), each taking and returning a small JSON
// envelope. Client implements
// vaultservice.Transport over the same surface for vault-to-vault calls.
package httpapi

import (
	"vaultd.dev/vault/account"
	"vaultd.dev/vault/amendment"
	"vaultd.dev/vault/chunkinfo"
	"vaultd.dev/vault/types"
	"vaultd.dev/vault/vaultservice"
)

// storePrepRequest is the payload of POST /v1/store-prep.
type storePrepRequest struct {
	ChunkName    types.ChunkName  `json:"chunk_name"`
	SignedSize   types.SignedSize `json:"signed_size"`
	HolderPubKey []byte           `json:"holder_public_key"`
	HolderPKSig  []byte           `json:"holder_pk_signature"`
	OuterSig     []byte           `json:"outer_signature"`
}

type storePrepResponse struct {
	Contract types.StoreContract `json:"contract"`
}

// storeChunkRequest is the payload of POST /v1/store-chunk.
type storeChunkRequest struct {
	ChunkName types.ChunkName `json:"chunk_name"`
	Data      []byte          `json:"data"`
}

type resultResponse struct {
	Result types.Result `json:"result"`
}

// addToReferenceListRequest is the payload of the vault-to-vault POST
// /v1/add-to-reference-list call (Transport.AddToReferenceList).
type addToReferenceListRequest struct {
	ChunkName types.ChunkName     `json:"chunk_name"`
	Contract  types.StoreContract `json:"contract"`
}

// addToWatchListRequest is the payload of POST /v1/add-to-watch-list.
type addToWatchListRequest struct {
	ChunkName  types.ChunkName  `json:"chunk_name"`
	SignedSize types.SignedSize `json:"signed_size"`
}

type addToWatchListResponse struct {
	UploadCount int          `json:"upload_count"`
	Result      types.Result `json:"result"`
}

// removeFromWatchListRequest is the payload of POST /v1/remove-from-watch-list.
type removeFromWatchListRequest struct {
	ChunkName types.ChunkName `json:"chunk_name"`
	Pmid      types.Pmid      `json:"pmid"`
}

type removeFromWatchListResponse struct {
	ChunkSize   uint64       `json:"chunk_size"`
	CreditPmids []types.Pmid `json:"credit_pmids"`
	DerefPmids  []types.Pmid `json:"deref_pmids"`
	Result      types.Result `json:"result"`
}

type getChunkInfoResponse struct {
	Info   chunkinfo.ChunkInfoSnapshot `json:"info"`
	Result types.Result                `json:"result"`
}

type getChunkReferencesResponse struct {
	Pmids  []types.Pmid `json:"pmids"`
	Result types.Result `json:"result"`
}

// amendAccountRequest is the payload of POST /v1/amend-account, serving
// both the self-signed SpaceOffered call a client makes directly and the
// quorum-gated vault-to-vault call Transport.AmendAccount issues.
type amendAccountRequest struct {
	amendment.Request
	SelfSigned bool `json:"self_signed"`
}

type accountStatusResponse struct {
	Offered uint64       `json:"offered"`
	Given   uint64       `json:"given"`
	Taken   uint64       `json:"taken"`
	Result  types.Result `json:"result"`
}

type getAccountResponse struct {
	Account account.Account `json:"account"`
	Result  types.Result    `json:"result"`
}

type getChunkResponse struct {
	Data   []byte       `json:"data"`
	Result types.Result `json:"result"`
}

// deleteChunkRequest is the payload of the client-facing POST
// /v1/delete-chunk RPC; derefChunkRequest below is the vault-to-vault
// counterpart with no signature to check.
type deleteChunkRequest struct {
	ChunkName  types.ChunkName  `json:"chunk_name"`
	SignedSize types.SignedSize `json:"signed_size"`
}

type derefChunkRequest struct {
	ChunkName types.ChunkName `json:"chunk_name"`
}

type cacheChunkRequest struct {
	ChunkName types.ChunkName `json:"chunk_name"`
	Content   []byte          `json:"content"`
}

type validityCheckRequest struct {
	ChunkName  types.ChunkName `json:"chunk_name"`
	RandomData []byte          `json:"random_data"`
}

type validityCheckResponse struct {
	Digest [64]byte     `json:"digest"`
	Result types.Result `json:"result"`
}

type vaultStatusResponse struct {
	Used      uint64 `json:"used"`
	Available uint64 `json:"available"`
}

type getSyncDataResponse struct {
	Snapshot vaultservice.SyncSnapshot `json:"snapshot"`
}

type applySyncDataRequest struct {
	Snapshot vaultservice.SyncSnapshot `json:"snapshot"`
}
