package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"vaultd.dev/vault/types"
	"vaultd.dev/vault/vaultservice"
	"vaultd.dev/vault/vcrypto"
)

// Server answers the RPC surface of spec §6.1 as JSON over HTTP, routed
// with chi. Every handler is a thin decode/call/encode wrapper around the
// matching Orchestrator method; all validation lives in vaultservice.
type Server struct {
	orch   *vaultservice.Orchestrator
	crypto vcrypto.Provider
	log    *logrus.Logger
}

// NewServer builds a Server. log defaults to logrus.StandardLogger() if nil.
func NewServer(orch *vaultservice.Orchestrator, crypto vcrypto.Provider, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{orch: orch, crypto: crypto, log: log}
}

// Router builds the chi router exposing every RPC under /v1.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logging(s.log))

	r.Post("/v1/store-prep", s.handleStorePrep)
	r.Post("/v1/store-chunk", s.handleStoreChunk)
	r.Post("/v1/add-to-reference-list", s.handleAddToReferenceList)
	r.Post("/v1/add-to-watch-list", s.handleAddToWatchList)
	r.Post("/v1/remove-from-watch-list", s.handleRemoveFromWatchList)
	r.Post("/v1/get-chunk-references", s.handleGetChunkReferences)
	r.Post("/v1/get-chunk-info", s.handleGetChunkInfo)
	r.Post("/v1/amend-account", s.handleAmendAccount)
	r.Post("/v1/account-status", s.handleAccountStatus)
	r.Post("/v1/get-account", s.handleGetAccount)
	r.Post("/v1/check-chunk", s.handleCheckChunk)
	r.Post("/v1/get-chunk", s.handleGetChunk)
	r.Post("/v1/delete-chunk", s.handleDeleteChunk)
	r.Post("/v1/deref-chunk", s.handleDerefChunk)
	r.Post("/v1/cache-chunk", s.handleCacheChunk)
	r.Post("/v1/validity-check", s.handleValidityCheck)
	r.Get("/v1/vault-status", s.handleVaultStatus)
	r.Get("/v1/sync-data", s.handleGetSyncData)
	r.Post("/v1/sync-data", s.handleApplySyncData)

	return r
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func (s *Server) handleStorePrep(w http.ResponseWriter, r *http.Request) {
	var req storePrepRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	contract, err := s.orch.StorePrep(vaultservice.StorePrepRequest{
		ChunkName: req.ChunkName, SignedSize: req.SignedSize,
	}, req.HolderPubKey, req.HolderPKSig, req.OuterSig)
	if err != nil {
		writeJSON(w, http.StatusOK, resultResponse{Result: types.ResultNack})
		return
	}
	writeJSON(w, http.StatusOK, storePrepResponse{Contract: contract})
}

func (s *Server) handleStoreChunk(w http.ResponseWriter, r *http.Request) {
	var req storeChunkRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	result := s.orch.StoreChunk(r.Context(), req.ChunkName, req.Data)
	writeJSON(w, http.StatusOK, resultResponse{Result: result})
}

func (s *Server) handleAddToReferenceList(w http.ResponseWriter, r *http.Request) {
	var req addToReferenceListRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	result := s.orch.AddToReferenceList(req.ChunkName, req.Contract)
	writeJSON(w, http.StatusOK, resultResponse{Result: result})
}

func (s *Server) handleAddToWatchList(w http.ResponseWriter, r *http.Request) {
	var req addToWatchListRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	uploadCount, result := s.orch.AddToWatchList(vaultservice.AddToWatchListRequest{
		ChunkName: req.ChunkName, SignedSize: req.SignedSize,
	})
	writeJSON(w, http.StatusOK, addToWatchListResponse{UploadCount: uploadCount, Result: result})
}

func (s *Server) handleRemoveFromWatchList(w http.ResponseWriter, r *http.Request) {
	var req removeFromWatchListRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	size, credits, derefs, result := s.orch.RemoveFromWatchList(r.Context(), req.ChunkName, req.Pmid)
	writeJSON(w, http.StatusOK, removeFromWatchListResponse{
		ChunkSize: size, CreditPmids: credits, DerefPmids: derefs, Result: result,
	})
}

func (s *Server) handleGetChunkReferences(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChunkName types.ChunkName `json:"chunk_name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	pmids, result := s.orch.GetChunkReferences(req.ChunkName)
	writeJSON(w, http.StatusOK, getChunkReferencesResponse{Pmids: pmids, Result: result})
}

func (s *Server) handleGetChunkInfo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChunkName types.ChunkName `json:"chunk_name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	info, result := s.orch.GetChunkInfo(req.ChunkName)
	writeJSON(w, http.StatusOK, getChunkInfoResponse{Info: info, Result: result})
}

func (s *Server) handleAmendAccount(w http.ResponseWriter, r *http.Request) {
	var req amendAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	result := s.orch.AmendAccount(r.Context(), req.Request, req.SelfSigned)
	writeJSON(w, http.StatusOK, resultResponse{Result: result})
}

func (s *Server) handleAccountStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pmid types.Pmid `json:"pmid"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	offered, given, taken, result := s.orch.AccountStatus(req.Pmid)
	writeJSON(w, http.StatusOK, accountStatusResponse{Offered: offered, Given: given, Taken: taken, Result: result})
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pmid types.Pmid `json:"pmid"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	acc, result := s.orch.GetAccount(req.Pmid)
	writeJSON(w, http.StatusOK, getAccountResponse{Account: acc, Result: result})
}

func (s *Server) handleCheckChunk(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChunkName types.ChunkName `json:"chunk_name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resultResponse{Result: s.orch.CheckChunk(req.ChunkName)})
}

func (s *Server) handleGetChunk(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChunkName types.ChunkName `json:"chunk_name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	data, result := s.orch.GetChunk(req.ChunkName)
	writeJSON(w, http.StatusOK, getChunkResponse{Data: data, Result: result})
}

func (s *Server) handleDeleteChunk(w http.ResponseWriter, r *http.Request) {
	var req deleteChunkRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resultResponse{Result: s.orch.DeleteChunk(req.ChunkName, req.SignedSize)})
}

// handleDerefChunk is the vault-to-vault counterpart of handleDeleteChunk,
// reached only via Client.DeleteChunk from a chunk-info holder that has
// already established the instruction's legitimacy (§8 scenario 6); it
// never validates a client signature.
func (s *Server) handleDerefChunk(w http.ResponseWriter, r *http.Request) {
	var req derefChunkRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resultResponse{Result: s.orch.Deref(req.ChunkName)})
}

func (s *Server) handleCacheChunk(w http.ResponseWriter, r *http.Request) {
	var req cacheChunkRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resultResponse{Result: s.orch.CacheChunk(req.ChunkName, req.Content)})
}

func (s *Server) handleValidityCheck(w http.ResponseWriter, r *http.Request) {
	var req validityCheckRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	digest, result := s.orch.ValidityCheck(req.ChunkName, req.RandomData, s.crypto)
	writeJSON(w, http.StatusOK, validityCheckResponse{Digest: digest, Result: result})
}

func (s *Server) handleVaultStatus(w http.ResponseWriter, r *http.Request) {
	used, available := s.orch.VaultStatus()
	writeJSON(w, http.StatusOK, vaultStatusResponse{Used: used, Available: available})
}

func (s *Server) handleGetSyncData(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, getSyncDataResponse{Snapshot: s.orch.GetSyncData()})
}

func (s *Server) handleApplySyncData(w http.ResponseWriter, r *http.Request) {
	var req applySyncDataRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	s.orch.ApplySyncData(req.Snapshot)
	writeJSON(w, http.StatusOK, struct{}{})
}
