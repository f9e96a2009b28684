package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"vaultd.dev/vault/account"
	"vaultd.dev/vault/amendment"
	"vaultd.dev/vault/chunkinfo"
	"vaultd.dev/vault/chunkstore"
	"vaultd.dev/vault/config"
	"vaultd.dev/vault/overlay"
	"vaultd.dev/vault/requestexpectation"
	"vaultd.dev/vault/servicelogic"
	"vaultd.dev/vault/types"
	"vaultd.dev/vault/vaultservice"
	"vaultd.dev/vault/vcrypto"
)

// newTestServer wires a single Orchestrator with no peers, enough to
// exercise the storage/query RPCs (store/cache/check/get/delete, account
// and chunk-info reads) entirely locally.
func newTestServer(t *testing.T) (*httptest.Server, vcrypto.Provider) {
	t.Helper()
	crypto := vcrypto.StdProvider{}
	cfg := config.Default()

	store, err := chunkstore.Open(t.TempDir(), 1<<20)
	if err != nil {
		t.Fatalf("open chunkstore: %v", err)
	}
	accounts := account.NewHandler()
	chunkInfo := chunkinfo.NewHandler(cfg.K, crypto, nil)
	expect := requestexpectation.NewHandler(60, nil)
	ov := overlay.NewStaticOverlay(cfg.K)
	amendments := amendment.NewHandler(accounts, ov, crypto,
		cfg.KadUpperThreshold, cfg.MaxAccountAmendments, cfg.MaxRepeatedAccountAmendments,
		cfg.AccountAmendmentTimeoutMS, cfg.AccountAmendmentResultTimeoutMS, nil)
	logic := servicelogic.New(ov)

	var self types.Pmid
	self[0] = 0x01
	orch := vaultservice.New(cfg, self, crypto, store, accounts, chunkInfo, expect, amendments, logic,
		vaultservice.NewLoopbackTransport())
	orch.MarkStarted()

	srv := NewServer(orch, crypto, nil)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, crypto
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body, out any) {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("post %s: %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("post %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode %s response: %v", path, err)
	}
}

func TestCacheChunkThenCheckAndGet(t *testing.T) {
	ts, crypto := newTestServer(t)

	content := []byte("hello vault")
	digest := crypto.Hash512(content)
	var name types.ChunkName
	copy(name[:], digest[:])

	var cacheResp resultResponse
	postJSON(t, ts, "/v1/cache-chunk", cacheChunkRequest{ChunkName: name, Content: content}, &cacheResp)
	if cacheResp.Result != types.ResultAck {
		t.Fatalf("expected cache-chunk to ack, got %v", cacheResp.Result)
	}

	var checkResp resultResponse
	postJSON(t, ts, "/v1/check-chunk", struct {
		ChunkName types.ChunkName `json:"chunk_name"`
	}{ChunkName: name}, &checkResp)
	if checkResp.Result != types.ResultAck {
		t.Fatalf("expected check-chunk to ack after caching, got %v", checkResp.Result)
	}

	var getResp getChunkResponse
	postJSON(t, ts, "/v1/get-chunk", struct {
		ChunkName types.ChunkName `json:"chunk_name"`
	}{ChunkName: name}, &getResp)
	if getResp.Result != types.ResultAck || !bytes.Equal(getResp.Data, content) {
		t.Fatalf("expected get-chunk to return cached bytes, got %v (%v)", getResp.Data, getResp.Result)
	}
}

func TestCheckChunkNacksUnknownChunk(t *testing.T) {
	ts, _ := newTestServer(t)

	var resp resultResponse
	postJSON(t, ts, "/v1/check-chunk", struct {
		ChunkName types.ChunkName `json:"chunk_name"`
	}{ChunkName: types.ChunkName{0xEE}}, &resp)
	if resp.Result != types.ResultNack {
		t.Fatalf("expected check-chunk to nack an unknown chunk, got %v", resp.Result)
	}
}

func TestGetChunkInfoRoute(t *testing.T) {
	ts, _ := newTestServer(t)

	var resp getChunkInfoResponse
	postJSON(t, ts, "/v1/get-chunk-info", struct {
		ChunkName types.ChunkName `json:"chunk_name"`
	}{ChunkName: types.ChunkName{0x42}}, &resp)
	if resp.Result != types.ResultNack {
		t.Fatalf("expected get-chunk-info to nack an untracked chunk, got %v", resp.Result)
	}
}

func TestVaultStatusRoute(t *testing.T) {
	ts, _ := newTestServer(t)

	var resp vaultStatusResponse
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/v1/vault-status", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	r, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get vault-status: %v", err)
	}
	defer r.Body.Close()
	if r.StatusCode != http.StatusOK {
		t.Fatalf("vault-status: status %d", r.StatusCode)
	}
	if err := json.NewDecoder(r.Body).Decode(&resp); err != nil {
		t.Fatalf("decode vault-status: %v", err)
	}
	if resp.Available == 0 {
		t.Fatalf("expected a nonzero available budget, got %+v", resp)
	}
}
