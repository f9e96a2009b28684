package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"vaultd.dev/vault/amendment"
	"vaultd.dev/vault/types"
	"vaultd.dev/vault/vaultservice"
)

// AddrBook resolves a peer PMID to the base URL of the vaultd serving it.
// *overlay.StaticOverlay satisfies this directly via its Addr method.
type AddrBook interface {
	Addr(id types.Pmid) (string, bool)
}

// Client implements vaultservice.Transport over the JSON/HTTP surface
// Server exposes, so one vault can drive the three vault-to-vault fan-outs
// (AddToReferenceList, AmendAccount, DeleteChunk) against another.
type Client struct {
	addrs      AddrBook
	httpClient *http.Client
}

// NewClient builds a Client resolving peer addresses through addrs
// (typically the same *overlay.StaticOverlay the Orchestrator routes
// with). A nil httpClient is replaced by one with a 10s timeout; a
// non-nil one is used as given.
func NewClient(addrs AddrBook, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{addrs: addrs, httpClient: httpClient}
}

func (c *Client) post(ctx context.Context, peer types.Pmid, path string, body, out any) error {
	addr, ok := c.addrs.Addr(peer)
	if !ok {
		return types.NewError(types.ErrNotFromClosestGroup, "no known address for peer")
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, addr+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("httpapi: %s returned status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// AddToReferenceList calls POST /v1/add-to-reference-list on peer.
func (c *Client) AddToReferenceList(ctx context.Context, peer types.Pmid, chunkName types.ChunkName, contract types.StoreContract) (types.Result, error) {
	var resp resultResponse
	err := c.post(ctx, peer, "/v1/add-to-reference-list", addToReferenceListRequest{ChunkName: chunkName, Contract: contract}, &resp)
	if err != nil {
		return types.ResultNack, err
	}
	return resp.Result, nil
}

// AmendAccount calls POST /v1/amend-account on peer. Vault-to-vault
// amendments are never self-signed; only a client calls this RPC directly
// with SelfSigned set.
func (c *Client) AmendAccount(ctx context.Context, peer types.Pmid, req amendment.Request) (types.Result, error) {
	var resp resultResponse
	err := c.post(ctx, peer, "/v1/amend-account", amendAccountRequest{Request: req, SelfSigned: false}, &resp)
	if err != nil {
		return types.ResultNack, err
	}
	return resp.Result, nil
}

// DeleteChunk calls POST /v1/deref-chunk on peer, the vault-to-vault path
// that trusts the caller and skips the client signed-size check (§8
// scenario 6).
func (c *Client) DeleteChunk(ctx context.Context, peer types.Pmid, chunkName types.ChunkName) (types.Result, error) {
	var resp resultResponse
	err := c.post(ctx, peer, "/v1/deref-chunk", derefChunkRequest{ChunkName: chunkName}, &resp)
	if err != nil {
		return types.ResultNack, err
	}
	return resp.Result, nil
}

// GetSyncData calls GET /v1/sync-data on peer, the startup-sync fetch of
// §4.9: a newly joining vault asks one neighbour for a full copy of its
// account set and chunk-info map.
func (c *Client) GetSyncData(ctx context.Context, peer types.Pmid) (vaultservice.SyncSnapshot, error) {
	addr, ok := c.addrs.Addr(peer)
	if !ok {
		return vaultservice.SyncSnapshot{}, types.NewError(types.ErrNotFromClosestGroup, "no known address for peer")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr+"/v1/sync-data", nil)
	if err != nil {
		return vaultservice.SyncSnapshot{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return vaultservice.SyncSnapshot{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return vaultservice.SyncSnapshot{}, fmt.Errorf("httpapi: sync-data returned status %d", resp.StatusCode)
	}
	var out getSyncDataResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return vaultservice.SyncSnapshot{}, err
	}
	return out.Snapshot, nil
}
