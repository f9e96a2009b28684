package overlay

import (
	"context"
	"testing"

	"vaultd.dev/vault/types"
)

func peerID(b byte) types.Pmid {
	var p types.Pmid
	p[0] = b
	return p
}

func chunkKey(b byte) types.ChunkName {
	var c types.ChunkName
	c[0] = b
	return c
}

func TestFindCloseNodesReturnsKClosestByXORDistance(t *testing.T) {
	o := NewStaticOverlay(2)
	o.Join(Peer{ID: peerID(0x01), Addr: "a"})
	o.Join(Peer{ID: peerID(0x02), Addr: "b"})
	o.Join(Peer{ID: peerID(0xF0), Addr: "c"})

	got, err := o.FindCloseNodes(context.Background(), chunkKey(0x00))
	if err != nil {
		t.Fatalf("find close nodes: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 closest peers, got %d", len(got))
	}
	if got[0] != peerID(0x01) || got[1] != peerID(0x02) {
		t.Fatalf("expected [0x01,0x02] closest to key 0x00, got %v", got)
	}
}

func TestFindCloseNodesReturnsFewerWhenUndersized(t *testing.T) {
	o := NewStaticOverlay(4)
	o.Join(Peer{ID: peerID(0x01), Addr: "a"})

	got, err := o.FindCloseNodes(context.Background(), chunkKey(0x00))
	if err != nil {
		t.Fatalf("find close nodes: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 peer (undersized overlay), got %d", len(got))
	}
}

func TestFindCloseNodesRespectsCanceledContext(t *testing.T) {
	o := NewStaticOverlay(2)
	o.Join(Peer{ID: peerID(0x01), Addr: "a"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := o.FindCloseNodes(ctx, chunkKey(0x00)); err == nil {
		t.Fatalf("expected error for canceled context")
	}
}

func TestLeaveRemovesPeerFromResults(t *testing.T) {
	o := NewStaticOverlay(4)
	o.Join(Peer{ID: peerID(0x01), Addr: "a"})
	o.Join(Peer{ID: peerID(0x02), Addr: "b"})
	o.Leave(peerID(0x01))

	got, err := o.FindCloseNodes(context.Background(), chunkKey(0x00))
	if err != nil {
		t.Fatalf("find close nodes: %v", err)
	}
	if len(got) != 1 || got[0] != peerID(0x02) {
		t.Fatalf("expected only 0x02 after leave, got %v", got)
	}
	if o.Count() != 1 {
		t.Fatalf("expected count=1 after leave, got %d", o.Count())
	}
}
