package vcrypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"testing"
)

func TestStdProviderHash512KnownVector(t *testing.T) {
	p := StdProvider{}
	sum := p.Hash512([]byte("abc"))
	const want = "ddaf35a193617abacc417349ae20413112e6fa4e89a97ea20a9eeee64b55d39" +
		"a2192992a274fc1a836ba3c23a3feebbd454d4423643ce80e2a9ac94fa54ca49f"
	if got := hex.EncodeToString(sum[:]); got != want {
		t.Fatalf("digest mismatch: got=%s want=%s", got, want)
	}
}

func TestStdProviderVerifyRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	msg := []byte("signed size payload")
	sig := Sign(priv, msg)

	p := StdProvider{}
	if !p.Verify(pub, sig, msg) {
		t.Fatalf("expected valid signature to verify")
	}
	if p.Verify(pub, sig, []byte("tampered")) {
		t.Fatalf("expected verify to fail for tampered message")
	}
}

func TestStdProviderChecksumSeedDeterministic(t *testing.T) {
	p := StdProvider{}
	a := p.ChecksumSeed([]byte("watch-list-state-1"))
	b := p.ChecksumSeed([]byte("watch-list-state-1"))
	if a != b {
		t.Fatalf("expected deterministic checksum")
	}
	c := p.ChecksumSeed([]byte("watch-list-state-2"))
	if a == c {
		t.Fatalf("expected distinct inputs to produce distinct checksums")
	}
}
