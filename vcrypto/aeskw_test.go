package vcrypto

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"testing"
)

func TestWrapPrivateKeyRoundtrip(t *testing.T) {
	var kek [32]byte
	copy(kek[:], bytes.Repeat([]byte{0x11}, 32))

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	wrapped, err := WrapPrivateKey(kek, priv)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	if bytes.Equal(wrapped, priv) {
		t.Fatalf("wrapped output must not equal the plaintext key")
	}

	got, err := UnwrapPrivateKey(kek, wrapped)
	if err != nil {
		t.Fatalf("unwrap: %v", err)
	}
	if !bytes.Equal(got, priv) {
		t.Fatalf("unwrap mismatch")
	}
}

func TestUnwrapPrivateKeyWrongKEKFails(t *testing.T) {
	var kek, other [32]byte
	copy(kek[:], bytes.Repeat([]byte{0x11}, 32))
	copy(other[:], bytes.Repeat([]byte{0x22}, 32))

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	wrapped, err := WrapPrivateKey(kek, priv)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	if _, err := UnwrapPrivateKey(other, wrapped); err == nil {
		t.Fatalf("expected integrity check failure under the wrong kek")
	}
}

func TestWrapPrivateKeyRejectsWrongSize(t *testing.T) {
	var kek [32]byte
	if _, err := WrapPrivateKey(kek, make([]byte, 16)); err == nil {
		t.Fatalf("expected rejection of a non-ed25519-sized key")
	}
}
