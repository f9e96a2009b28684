package vcrypto

import (
	"crypto/ed25519"
	"crypto/sha512"

	"golang.org/x/crypto/sha3"
)

// StdProvider is the default Provider backed entirely by the standard
// library plus golang.org/x/crypto/sha3 for the non-protocol-mandated
// checksum. A production deployment wanting HSM-backed signing need only
// implement Provider and swap it in at construction time.
type StdProvider struct{}

func (StdProvider) Hash512(data []byte) [64]byte {
	return sha512.Sum512(data)
}

func (StdProvider) Verify(pub, sig, msg []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), msg, sig)
}

func (StdProvider) ChecksumSeed(data []byte) [32]byte {
	return sha3.Sum256(data)
}

// Sign is a convenience for tests and tooling; the core never signs on a
// peer's behalf, only verifies.
func Sign(priv ed25519.PrivateKey, msg []byte) []byte {
	return ed25519.Sign(priv, msg)
}
