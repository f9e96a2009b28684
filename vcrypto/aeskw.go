package vcrypto

import (
	"crypto/aes"
	"crypto/ed25519"
	"errors"
)

// WrapAlgAESKW256 names the wrap algorithm recorded in a keystore file, so
// a future keystore version can support a second algorithm without
// breaking older files.
const WrapAlgAESKW256 = "AES-256-KW"

var kwDefaultIV = [8]byte{0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6}

// WrapPrivateKey wraps an ed25519 private key (seed||public, 64 bytes) for
// at-rest storage under kek, a 32-byte key derived from the operator's
// passphrase (cmd/vaultd keygen's deriveKEK). AES-256 Key Wrap, RFC 3394 /
// NIST SP 800-38F: the teacher's provider wraps a raw signing key the same
// way (crypto/aeskw.go) for its own keystore; this keystore's payload is
// always exactly one ed25519.PrivateKey rather than an arbitrary byte
// string, so the wrap/unwrap pair here is typed to that instead of staying
// generic.
func WrapPrivateKey(kek [32]byte, priv ed25519.PrivateKey) ([]byte, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, errors.New("aeskw: private key must be an ed25519.PrivateKey")
	}
	return kwWrap(kek[:], priv)
}

// UnwrapPrivateKey reverses WrapPrivateKey, returning the ed25519 private
// key or an error if the passphrase-derived kek doesn't match (the RFC
// 3394 integrity check fails) or the unwrapped payload isn't
// private-key-sized.
func UnwrapPrivateKey(kek [32]byte, wrapped []byte) (ed25519.PrivateKey, error) {
	plain, err := kwUnwrap(kek[:], wrapped)
	if err != nil {
		return nil, err
	}
	if len(plain) != ed25519.PrivateKeySize {
		return nil, errors.New("aeskw: unwrapped payload is not an ed25519 private key")
	}
	return ed25519.PrivateKey(plain), nil
}

// kwWrap is the RFC 3394 wrap primitive: kek must be 32 bytes (AES-256),
// keyIn must be 16..4096 bytes and a multiple of 8.
func kwWrap(kek, keyIn []byte) ([]byte, error) {
	if len(kek) != 32 {
		return nil, errors.New("aeskw: kek must be 32 bytes (AES-256)")
	}
	if len(keyIn) < 16 || len(keyIn) > 4096 || len(keyIn)%8 != 0 {
		return nil, errors.New("aeskw: keyIn must be 16..4096 bytes and multiple of 8")
	}

	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, err
	}

	n := len(keyIn) / 8
	r := make([][8]byte, n)
	for i := 0; i < n; i++ {
		copy(r[i][:], keyIn[i*8:(i+1)*8])
	}
	a := kwDefaultIV

	var b [16]byte
	for j := 0; j < 6; j++ {
		for i := 0; i < n; i++ {
			copy(b[0:8], a[:])
			copy(b[8:16], r[i][:])
			block.Encrypt(b[:], b[:])
			t := uint64(n*j + (i + 1))
			for k := 0; k < 8; k++ {
				a[k] = b[k] ^ byte(t>>(56-8*k))
			}
			copy(r[i][:], b[8:16])
		}
	}

	out := make([]byte, 0, 8+len(keyIn))
	out = append(out, a[:]...)
	for i := 0; i < n; i++ {
		out = append(out, r[i][:]...)
	}
	return out, nil
}

// kwUnwrap is the RFC 3394 unwrap primitive: kek must be 32 bytes,
// wrapped must be 24..4104 bytes and a multiple of 8.
func kwUnwrap(kek, wrapped []byte) ([]byte, error) {
	if len(kek) != 32 {
		return nil, errors.New("aeskw: kek must be 32 bytes (AES-256)")
	}
	if len(wrapped) < 24 || len(wrapped) > 4104 || len(wrapped)%8 != 0 {
		return nil, errors.New("aeskw: wrapped must be 24..4104 bytes and multiple of 8")
	}

	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, err
	}

	n := (len(wrapped) / 8) - 1
	var a [8]byte
	copy(a[:], wrapped[0:8])
	r := make([][8]byte, n)
	for i := 0; i < n; i++ {
		copy(r[i][:], wrapped[(i+1)*8:(i+2)*8])
	}

	var b [16]byte
	for j := 5; j >= 0; j-- {
		for i := n - 1; i >= 0; i-- {
			t := uint64(n*j + (i + 1))
			var aXor [8]byte
			copy(aXor[:], a[:])
			for k := 0; k < 8; k++ {
				aXor[k] ^= byte(t >> (56 - 8*k))
			}
			copy(b[0:8], aXor[:])
			copy(b[8:16], r[i][:])
			block.Decrypt(b[:], b[:])
			copy(a[:], b[0:8])
			copy(r[i][:], b[8:16])
		}
	}

	if a != kwDefaultIV {
		return nil, errors.New("aeskw: integrity check failed")
	}

	out := make([]byte, 0, n*8)
	for i := 0; i < n; i++ {
		out = append(out, r[i][:]...)
	}
	return out, nil
}
