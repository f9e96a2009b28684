// Package identity implements the pure, side-effect-free identity and
// signature checks of spec §4.1: every function here is a function of its
// inputs only, with no I/O and no shared state.
package identity

import (
	"bytes"
	"strconv"
	"strings"

	"vaultd.dev/vault/types"
	"vaultd.dev/vault/vcrypto"
)

// AnonymousSignerID is the constant that always validates a signed
// request regardless of signature, matching the source's "ffff...ff"
// anonymous PMID used for read-only/anonymous RPCs.
var AnonymousSignerID = strings.Repeat("ff", types.IDLen)

// Validator bundles a crypto provider to check identity triples and the
// signed payloads built on top of them.
type Validator struct {
	Crypto vcrypto.Provider
}

func New(crypto vcrypto.Provider) *Validator {
	return &Validator{Crypto: crypto}
}

// ValidateIdentity checks both halves of §4.1's identity contract: that
// pkSignature is publicKey's own signature over itself (rejecting a
// malformed-but-hash-consistent triple), and that
// id == SHA-512(publicKey || pkSignature), i.e. that id is honestly
// self-derived from the key material presented alongside it. This
// authenticates the binding between id and publicKey, not a chain of
// trust — nothing here vouches for who controls publicKey.
func (v *Validator) ValidateIdentity(id types.Pmid, publicKey, pkSignature []byte) bool {
	if !v.Crypto.Verify(publicKey, pkSignature, publicKey) {
		return false
	}
	buf := make([]byte, 0, len(publicKey)+len(pkSignature))
	buf = append(buf, publicKey...)
	buf = append(buf, pkSignature...)
	got := v.Crypto.Hash512(buf)
	return bytes.Equal(got[:], id[:])
}

// ValidateSignedSize checks that the identity embedded in s is
// well-formed and that s.Signature validates over ascii(s.DataSize) under
// s.PublicKey.
func (v *Validator) ValidateSignedSize(s types.SignedSize) bool {
	if !v.ValidateIdentity(s.PmidOfClient, s.PublicKey, s.PKSignature) {
		return false
	}
	msg := []byte(strconv.FormatUint(s.DataSize, 10))
	return v.Crypto.Verify(s.PublicKey, s.Signature, msg)
}

// ValidateStoreContract checks both signatures of a StoreContract, that
// the inner result is an Ack, that the inner signed_size validates, and
// that the holder and client PMIDs differ (§3.4).
func (v *Validator) ValidateStoreContract(sc types.StoreContract) bool {
	if !v.ValidateIdentity(sc.PmidOfHolder, sc.PublicKey, sc.PublicKeySignature) {
		return false
	}
	if sc.Inner.Result != types.ResultAck {
		return false
	}
	if !v.ValidateSignedSize(sc.Inner.SignedSize) {
		return false
	}
	if sc.PmidOfHolder == sc.Inner.SignedSize.PmidOfClient {
		return false
	}
	innerBytes := serializeInnerContract(sc.Inner)
	return v.Crypto.Verify(sc.PublicKey, sc.OuterSignature, innerBytes)
}

// ValidateSignedRequest checks identity validity and that requestSig
// validates over SHA-512(publicKey || pkSignature || key) under
// publicKey. The anonymous signer id always validates, matching the
// source's handling of read-only RPCs signed by no one in particular.
func (v *Validator) ValidateSignedRequest(publicKey, pkSignature, requestSig, key []byte, signerID types.Pmid) bool {
	if signerID.String() == AnonymousSignerID {
		return true
	}
	if !v.ValidateIdentity(signerID, publicKey, pkSignature) {
		return false
	}
	buf := make([]byte, 0, len(publicKey)+len(pkSignature)+len(key))
	buf = append(buf, publicKey...)
	buf = append(buf, pkSignature...)
	buf = append(buf, key...)
	digest := v.Crypto.Hash512(buf)
	return v.Crypto.Verify(publicKey, requestSig, digest[:])
}

// serializeInnerContract produces a stable byte encoding of an
// InnerContract for outer-signature verification. Field order is fixed
// and length-prefixed so no two distinct InnerContract values encode to
// the same bytes.
func serializeInnerContract(ic types.InnerContract) []byte {
	buf := make([]byte, 0, 1+8+types.IDLen+len(ic.SignedSize.Signature)+len(ic.SignedSize.PublicKey)+len(ic.SignedSize.PKSignature)+16)
	buf = append(buf, byte(ic.Result))
	buf = appendUint64(buf, ic.SignedSize.DataSize)
	buf = append(buf, ic.SignedSize.PmidOfClient[:]...)
	buf = appendBytesWithLen(buf, ic.SignedSize.Signature)
	buf = appendBytesWithLen(buf, ic.SignedSize.PublicKey)
	buf = appendBytesWithLen(buf, ic.SignedSize.PKSignature)
	return buf
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	for i := 0; i < 8; i++ {
		tmp[i] = byte(v >> (56 - 8*i))
	}
	return append(buf, tmp[:]...)
}

func appendBytesWithLen(buf []byte, b []byte) []byte {
	buf = appendUint64(buf, uint64(len(b)))
	return append(buf, b...)
}
