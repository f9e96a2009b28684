package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"strconv"
	"testing"

	"vaultd.dev/vault/types"
	"vaultd.dev/vault/vcrypto"
)

type keypair struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

func genKeypair(t *testing.T) keypair {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return keypair{pub: pub, priv: priv}
}

func identityTriple(t *testing.T, crypto vcrypto.Provider, signer keypair) (types.Pmid, []byte, []byte) {
	t.Helper()
	// pk_signature is the signer's own signature over its public key,
	// matching the source's self-signed identity binding.
	pks := ed25519.Sign(signer.priv, signer.pub)
	digest := crypto.Hash512(append(append([]byte{}, signer.pub...), pks...))
	return types.Pmid(digest), signer.pub, pks
}

func TestValidateIdentityOK(t *testing.T) {
	crypto := vcrypto.StdProvider{}
	v := New(crypto)
	signer := genKeypair(t)
	id, pub, pks := identityTriple(t, crypto, signer)
	if !v.ValidateIdentity(id, pub, pks) {
		t.Fatalf("expected valid identity")
	}
}

func TestValidateIdentityRejectsTamperedKey(t *testing.T) {
	crypto := vcrypto.StdProvider{}
	v := New(crypto)
	signer := genKeypair(t)
	id, pub, pks := identityTriple(t, crypto, signer)
	pub2 := append([]byte{}, pub...)
	pub2[0] ^= 0xFF
	if v.ValidateIdentity(id, pub2, pks) {
		t.Fatalf("expected invalid identity for tampered key")
	}
}

func TestValidateSignedSize(t *testing.T) {
	crypto := vcrypto.StdProvider{}
	v := New(crypto)
	signer := genKeypair(t)
	id, pub, pks := identityTriple(t, crypto, signer)

	size := uint64(1000)
	sig := ed25519.Sign(signer.priv, []byte(strconv.FormatUint(size, 10)))
	ss := types.SignedSize{
		DataSize:     size,
		PmidOfClient: id,
		Signature:    sig,
		PublicKey:    pub,
		PKSignature:  pks,
	}
	if !v.ValidateSignedSize(ss) {
		t.Fatalf("expected signed size to validate")
	}
	ss.DataSize = 999
	if v.ValidateSignedSize(ss) {
		t.Fatalf("expected signed size over tampered size to fail")
	}
}

func buildStoreContract(t *testing.T, crypto vcrypto.Provider, holder, client keypair, size uint64) types.StoreContract {
	t.Helper()
	clientID, clientPub, clientPKS := identityTriple(t, crypto, client)
	holderID, holderPub, holderPKS := identityTriple(t, crypto, holder)

	sizeSig := ed25519.Sign(client.priv, []byte(strconv.FormatUint(size, 10)))
	ss := types.SignedSize{
		DataSize:     size,
		PmidOfClient: clientID,
		Signature:    sizeSig,
		PublicKey:    clientPub,
		PKSignature:  clientPKS,
	}
	inner := types.InnerContract{Result: types.ResultAck, SignedSize: ss}
	innerBytes := serializeInnerContract(inner)
	outerSig := ed25519.Sign(holder.priv, innerBytes)

	return types.StoreContract{
		PmidOfHolder:       holderID,
		PublicKey:          holderPub,
		PublicKeySignature: holderPKS,
		Inner:              inner,
		OuterSignature:     outerSig,
	}
}

func TestValidateStoreContractOK(t *testing.T) {
	crypto := vcrypto.StdProvider{}
	v := New(crypto)
	holder := genKeypair(t)
	client := genKeypair(t)
	sc := buildStoreContract(t, crypto, holder, client, 1000)
	if !v.ValidateStoreContract(sc) {
		t.Fatalf("expected store contract to validate")
	}
}

func TestValidateStoreContractRejectsSameHolderAndClient(t *testing.T) {
	crypto := vcrypto.StdProvider{}
	v := New(crypto)
	same := genKeypair(t)
	sc := buildStoreContract(t, crypto, same, same, 1000)
	if v.ValidateStoreContract(sc) {
		t.Fatalf("expected store contract with holder == client to be rejected")
	}
}

func TestValidateStoreContractRejectsNack(t *testing.T) {
	crypto := vcrypto.StdProvider{}
	v := New(crypto)
	holder := genKeypair(t)
	client := genKeypair(t)
	sc := buildStoreContract(t, crypto, holder, client, 1000)
	sc.Inner.Result = types.ResultNack
	if v.ValidateStoreContract(sc) {
		t.Fatalf("expected nacked contract to be rejected")
	}
}

func TestValidateSignedRequestAnonymousAlwaysValid(t *testing.T) {
	crypto := vcrypto.StdProvider{}
	v := New(crypto)
	var anon types.Pmid
	for i := range anon {
		anon[i] = 0xff
	}
	if !v.ValidateSignedRequest(nil, nil, nil, []byte("key"), anon) {
		t.Fatalf("expected anonymous signer to always validate")
	}
}

func TestValidateSignedRequestOK(t *testing.T) {
	crypto := vcrypto.StdProvider{}
	v := New(crypto)
	signer := genKeypair(t)
	id, pub, pks := identityTriple(t, crypto, signer)

	key := []byte("chunk-or-account-key")
	buf := append(append(append([]byte{}, pub...), pks...), key...)
	digest := crypto.Hash512(buf)
	reqSig := ed25519.Sign(signer.priv, digest[:])

	if !v.ValidateSignedRequest(pub, pks, reqSig, key, id) {
		t.Fatalf("expected signed request to validate")
	}
	if v.ValidateSignedRequest(pub, pks, reqSig, []byte("different-key"), id) {
		t.Fatalf("expected signed request over different key to fail")
	}
}
