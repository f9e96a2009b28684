// Package types defines the distinct identifier and wire-entity types
// shared across the vault core, so a Pmid can never be passed where a
// ChunkName is expected even though both are 64-byte hashes.
package types

import (
	"encoding/hex"
	"fmt"
)

// IDLen is the fixed length, in bytes, of every identifier in the system:
// a SHA-512 digest.
const IDLen = 64

// Pmid is a vault identity: SHA-512(public_key || public_key_signature).
type Pmid [IDLen]byte

func (p Pmid) String() string { return hex.EncodeToString(p[:]) }
func (p Pmid) IsZero() bool   { return p == Pmid{} }

// MarshalJSON renders a Pmid as a hex string rather than an array of 64
// small integers, so wire payloads (httpapi, the startup-sync blob) read
// the same hex form used everywhere else (String, on-disk chunk names).
func (p Pmid) MarshalJSON() ([]byte, error) { return marshalHexID(p[:]) }

func (p *Pmid) UnmarshalJSON(b []byte) error {
	id, err := unmarshalHexID(b, IDLen)
	if err != nil {
		return fmt.Errorf("pmid: %w", err)
	}
	copy(p[:], id)
	return nil
}

// ChunkName is the content-address of an encrypted chunk: SHA-512(bytes).
type ChunkName [IDLen]byte

func (c ChunkName) String() string { return hex.EncodeToString(c[:]) }
func (c ChunkName) IsZero() bool   { return c == ChunkName{} }

func (c ChunkName) MarshalJSON() ([]byte, error) { return marshalHexID(c[:]) }

func (c *ChunkName) UnmarshalJSON(b []byte) error {
	id, err := unmarshalHexID(b, IDLen)
	if err != nil {
		return fmt.Errorf("chunkname: %w", err)
	}
	copy(c[:], id)
	return nil
}

// AccountName is the overlay key of a vault's account: SHA-512(pmid || "ACCOUNT").
type AccountName [IDLen]byte

func (a AccountName) String() string { return hex.EncodeToString(a[:]) }

func (a AccountName) MarshalJSON() ([]byte, error) { return marshalHexID(a[:]) }

func (a *AccountName) UnmarshalJSON(b []byte) error {
	id, err := unmarshalHexID(b, IDLen)
	if err != nil {
		return fmt.Errorf("accountname: %w", err)
	}
	copy(a[:], id)
	return nil
}

func marshalHexID(id []byte) ([]byte, error) {
	out := make([]byte, 0, 2*len(id)+2)
	out = append(out, '"')
	out = append(out, []byte(hex.EncodeToString(id))...)
	out = append(out, '"')
	return out, nil
}

func unmarshalHexID(b []byte, length int) ([]byte, error) {
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return nil, fmt.Errorf("expected a JSON string")
	}
	raw, err := hex.DecodeString(string(b[1 : len(b)-1]))
	if err != nil {
		return nil, err
	}
	if len(raw) != length {
		return nil, fmt.Errorf("expected %d bytes, got %d", length, len(raw))
	}
	return raw, nil
}

// accountSuffix is appended to a PMID before hashing to derive its
// AccountName, per spec.
const accountSuffix = "ACCOUNT"

// DeriveAccountName computes SHA-512(pmid || "ACCOUNT") using the supplied
// hash function (always vcrypto.Provider.Hash512 in production code; taken
// as a function here to keep this package free of a vcrypto import cycle).
func DeriveAccountName(pmid Pmid, hash512 func([]byte) [64]byte) AccountName {
	buf := make([]byte, 0, IDLen+len(accountSuffix))
	buf = append(buf, pmid[:]...)
	buf = append(buf, accountSuffix...)
	return AccountName(hash512(buf))
}

// PmidFromBytes validates and converts a raw byte slice into a Pmid.
func PmidFromBytes(b []byte) (Pmid, bool) {
	var p Pmid
	if len(b) != IDLen {
		return p, false
	}
	copy(p[:], b)
	return p, true
}

// ChunkNameFromBytes validates and converts a raw byte slice into a ChunkName.
func ChunkNameFromBytes(b []byte) (ChunkName, bool) {
	var c ChunkName
	if len(b) != IDLen {
		return c, false
	}
	copy(c[:], b)
	return c, true
}
