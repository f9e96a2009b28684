package types

// SignedSize is a client-signed assertion of a chunk's size, carried inside
// a StoreContract and on several RPCs (§6.1). The signature is over
// ascii(data_size) under the client's own key.
type SignedSize struct {
	DataSize     uint64
	PmidOfClient Pmid
	Signature    []byte
	PublicKey    []byte
	PKSignature  []byte
}

// Result is the wire-level outcome of an RPC, per §6.1/§7: the only
// user-visible codes are Ack and Nack.
type Result int

const (
	ResultNack Result = iota
	ResultAck
)

// InnerContract is the client-signed half of a StoreContract (§3.4).
type InnerContract struct {
	Result     Result
	SignedSize SignedSize
}

// StoreContract is the doubly-signed record proving a specific holder
// agreed to store a specific chunk for a specific client (§3.4, glossary).
// The outer signature is over the serialised InnerContract; the inner
// SignedSize is signed by the client.
type StoreContract struct {
	PmidOfHolder       Pmid
	PublicKey          []byte
	PublicKeySignature []byte
	Inner              InnerContract
	OuterSignature     []byte
}

// WatchListEntry is one row of a ChunkInfo's watch_list (§3.1).
type WatchListEntry struct {
	Pmid         Pmid
	PaymentsDone bool
	RequestedAt  int64
}

// ReferenceListEntry is one row of a ChunkInfo's reference_list (§3.1).
type ReferenceListEntry struct {
	Pmid     Pmid
	Size     uint64
	StoredAt int64
}
