// Package chunkstore implements the content-addressed, size-budgeted blob
// store of spec §4.2: one flat file per chunk, sharded on disk by type,
// with a bbolt-backed index so reopening a store does not require walking
// every shard directory just to answer Has/Size.
package chunkstore

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	bolt "go.etcd.io/bbolt"

	"vaultd.dev/vault/types"
)

// Category is the sub-directory a chunk is shelved under, independent of
// whether it is hashable. Mirrors the source's kNormal/kCache/kOutgoing.
type Category string

const (
	CategoryNormal   Category = "normal"
	CategoryCache    Category = "cache"
	CategoryOutgoing Category = "outgoing"
)

var allCategories = []Category{CategoryNormal, CategoryCache, CategoryOutgoing}

// entry is the persisted index record for one chunk.
type entry struct {
	Size     uint64
	Hashable bool
	Category Category
}

var bucketIndex = []byte("chunk_index")
var bucketMeta = []byte("chunk_meta")
var keyUsed = []byte("used_bytes")

// Store is a durable, mutex-guarded, content-addressed blob store with a
// byte budget (§4.2, §5 "ChunkStore: ... own mutex").
type Store struct {
	dir       string
	db        *bolt.DB
	available uint64

	mu   sync.Mutex
	used uint64
}

// Open opens (or creates) a chunk store rooted at dir with the given byte
// budget. If the bbolt index is empty, the directories are walked to
// repopulate it, matching the source's PopulateChunkSet recovery path; a
// non-empty index is used as is and is not compared against the disk.
func Open(dir string, available uint64) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("chunkstore: dir required")
	}
	for _, hashable := range []bool{true, false} {
		for _, cat := range allCategories {
			if err := os.MkdirAll(shardDir(dir, hashable, cat), 0o700); err != nil {
				return nil, fmt.Errorf("chunkstore: mkdir: %w", err)
			}
		}
	}

	dbPath := filepath.Join(dir, "index.db")
	bdb, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("chunkstore: open index: %w", err)
	}

	s := &Store{dir: dir, db: bdb, available: available}
	if err := bdb.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketIndex); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketMeta)
		return err
	}); err != nil {
		_ = bdb.Close()
		return nil, err
	}

	if err := s.rebuildIfEmpty(); err != nil {
		_ = bdb.Close()
		return nil, err
	}
	if err := s.loadUsed(); err != nil {
		_ = bdb.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func shardDir(root string, hashable bool, cat Category) string {
	kind := "nonhashable"
	if hashable {
		kind = "hashable"
	}
	return filepath.Join(root, kind, string(cat))
}

func chunkPath(root string, name types.ChunkName, hashable bool, cat Category) string {
	return filepath.Join(shardDir(root, hashable, cat), hex.EncodeToString(name[:]))
}

// rebuildIfEmpty walks every shard directory and repopulates the index if
// the index bucket currently has no entries, exactly the recovery path
// the on-disk layout of §6.2 promises: "re-opening the store re-populates
// the in-memory index by walking the directories."
func (s *Store) rebuildIfEmpty() error {
	empty := true
	_ = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketIndex)
		if c := b.Cursor(); c != nil {
			if k, _ := c.First(); k != nil {
				empty = false
			}
		}
		return nil
	})
	if !empty {
		return nil
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketIndex)
		for _, hashable := range []bool{true, false} {
			for _, cat := range allCategories {
				dir := shardDir(s.dir, hashable, cat)
				walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
					if err != nil || d.IsDir() {
						return nil
					}
					name, ok := decodeHexName(d.Name())
					if !ok {
						return nil
					}
					info, err := d.Info()
					if err != nil {
						return nil
					}
					e := entry{Size: uint64(info.Size()), Hashable: hashable, Category: cat}
					return b.Put(name[:], encodeEntry(e))
				})
				if walkErr != nil {
					return walkErr
				}
			}
		}
		return nil
	})
}

func (s *Store) loadUsed() error {
	var total uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketIndex)
		return b.ForEach(func(_, v []byte) error {
			e, ok := decodeEntry(v)
			if ok {
				total += e.Size
			}
			return nil
		})
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.used = total
	s.mu.Unlock()
	return nil
}

func decodeHexName(s string) (types.ChunkName, bool) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return types.ChunkName{}, false
	}
	return types.ChunkNameFromBytes(raw)
}

// Has reports whether name is present in the store, in any shard.
func (s *Store) Has(name types.ChunkName) bool {
	var found bool
	_ = s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(bucketIndex).Get(name[:]) != nil
		return nil
	})
	return found
}

// Store persists bytes under name. hashable stores reject a mismatched
// hash (§4.2: "MUST reject store(name, bytes) when SHA-512(bytes) != name").
// Repeated stores of an identical (name, bytes) pair succeed idempotently.
func (s *Store) Store(name types.ChunkName, data []byte, hashable bool, cat Category) error {
	if hashable {
		sum := sha512.Sum512(data)
		if types.ChunkName(sum) != name {
			return fmt.Errorf("chunkstore: hash mismatch for %s", name)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.lookup(name); ok {
		if existing.Size == uint64(len(data)) {
			return nil // idempotent re-store
		}
		return fmt.Errorf("chunkstore: %s already stored with different size", name)
	}

	if s.used+uint64(len(data)) > s.available {
		return fmt.Errorf("chunkstore: insufficient space for %s", name)
	}

	path := chunkPath(s.dir, name, hashable, cat)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("chunkstore: write: %w", err)
	}

	e := entry{Size: uint64(len(data)), Hashable: hashable, Category: cat}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketIndex).Put(name[:], encodeEntry(e))
	}); err != nil {
		_ = os.Remove(path)
		return err
	}
	s.used += e.Size
	return nil
}

func (s *Store) lookup(name types.ChunkName) (entry, bool) {
	var e entry
	var ok bool
	_ = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketIndex).Get(name[:])
		if v == nil {
			return nil
		}
		e, ok = decodeEntry(v)
		return nil
	})
	return e, ok
}

// Load reads the bytes stored under name.
func (s *Store) Load(name types.ChunkName) ([]byte, error) {
	e, ok := s.lookup(name)
	if !ok {
		return nil, fmt.Errorf("chunkstore: %s not found", name)
	}
	path := chunkPath(s.dir, name, e.Hashable, e.Category)
	return os.ReadFile(path) // #nosec G304 -- path derived from validated chunk name
}

// Delete removes name from the store. Deleting an absent chunk is a no-op.
func (s *Store) Delete(name types.ChunkName) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(name)
	if !ok {
		return nil
	}
	path := chunkPath(s.dir, name, e.Hashable, e.Category)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("chunkstore: remove: %w", err)
	}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketIndex).Delete(name[:])
	}); err != nil {
		return err
	}
	s.used -= e.Size
	return nil
}

// Size returns the stored size of name, or false if absent.
func (s *Store) Size(name types.ChunkName) (uint64, bool) {
	e, ok := s.lookup(name)
	return e.Size, ok
}

func (s *Store) Available() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.used >= s.available {
		return 0
	}
	return s.available - s.used
}

func (s *Store) Used() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used
}

func encodeEntry(e entry) []byte {
	cat := byte(0)
	switch e.Category {
	case CategoryCache:
		cat = 1
	case CategoryOutgoing:
		cat = 2
	}
	hashableByte := byte(0)
	if e.Hashable {
		hashableByte = 1
	}
	out := make([]byte, 10)
	for i := 0; i < 8; i++ {
		out[i] = byte(e.Size >> (56 - 8*i))
	}
	out[8] = hashableByte
	out[9] = cat
	return out
}

func decodeEntry(b []byte) (entry, bool) {
	if len(b) != 10 {
		return entry{}, false
	}
	var size uint64
	for i := 0; i < 8; i++ {
		size = size<<8 | uint64(b[i])
	}
	cat := CategoryNormal
	switch b[9] {
	case 1:
		cat = CategoryCache
	case 2:
		cat = CategoryOutgoing
	}
	return entry{Size: size, Hashable: b[8] == 1, Category: cat}, true
}
