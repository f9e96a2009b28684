package chunkinfo

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"vaultd.dev/vault/types"
)

var bucketChunkInfo = []byte("chunk_info_by_name")

// PersistentStore mirrors a Handler's chunk-info map into bbolt so a
// restart does not lose watch_list/reference_list state, grounded on the
// same pattern as account.PersistentStore.
type PersistentStore struct {
	db *bolt.DB
}

func OpenStore(path string) (*PersistentStore, error) {
	bdb, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("chunkinfo: open db: %w", err)
	}
	if err := bdb.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketChunkInfo)
		return err
	}); err != nil {
		_ = bdb.Close()
		return nil, err
	}
	return &PersistentStore{db: bdb}, nil
}

func (s *PersistentStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save persists every chunk-info record tracked by h.
func (s *PersistentStore) Save(h *Handler) error {
	snap := h.snapshotMap()

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketChunkInfo)
		if err := b.ForEach(func(k, _ []byte) error { return b.Delete(k) }); err != nil {
			return err
		}
		for name, w := range snap {
			val, err := json.Marshal(w)
			if err != nil {
				return err
			}
			if err := b.Put(name[:], val); err != nil {
				return err
			}
		}
		return nil
	})
}

// Load replaces h's chunk-info map with the persisted state.
func (s *PersistentStore) Load(h *Handler) error {
	infos := make(map[types.ChunkName]*chunkInfo)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketChunkInfo)
		return b.ForEach(func(k, v []byte) error {
			name, ok := types.ChunkNameFromBytes(k)
			if !ok {
				return nil
			}
			var w ChunkInfoSnapshot
			if err := json.Unmarshal(v, &w); err != nil {
				return err
			}
			infos[name] = h.snapshotToInfo(w)
			return nil
		})
	})
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.infos = infos
	h.mu.Unlock()
	return nil
}
