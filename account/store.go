package account

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"vaultd.dev/vault/types"
)

var bucketAccounts = []byte("accounts_by_pmid")

// PersistentStore wraps a bbolt database holding a durable mirror of a
// Handler's account set, so a crash does not lose offered/given/taken
// state and GetSyncData has something to serialise. Grounded on the
// teacher's node/store bbolt-backed persistence pattern.
type PersistentStore struct {
	db *bolt.DB
}

func OpenStore(path string) (*PersistentStore, error) {
	bdb, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("account: open db: %w", err)
	}
	if err := bdb.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketAccounts)
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

type wireAccount struct {
	SpaceOffered uint64   `json:"space_offered"`
	SpaceGiven   uint64   `json:"space_given"`
	SpaceTaken   uint64   `json:"space_taken"`
	Alerts       []string `json:"alerts"`
}

// Save persists every account in h to the bbolt index.
func (s *PersistentStore) Save(h *Handler) error {
	snapshot := h.Snapshot()
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAccounts)
		if err := b.ForEach(func(k, _ []byte) error { return b.Delete(k) }); err != nil {
			return err
		}
		for _, a := range snapshot {
			val, err := json.Marshal(wireAccount{
				SpaceOffered: a.SpaceOffered,
				SpaceGiven:   a.SpaceGiven,
				SpaceTaken:   a.SpaceTaken,
				Alerts:       a.Alerts,
			})
			if err != nil {
				return err
			}
			if err := b.Put(a.Pmid[:], val); err != nil {
				return err
			}
		}
		return nil
	})
}

// Load reads every persisted account into h, replacing its current state.
// Used on startup before the first mutating RPC is served.
func (s *PersistentStore) Load(h *Handler) error {
	var accounts []Account
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAccounts)
		return b.ForEach(func(k, v []byte) error {
			pmid, ok := types.PmidFromBytes(k)
			if !ok {
				return nil
			}
			var wa wireAccount
			if err := json.Unmarshal(v, &wa); err != nil {
				return err
			}
			accounts = append(accounts, Account{
				Pmid:         pmid,
				SpaceOffered: wa.SpaceOffered,
				SpaceGiven:   wa.SpaceGiven,
				SpaceTaken:   wa.SpaceTaken,
				Alerts:       wa.Alerts,
			})
			return nil
		})
	})
	if err != nil {
		return err
	}
	h.Restore(accounts)
	return nil
}
