package lump

import (
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var bucketLumps = []byte("lumps")

// BoltBacking implements Backing using BoltDB, the same embedded-database
// idiom the rest of the runtime uses for durable state: one bucket, ACID
// transactions, no external dependency beyond the data directory.
type BoltBacking struct {
	db *bolt.DB
}

// NewBoltBacking opens (creating if absent) a lump database under dataDir.
func NewBoltBacking(dataDir string) (*BoltBacking, error) {
	dbPath := filepath.Join(dataDir, "lumps.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("lump: opening database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketLumps)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("lump: creating bucket: %w", err)
	}

	return &BoltBacking{db: db}, nil
}

func (b *BoltBacking) Has(id ID) (bool, error) {
	var found bool
	err := b.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(bucketLumps).Get(id[:]) != nil
		return nil
	})
	return found, err
}

func (b *BoltBacking) Put(id ID, data []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketLumps).Put(id[:], data)
	})
}

func (b *BoltBacking) Get(id ID) ([]byte, error) {
	var data []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketLumps).Get(id[:])
		if v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	return data, err
}

func (b *BoltBacking) Close() error {
	return b.db.Close()
}

// MemBacking is an in-memory Backing, used in tests that don't need
// BoltDB's durability.
type MemBacking struct {
	data map[ID][]byte
}

// NewMemBacking creates an empty in-memory backing.
func NewMemBacking() *MemBacking {
	return &MemBacking{data: make(map[ID][]byte)}
}

func (m *MemBacking) Has(id ID) (bool, error) {
	_, ok := m.data[id]
	return ok, nil
}

func (m *MemBacking) Put(id ID, data []byte) error {
	m.data[id] = append([]byte(nil), data...)
	return nil
}

func (m *MemBacking) Get(id ID) ([]byte, error) {
	return m.data[id], nil
}

func (m *MemBacking) Close() error { return nil }
