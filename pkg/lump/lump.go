package lump

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cuemby/hearth/pkg/herr"
	"github.com/cuemby/hearth/pkg/metrics"
	"golang.org/x/crypto/blake2b"
)

// IDSize is the length in bytes of a LumpId: a BLAKE2b-256 digest.
const IDSize = 32

// ID identifies a lump by the digest of its content. Equality of ID implies
// equality of content.
type ID [IDSize]byte

// String renders the digest as hex, for logging.
func (id ID) String() string {
	return fmt.Sprintf("%x", [IDSize]byte(id))
}

// Digest computes the ID of a byte slice without storing it.
func Digest(data []byte) ID {
	return ID(blake2b.Sum256(data))
}

// Store is a content-addressed blob store.
type Store interface {
	// Add inserts data if absent and returns its ID. Idempotent.
	Add(data []byte) (ID, error)
	// Get returns the bytes for id, or an error wrapping herr.LumpNotFound.
	Get(id ID) ([]byte, error)
	// Loan returns a refcounted handle that keeps id's bytes from being
	// collected for as long as it is held. Release it with Loan.Release.
	Loan(id ID) (*Loan, error)
	// Close releases the store's underlying resources.
	Close() error
}

// Loan is a reference-counted hold on a lump. Multiple loans on the same ID
// share one refcount; the lump is eligible for collection only once every
// loan on it has been released.
type Loan struct {
	id      ID
	store   *refcountedStore
	release sync.Once
}

// ID returns the lump this loan keeps alive.
func (l *Loan) ID() ID { return l.id }

// Release drops this loan. Safe to call more than once.
func (l *Loan) Release() {
	l.release.Do(func() {
		l.store.decref(l.id)
	})
}

// refcountedStore wraps a byte-level backing store with in-memory loan
// refcounts, the way a single BoltDB bucket backs many logical resources in
// the rest of the runtime's storage layer.
type refcountedStore struct {
	backing Backing
	mu      sync.Mutex
	refs    map[ID]*int64
}

// Backing is the minimal persistence contract a lump store needs. BoltBacking
// is the production implementation; tests may supply an in-memory one.
type Backing interface {
	Has(id ID) (bool, error)
	Put(id ID, data []byte) error
	Get(id ID) ([]byte, error)
	Close() error
}

// NewStore wraps a Backing with content-addressing and loan refcounting.
func NewStore(backing Backing) Store {
	return &refcountedStore{
		backing: backing,
		refs:    make(map[ID]*int64),
	}
}

func (s *refcountedStore) Add(data []byte) (ID, error) {
	id := Digest(data)

	exists, err := s.backing.Has(id)
	if err != nil {
		return ID{}, fmt.Errorf("lump: checking existing digest: %w", err)
	}
	if exists {
		return id, nil
	}

	if err := s.backing.Put(id, data); err != nil {
		return ID{}, fmt.Errorf("lump: storing digest %s: %w", id, err)
	}
	metrics.LumpsAddedTotal.Inc()
	metrics.LumpStoreBytes.Add(float64(len(data)))
	return id, nil
}

func (s *refcountedStore) Get(id ID) ([]byte, error) {
	exists, err := s.backing.Has(id)
	if err != nil {
		return nil, fmt.Errorf("lump: checking digest %s: %w", id, err)
	}
	if !exists {
		return nil, fmt.Errorf("lump: %s: %w", id, herr.LumpNotFound)
	}

	data, err := s.backing.Get(id)
	if err != nil {
		return nil, fmt.Errorf("lump: reading %s: %w", id, err)
	}
	return data, nil
}

func (s *refcountedStore) Loan(id ID) (*Loan, error) {
	exists, err := s.backing.Has(id)
	if err != nil {
		return nil, fmt.Errorf("lump: checking digest for loan: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("lump: loan target %s: %w", id, herr.LumpNotFound)
	}

	s.mu.Lock()
	ref, ok := s.refs[id]
	if !ok {
		var n int64
		ref = &n
		s.refs[id] = ref
	}
	atomic.AddInt64(ref, 1)
	s.mu.Unlock()

	return &Loan{id: id, store: s}, nil
}

func (s *refcountedStore) decref(id ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.refs[id]
	if !ok {
		return
	}
	if atomic.AddInt64(ref, -1) <= 0 {
		delete(s.refs, id)
	}
}

func (s *refcountedStore) Close() error {
	return s.backing.Close()
}
