package asset

import (
	"fmt"
	"sync"

	"github.com/cuemby/hearth/pkg/herr"
	"github.com/cuemby/hearth/pkg/lump"
	"github.com/cuemby/hearth/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

// Loader decodes raw lump bytes into a typed artifact. Implementations may
// call back into the Store (e.g. to load a dependent asset) but must not
// block on another Load of the same key, since doing so would deadlock against
// singleflight's own rendezvous.
type Loader func(store *Store, data []byte) (any, error)

// Key identifies a cached asset by the loader class that produced it and
// the lump it was decoded from.
type Key struct {
	Class string
	Lump  lump.ID
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s", k.Class, k.Lump)
}

// Store decodes lumps into cached, typed artifacts.
type Store struct {
	lumps lump.Store

	group singleflight.Group

	mu    sync.RWMutex
	cache map[Key]any

	loadersMu sync.RWMutex
	loaders   map[string]Loader
}

// NewStore creates an asset store backed by the given lump store.
func NewStore(lumps lump.Store) *Store {
	return &Store{
		lumps:   lumps,
		cache:   make(map[Key]any),
		loaders: make(map[string]Loader),
	}
}

// RegisterLoader adds a decoder for a loader class. Registration is
// expected at runtime construction time, before any Load calls reference
// the class.
func (s *Store) RegisterLoader(class string, loader Loader) {
	s.loadersMu.Lock()
	defer s.loadersMu.Unlock()
	s.loaders[class] = loader
}

// Load decodes the lump identified by id using the named loader class,
// returning the cached artifact if one is already present. Concurrent
// Load calls for the same (class, id) share a single decode.
func (s *Store) Load(class string, id lump.ID) (any, error) {
	key := Key{Class: class, Lump: id}

	s.mu.RLock()
	if cached, ok := s.cache[key]; ok {
		s.mu.RUnlock()
		metrics.AssetCacheHitsTotal.Inc()
		return cached, nil
	}
	s.mu.RUnlock()

	s.loadersMu.RLock()
	loader, ok := s.loaders[class]
	s.loadersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("asset: no loader registered for class %q", class)
	}

	result, err, _ := s.group.Do(key.String(), func() (any, error) {
		// Re-check the cache: another caller may have completed the
		// decode between our RUnlock above and entering Do.
		s.mu.RLock()
		if cached, ok := s.cache[key]; ok {
			s.mu.RUnlock()
			return cached, nil
		}
		s.mu.RUnlock()

		metrics.AssetCacheMissesTotal.Inc()
		timer := metrics.NewTimer()

		data, err := s.lumps.Get(id)
		if err != nil {
			return nil, fmt.Errorf("asset: loading lump %s: %w", id, err)
		}

		artifact, err := loader(s, data)
		if err != nil {
			return nil, fmt.Errorf("asset: class %q: %w: %v", class, herr.LoaderError, err)
		}
		timer.ObserveDurationVec(metrics.AssetLoadDuration, class)

		s.mu.Lock()
		s.cache[key] = artifact
		s.mu.Unlock()

		return artifact, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
