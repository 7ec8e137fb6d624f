package runtime

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/cuemby/hearth/pkg/asset"
	"github.com/cuemby/hearth/pkg/capability"
	"github.com/cuemby/hearth/pkg/log"
	"github.com/cuemby/hearth/pkg/lump"
	"github.com/cuemby/hearth/pkg/peer"
	"github.com/cuemby/hearth/pkg/process"
)

// Plugin contributes asset loaders, runners, or other setup to a
// RuntimeBuilder before the Runtime it describes exists. Build is called
// once, synchronously, in AddPlugin, in the order plugins are added.
type Plugin interface {
	Build(b *RuntimeBuilder)
}

// RuntimeBuilder collects plugins and runners, then produces a Runtime.
type RuntimeBuilder struct {
	mu      sync.Mutex
	plugins map[reflect.Type]Plugin
	runners []func(*Runtime)

	assets     *asset.Store
	lumps      lump.Store
	services   map[string]capability.Value
	spawnLimit int
}

// NewRuntimeBuilder creates an empty builder over the given lump store.
// The asset store is constructed immediately (over lumps) so plugins can
// register loaders during Build.
func NewRuntimeBuilder(lumps lump.Store) *RuntimeBuilder {
	return &RuntimeBuilder{
		plugins:  make(map[reflect.Type]Plugin),
		assets:   asset.NewStore(lumps),
		lumps:    lumps,
		services: make(map[string]capability.Value),
	}
}

// AddPlugin registers p, calling p.Build(b) synchronously. Adding the same
// concrete plugin type twice is a no-op (logged).
func (b *RuntimeBuilder) AddPlugin(p Plugin) {
	t := reflect.TypeOf(p)

	b.mu.Lock()
	if _, exists := b.plugins[t]; exists {
		b.mu.Unlock()
		log.Error(fmt.Sprintf("runtime: attempted to add plugin twice: %s", t))
		return
	}
	b.mu.Unlock()

	p.Build(b)

	b.mu.Lock()
	b.plugins[t] = p
	b.mu.Unlock()
}

// AddRunner queues fn to run, passed the finished *Runtime, once Run is
// called. Runners are started as goroutines; Run does not wait for them.
func (b *RuntimeBuilder) AddRunner(fn func(*Runtime)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.runners = append(b.runners, fn)
}

// AddAssetLoader registers a decoder for class against the builder's
// pending asset store.
func (b *RuntimeBuilder) AddAssetLoader(class string, loader asset.Loader) {
	b.assets.RegisterLoader(class, loader)
}

// SetSpawnLimit caps the number of simultaneously live processes the
// runtime's factory will allow. Zero (the default) means unlimited.
func (b *RuntimeBuilder) SetSpawnLimit(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.spawnLimit = n
}

// AddService seeds name in the immutable registry that Run will
// construct, bound to cap. Call once per service before Run; the registry
// is frozen at Run and later registrations against it always fail.
func (b *RuntimeBuilder) AddService(name string, cap capability.Value) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.services[name] = cap
}

// Run freezes the builder's configuration into a Runtime and starts every
// queued runner in its own goroutine.
func (b *RuntimeBuilder) Run() *Runtime {
	b.mu.Lock()
	runners := append([]func(*Runtime){}, b.runners...)
	services := b.services
	spawnLimit := b.spawnLimit
	b.mu.Unlock()

	store := process.NewStore(spawnLimit)
	rt := &Runtime{
		Lumps:     b.lumps,
		Assets:    b.assets,
		Store:     store,
		Processes: process.NewFactory(store),
		Registry:  process.NewRegistry(services),
	}

	for _, fn := range runners {
		fn := fn
		go fn(rt)
	}

	return rt
}

// Runtime is the process-wide state a single Hearth peer constructs once
// at startup: the lump store, asset store, process factory, service
// registry, and peer-id allocator. Everything else (every process,
// mailbox, and peer connection) is reached through capabilities handed out
// from here, never through package-level state.
type Runtime struct {
	Lumps     lump.Store
	Assets    *asset.Store
	Store     *process.Store
	Processes *process.Factory
	Registry  *process.Registry

	nextPeerID atomic.Uint32

	peersMu  sync.Mutex
	peers    map[peer.PeerId]*peer.Peer
	peerAPIs map[peer.PeerId]capability.Value
}

// AllocatePeerID returns the next strictly increasing PeerId this runtime
// will assign to a connecting client.
func (rt *Runtime) AllocatePeerID() peer.PeerId {
	return peer.PeerId(rt.nextPeerID.Add(1))
}

// RegisterPeer records p as a live connection under its own id, for the
// peer directory's FindPeer lookups.
func (rt *Runtime) RegisterPeer(p *peer.Peer) {
	rt.peersMu.Lock()
	defer rt.peersMu.Unlock()
	if rt.peers == nil {
		rt.peers = make(map[peer.PeerId]*peer.Peer)
	}
	rt.peers[p.ID] = p
}

// ForgetPeer removes id from the live-peer set, typically once its
// connection's Serve loop returns.
func (rt *Runtime) ForgetPeer(id peer.PeerId) {
	rt.peersMu.Lock()
	defer rt.peersMu.Unlock()
	delete(rt.peers, id)
	delete(rt.peerAPIs, id)
}

// FindPeer looks up a currently connected peer by id.
func (rt *Runtime) FindPeer(id peer.PeerId) (*peer.Peer, bool) {
	rt.peersMu.Lock()
	defer rt.peersMu.Unlock()
	p, ok := rt.peers[id]
	return p, ok
}

// SetPeerAPI records the PeerApi capability peer id advertised in its
// ClientOffer, making it reachable through the runtime's directory service.
func (rt *Runtime) SetPeerAPI(id peer.PeerId, api capability.Value) {
	rt.peersMu.Lock()
	defer rt.peersMu.Unlock()
	if rt.peerAPIs == nil {
		rt.peerAPIs = make(map[peer.PeerId]capability.Value)
	}
	rt.peerAPIs[id] = api
}

// FindPeerCapability implements peer.Lookup: it returns the PeerApi
// capability a connected peer advertised, for Directory.FindPeer.
func (rt *Runtime) FindPeerCapability(id peer.PeerId) (capability.Value, bool) {
	rt.peersMu.Lock()
	defer rt.peersMu.Unlock()
	api, ok := rt.peerAPIs[id]
	return api, ok
}

// PeerCount reports the number of currently connected peers, for metrics.
func (rt *Runtime) PeerCount() int {
	rt.peersMu.Lock()
	defer rt.peersMu.Unlock()
	return len(rt.peers)
}
