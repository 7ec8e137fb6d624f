package peer

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/cuemby/hearth/pkg/capability"
	"github.com/cuemby/hearth/pkg/log"
	"github.com/cuemby/hearth/pkg/metrics"
)

// PeerId identifies a remote runtime for the lifetime of a connection.
type PeerId uint32

type exportEntry struct {
	id       uint32
	route    capability.Route
	perms    capability.Permission
	refcount int
}

// Peer is one authenticated, encrypted connection to a remote runtime: an
// export table (our local objects we've handed out), an import table
// (stand-ins for the peer's objects), and the read/write goroutines that
// keep frames flowing.
type Peer struct {
	ID PeerId

	r io.Reader
	w io.Writer

	writeCh chan Frame
	done    chan struct{}
	closed  sync.Once

	mu           sync.Mutex
	nextExportID uint32
	exportByRoute map[capability.Route]*exportEntry
	exportByID    map[uint32]*exportEntry
	importByID    map[uint32]*RemoteRoute
}

// New creates a peer connection wrapping r and w, typically a
// *transport.AsyncDecryptor and *transport.AsyncEncryptor.
func New(id PeerId, r io.Reader, w io.Writer) *Peer {
	return &Peer{
		ID:            id,
		r:             r,
		w:             w,
		writeCh:       make(chan Frame, 64),
		done:          make(chan struct{}),
		exportByRoute: make(map[capability.Route]*exportEntry),
		exportByID:    make(map[uint32]*exportEntry),
		importByID:    make(map[uint32]*RemoteRoute),
	}
}

// Serve runs the write loop in a background goroutine and the read loop on
// the calling goroutine, returning when the connection fails, the read
// loop hits EOF, p is closed, or ctx is done. Closure and ctx are checked
// between frames, so a read already blocked on the transport has to return
// first. On return every imported capability is marked dead.
func (p *Peer) Serve(ctx context.Context) error {
	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		p.writeLoop()
	}()

	readErr := p.readLoop(ctx)

	p.Close()
	<-writeDone
	return readErr
}

// Close stops the write loop and marks every imported capability dead.
// Safe to call multiple times and from any goroutine.
func (p *Peer) Close() {
	p.closed.Do(func() {
		close(p.done)

		p.mu.Lock()
		imports := make([]*RemoteRoute, 0, len(p.importByID))
		for _, r := range p.importByID {
			imports = append(imports, r)
		}
		p.mu.Unlock()

		for _, r := range imports {
			r.down()
		}
	})
}

func (p *Peer) readLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.done:
			return nil
		default:
		}

		frame, err := DecodeFrame(p.r)
		if err != nil {
			return fmt.Errorf("peer: read loop: %w", err)
		}
		metrics.PeerFramesTotal.WithLabelValues(frame.Kind.String(), "in").Inc()
		p.dispatch(frame)
	}
}

func (p *Peer) writeLoop() {
	for {
		select {
		case frame := <-p.writeCh:
			if err := EncodeFrame(p.w, frame); err != nil {
				log.Errorf("peer: write loop: %v", err)
				return
			}
			metrics.PeerFramesTotal.WithLabelValues(frame.Kind.String(), "out").Inc()
		case <-p.done:
			return
		}
	}
}

func (p *Peer) dispatch(frame Frame) {
	plog := log.WithPeer(uint32(p.ID))
	switch frame.Kind {
	case FrameMessage:
		entry := p.lookupExport(frame.Target)
		if entry == nil {
			plog.Debug().Uint32("target", frame.Target).Msg("message for unknown export id")
			return
		}
		if !entry.perms.Has(capability.Send) {
			metrics.PermissionDeniedTotal.Inc()
			plog.Debug().Uint32("target", frame.Target).Msg("message to export without SEND")
			return
		}
		values := p.importCaps(frame.Caps)
		if err := entry.route.Deliver(frame.Payload, values); err != nil {
			plog.Debug().Err(err).Msg("delivery to exported route failed")
		}
	case FrameKill:
		entry := p.lookupExport(frame.Target)
		if entry == nil {
			return
		}
		if !entry.perms.Has(capability.Kill) {
			metrics.PermissionDeniedTotal.Inc()
			plog.Debug().Uint32("target", frame.Target).Msg("kill to export without KILL")
			return
		}
		_ = entry.route.Terminate()
	case FrameRelease:
		p.releaseExport(frame.Target)
	case FrameDown:
		p.mu.Lock()
		route := p.importByID[frame.Target]
		p.mu.Unlock()
		if route != nil {
			route.down()
		}
	default:
		plog.Warn().Uint8("kind", uint8(frame.Kind)).Msg("unknown frame kind")
	}
}

func (p *Peer) lookupExport(id uint32) *exportEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exportByID[id]
}

// exportRoute allocates or reuses an id for route in this connection's
// export table, watching it for teardown on first export so the peer can
// be told with a Down frame.
func (p *Peer) exportRoute(route capability.Route, perms capability.Permission) uint32 {
	p.mu.Lock()
	if entry, ok := p.exportByRoute[route]; ok {
		entry.refcount++
		// Re-exporting with wider permissions widens the entry: the
		// entry's mask is the union of everything this side has ever
		// granted for the route, and each descriptor still carries its
		// own subset.
		entry.perms |= perms
		id := entry.id
		p.mu.Unlock()
		return id
	}

	p.nextExportID++
	id := p.nextExportID
	entry := &exportEntry{id: id, route: route, perms: perms, refcount: 1}
	p.exportByRoute[route] = entry
	p.exportByID[id] = entry
	p.mu.Unlock()

	route.Watch(func() {
		p.sendDown(id)
		p.forgetExport(id)
	})
	return id
}

func (p *Peer) forgetExport(id uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if entry, ok := p.exportByID[id]; ok {
		delete(p.exportByID, id)
		delete(p.exportByRoute, entry.route)
	}
}

func (p *Peer) releaseExport(id uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.exportByID[id]
	if !ok {
		return
	}
	entry.refcount--
	if entry.refcount <= 0 {
		delete(p.exportByID, id)
		delete(p.exportByRoute, entry.route)
	}
}

// importCaps resolves cap descriptors from an incoming frame into
// capability values backed by RemoteRoute stand-ins, creating or reusing
// one per id.
func (p *Peer) importCaps(descs []CapDescriptor) []capability.Value {
	values := make([]capability.Value, len(descs))
	for i, cd := range descs {
		values[i] = capability.Value{Route: p.importValue(cd.ID), Permissions: cd.Perms}
	}
	return values
}

func (p *Peer) importValue(id uint32) *RemoteRoute {
	p.mu.Lock()
	defer p.mu.Unlock()

	if r, ok := p.importByID[id]; ok {
		r.mu.Lock()
		r.refcount++
		r.mu.Unlock()
		return r
	}

	r := &RemoteRoute{peer: p, id: id, alive: true, refcount: 1}
	p.importByID[id] = r
	return r
}

func (p *Peer) releaseImport(id uint32) {
	p.mu.Lock()
	r, ok := p.importByID[id]
	if !ok {
		p.mu.Unlock()
		return
	}

	r.mu.Lock()
	r.refcount--
	last := r.refcount <= 0
	r.mu.Unlock()

	if last {
		delete(p.importByID, id)
	}
	p.mu.Unlock()

	if last {
		p.enqueue(Frame{Kind: FrameRelease, Target: id})
	}
}

func (p *Peer) sendMessage(targetID uint32, payload []byte, caps []capability.Value) error {
	descs := make([]CapDescriptor, len(caps))
	for i, v := range caps {
		descs[i] = CapDescriptor{ID: p.exportRoute(v.Route, v.Permissions), Perms: v.Permissions}
	}
	return p.enqueue(Frame{Kind: FrameMessage, Target: targetID, Payload: payload, Caps: descs})
}

func (p *Peer) sendKill(targetID uint32) error {
	return p.enqueue(Frame{Kind: FrameKill, Target: targetID})
}

func (p *Peer) sendDown(targetID uint32) {
	_ = p.enqueue(Frame{Kind: FrameDown, Target: targetID})
}

func (p *Peer) enqueue(f Frame) error {
	select {
	case p.writeCh <- f:
		return nil
	case <-p.done:
		return fmt.Errorf("peer: connection closed")
	}
}

// Export hands a local route to this connection, for use before any
// message needs to carry it, e.g. constructing the offer handshake's
// capability descriptors.
func (p *Peer) Export(route capability.Route, perms capability.Permission) CapDescriptor {
	return CapDescriptor{ID: p.exportRoute(route, perms), Perms: perms}
}

// Import resolves a CapDescriptor received during the offer handshake
// into a capability value backed by a RemoteRoute.
func (p *Peer) Import(cd CapDescriptor) capability.Value {
	return capability.Value{Route: p.importValue(cd.ID), Permissions: cd.Perms}
}
