package runtime

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"syscall"

	"github.com/cuemby/hearth/pkg/log"
)

// IPCListener is a Unix domain socket listener for the daemon's local
// clients: it creates the socket file at startup, detects and removes a
// stale leftover socket from a crashed prior instance, and fails loudly
// if another live instance already holds the path.
type IPCListener struct {
	net.Listener
	path string
}

// NewIPCListener binds a Unix socket at path. If a socket file already
// exists there, it first dials it: a successful connection means another
// instance is live (returns "address in use"); a connection-refused error
// means the file is a stale leftover and is removed before binding.
func NewIPCListener(path string) (*IPCListener, error) {
	if conn, err := net.Dial("unix", path); err == nil {
		conn.Close()
		return nil, fmt.Errorf("runtime: ipc socket %s: address in use (another instance may be running)", path)
	} else if isConnRefused(err) {
		log.Debug(fmt.Sprintf("runtime: removing stale ipc socket %s", path))
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			return nil, fmt.Errorf("runtime: removing stale socket %s: %w", path, rmErr)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		// The dial error arrives wrapped in a *net.OpError, so plain
		// os.IsNotExist never matches it.
		return nil, fmt.Errorf("runtime: probing ipc socket %s: %w", path, err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("runtime: binding ipc socket %s: %w", path, err)
	}
	return &IPCListener{Listener: ln, path: path}, nil
}

// Close closes the listener and removes the socket file on clean
// shutdown.
func (l *IPCListener) Close() error {
	err := l.Listener.Close()
	if rmErr := os.Remove(l.path); rmErr != nil && !os.IsNotExist(rmErr) {
		if err == nil {
			err = rmErr
		}
	}
	return err
}

func isConnRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}
