// Package herr defines Hearth's error taxonomy.
//
// Errors that are recoverable at the call site (PermissionDenied,
// RouteClosed, NotFound) are returned as values the caller is expected to
// branch on with errors.Is. Errors that corrupt invariants (TransportFailure,
// AuthenticationFailed) bring down the containing connection; callers learn
// about the fallout later, through a monitor Down signal rather than a
// returned error.
package herr

import "errors"

// Sentinel error kinds, checked with errors.Is. Wrap with fmt.Errorf("...: %w", Kind)
// to attach context without losing the kind.
var (
	// PermissionDenied is returned when send/kill/monitor is attempted
	// without the required permission bit.
	PermissionDenied = errors.New("permission denied")

	// RouteClosed is returned when a capability's target no longer exists.
	RouteClosed = errors.New("route closed")

	// NotFound covers lookups against a registry, peer directory, or
	// process store that found nothing.
	NotFound = errors.New("not found")

	// RegistryImmutable is returned by Register on a frozen registry.
	RegistryImmutable = errors.New("registry is immutable")

	// NameTaken is returned by Register when the name already exists in a
	// mutable registry.
	NameTaken = errors.New("name already registered")

	// LumpNotFound is returned by the lump store when a digest is unknown.
	LumpNotFound = errors.New("lump not found")

	// LumpMalformed is returned when stored lump bytes fail validation.
	LumpMalformed = errors.New("lump malformed")

	// LoaderError wraps an asset-specific decode failure. The asset store
	// surfaces it to every concurrent waiter and does not cache it.
	LoaderError = errors.New("asset loader failed")

	// SpawnLimit is returned when a peer is at its live-process cap.
	SpawnLimit = errors.New("spawn limit reached")

	// AuthenticationFailed covers PAKE protocol failures and handshake I/O
	// errors. The connection is always torn down after this error.
	AuthenticationFailed = errors.New("authentication failed")

	// InvalidLogin is a more specific AuthenticationFailed: the PAKE
	// ceremony completed but the password did not match.
	InvalidLogin = errors.New("invalid login")

	// TransportFailure covers post-handshake I/O errors. All remote
	// capabilities over the connection fire Down.
	TransportFailure = errors.New("transport failure")

	// Closed is returned by mailbox and process operations performed
	// after shutdown has begun.
	Closed = errors.New("closed")
)
