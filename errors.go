package netcore

import "github.com/pkg/errors"

// Sentinel errors returned across the public surface. Wrapped with
// github.com/pkg/errors at call sites so callers can still unwrap to these
// with errors.Cause.
var (
	// ErrClosed is returned by Send if the context has already been shut
	// down.
	ErrClosed = errors.New("netcore: context is shut down")

	// ErrConnClosed is returned by Send on a connection that has already
	// been torn down.
	ErrConnClosed = errors.New("netcore: connection is closed")

	// ErrUnsupportedConn is returned when a net.Conn cannot yield a raw fd.
	ErrUnsupportedConn = errors.New("netcore: connection type does not expose a file descriptor")
)
