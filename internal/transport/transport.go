// Package transport opens the sockets reqid talks over: the server's
// listening socket and the client's outbound connection, either direct
// TCP or forwarded through an SSH gateway.
package transport

import (
	"context"
	"net"
)

// Dialer opens outbound connections to the service.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases any long-lived resources held by the dialer
	// (e.g. an SSH session).  Stateless dialers return nil.
	Close() error
}
