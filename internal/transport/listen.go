package transport

import (
	"context"
	"net"
)

// Listen binds a TCP listener on address with SO_REUSEADDR set, so a
// restarted server can bind while the previous socket lingers in
// TIME_WAIT.  The backlog is the kernel maximum (somaxconn), which the
// Go runtime requests on every listen.
func Listen(ctx context.Context, address string) (net.Listener, error) {
	lc := net.ListenConfig{Control: reuseAddr}
	return lc.Listen(ctx, "tcp", address)
}
