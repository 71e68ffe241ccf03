//go:build !unix

package transport

import "syscall"

// reuseAddr is a no-op off unix: Windows' SO_REUSEADDR lets a second
// process steal a bound port, which is not the semantics wanted here.
func reuseAddr(network, address string, c syscall.RawConn) error { return nil }
