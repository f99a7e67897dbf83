package daemon

import (
	"net"
	"strings"
	"time"
)

// ParseAddr splits a viewer address into a network and an address.
// "unix:/path.sock" and bare paths are Unix sockets; anything else is TCP.
func ParseAddr(addr string) (network, address string) {
	switch {
	case strings.HasPrefix(addr, "unix:"):
		return "unix", strings.TrimPrefix(addr, "unix:")
	case strings.HasPrefix(addr, "/"), strings.HasPrefix(addr, "."):
		return "unix", addr
	default:
		return "tcp", addr
	}
}

// Reachable reports whether something accepts connections at addr.
func Reachable(addr string) bool {
	network, address := ParseAddr(addr)
	conn, err := net.DialTimeout(network, address, 100*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Connect returns a client for the endpoint at addr.
func Connect(addr string) (Client, error) {
	return NewRemoteClient(addr)
}
