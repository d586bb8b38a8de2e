// Package addr implements the Address endpoint identity used by the
// network transport to bind and dial peers.
package addr

import (
	"fmt"
	"net"
	"strconv"
)

// Address is an immutable host/port endpoint identity. Equality is by
// resolved socket address, not by the literal host string, so "localhost"
// and "127.0.0.1" on the same port compare equal.
type Address struct {
	Host string
	Port int
}

// New builds an Address. It does not resolve host; resolution happens
// lazily in Resolve/Equal so construction never blocks on DNS.
func New(host string, port int) Address {
	return Address{Host: host, Port: port}
}

// Parse splits a "host:port" string into an Address.
func Parse(hostport string) (Address, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return Address{}, fmt.Errorf("addr: parse %q: %w", hostport, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Address{}, fmt.Errorf("addr: parse port %q: %w", portStr, err)
	}
	return Address{Host: host, Port: port}, nil
}

// String renders the address as "host:port".
func (a Address) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// Resolve resolves the address to a concrete TCP socket address.
func (a Address) Resolve() (*net.TCPAddr, error) {
	return net.ResolveTCPAddr("tcp", a.String())
}

// Equal reports whether a and other resolve to the same socket address.
// Unresolvable addresses are never equal to anything, including themselves.
func (a Address) Equal(other Address) bool {
	ra, err := a.Resolve()
	if err != nil {
		return false
	}
	rb, err := other.Resolve()
	if err != nil {
		return false
	}
	return ra.IP.Equal(rb.IP) && ra.Port == rb.Port
}
