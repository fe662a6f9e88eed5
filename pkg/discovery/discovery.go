// Package discovery publishes and finds gram endpoints on the local
// network via DNS-SD (mDNS).
//
// An Advertiser registers the local socket as a `_gram._udp` service
// whose TXT record carries the protocol id; a Resolver browses for such
// services and filters out peers speaking a different protocol. Discovery
// is entirely optional — sockets work with plain addresses — and sits
// outside the poll-driven core, so it may use goroutines and a context.
package discovery

import (
	"net"
)

// ServiceType is the DNS-SD service type for gram endpoints.
const ServiceType = "_gram._udp"

// DefaultDomain is the mDNS domain.
const DefaultDomain = "local."

// Peer describes a discovered gram endpoint.
type Peer struct {
	// Instance is the DNS-SD instance name.
	Instance string

	// HostName is the advertised host name.
	HostName string

	// Port is the UDP port the peer's socket listens on.
	Port int

	// IPs are the peer's resolved addresses, IPv4 and IPv6.
	IPs []net.IP

	// ProtocolID is the protocol id from the peer's TXT record.
	ProtocolID uint64
}

// UDPAddr returns the peer's first address as a *net.UDPAddr, or nil if
// the peer resolved without addresses.
func (p *Peer) UDPAddr() *net.UDPAddr {
	if len(p.IPs) == 0 {
		return nil
	}
	return &net.UDPAddr{IP: p.IPs[0], Port: p.Port}
}
