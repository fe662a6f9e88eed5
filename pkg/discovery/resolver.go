package discovery

import (
	"context"

	"github.com/grandcat/zeroconf"
	"github.com/pion/logging"
)

// MDNSResolver is the interface for mDNS browsing.
// This allows for dependency injection in tests.
type MDNSResolver interface {
	// Browse browses for services of the given type, delivering entries
	// on the channel until ctx is done.
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

// zeroconfResolver is the production implementation using
// grandcat/zeroconf.
type zeroconfResolver struct {
	resolver *zeroconf.Resolver
}

func (z *zeroconfResolver) Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	return z.resolver.Browse(ctx, service, domain, entries)
}

// ResolverConfig holds configuration for the Resolver.
type ResolverConfig struct {
	// ProtocolID filters discovered peers: entries advertising a
	// different id are dropped before they reach the caller. Zero means
	// no filtering.
	ProtocolID uint64

	// MDNSResolver is the underlying mDNS implementation. If nil, a
	// zeroconf resolver is created.
	MDNSResolver MDNSResolver

	// LoggerFactory for creating loggers. If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Resolver browses the local network for gram endpoints.
type Resolver struct {
	config ResolverConfig
	mdns   MDNSResolver
	log    logging.LeveledLogger
}

// NewResolver creates a resolver with the given configuration.
func NewResolver(config ResolverConfig) (*Resolver, error) {
	r := &Resolver{
		config: config,
		mdns:   config.MDNSResolver,
	}
	if r.mdns == nil {
		zc, err := zeroconf.NewResolver(nil)
		if err != nil {
			return nil, err
		}
		r.mdns = &zeroconfResolver{resolver: zc}
	}
	if config.LoggerFactory != nil {
		r.log = config.LoggerFactory.NewLogger("discovery")
	}
	return r, nil
}

// Browse discovers gram endpoints until ctx is done, delivering matching
// peers on the returned channel. The channel closes when browsing stops.
func (r *Resolver) Browse(ctx context.Context) (<-chan Peer, error) {
	entries := make(chan *zeroconf.ServiceEntry, 8)
	peers := make(chan Peer, 8)

	if err := r.mdns.Browse(ctx, ServiceType, DefaultDomain, entries); err != nil {
		return nil, err
	}

	go func() {
		defer close(peers)
		for entry := range entries {
			peer, ok := r.peerFromEntry(entry)
			if !ok {
				continue
			}
			select {
			case peers <- peer:
			case <-ctx.Done():
				return
			}
		}
	}()

	return peers, nil
}

func (r *Resolver) peerFromEntry(entry *zeroconf.ServiceEntry) (Peer, bool) {
	id, err := ParseTXT(entry.Text)
	if err != nil {
		if r.log != nil {
			r.log.Debugf("ignoring %q: %v", entry.Instance, err)
		}
		return Peer{}, false
	}
	if r.config.ProtocolID != 0 && id != r.config.ProtocolID {
		if r.log != nil {
			r.log.Debugf("ignoring %q: protocol id %#x", entry.Instance, id)
		}
		return Peer{}, false
	}

	peer := Peer{
		Instance:   entry.Instance,
		HostName:   entry.HostName,
		Port:       entry.Port,
		ProtocolID: id,
	}
	peer.IPs = append(peer.IPs, entry.AddrIPv4...)
	peer.IPs = append(peer.IPs, entry.AddrIPv6...)
	return peer, true
}
