package discovery

import (
	"net"
	"sync"

	"github.com/grandcat/zeroconf"
	"github.com/pion/logging"
)

// MDNSServer is the interface for an active mDNS registration.
// This allows for dependency injection in tests.
type MDNSServer interface {
	// Shutdown stops the server.
	Shutdown()
}

// MDNSServerFactory creates MDNSServer instances.
type MDNSServerFactory interface {
	// Register creates a new mDNS server for the given service.
	Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error)
}

// zeroconfServerFactory is the production implementation using
// grandcat/zeroconf.
type zeroconfServerFactory struct{}

func (zeroconfServerFactory) Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error) {
	return zeroconf.Register(instance, service, domain, port, txt, ifaces)
}

// AdvertiserConfig holds configuration for the Advertiser.
type AdvertiserConfig struct {
	// Instance is the DNS-SD instance name. Required.
	Instance string

	// Port is the UDP port the local socket listens on. Required.
	Port int

	// ProtocolID is published in the TXT record so resolvers can filter
	// incompatible peers before handshaking.
	ProtocolID uint64

	// Interfaces restricts which network interfaces to advertise on.
	// Nil means all multicast-capable interfaces.
	Interfaces []net.Interface

	// ServerFactory is the factory for creating mDNS servers. If nil,
	// the default zeroconf factory is used.
	ServerFactory MDNSServerFactory

	// LoggerFactory for creating loggers. If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Advertiser publishes the local gram endpoint as a DNS-SD service.
type Advertiser struct {
	config  AdvertiserConfig
	factory MDNSServerFactory
	log     logging.LeveledLogger

	mu     sync.Mutex
	server MDNSServer
	closed bool
}

// NewAdvertiser creates an advertiser with the given configuration.
func NewAdvertiser(config AdvertiserConfig) (*Advertiser, error) {
	if config.Instance == "" || config.Port <= 0 || config.Port > 65535 {
		return nil, ErrInvalidConfig
	}

	a := &Advertiser{
		config:  config,
		factory: config.ServerFactory,
	}
	if a.factory == nil {
		a.factory = zeroconfServerFactory{}
	}
	if config.LoggerFactory != nil {
		a.log = config.LoggerFactory.NewLogger("discovery")
	}
	return a, nil
}

// Advertise registers the service on the network.
func (a *Advertiser) Advertise() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	if a.server != nil {
		return ErrAlreadyAdvertising
	}

	server, err := a.factory.Register(
		a.config.Instance,
		ServiceType,
		DefaultDomain,
		a.config.Port,
		BuildTXT(a.config.ProtocolID),
		a.config.Interfaces,
	)
	if err != nil {
		return err
	}
	a.server = server

	if a.log != nil {
		a.log.Infof("advertising %q on port %d (protocol %#x)",
			a.config.Instance, a.config.Port, a.config.ProtocolID)
	}
	return nil
}

// Close withdraws the registration.
func (a *Advertiser) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	a.closed = true

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
	return nil
}
