package discovery

import (
	"context"
	"net"
	"sync"

	"github.com/grandcat/zeroconf"
)

// MockServerFactory records registrations in memory for tests without
// real mDNS traffic.
type MockServerFactory struct {
	mu      sync.Mutex
	servers []*MockServer

	// RegisterErr, when set, is returned by Register.
	RegisterErr error
}

// MockServer is an in-memory mDNS registration.
type MockServer struct {
	Instance string
	Service  string
	Domain   string
	Port     int
	TXT      []string

	mu   sync.Mutex
	down bool
}

// Shutdown implements MDNSServer.
func (s *MockServer) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = true
}

// Down reports whether the registration was shut down.
func (s *MockServer) Down() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.down
}

// Register implements MDNSServerFactory.
func (f *MockServerFactory) Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error) {
	if f.RegisterErr != nil {
		return nil, f.RegisterErr
	}
	s := &MockServer{
		Instance: instance,
		Service:  service,
		Domain:   domain,
		Port:     port,
		TXT:      txt,
	}
	f.mu.Lock()
	f.servers = append(f.servers, s)
	f.mu.Unlock()
	return s, nil
}

// Servers returns the registrations seen so far.
func (f *MockServerFactory) Servers() []*MockServer {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*MockServer, len(f.servers))
	copy(out, f.servers)
	return out
}

// MockResolver delivers pre-registered service entries for tests.
type MockResolver struct {
	mu      sync.Mutex
	entries []*zeroconf.ServiceEntry
}

// AddEntry registers an entry that Browse will deliver.
func (m *MockResolver) AddEntry(entry *zeroconf.ServiceEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
}

// Browse implements MDNSResolver. It delivers the registered entries and
// closes the channel.
func (m *MockResolver) Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	m.mu.Lock()
	snapshot := make([]*zeroconf.ServiceEntry, len(m.entries))
	copy(snapshot, m.entries)
	m.mu.Unlock()

	go func() {
		defer close(entries)
		for _, e := range snapshot {
			select {
			case entries <- e:
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}
