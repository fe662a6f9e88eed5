package transport

import (
	"net"
	"sync"
	"time"

	"github.com/pion/logging"
)

// DefaultQueueSize is the inbound datagram queue depth.
const DefaultQueueSize = 512

// UDPConfig configures the UDP transport.
type UDPConfig struct {
	// Conn is an optional pre-existing PacketConn to use. If nil, a new
	// connection is created using ListenAddr.
	Conn net.PacketConn

	// ListenAddr is the address to listen on (e.g., ":7600"). Ignored if
	// Conn is provided; empty means an ephemeral port.
	ListenAddr string

	// QueueSize is the inbound queue depth. When the host polls too
	// slowly the oldest datagrams are dropped, which the protocol layer
	// treats as ordinary packet loss. Default: DefaultQueueSize.
	QueueSize int

	// LoggerFactory is the factory for creating loggers. If nil, logging
	// is disabled.
	LoggerFactory logging.LoggerFactory
}

// UDP implements PacketIO over a net.PacketConn. A background read loop
// drains the kernel socket into a bounded queue that Recv consumes
// without blocking.
type UDP struct {
	conn    net.PacketConn
	queue   chan Datagram
	closeCh chan struct{}
	wg      sync.WaitGroup
	log     logging.LeveledLogger

	mu     sync.Mutex
	closed bool
}

// NewUDP creates a UDP transport and starts its read loop.
func NewUDP(config UDPConfig) (*UDP, error) {
	u := &UDP{
		conn:    config.Conn,
		closeCh: make(chan struct{}),
	}

	if config.LoggerFactory != nil {
		u.log = config.LoggerFactory.NewLogger("transport-udp")
	}

	size := config.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	u.queue = make(chan Datagram, size)

	if u.conn == nil {
		addr := config.ListenAddr
		if addr == "" {
			addr = ":0"
		}
		conn, err := net.ListenPacket("udp", addr)
		if err != nil {
			return nil, err
		}
		u.conn = conn
	}

	if u.log != nil {
		u.log.Infof("udp transport listening on %s", u.conn.LocalAddr())
	}

	u.wg.Add(1)
	go u.readLoop()

	return u, nil
}

// Send transmits one datagram to addr.
func (u *UDP) Send(p []byte, addr net.Addr) error {
	u.mu.Lock()
	closed := u.closed
	u.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if addr == nil {
		return ErrInvalidAddress
	}
	if len(p) > MaxDatagramSize {
		return ErrDatagramTooLarge
	}

	_, err := u.conn.WriteTo(p, addr)
	return err
}

// Recv returns the next buffered datagram without blocking.
func (u *UDP) Recv() (Datagram, bool) {
	select {
	case d := <-u.queue:
		return d, true
	default:
		return Datagram{}, false
	}
}

// LocalAddr returns the bound address.
func (u *UDP) LocalAddr() net.Addr {
	return u.conn.LocalAddr()
}

// Close stops the read loop and closes the connection.
func (u *UDP) Close() error {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return ErrClosed
	}
	u.closed = true
	u.mu.Unlock()

	close(u.closeCh)

	// Unblock a pending read before closing.
	u.conn.SetReadDeadline(time.Now())
	err := u.conn.Close()
	u.wg.Wait()
	return err
}

func (u *UDP) readLoop() {
	defer u.wg.Done()

	buf := make([]byte, MaxDatagramSize)

	for {
		select {
		case <-u.closeCh:
			return
		default:
		}

		n, addr, err := u.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-u.closeCh:
				return
			default:
				if u.log != nil {
					u.log.Warnf("udp read error: %v", err)
				}
				continue
			}
		}
		if n == 0 {
			continue
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])
		d := Datagram{Payload: payload, From: addr}

		select {
		case u.queue <- d:
		default:
			// Queue full: drop the oldest so fresh traffic (acks,
			// heartbeats) survives a slow poller.
			select {
			case <-u.queue:
			default:
			}
			select {
			case u.queue <- d:
			default:
			}
			if u.log != nil {
				u.log.Warnf("inbound queue full, dropped oldest datagram")
			}
		}
	}
}
