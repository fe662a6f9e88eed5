package transport

import (
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/pion/transport/v3/test"
)

// NetworkCondition configures network behavior simulation on a Pipe.
// Use it to exercise the protocol under loss and duplication without a
// real network.
type NetworkCondition struct {
	// DropRate is the probability of dropping a datagram (0.0 - 1.0).
	DropRate float64

	// DuplicateRate is the probability of sending a datagram twice.
	DuplicateRate float64

	// DelayMin and DelayMax bound a uniformly distributed per-datagram
	// delay. Zero DelayMax disables delays.
	DelayMin time.Duration
	DelayMax time.Duration
}

// PipeConfig configures a Pipe.
type PipeConfig struct {
	// AutoProcess enables automatic datagram delivery in a background
	// goroutine. Default: true.
	AutoProcess bool

	// ProcessInterval is how often the auto-processor delivers queued
	// datagrams. Default: 1ms.
	ProcessInterval time.Duration

	// Seed seeds the condition randomness; zero means a time-based seed.
	Seed int64
}

// DefaultPipeConfig returns the default pipe configuration.
func DefaultPipeConfig() PipeConfig {
	return PipeConfig{
		AutoProcess:     true,
		ProcessInterval: time.Millisecond,
	}
}

// Pipe provides bidirectional in-memory datagram transport between two
// endpoints, wrapping pion's test.Bridge with network condition
// simulation. Use the two PacketConn endpoints with NewUDP to drive a
// full gram socket pair without real network I/O.
type Pipe struct {
	bridge *test.Bridge

	mu              sync.RWMutex
	condition       NetworkCondition
	rng             *rand.Rand
	closed          bool
	autoProcess     bool
	processInterval time.Duration
	stopCh          chan struct{}
	wg              sync.WaitGroup
}

// NewPipe creates a pipe with auto-processing enabled.
func NewPipe() *Pipe {
	return NewPipeWithConfig(DefaultPipeConfig())
}

// NewPipeWithConfig creates a pipe with the given configuration.
func NewPipeWithConfig(config PipeConfig) *Pipe {
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	p := &Pipe{
		bridge:          test.NewBridge(),
		rng:             rand.New(rand.NewSource(seed)),
		autoProcess:     config.AutoProcess,
		processInterval: config.ProcessInterval,
		stopCh:          make(chan struct{}),
	}
	if p.processInterval <= 0 {
		p.processInterval = time.Millisecond
	}

	if p.autoProcess {
		p.startAutoProcess()
	}

	return p
}

func (p *Pipe) startAutoProcess() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.processInterval)
		defer ticker.Stop()

		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.bridge.Tick()
			}
		}
	}()
}

// SetCondition configures network condition simulation. Conditions apply
// to datagrams in both directions.
func (p *Pipe) SetCondition(cond NetworkCondition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.condition = cond
}

// Tick delivers one queued datagram in each direction, returning how many
// were delivered. Only needed with AutoProcess disabled.
func (p *Pipe) Tick() int {
	return p.bridge.Tick()
}

// Process delivers every queued datagram.
func (p *Pipe) Process() int {
	count := 0
	for {
		n := p.Tick()
		if n == 0 {
			return count
		}
		count += n
	}
}

// PacketConn0 returns endpoint 0 as a net.PacketConn.
func (p *Pipe) PacketConn0() net.PacketConn {
	return &pipePacketConn{
		conn:      p.bridge.GetConn0(),
		pipe:      p,
		localAddr: PipeAddr{ID: 0},
		peerAddr:  PipeAddr{ID: 1},
	}
}

// PacketConn1 returns endpoint 1 as a net.PacketConn.
func (p *Pipe) PacketConn1() net.PacketConn {
	return &pipePacketConn{
		conn:      p.bridge.GetConn1(),
		pipe:      p,
		localAddr: PipeAddr{ID: 1},
		peerAddr:  PipeAddr{ID: 0},
	}
}

// Close closes both endpoints and stops auto-processing.
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.autoProcess {
		close(p.stopCh)
	}
	p.mu.Unlock()

	p.wg.Wait()

	err0 := p.bridge.GetConn0().Close()
	err1 := p.bridge.GetConn1().Close()
	if err0 != nil {
		return err0
	}
	return err1
}

// PipeAddr implements net.Addr for pipe endpoints.
type PipeAddr struct {
	ID int
}

// Network returns "pipe".
func (a PipeAddr) Network() string { return "pipe" }

// String returns a string representation of the address.
func (a PipeAddr) String() string { return fmt.Sprintf("pipe:%d", a.ID) }

// pipePacketConn adapts one bridge endpoint to net.PacketConn so it can
// feed NewUDP like a real socket.
type pipePacketConn struct {
	conn      net.Conn
	pipe      *Pipe
	localAddr net.Addr
	peerAddr  net.Addr
}

func (c *pipePacketConn) ReadFrom(b []byte) (int, net.Addr, error) {
	n, err := c.conn.Read(b)
	return n, c.peerAddr, err
}

func (c *pipePacketConn) WriteTo(b []byte, addr net.Addr) (int, error) {
	c.pipe.mu.Lock()
	cond := c.pipe.condition
	drop := cond.DropRate > 0 && c.pipe.rng.Float64() < cond.DropRate
	dup := cond.DuplicateRate > 0 && c.pipe.rng.Float64() < cond.DuplicateRate
	var delay time.Duration
	if cond.DelayMax > 0 {
		delay = cond.DelayMin
		if cond.DelayMax > cond.DelayMin {
			delay += time.Duration(c.pipe.rng.Int63n(int64(cond.DelayMax - cond.DelayMin)))
		}
	}
	c.pipe.mu.Unlock()

	if drop {
		return len(b), nil
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	if dup {
		if _, err := c.conn.Write(b); err != nil {
			return 0, err
		}
	}
	return c.conn.Write(b)
}

func (c *pipePacketConn) Close() error        { return c.conn.Close() }
func (c *pipePacketConn) LocalAddr() net.Addr { return c.localAddr }

func (c *pipePacketConn) SetDeadline(t time.Time) error      { return c.conn.SetDeadline(t) }
func (c *pipePacketConn) SetReadDeadline(t time.Time) error  { return c.conn.SetReadDeadline(t) }
func (c *pipePacketConn) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }
