// Package transport provides the shared UDP socket for discovery.
//
// One transport owns one socket. Protocol engines register receive
// handlers; packets are offered to each handler in order until one
// claims them. Sending is concurrency-safe and best-effort. The
// transport also applies per-IP rate limiting and collects metrics.
package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// MaxPacketSize is the outgoing payload ceiling (IPv6 minimum MTU).
	MaxPacketSize = 1280

	// DefaultReadBuffer is the socket read buffer size.
	DefaultReadBuffer = 2 * 1024 * 1024

	// DefaultWriteBuffer is the socket write buffer size.
	DefaultWriteBuffer = 2 * 1024 * 1024

	// receiveWorkers is the number of concurrent receive loops.
	receiveWorkers = 4
)

// PacketHandler processes one received datagram. Returning true claims
// the packet; false passes it to the next handler in the chain.
type PacketHandler func(data []byte, from *net.UDPAddr) bool

// Config configures a UDP transport.
type Config struct {
	// ListenAddr is the bind address, e.g. "0.0.0.0:30303".
	// Ignored when Conn is set.
	ListenAddr string

	// Conn is an existing socket to use instead of binding a new one
	Conn *net.UDPConn

	// Logger receives transport diagnostics (optional)
	Logger logrus.FieldLogger

	// RateLimitPerIP caps packets per second per source IP (0 = off)
	RateLimitPerIP int

	// RateLimitBurst is the per-IP burst allowance (0 = same as rate)
	RateLimitBurst int

	// ReadBuffer overrides the socket read buffer size
	ReadBuffer int

	// WriteBuffer overrides the socket write buffer size
	WriteBuffer int
}

// UDPTransport is the shared discovery socket.
type UDPTransport struct {
	conn *net.UDPConn

	handlersMu sync.RWMutex
	handlers   []PacketHandler

	logger      logrus.FieldLogger
	rateLimiter *RateLimiter
	metrics     *Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// NewUDPTransport binds the socket and starts the receive workers.
func NewUDPTransport(cfg *Config) (*UDPTransport, error) {
	if cfg == nil {
		return nil, fmt.Errorf("transport: nil config")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger().WithField("module", "transport")
	}

	conn := cfg.Conn
	if conn == nil {
		if cfg.ListenAddr == "" {
			return nil, fmt.Errorf("transport: ListenAddr required when Conn is not provided")
		}
		addr, err := net.ResolveUDPAddr("udp", cfg.ListenAddr)
		if err != nil {
			return nil, fmt.Errorf("transport: resolve %q: %w", cfg.ListenAddr, err)
		}
		conn, err = net.ListenUDP("udp", addr)
		if err != nil {
			return nil, fmt.Errorf("transport: listen: %w", err)
		}

		readBuf := cfg.ReadBuffer
		if readBuf == 0 {
			readBuf = DefaultReadBuffer
		}
		writeBuf := cfg.WriteBuffer
		if writeBuf == 0 {
			writeBuf = DefaultWriteBuffer
		}
		if err := conn.SetReadBuffer(readBuf); err != nil {
			logger.WithError(err).Warn("transport: failed to set read buffer")
		}
		if err := conn.SetWriteBuffer(writeBuf); err != nil {
			logger.WithError(err).Warn("transport: failed to set write buffer")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	var limiter *RateLimiter
	if cfg.RateLimitPerIP > 0 {
		limiter = NewRateLimiter(cfg.RateLimitPerIP, cfg.RateLimitBurst)
	}

	t := &UDPTransport{
		conn:        conn,
		logger:      logger,
		rateLimiter: limiter,
		metrics:     NewMetrics(),
		ctx:         ctx,
		cancel:      cancel,
	}

	for i := 0; i < receiveWorkers; i++ {
		t.wg.Add(1)
		go t.receiveLoop()
	}

	logger.WithField("addr", conn.LocalAddr().String()).Debug("transport: listening")
	return t, nil
}

// LocalAddr returns the bound address.
func (t *UDPTransport) LocalAddr() *net.UDPAddr {
	return t.conn.LocalAddr().(*net.UDPAddr)
}

// IsOpen reports whether the transport still accepts sends.
func (t *UDPTransport) IsOpen() bool {
	return !t.closed.Load()
}

// MaxDatagramSize returns the outgoing payload ceiling.
func (t *UDPTransport) MaxDatagramSize() int {
	return MaxPacketSize
}

// AddHandler appends a receive handler to the chain. Safe while the
// transport is running.
func (t *UDPTransport) AddHandler(handler func(data []byte, from *net.UDPAddr) bool) {
	t.handlersMu.Lock()
	t.handlers = append(t.handlers, PacketHandler(handler))
	t.handlersMu.Unlock()
}

// Send transmits one datagram. Safe for concurrent use.
func (t *UDPTransport) Send(data []byte, to *net.UDPAddr) error {
	if t.closed.Load() {
		return fmt.Errorf("transport: closed")
	}
	if len(data) > MaxPacketSize {
		return fmt.Errorf("transport: packet too large (%d > %d)", len(data), MaxPacketSize)
	}
	if to == nil || to.IP == nil || to.Port == 0 {
		return fmt.Errorf("transport: invalid destination %v", to)
	}

	if err := t.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.logger.WithError(err).Warn("transport: failed to set write deadline")
	}

	n, err := t.conn.WriteToUDP(data, to)
	if err != nil {
		t.metrics.IncrementSendErrors()
		return fmt.Errorf("transport: write: %w", err)
	}
	if n != len(data) {
		t.metrics.IncrementSendErrors()
		return fmt.Errorf("transport: short write (%d/%d bytes)", n, len(data))
	}

	t.metrics.RecordSent(uint64(n))
	t.logger.WithFields(logrus.Fields{"to": to.String(), "size": n}).Trace("transport: packet sent")
	return nil
}

func (t *UDPTransport) dispatchPacket(data []byte, from *net.UDPAddr) {
	t.handlersMu.RLock()
	handlers := t.handlers
	t.handlersMu.RUnlock()

	for _, handler := range handlers {
		if handler(data, from) {
			return
		}
	}
	t.logger.WithFields(logrus.Fields{"from": from.String(), "size": len(data)}).
		Debug("transport: unrecognized packet")
}

func (t *UDPTransport) receiveLoop() {
	defer t.wg.Done()

	buffer := make([]byte, MaxPacketSize)
	for {
		select {
		case <-t.ctx.Done():
			return
		default:
		}

		// read deadline lets the loop observe shutdown
		if err := t.conn.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
			t.logger.WithError(err).Error("transport: failed to set read deadline")
			return
		}

		n, from, err := t.conn.ReadFromUDP(buffer)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			select {
			case <-t.ctx.Done():
				return
			default:
			}
			t.metrics.IncrementReceiveErrors()
			t.logger.WithError(err).Error("transport: read failed")
			continue
		}

		if from == nil || from.IP == nil {
			t.metrics.IncrementReceiveErrors()
			continue
		}
		if t.rateLimiter != nil && !t.rateLimiter.Allow(from.IP) {
			t.metrics.IncrementRateLimited()
			t.logger.WithField("from", from.String()).Debug("transport: rate limited")
			continue
		}

		t.metrics.RecordReceived(uint64(n))

		data := make([]byte, n)
		copy(data, buffer[:n])
		go t.dispatchPacket(data, from)
	}
}

// Close shuts the transport down: no further sends, receive workers
// drained, socket closed.
func (t *UDPTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("transport: already closed")
	}

	t.cancel()
	if err := t.conn.Close(); err != nil {
		t.logger.WithError(err).Warn("transport: error closing socket")
	}
	if t.rateLimiter != nil {
		t.rateLimiter.Stop()
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		t.logger.Debug("transport: shutdown complete")
	case <-time.After(5 * time.Second):
		t.logger.Warn("transport: shutdown timeout")
	}
	return nil
}

// Metrics returns the transport's counters.
func (t *UDPTransport) Metrics() *Metrics {
	return t.metrics
}

// RateLimiter returns the per-IP limiter, or nil when limiting is off.
// Callers use it to exempt verified peers.
func (t *UDPTransport) RateLimiter() *RateLimiter {
	return t.rateLimiter
}
