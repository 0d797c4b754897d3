package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/meshmonitor/meshmonitor/internal/meshproto"
)

const (
	minBackoff    = 1 * time.Second
	maxBackoff    = 30 * time.Second
	dialTimeout   = 10 * time.Second
	framesBufSize = 256
)

// TCPTransport connects to a Meshtastic node's TCP API port (4403) and
// keeps retrying with exponential backoff until Disconnect is called.
type TCPTransport struct {
	addr string
	log  *zap.Logger

	mu     sync.Mutex
	conn   net.Conn
	framer *meshproto.StreamFramer
	state  atomic.Int32

	frames chan []byte
	cancel context.CancelFunc
}

// NewTCP builds a TCPTransport for addr (host:port, default port 4403 is
// the caller's responsibility to supply).
func NewTCP(addr string, log *zap.Logger) *TCPTransport {
	return &TCPTransport{
		addr:   addr,
		log:    log,
		frames: make(chan []byte, framesBufSize),
	}
}

func (t *TCPTransport) Connect(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.setState(Connecting)

	if err := t.dial(runCtx); err != nil {
		t.log.Warn("initial tcp dial failed, will keep retrying", zap.String("addr", t.addr), zap.Error(err))
	}
	go t.reconnectLoop(runCtx)
	return nil
}

func (t *TCPTransport) dial(ctx context.Context) error {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return fmt.Errorf("transport: dial %s: %w", t.addr, err)
	}
	t.mu.Lock()
	t.conn = conn
	t.framer = meshproto.NewStreamFramer(conn, conn)
	t.mu.Unlock()
	t.setState(Connected)
	go t.readLoop(ctx, conn, t.framer)
	return nil
}

func (t *TCPTransport) reconnectLoop(ctx context.Context) {
	backoff := minBackoff
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if t.State() == Connected {
			time.Sleep(250 * time.Millisecond)
			backoff = minBackoff
			continue
		}
		t.setState(Connecting)
		if err := t.dial(ctx); err != nil {
			t.log.Warn("tcp reconnect failed", zap.String("addr", t.addr), zap.Duration("backoff", backoff), zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = minBackoff
	}
}

func (t *TCPTransport) readLoop(ctx context.Context, conn net.Conn, framer *meshproto.StreamFramer) {
	defer func() {
		conn.Close()
		if t.State() != UserDisconnected {
			t.setState(Disconnected)
		}
	}()
	for {
		payload, err := framer.ReadFrame()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.log.Warn("tcp frame read failed, reconnecting", zap.Error(err))
			return
		}
		select {
		case t.frames <- payload:
		default:
			t.log.Warn("frame channel full, dropping frame", zap.Int("bytes", len(payload)))
		}
	}
}

func (t *TCPTransport) Disconnect() error {
	t.setState(UserDisconnected)
	if t.cancel != nil {
		t.cancel()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		return t.conn.Close()
	}
	return nil
}

func (t *TCPTransport) Send(ctx context.Context, payload []byte) error {
	t.mu.Lock()
	framer := t.framer
	t.mu.Unlock()
	if framer == nil {
		return fmt.Errorf("transport: tcp not connected")
	}
	return framer.WriteFrame(payload)
}

func (t *TCPTransport) Frames() <-chan []byte {
	return t.frames
}

func (t *TCPTransport) State() ConnectionState {
	return ConnectionState(t.state.Load())
}

func (t *TCPTransport) setState(s ConnectionState) {
	t.state.Store(int32(s))
}
