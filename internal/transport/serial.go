package transport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/meshmonitor/meshmonitor/internal/meshproto"
)

// SerialTransport talks to a Meshtastic node over a USB/UART serial link,
// supplementing the TCP and HTTP transports for devices reachable only
// over USB.
type SerialTransport struct {
	dev  string
	baud int
	log  *zap.Logger

	mu     sync.Mutex
	port   serial.Port
	framer *meshproto.StreamFramer
	state  atomic.Int32

	frames chan []byte
	cancel context.CancelFunc
}

// NewSerial builds a SerialTransport for dev (e.g. "/dev/ttyUSB0") at baud.
func NewSerial(dev string, baud int, log *zap.Logger) *SerialTransport {
	if baud <= 0 {
		baud = 115200
	}
	return &SerialTransport{
		dev:    dev,
		baud:   baud,
		log:    log,
		frames: make(chan []byte, framesBufSize),
	}
}

func (s *SerialTransport) Connect(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.setState(Connecting)
	if err := s.open(runCtx); err != nil {
		s.log.Warn("initial serial open failed, will keep retrying", zap.String("dev", s.dev), zap.Error(err))
	}
	go s.reconnectLoop(runCtx)
	return nil
}

func (s *SerialTransport) open(ctx context.Context) error {
	mode := &serial.Mode{BaudRate: s.baud}
	port, err := serial.Open(s.dev, mode)
	if err != nil {
		return fmt.Errorf("transport: open serial %s: %w", s.dev, err)
	}
	s.mu.Lock()
	s.port = port
	s.framer = meshproto.NewStreamFramer(port, port)
	s.mu.Unlock()
	s.setState(Connected)
	go s.readLoop(ctx, port, s.framer)
	return nil
}

func (s *SerialTransport) reconnectLoop(ctx context.Context) {
	backoff := minBackoff
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if s.State() == Connected {
			time.Sleep(250 * time.Millisecond)
			backoff = minBackoff
			continue
		}
		s.setState(Connecting)
		if err := s.open(ctx); err != nil {
			s.log.Warn("serial reconnect failed", zap.String("dev", s.dev), zap.Duration("backoff", backoff), zap.Error(err))
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

func (s *SerialTransport) readLoop(ctx context.Context, port serial.Port, framer *meshproto.StreamFramer) {
	defer func() {
		port.Close()
		if s.State() != UserDisconnected {
			s.setState(Disconnected)
		}
	}()
	for {
		payload, err := framer.ReadFrame()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Warn("serial frame read failed, reconnecting", zap.Error(err))
			return
		}
		select {
		case s.frames <- payload:
		default:
			s.log.Warn("frame channel full, dropping frame", zap.Int("bytes", len(payload)))
		}
	}
}

func (s *SerialTransport) Disconnect() error {
	s.setState(UserDisconnected)
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port != nil {
		return s.port.Close()
	}
	return nil
}

func (s *SerialTransport) Send(ctx context.Context, payload []byte) error {
	s.mu.Lock()
	framer := s.framer
	s.mu.Unlock()
	if framer == nil {
		return fmt.Errorf("transport: serial not connected")
	}
	return framer.WriteFrame(payload)
}

func (s *SerialTransport) Frames() <-chan []byte {
	return s.frames
}

func (s *SerialTransport) State() ConnectionState {
	return ConnectionState(s.state.Load())
}

func (s *SerialTransport) setState(v ConnectionState) {
	s.state.Store(int32(v))
}
