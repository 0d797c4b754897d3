// Package session implements the Device Session finite-state-machine
// : the want_config handshake, the serialized outbound write
// queue, ACK correlation, and reboot handling, sitting on top of whichever
// internal/transport.Manager is configured.
package session

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meshmonitor/meshmonitor/internal/meshproto"
	"github.com/meshmonitor/meshmonitor/internal/transport"
)

// State mirrors transport.ConnectionState plus the session-only Rebooting
// distinction already modeled there; re-exported for callers that only
// import this package.
type State = transport.ConnectionState

const (
	Disconnected     = transport.Disconnected
	Connecting       = transport.Connecting
	Configuring      = transport.Configuring
	Connected        = transport.Connected
	Rebooting        = transport.Rebooting
	UserDisconnected = transport.UserDisconnected
)

const (
	ackTimeout      = 30 * time.Second
	rebootWait      = 30 * time.Second
	rebootPollEvery = 3 * time.Second
	rebootPollFor   = 60 * time.Second
)

// Command is one outbound write, already built as a ToRadio-shaped payload
// by internal/meshproto.
type Command struct {
	PacketID uint32
	Payload  []byte
	// Command carries no ACK state of its own; ACK correlation and the
	// ackTimeout are handled by Session.Send, keyed by PacketID.
}

// OnFrame is invoked for every decoded FromRadio frame the session receives,
// after handshake bookkeeping but before anything else; this is the
// Ingest Pipeline's entry point. The config_complete_id frame that ends the
// handshake is consumed by the session and not passed on.
type OnFrame func(payload []byte)

// OnStateChange is invoked whenever the session transitions states.
type OnStateChange func(old, new State)

// Session drives one transport.Manager through the full FSM.
type Session struct {
	transport transport.Manager
	codec     *meshproto.Codec
	log       *zap.Logger

	onFrame       OnFrame
	onStateChange OnStateChange

	state     atomic.Int32
	localNode atomic.Uint32
	nonce     atomic.Uint32 // written by watchLoop, read by the read loop
	cancel    context.CancelFunc
	writeMu   sync.Mutex

	pendingMu sync.Mutex
	pending   map[uint32]chan struct{} // packetId -> closed on ACK
}

// New builds a Session. onFrame and onStateChange may be nil.
func New(t transport.Manager, log *zap.Logger, onFrame OnFrame, onStateChange OnStateChange) *Session {
	return &Session{
		transport:     t,
		codec:         meshproto.New(),
		log:           log,
		onFrame:       onFrame,
		onStateChange: onStateChange,
		pending:       make(map[uint32]chan struct{}),
	}
}

// Start brings the transport up and begins the handshake/read loop. It
// returns once the transport's Connect call has been issued; the handshake
// itself proceeds asynchronously.
func (s *Session) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.setState(Connecting)

	if err := s.transport.Connect(runCtx); err != nil {
		return fmt.Errorf("session: start transport: %w", err)
	}
	go s.readLoop(runCtx)
	go s.watchLoop(runCtx)
	return nil
}

// watchPollEvery is how often watchLoop samples the transport's link state.
const watchPollEvery = 250 * time.Millisecond

// watchLoop drives the handshake off the transport's own link state: the
// radio sends nothing until it receives want_config_id, so waiting for an
// inbound frame would deadlock. As soon as the link is up while the session
// is Connecting, want_config goes out; if the link drops mid-session, the
// session falls back to Connecting so the next successful dial re-runs the
// handshake.
func (s *Session) watchLoop(ctx context.Context) {
	ticker := time.NewTicker(watchPollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			linkUp := s.transport.State() == transport.Connected
			switch s.State() {
			case Connecting:
				if linkUp {
					s.beginHandshake(ctx)
				}
			case Configuring, Connected:
				if !linkUp {
					s.setState(Connecting)
				}
			}
		}
	}
}

func (s *Session) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-s.transport.Frames():
			if !ok {
				return
			}
			s.handleFrame(ctx, payload)
		}
	}
}

func (s *Session) handleFrame(ctx context.Context, payload []byte) {
	fr, err := s.codec.DecodeFromRadio(payload)
	if err != nil {
		s.log.Warn("dropping undecodable FromRadio frame", zap.Error(err))
		return
	}

	if mi := fr.GetMyInfo(); mi != nil {
		s.localNode.Store(mi.GetMyNodeNum())
	}

	if ccID, ok := configCompleteID(fr); ok {
		if ccID == s.nonce.Load() && s.State() == Configuring {
			s.setState(Connected)
		}
		return
	}

	if s.onFrame != nil {
		s.onFrame(payload)
	}
}

// beginHandshake sends want_config_id once per (re)connection.
func (s *Session) beginHandshake(ctx context.Context) {
	if s.State() != Connecting {
		return
	}
	nonce := uint32(time.Now().UnixNano())
	s.nonce.Store(nonce)
	s.setState(Configuring)

	msg := meshproto.WantConfig(nonce)
	raw, err := s.codec.EncodeToRadio(msg)
	if err != nil {
		s.log.Error("encode want_config failed", zap.Error(err))
		return
	}
	if err := s.transport.Send(ctx, raw); err != nil {
		s.log.Warn("send want_config failed, will retry", zap.Error(err))
		s.setState(Connecting)
	}
}

// NewPacketID allocates a client-side temporary id for tracking a send
// before the radio assigns the real packetId. The uuid is never the ACK
// correlation key, only a local bookkeeping handle.
func NewPacketID() string {
	return uuid.NewString()
}

// NewOutboundPacketID allocates the radio-facing packetId a Send call and
// its eventual ROUTING_APP ACK correlate on. Plain
// math/rand is sufficient: collisions only matter within the ACK window and
// the keyspace is 2^32.
func NewOutboundPacketID() uint32 {
	return rand.Uint32()
}

// Send submits one already-encoded ToRadio payload, serialized against any
// other in-flight send.
func (s *Session) Send(ctx context.Context, packetID uint32, payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	ack := make(chan struct{})
	s.pendingMu.Lock()
	s.pending[packetID] = ack
	s.pendingMu.Unlock()
	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, packetID)
		s.pendingMu.Unlock()
	}()

	if err := s.transport.Send(ctx, payload); err != nil {
		return fmt.Errorf("session: send packet %d: %w", packetID, err)
	}

	select {
	case <-ack:
		return nil
	case <-time.After(ackTimeout):
		return ErrAckTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendNoAck submits an already-encoded payload without ACK tracking, for
// commands whose response is a streamed FromRadio sequence (config dumps)
// or none at all (reboot), rather than a routing ACK. Serialized against
// Send on the same write lock.
func (s *Session) SendNoAck(ctx context.Context, payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.transport.Send(ctx, payload); err != nil {
		return fmt.Errorf("session: send: %w", err)
	}
	return nil
}

// ResolveAck is called by the Ingest Pipeline when a ROUTING_APP reply
// matches a pending requestId.
func (s *Session) ResolveAck(packetID uint32) {
	s.pendingMu.Lock()
	ch, ok := s.pending[packetID]
	s.pendingMu.Unlock()
	if ok {
		close(ch)
	}
}

// Reboot runs the reboot sequence: wait 30s, then poll connectivity
// every 3s for up to 60s, returning to Connecting either way so the
// transport's own reconnect loop takes over.
func (s *Session) Reboot(ctx context.Context) {
	s.setState(Rebooting)
	select {
	case <-time.After(rebootWait):
	case <-ctx.Done():
		return
	}

	deadline := time.Now().Add(rebootPollFor)
	ticker := time.NewTicker(rebootPollEvery)
	defer ticker.Stop()
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.transport.State() == transport.Connected {
				s.setState(Connecting)
				return
			}
		}
	}
	s.setState(Connecting)
}

// Disconnect transitions to UserDisconnected; no reconnects are attempted
// while in this state, but cached Store reads still serve.
func (s *Session) Disconnect() error {
	s.setState(UserDisconnected)
	if s.cancel != nil {
		s.cancel()
	}
	return s.transport.Disconnect()
}

// Reconnect explicitly re-arms the session from UserDisconnected.
func (s *Session) Reconnect(ctx context.Context) error {
	return s.Start(ctx)
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// LocalNode reports the local node number learned from the radio's MyInfo
// frame during the config dump, or 0 before the first handshake completes.
func (s *Session) LocalNode() uint32 {
	return s.localNode.Load()
}

func (s *Session) setState(v State) {
	old := s.State()
	if old == v {
		return
	}
	s.state.Store(int32(v))
	if s.onStateChange != nil {
		s.onStateChange(old, v)
	}
}

// ErrAckTimeout is returned by Send when no ACK arrives within 30s; the
// caller is expected to mark the originating Message ackFailed=true and
// not retransmit; the radio handles retry.
var ErrAckTimeout = fmt.Errorf("session: ack timeout")
