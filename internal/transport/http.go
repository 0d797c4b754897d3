package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// HTTPTransport talks to a Meshtastic node's HTTP API (/api/v1/toradio,
// /api/v1/fromradio) instead of the raw TCP socket. The node's web server
// exposes the same FromRadio/ToRadio protobuf stream over plain HTTP,
// useful when the node only publishes port 80.
type HTTPTransport struct {
	baseURL  string
	client   *http.Client
	log      *zap.Logger
	interval time.Duration

	state  atomic.Int32
	frames chan []byte
	cancel context.CancelFunc
}

// NewHTTP builds an HTTPTransport against the host in baseURL (e.g.
// "192.168.1.50", no scheme); the scheme is https when useTLS is set.
func NewHTTP(baseURL string, useTLS bool, interval time.Duration, log *zap.Logger) *HTTPTransport {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	u := url.URL{Scheme: "http", Host: baseURL}
	if useTLS {
		u.Scheme = "https"
	}
	return &HTTPTransport{
		baseURL:  u.String(),
		client:   &http.Client{Timeout: 15 * time.Second},
		log:      log,
		interval: interval,
		frames:   make(chan []byte, framesBufSize),
	}
}

func (h *HTTPTransport) Connect(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.setState(Connected)
	go h.pollLoop(runCtx)
	return nil
}

func (h *HTTPTransport) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.setState(Disconnected)
			return
		case <-ticker.C:
			if err := h.drain(ctx); err != nil {
				h.log.Warn("http fromradio poll failed", zap.Error(err))
				h.setState(Disconnected)
				continue
			}
			h.setState(Connected)
		}
	}
}

// drain repeatedly GETs /api/v1/fromradio?all=true until the node returns an
// empty body, forwarding each non-empty payload as one frame.
func (h *HTTPTransport) drain(ctx context.Context) error {
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/api/v1/fromradio?all=true", nil)
		if err != nil {
			return fmt.Errorf("transport: build fromradio request: %w", err)
		}
		resp, err := h.client.Do(req)
		if err != nil {
			return fmt.Errorf("transport: fromradio request: %w", err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("transport: read fromradio body: %w", err)
		}
		if len(body) == 0 {
			return nil
		}
		select {
		case h.frames <- body:
		default:
			h.log.Warn("http frame channel full, dropping frame", zap.Int("bytes", len(body)))
		}
	}
}

func (h *HTTPTransport) Send(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, h.baseURL+"/api/v1/toradio", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("transport: build toradio request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-protobuf")
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("transport: toradio request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("transport: toradio request returned %s", resp.Status)
	}
	return nil
}

func (h *HTTPTransport) Disconnect() error {
	h.setState(UserDisconnected)
	if h.cancel != nil {
		h.cancel()
	}
	return nil
}

func (h *HTTPTransport) Frames() <-chan []byte {
	return h.frames
}

func (h *HTTPTransport) State() ConnectionState {
	return ConnectionState(h.state.Load())
}

func (h *HTTPTransport) setState(s ConnectionState) {
	h.state.Store(int32(s))
}
