// Package transport implements the Connection component (C4): framing-
// agnostic send/receive of OCPP-J text frames over a live transport, plus
// the connectedness/last-recv bookkeeping the Message Service and boot
// gating depend on. Grounded in the teacher's internal/ctrl.Controller
// pattern of a thin struct wrapping one persistent handle (there, a
// netlink socket; here, a WebSocket) with an explicit Close, and in
// other_examples' charger-transaction.go, which drives its own
// Dial/WriteMessage/ReadMessage loop by hand against gorilla/websocket.
package transport

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/microocpp-go/engine/internal/logging"
)

// Connection is the collaborator interface the engine's Message Service
// consumes (C4, §6). Send/recv deal in already-framed OCPP-J text; the
// Connection only carries bytes, never interprets them.
type Connection interface {
	SendText(ctx context.Context, msg string) error
	SetOnReceiveText(cb func(msg string))
	IsConnected() bool
	LastConnectedMs() int64
}

// WebsocketConnection is the default Connection, built on
// gorilla/websocket. A read pump goroutine feeds inbound frames through a
// bounded channel drained by the caller's Loop — the one concession to a
// background goroutine spec.md §5 sanctions, since blocking on a live
// socket read can't happen inside Loop itself (§6 of SPEC_FULL.md).
type WebsocketConnection struct {
	url      string
	subproto string
	dialer   *websocket.Dialer
	header   map[string][]string
	log      *logging.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	lastMs    int64

	recvCh chan string
	cb     func(msg string)
	cbMu   sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
}

// Config configures a new WebsocketConnection.
type Config struct {
	URL            string
	Subprotocol    string // e.g. "ocpp1.6" or "ocpp2.0.1"
	HandshakeTimeout time.Duration
	RecvBufferSize int // bounded channel depth for the read pump, default 32
}

// NewWebsocketConnection creates a Connection that isn't yet dialed;
// call Dial to connect.
func NewWebsocketConnection(config Config) *WebsocketConnection {
	bufSize := config.RecvBufferSize
	if bufSize <= 0 {
		bufSize = 32
	}
	timeout := config.HandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	subprotocols := []string{}
	if config.Subprotocol != "" {
		subprotocols = []string{config.Subprotocol}
	}
	return &WebsocketConnection{
		url:      config.URL,
		subproto: config.Subprotocol,
		dialer:   &websocket.Dialer{HandshakeTimeout: timeout, Subprotocols: subprotocols},
		log:      logging.Default(),
		recvCh:   make(chan string, bufSize),
		closed:   make(chan struct{}),
	}
}

// Dial opens the WebSocket connection and starts the read pump.
func (w *WebsocketConnection) Dial(ctx context.Context) error {
	conn, _, err := w.dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.conn = conn
	w.connected = true
	w.lastMs = time.Now().UnixMilli()
	w.mu.Unlock()

	go w.readPump(conn)
	return nil
}

func (w *WebsocketConnection) readPump(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			w.mu.Lock()
			w.connected = false
			w.mu.Unlock()
			close(w.closed)
			return
		}
		w.mu.Lock()
		w.lastMs = time.Now().UnixMilli()
		w.mu.Unlock()

		select {
		case w.recvCh <- string(data):
		default:
			w.log.Warnf("transport: recv buffer full, dropping frame")
		}
	}
}

// Drain is called once per Loop tick to deliver any buffered inbound
// frames to the registered callback, synchronously on the caller's
// goroutine — the read pump only enqueues, it never calls cb directly, so
// the "engine invokes host callbacks synchronously from within loop()"
// guarantee (spec.md §5) holds even with a background reader.
func (w *WebsocketConnection) Drain() {
	w.cbMu.Lock()
	cb := w.cb
	w.cbMu.Unlock()
	if cb == nil {
		return
	}
	for {
		select {
		case msg := <-w.recvCh:
			cb(msg)
		default:
			return
		}
	}
}

func (w *WebsocketConnection) SetOnReceiveText(cb func(msg string)) {
	w.cbMu.Lock()
	w.cb = cb
	w.cbMu.Unlock()
}

func (w *WebsocketConnection) SendText(ctx context.Context, msg string) error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return websocket.ErrCloseSent
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	return conn.WriteMessage(websocket.TextMessage, []byte(msg))
}

func (w *WebsocketConnection) IsConnected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.connected
}

func (w *WebsocketConnection) LastConnectedMs() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastMs
}

// Close closes the underlying socket. Safe to call more than once.
func (w *WebsocketConnection) Close() error {
	w.mu.Lock()
	conn := w.conn
	w.connected = false
	w.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

var _ Connection = (*WebsocketConnection)(nil)
