package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"ocppgateway/backend/services/ocpp-gateway/internal/ocpp"
	"ocppgateway/backend/services/ocpp-gateway/internal/ocpp/protocol"
)

var (
	// ErrCallTimeout is returned when the station does not answer a call in time.
	ErrCallTimeout = errors.New("ws: call timed out")
	// ErrConnectionClosed is returned when the socket goes away before the call completes.
	ErrConnectionClosed = errors.New("ws: connection closed")
)

// CallHandler answers inbound CALL frames.
type CallHandler interface {
	HandleCall(ctx context.Context, station ocpp.Station, msg *ocpp.Message, raw []byte) []byte
}

// Options tune a single connection.
type Options struct {
	WriteTimeout time.Duration
	PongWait     time.Duration
	ReadLimit    int64
	CallTimeout  time.Duration
}

func (o Options) withDefaults() Options {
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 1024 * 1024
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 30 * time.Second
	}
	return o
}

type callReply struct {
	payload json.RawMessage
	err     error
}

type pendingCall struct {
	action string
	reply  chan callReply
}

// Connection represents active station WebSocket connection.
type Connection struct {
	identity string
	version  protocol.Version
	ws       *websocket.Conn
	send     chan []byte
	done     chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *zap.Logger
	handler  CallHandler
	journal  ocpp.Journal
	opts     Options
	onClose  func(*Connection)

	closeOnce sync.Once
	callSlot  chan struct{}

	pendingMu sync.Mutex
	pending   map[string]*pendingCall
}

// NewConnection builds connection wrapper. journal and onClose may be nil.
func NewConnection(identity string, version protocol.Version, conn *websocket.Conn, handler CallHandler, journal ocpp.Journal, opts Options, logger *zap.Logger, onClose func(*Connection)) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		identity: identity,
		version:  version,
		ws:       conn,
		send:     make(chan []byte, 16),
		done:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger.With(zap.String("station_id", identity)),
		handler:  handler,
		journal:  journal,
		opts:     opts.withDefaults(),
		onClose:  onClose,
		callSlot: make(chan struct{}, 1),
		pending:  make(map[string]*pendingCall),
	}
}

// Identity returns the station identity as presented on connect.
func (c *Connection) Identity() string {
	return c.identity
}

// Version returns the negotiated protocol version.
func (c *Connection) Version() protocol.Version {
	return c.version
}

// Done is closed once the connection is shut down.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Start launches read/write pumps and blocks until the connection closes.
func (c *Connection) Start() {
	go c.writePump()
	c.readPump()
}

// Call sends a CALL to the station and waits for its CALLRESULT or CALLERROR.
// Only one call is outstanding per station; others wait for the slot.
func (c *Connection) Call(ctx context.Context, action string, payload interface{}) (json.RawMessage, error) {
	timer := time.NewTimer(c.opts.CallTimeout)
	defer timer.Stop()

	select {
	case c.callSlot <- struct{}{}:
	case <-timer.C:
		return nil, ErrCallTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrConnectionClosed
	}
	defer func() { <-c.callSlot }()

	messageID := uuid.NewString()
	frame, err := ocpp.BuildCall(messageID, action, payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", action, err)
	}

	reply := make(chan callReply, 1)
	c.pendingMu.Lock()
	c.pending[messageID] = &pendingCall{action: action, reply: reply}
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, messageID)
		c.pendingMu.Unlock()
	}()

	c.record(ocpp.DirectionOutgoing, action, messageID, frame)
	if err := c.enqueue(frame); err != nil {
		return nil, err
	}
	c.logger.Debug("call sent", zap.String("action", action), zap.String("message_id", messageID))

	select {
	case r := <-reply:
		return r.payload, r.err
	case <-timer.C:
		c.logger.Warn("call timed out", zap.String("action", action), zap.String("message_id", messageID))
		return nil, ErrCallTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrConnectionClosed
	}
}

// Ping sends a websocket ping. Safe to call concurrently with the write pump.
func (c *Connection) Ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteTimeout))
}

// Close shuts the connection down. It is safe to call more than once.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.cancel()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.opts.WriteTimeout))
		_ = c.ws.Close()
	})
	return nil
}

func (c *Connection) readPump() {
	defer c.cleanup()
	c.ws.SetReadLimit(c.opts.ReadLimit)
	c.extendReadDeadline()
	c.ws.SetPongHandler(func(string) error {
		c.extendReadDeadline()
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("connection read failed", zap.Error(err))
			} else {
				c.logger.Info("connection read closed", zap.Error(err))
			}
			return
		}
		c.extendReadDeadline()
		c.dispatch(message)
	}
}

func (c *Connection) extendReadDeadline() {
	if c.opts.PongWait > 0 {
		_ = c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	}
}

func (c *Connection) dispatch(raw []byte) {
	msg, err := ocpp.Parse(raw)
	if err != nil {
		c.logger.Warn("discarding malformed frame", zap.Error(err))
		return
	}

	switch msg.MessageType {
	case protocol.MessageTypeCall:
		station := ocpp.Station{Identity: c.identity, Version: c.version}
		response := c.handler.HandleCall(c.ctx, station, msg, raw)
		if response == nil {
			return
		}
		if err := c.enqueue(response); err != nil {
			c.logger.Info("dropping response on closed connection", zap.String("action", msg.Action))
		}
	case protocol.MessageTypeCallResult:
		c.resolve(msg.UniqueID, callReply{payload: msg.Payload}, raw)
	case protocol.MessageTypeCallError:
		c.resolve(msg.UniqueID, callReply{err: &ocpp.CallError{
			Code:        msg.ErrorCode,
			Description: msg.ErrorDescription,
			Details:     msg.ErrorDetails,
		}}, raw)
	}
}

func (c *Connection) resolve(messageID string, reply callReply, raw []byte) {
	c.pendingMu.Lock()
	call, ok := c.pending[messageID]
	if ok {
		delete(c.pending, messageID)
	}
	c.pendingMu.Unlock()

	if !ok {
		c.logger.Warn("reply for unknown call", zap.String("message_id", messageID))
		return
	}
	c.record(ocpp.DirectionIncoming, call.action, messageID, raw)
	call.reply <- reply
}

func (c *Connection) writePump() {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				c.logger.Warn("connection write failed", zap.Error(err))
				_ = c.Close()
				return
			}
		}
	}
}

func (c *Connection) enqueue(frame []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	}
}

func (c *Connection) write(data []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *Connection) record(direction, action, messageID string, frame []byte) {
	if c.journal != nil {
		c.journal.Record(c.identity, direction, action, messageID, frame)
	}
}

func (c *Connection) cleanup() {
	_ = c.Close()
	if c.onClose != nil {
		c.onClose(c)
	}
}
