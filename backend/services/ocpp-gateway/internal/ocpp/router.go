package ocpp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"ocppgateway/backend/services/ocpp-gateway/internal/ocpp/protocol"
)

// ErrUnsupportedAction is returned for actions without a handler in the station's dialect.
var ErrUnsupportedAction = errors.New("ocpp: unsupported action")

// Station identifies the sender of an inbound message.
type Station struct {
	Identity string
	Version  protocol.Version
}

// HandlerFunc processes message payload and returns response body.
type HandlerFunc func(ctx context.Context, station Station, payload json.RawMessage) (interface{}, error)

type routeKey struct {
	dialect protocol.Dialect
	action  string
}

// Router dispatches OCPP actions to handlers per dialect.
type Router struct {
	handlers map[routeKey]HandlerFunc
}

// NewRouter returns router.
func NewRouter() *Router {
	return &Router{handlers: make(map[routeKey]HandlerFunc)}
}

// Register attaches handler to action for the given dialects.
func (r *Router) Register(action string, handler HandlerFunc, dialects ...protocol.Dialect) {
	for _, d := range dialects {
		r.handlers[routeKey{dialect: d, action: action}] = handler
	}
}

// Route executes handler for message.
func (r *Router) Route(ctx context.Context, station Station, msg *Message) (interface{}, error) {
	handler, ok := r.handlers[routeKey{dialect: station.Version.Dialect(), action: msg.Action}]
	if !ok {
		return nil, fmt.Errorf("%w %s for %s", ErrUnsupportedAction, msg.Action, station.Version)
	}
	return handler(ctx, station, msg.Payload)
}

// Journal records raw frames. Implementations must not block.
type Journal interface {
	Record(stationID, direction, messageType, messageID string, payload []byte)
}

// Journal directions.
const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
)

// Processor ties together routing, error mapping and response encoding for inbound calls.
type Processor struct {
	router  *Router
	logger  *zap.Logger
	journal Journal
}

// NewProcessor builds Processor. journal may be nil.
func NewProcessor(router *Router, journal Journal, logger *zap.Logger) *Processor {
	return &Processor{
		router:  router,
		journal: journal,
		logger:  logger,
	}
}

// HandleCall answers one inbound CALL. It always produces a frame: a CALLRESULT, or a
// CALLERROR when the handler fails or panics.
func (p *Processor) HandleCall(ctx context.Context, station Station, msg *Message, raw []byte) []byte {
	if p.journal != nil {
		p.journal.Record(station.Identity, DirectionIncoming, msg.Action, msg.UniqueID, raw)
	}

	responsePayload, err := p.route(ctx, station, msg)

	var (
		frame  []byte
		encErr error
	)
	if err != nil {
		code := errorCode(station.Version, err)
		p.logger.Warn("ocpp handler failed",
			zap.String("station_id", station.Identity),
			zap.String("action", msg.Action),
			zap.String("code", code),
			zap.Error(err),
		)
		frame, encErr = BuildCallError(msg.UniqueID, code, err.Error())
	} else {
		if responsePayload == nil {
			responsePayload = protocol.Empty{}
		}
		frame, encErr = BuildCallResult(msg.UniqueID, responsePayload)
	}
	if encErr != nil {
		p.logger.Error("encode ocpp response failed", zap.String("action", msg.Action), zap.Error(encErr))
		frame, _ = BuildCallError(msg.UniqueID, protocol.ErrorInternalError, "response encoding failed")
	}

	if p.journal != nil {
		p.journal.Record(station.Identity, DirectionOutgoing, msg.Action, msg.UniqueID, frame)
	}
	return frame
}

func (p *Processor) route(ctx context.Context, station Station, msg *Message) (resp interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("ocpp handler panic",
				zap.String("station_id", station.Identity),
				zap.String("action", msg.Action),
				zap.Any("panic", r),
			)
			resp, err = nil, fmt.Errorf("handler panic: %v", r)
		}
	}()
	return p.router.Route(ctx, station, msg)
}

func errorCode(version protocol.Version, err error) string {
	var formatErr *FormatError
	switch {
	case errors.Is(err, ErrUnsupportedAction):
		return protocol.ErrorNotImplemented
	case errors.As(err, &formatErr):
		if version.Dialect() == protocol.DialectV16 {
			return protocol.ErrorFormationViolation
		}
		return protocol.ErrorFormatViolation
	default:
		return protocol.ErrorInternalError
	}
}

// FormatError reports a payload that does not match the expected shape.
type FormatError struct {
	Err error
}

func (e *FormatError) Error() string { return fmt.Sprintf("ocpp: invalid payload: %v", e.Err) }

func (e *FormatError) Unwrap() error { return e.Err }

// Decode convenience helper for handlers.
func Decode[T any](payload json.RawMessage) (T, error) {
	var target T
	if len(payload) == 0 {
		return target, nil
	}
	if err := json.Unmarshal(payload, &target); err != nil {
		var zero T
		return zero, &FormatError{Err: err}
	}
	return target, nil
}
