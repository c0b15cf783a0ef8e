package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"ocppgateway/backend/services/ocpp-gateway/internal/ocpp/protocol"
	"ocppgateway/backend/services/ocpp-gateway/internal/ws"
)

var (
	// ErrNotConnected means the target station has no live session.
	ErrNotConnected = errors.New("charge point not connected")
	// ErrInvalidTransactionID means the id cannot be expressed in the station's dialect.
	ErrInvalidTransactionID = errors.New("invalid transaction id")
)

const centralIdTokenType = "Central"

// TransportError wraps a failed call to a connected station.
type TransportError struct {
	Action string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Action, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Registry resolves live sessions.
type Registry interface {
	Lookup(identity string) (ws.Entry, bool)
}

// Result is the outcome of a command the station answered.
type Result struct {
	ChargePointID string           `json:"chargePointId"`
	Protocol      protocol.Dialect `json:"protocol"`
	Status        string           `json:"status"`
	Success       bool             `json:"success"`
}

// Dispatcher issues gateway-initiated commands in the station's dialect.
type Dispatcher struct {
	registry      Registry
	logger        *zap.Logger
	remoteStartID atomic.Int64
}

// NewDispatcher builds dispatcher.
func NewDispatcher(registry Registry, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{registry: registry, logger: logger}
}

// RemoteStart asks the station to start charging for idTag. connectorID is the
// connector (1.6) or EVSE (2.x) and may be nil.
func (d *Dispatcher) RemoteStart(ctx context.Context, identity, idTag string, connectorID *int) (Result, error) {
	entry, err := d.lookup(identity)
	if err != nil {
		return Result{}, err
	}
	switch entry.Version.Dialect() {
	case protocol.DialectV16:
		return d.send(ctx, entry, protocol.ActionRemoteStartTransaction, protocol.RemoteStartTransactionRequest16{
			IdTag:       idTag,
			ConnectorID: connectorID,
		})
	default:
		return d.send(ctx, entry, protocol.ActionRequestStartTransaction, protocol.RequestStartTransactionRequest{
			IdToken:       protocol.IdToken{IdToken: idTag, Type: centralIdTokenType},
			RemoteStartID: int(d.remoteStartID.Add(1)),
			EvseID:        connectorID,
		})
	}
}

// RemoteStop asks the station to stop a transaction. 1.6 stations need a numeric id.
func (d *Dispatcher) RemoteStop(ctx context.Context, identity, transactionID string) (Result, error) {
	entry, err := d.lookup(identity)
	if err != nil {
		return Result{}, err
	}
	transactionID = strings.TrimSpace(transactionID)
	switch entry.Version.Dialect() {
	case protocol.DialectV16:
		id, convErr := strconv.Atoi(transactionID)
		if convErr != nil {
			return Result{}, fmt.Errorf("%w: %q is not numeric", ErrInvalidTransactionID, transactionID)
		}
		return d.send(ctx, entry, protocol.ActionRemoteStopTransaction, protocol.RemoteStopTransactionRequest16{
			TransactionID: id,
		})
	default:
		if transactionID == "" {
			return Result{}, fmt.Errorf("%w: empty", ErrInvalidTransactionID)
		}
		return d.send(ctx, entry, protocol.ActionRequestStopTransaction, protocol.RequestStopTransactionRequest{
			TransactionID: transactionID,
		})
	}
}

// TriggerMeterRead asks the station to report MeterValues. The values arrive later
// through the regular MeterValues path.
func (d *Dispatcher) TriggerMeterRead(ctx context.Context, identity string, connectorID, evseID *int) (Result, error) {
	entry, err := d.lookup(identity)
	if err != nil {
		return Result{}, err
	}
	switch entry.Version.Dialect() {
	case protocol.DialectV16:
		target := connectorID
		if target == nil {
			target = evseID
		}
		return d.send(ctx, entry, protocol.ActionTriggerMessage, protocol.TriggerMessageRequest16{
			RequestedMessage: protocol.ActionMeterValues,
			ConnectorID:      target,
		})
	default:
		req := protocol.TriggerMessageRequest2x{RequestedMessage: protocol.ActionMeterValues}
		if evseID != nil {
			req.EVSE = &protocol.EVSE{ID: *evseID, ConnectorID: connectorID}
		} else if connectorID != nil {
			req.EVSE = &protocol.EVSE{ID: *connectorID}
		}
		return d.send(ctx, entry, protocol.ActionTriggerMessage, req)
	}
}

func (d *Dispatcher) lookup(identity string) (ws.Entry, error) {
	entry, ok := d.registry.Lookup(identity)
	if !ok {
		return ws.Entry{}, ErrNotConnected
	}
	return entry, nil
}

func (d *Dispatcher) send(ctx context.Context, entry ws.Entry, action string, payload interface{}) (Result, error) {
	raw, err := entry.Session.Call(ctx, action, payload)
	if err != nil {
		d.logger.Warn("command failed",
			zap.String("station_id", entry.Identity),
			zap.String("action", action),
			zap.Error(err),
		)
		return Result{}, &TransportError{Action: action, Err: err}
	}

	var resp protocol.CommandResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &resp); err != nil {
			d.logger.Warn("undecodable command reply",
				zap.String("station_id", entry.Identity),
				zap.String("action", action),
				zap.Error(err),
			)
		}
	}

	result := Result{
		ChargePointID: entry.Identity,
		Protocol:      entry.Version.Dialect(),
		Status:        resp.Status,
		Success:       resp.Status == protocol.StatusAccepted,
	}
	d.logger.Info("command answered",
		zap.String("station_id", entry.Identity),
		zap.String("action", action),
		zap.String("status", resp.Status),
	)
	return result, nil
}
