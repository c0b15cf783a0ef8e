package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"ocppgateway/backend/services/ocpp-gateway/internal/commands"
)

const maxCommandBody = 64 << 10

// Dispatcher sends gateway-initiated commands to stations.
type Dispatcher interface {
	RemoteStart(ctx context.Context, identity, idTag string, connectorID *int) (commands.Result, error)
	RemoteStop(ctx context.Context, identity, transactionID string) (commands.Result, error)
	TriggerMeterRead(ctx context.Context, identity string, connectorID, evseID *int) (commands.Result, error)
}

// CommandHandlers serves the remote command endpoints.
type CommandHandlers struct {
	dispatcher Dispatcher
	stations   StationReader
	logger     *zap.Logger
}

// NewCommandHandlers returns handler.
func NewCommandHandlers(dispatcher Dispatcher, stations StationReader, logger *zap.Logger) *CommandHandlers {
	return &CommandHandlers{dispatcher: dispatcher, stations: stations, logger: logger}
}

type remoteStartRequest struct {
	ChargePointID string `json:"chargePointId"`
	IdTag         string `json:"idTag"`
	ConnectorID   *int   `json:"connectorId"`
}

type remoteStopRequest struct {
	ChargePointID string          `json:"chargePointId"`
	TransactionID json.RawMessage `json:"transactionId"`
}

type triggerMeterRequest struct {
	ConnectorID *int `json:"connectorId"`
	EvseID      *int `json:"evseId"`
}

// RemoteStart handles POST /remote-start.
func (h *CommandHandlers) RemoteStart(w http.ResponseWriter, r *http.Request) {
	var req remoteStartRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.ChargePointID = strings.TrimSpace(req.ChargePointID)
	req.IdTag = strings.TrimSpace(req.IdTag)
	if req.ChargePointID == "" || req.IdTag == "" {
		writeError(w, http.StatusBadRequest, "chargePointId and idTag are required")
		return
	}

	result, err := h.dispatcher.RemoteStart(r.Context(), req.ChargePointID, req.IdTag, req.ConnectorID)
	h.writeResult(w, req.ChargePointID, result, err)
}

// RemoteStop handles POST /remote-stop.
func (h *CommandHandlers) RemoteStop(w http.ResponseWriter, r *http.Request) {
	var req remoteStopRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.ChargePointID = strings.TrimSpace(req.ChargePointID)
	txID, ok := parseTransactionID(req.TransactionID)
	if req.ChargePointID == "" || !ok {
		writeError(w, http.StatusBadRequest, "chargePointId and transactionId are required")
		return
	}

	result, err := h.dispatcher.RemoteStop(r.Context(), req.ChargePointID, txID)
	h.writeResult(w, req.ChargePointID, result, err)
}

// TriggerMeter handles POST /charge-points/{chargePointId}/trigger-meter.
func (h *CommandHandlers) TriggerMeter(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "chargePointId")
	var req triggerMeterRequest
	if err := decodeBody(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.dispatcher.TriggerMeterRead(r.Context(), id, req.ConnectorID, req.EvseID)
	h.writeResult(w, id, result, err)
}

func (h *CommandHandlers) writeResult(w http.ResponseWriter, id string, result commands.Result, err error) {
	var transportErr *commands.TransportError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, result)
	case errors.Is(err, commands.ErrNotConnected):
		writeJSON(w, http.StatusNotFound, notConnectedResponse{
			Error:                   "Charge point not connected",
			ChargePointID:           id,
			ConnectedChargePointIDs: connectedIDs(h.stations),
		})
	case errors.Is(err, commands.ErrInvalidTransactionID):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &transportErr):
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error":         "charge point call failed",
			"chargePointId": id,
			"action":        transportErr.Action,
			"detail":        transportErr.Err.Error(),
		})
	default:
		h.logger.Error("command failed", zap.String("station_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, target interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCommandBody)).Decode(target)
}

// parseTransactionID accepts the id as a JSON string or number.
func parseTransactionID(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		return s, s != ""
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", false
	}
	return n.String(), true
}
