package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"ocppgateway/backend/services/ocpp-gateway/internal/models"
	"ocppgateway/backend/services/ocpp-gateway/internal/service"
)

// StationReader is the read side of the station state store.
type StationReader interface {
	Stations() []models.StationSummary
	Station(identity string) (models.StationSummary, error)
	Connectors(identity string) ([]models.ConnectorStatus, error)
	Transactions(identity string) ([]models.Transaction, error)
	Transaction(identity string, txID models.TransactionID) (models.Transaction, error)
	MeterSamples(identity string, txID models.TransactionID, q service.MeterQuery) ([]models.MeterSample, error)
}

// ChargePointHandlers serves the polling endpoints.
type ChargePointHandlers struct {
	stations StationReader
	logger   *zap.Logger
}

// NewChargePointHandlers returns handler.
func NewChargePointHandlers(stations StationReader, logger *zap.Logger) *ChargePointHandlers {
	return &ChargePointHandlers{stations: stations, logger: logger}
}

// List handles GET /charge-points.
func (h *ChargePointHandlers) List(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.stations.Stations())
}

// Get handles GET /charge-points/{chargePointId}.
func (h *ChargePointHandlers) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "chargePointId")
	summary, err := h.stations.Station(id)
	if err != nil {
		h.writeLookupError(w, id, "", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Connectors handles GET /charge-points/{chargePointId}/connectors.
func (h *ChargePointHandlers) Connectors(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "chargePointId")
	connectors, err := h.stations.Connectors(id)
	if err != nil {
		h.writeLookupError(w, id, "", err)
		return
	}
	writeJSON(w, http.StatusOK, connectors)
}

// Transactions handles GET /charge-points/{chargePointId}/transactions.
func (h *ChargePointHandlers) Transactions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "chargePointId")
	txs, err := h.stations.Transactions(id)
	if err != nil {
		h.writeLookupError(w, id, "", err)
		return
	}
	result := make([]models.TransactionSummary, 0, len(txs))
	for _, tx := range txs {
		result = append(result, tx.Summary())
	}
	writeJSON(w, http.StatusOK, result)
}

// Transaction handles GET /charge-points/{chargePointId}/transactions/{transactionId}.
func (h *ChargePointHandlers) Transaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "chargePointId")
	txID := chi.URLParam(r, "transactionId")
	tx, err := h.stations.Transaction(id, models.StringTransactionID(txID))
	if err != nil {
		h.writeLookupError(w, id, txID, err)
		return
	}
	writeJSON(w, http.StatusOK, tx.Summary())
}

// Meters handles GET /charge-points/{chargePointId}/transactions/{transactionId}/meters.
func (h *ChargePointHandlers) Meters(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "chargePointId")
	txID := chi.URLParam(r, "transactionId")

	query, err := parseMeterQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	samples, err := h.stations.MeterSamples(id, models.StringTransactionID(txID), query)
	if err != nil {
		h.writeLookupError(w, id, txID, err)
		return
	}
	writeJSON(w, http.StatusOK, samples)
}

func parseMeterQuery(r *http.Request) (service.MeterQuery, error) {
	var q service.MeterQuery
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return q, errors.New("limit must be a non-negative integer")
		}
		q.Limit = limit
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("since")); raw != "" {
		since, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return q, errors.New("since must be an RFC 3339 timestamp")
		}
		q.Since = &since
	}
	return q, nil
}

func (h *ChargePointHandlers) writeLookupError(w http.ResponseWriter, id, txID string, err error) {
	switch {
	case errors.Is(err, service.ErrStationNotFound):
		writeJSON(w, http.StatusNotFound, notConnectedResponse{
			Error:                   "Charge point not connected",
			ChargePointID:           id,
			ConnectedChargePointIDs: connectedIDs(h.stations),
		})
	case errors.Is(err, service.ErrTransactionNotFound):
		writeJSON(w, http.StatusNotFound, unknownTransactionResponse{
			Error:          "Transaction not found",
			ChargePointID:  id,
			TransactionID:  txID,
			TransactionIDs: h.transactionIDs(id),
		})
	default:
		h.logger.Error("station lookup failed", zap.String("station_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *ChargePointHandlers) transactionIDs(identity string) []string {
	txs, err := h.stations.Transactions(identity)
	if err != nil {
		return []string{}
	}
	ids := make([]string, 0, len(txs))
	for _, tx := range txs {
		ids = append(ids, tx.ID.String())
	}
	return ids
}

func connectedIDs(stations StationReader) []string {
	summaries := stations.Stations()
	ids := make([]string, 0, len(summaries))
	for _, s := range summaries {
		ids = append(ids, s.Identity)
	}
	return ids
}
