package handlers

import (
	"context"
	"encoding/json"

	"ocppgateway/backend/services/ocpp-gateway/internal/models"
	"ocppgateway/backend/services/ocpp-gateway/internal/ocpp"
	"ocppgateway/backend/services/ocpp-gateway/internal/ocpp/protocol"
)

// NewStopTransactionHandler closes a 1.6 transaction. It replies Accepted even when the
// transaction is unknown or already closed.
func NewStopTransactionHandler(d *Deps) ocpp.HandlerFunc {
	return func(ctx context.Context, station ocpp.Station, payload json.RawMessage) (interface{}, error) {
		req, err := ocpp.Decode[protocol.StopTransactionRequest16](payload)
		if err != nil {
			return nil, err
		}

		id := models.IntTransactionID(req.TransactionID)
		d.appendSamples(station.Identity, id, req.TransactionData)
		d.closeTransaction(station.Identity, id, req.MeterStop, req.Timestamp, req.Reason)

		return protocol.StopTransactionResponse16{
			IdTagInfo: &protocol.IdTagInfo{Status: protocol.StatusAccepted},
		}, nil
	}
}
