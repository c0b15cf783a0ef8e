package handlers

import (
	"context"
	"encoding/json"

	"ocppgateway/backend/services/ocpp-gateway/internal/models"
	"ocppgateway/backend/services/ocpp-gateway/internal/ocpp"
	"ocppgateway/backend/services/ocpp-gateway/internal/ocpp/protocol"
)

// NewStartTransactionHandler opens a 1.6 transaction under a gateway-issued id.
func NewStartTransactionHandler(d *Deps) ocpp.HandlerFunc {
	return func(ctx context.Context, station ocpp.Station, payload json.RawMessage) (interface{}, error) {
		req, err := ocpp.Decode[protocol.StartTransactionRequest16](payload)
		if err != nil {
			return nil, err
		}

		transactionID := d.Store.NextTransactionID()
		tx := models.Transaction{
			ID:          models.IntTransactionID(transactionID),
			ConnectorID: req.ConnectorID,
			IdTag:       req.IdTag,
			MeterStart:  req.MeterStart,
		}
		if req.Timestamp != nil {
			tx.StartTime = req.Timestamp.UTC()
		}
		d.openTransaction(station.Identity, tx)

		return protocol.StartTransactionResponse16{
			IdTagInfo:     protocol.IdTagInfo{Status: protocol.StatusAccepted},
			TransactionID: transactionID,
		}, nil
	}
}
