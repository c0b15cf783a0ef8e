package handlers

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"ocppgateway/backend/services/ocpp-gateway/internal/models"
	"ocppgateway/backend/services/ocpp-gateway/internal/ocpp"
	"ocppgateway/backend/services/ocpp-gateway/internal/ocpp/protocol"
)

// NewMeterValuesHandler appends meter samples to the transaction named in the request.
// Reports without a transaction id are acknowledged and dropped.
func NewMeterValuesHandler(d *Deps) ocpp.HandlerFunc {
	return func(ctx context.Context, station ocpp.Station, payload json.RawMessage) (interface{}, error) {
		var (
			txID   models.TransactionID
			values []protocol.MeterValue
		)
		switch station.Version.Dialect() {
		case protocol.DialectV16:
			req, err := ocpp.Decode[protocol.MeterValuesRequest16](payload)
			if err != nil {
				return nil, err
			}
			if req.TransactionID != nil {
				txID = models.IntTransactionID(*req.TransactionID)
			}
			values = req.MeterValue
		default:
			req, err := ocpp.Decode[protocol.MeterValuesRequest2x](payload)
			if err != nil {
				return nil, err
			}
			if req.TransactionID != "" {
				txID = models.StringTransactionID(req.TransactionID)
			}
			values = req.MeterValue
		}

		if txID.IsZero() {
			d.Logger.Debug("meter values without transaction", zap.String("station_id", station.Identity))
			return protocol.Empty{}, nil
		}
		d.appendSamples(station.Identity, txID, values)
		return protocol.Empty{}, nil
	}
}
