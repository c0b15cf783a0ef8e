package handlers

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"ocppgateway/backend/services/ocpp-gateway/internal/models"
	"ocppgateway/backend/services/ocpp-gateway/internal/ocpp"
	"ocppgateway/backend/services/ocpp-gateway/internal/ocpp/protocol"
)

const reasonConnectorAvailable = "ConnectorAvailable"

// NewStatusNotificationHandler updates connector status for both wire shapes.
func NewStatusNotificationHandler(d *Deps) ocpp.HandlerFunc {
	return func(ctx context.Context, station ocpp.Station, payload json.RawMessage) (interface{}, error) {
		status, err := decodeStatus(station.Version.Dialect(), payload)
		if err != nil {
			return nil, err
		}

		if err := d.Store.UpdateConnectorStatus(station.Identity, status); err != nil {
			d.Logger.Warn("status for unknown station", zap.String("station_id", station.Identity), zap.Error(err))
			return protocol.Empty{}, nil
		}
		d.Telemetry.PublishConnectorStatus(station.Identity, status)

		if d.CloseOnAvailable && status.Status == protocol.ConnectorAvailable && status.ConnectorID > 0 {
			for _, id := range d.Store.OpenTransactionIDs(station.Identity, status.ConnectorID, status.EvseID) {
				d.closeTransaction(station.Identity, id, nil, status.Timestamp, reasonConnectorAvailable)
			}
		}
		return protocol.Empty{}, nil
	}
}

func decodeStatus(dialect protocol.Dialect, payload json.RawMessage) (models.ConnectorStatus, error) {
	var status models.ConnectorStatus
	switch dialect {
	case protocol.DialectV16:
		req, err := ocpp.Decode[protocol.StatusNotificationRequest16](payload)
		if err != nil {
			return status, err
		}
		status.Status = req.Status
		status.ErrorCode = req.ErrorCode
		status.Timestamp = req.Timestamp
		if req.ConnectorID != nil {
			status.ConnectorID = *req.ConnectorID
		}
	default:
		req, err := ocpp.Decode[protocol.StatusNotificationRequest2x](payload)
		if err != nil {
			return status, err
		}
		status.Status = req.ConnectorStatus
		status.Timestamp = req.Timestamp
		status.EvseID = req.EvseID
		if req.ConnectorID != nil {
			status.ConnectorID = *req.ConnectorID
		}
	}
	if status.Timestamp != nil {
		ts := status.Timestamp.UTC()
		status.Timestamp = &ts
	}
	return status, nil
}
