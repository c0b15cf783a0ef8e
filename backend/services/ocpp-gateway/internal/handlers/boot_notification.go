package handlers

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"ocppgateway/backend/services/ocpp-gateway/internal/ocpp"
	"ocppgateway/backend/services/ocpp-gateway/internal/ocpp/protocol"
)

// NewBootNotificationHandler always accepts the station and hands out the heartbeat interval.
func NewBootNotificationHandler(d *Deps) ocpp.HandlerFunc {
	return func(ctx context.Context, station ocpp.Station, payload json.RawMessage) (interface{}, error) {
		var vendor, model, firmware string
		switch station.Version.Dialect() {
		case protocol.DialectV16:
			req, err := ocpp.Decode[protocol.BootNotificationRequest16](payload)
			if err != nil {
				return nil, err
			}
			vendor, model, firmware = req.ChargePointVendor, req.ChargePointModel, req.FirmwareVersion
		default:
			req, err := ocpp.Decode[protocol.BootNotificationRequest2x](payload)
			if err != nil {
				return nil, err
			}
			vendor, model, firmware = req.ChargingStation.VendorName, req.ChargingStation.Model, req.ChargingStation.FirmwareVersion
		}

		d.Logger.Info("station booted",
			zap.String("station_id", station.Identity),
			zap.String("vendor", vendor),
			zap.String("model", model),
			zap.String("firmware", firmware),
		)

		return protocol.BootNotificationResponse{
			CurrentTime: d.Now(),
			Interval:    int(d.HeartbeatInterval.Seconds()),
			Status:      protocol.StatusAccepted,
		}, nil
	}
}
