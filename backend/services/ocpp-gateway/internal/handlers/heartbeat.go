package handlers

import (
	"context"
	"encoding/json"

	"ocppgateway/backend/services/ocpp-gateway/internal/ocpp"
	"ocppgateway/backend/services/ocpp-gateway/internal/ocpp/protocol"
)

// NewHeartbeatHandler returns ack with current time.
func NewHeartbeatHandler(d *Deps) ocpp.HandlerFunc {
	return func(ctx context.Context, station ocpp.Station, payload json.RawMessage) (interface{}, error) {
		return protocol.HeartbeatResponse{
			CurrentTime: d.Now(),
		}, nil
	}
}
