package handlers

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"ocppgateway/backend/services/ocpp-gateway/internal/ocpp"
	"ocppgateway/backend/services/ocpp-gateway/internal/ocpp/protocol"
)

type authorizeRequest struct {
	IdTag   string            `json:"idTag"`
	IdToken *protocol.IdToken `json:"idToken"`
}

type authorizeTagResponse struct {
	IdTagInfo protocol.IdTagInfo `json:"idTagInfo"`
}

type authorizeTokenResponse struct {
	IdTokenInfo protocol.IdTokenInfo `json:"idTokenInfo"`
}

// NewAuthorizeHandler accepts every credential. The reply shape follows the field the
// station sent: idToken gets idTokenInfo, idTag gets idTagInfo.
func NewAuthorizeHandler(d *Deps) ocpp.HandlerFunc {
	return func(ctx context.Context, station ocpp.Station, payload json.RawMessage) (interface{}, error) {
		req, err := ocpp.Decode[authorizeRequest](payload)
		if err != nil {
			return nil, err
		}

		if req.IdToken != nil {
			d.Logger.Debug("authorize", zap.String("station_id", station.Identity), zap.String("id_token", req.IdToken.IdToken))
			return authorizeTokenResponse{IdTokenInfo: protocol.IdTokenInfo{Status: protocol.StatusAccepted}}, nil
		}
		d.Logger.Debug("authorize", zap.String("station_id", station.Identity), zap.String("id_tag", req.IdTag))
		return authorizeTagResponse{IdTagInfo: protocol.IdTagInfo{Status: protocol.StatusAccepted}}, nil
	}
}
