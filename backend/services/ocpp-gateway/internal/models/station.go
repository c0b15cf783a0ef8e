package models

import (
	"strings"
	"time"

	"ocppgateway/backend/services/ocpp-gateway/internal/ocpp/protocol"
)

// StationKey is the case-insensitive lookup key for a station identity.
func StationKey(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}

// ConnectorStatus is the latest reported state of one connector.
type ConnectorStatus struct {
	ConnectorID int        `json:"connectorId"`
	Status      string     `json:"status"`
	ErrorCode   string     `json:"errorCode,omitempty"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
	EvseID      *int       `json:"evseId,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// StationSummary describes a connected station for listings.
type StationSummary struct {
	Identity       string           `json:"chargePointId"`
	Protocol       protocol.Dialect `json:"protocol"`
	Subprotocol    protocol.Version `json:"subprotocol"`
	ConnectedAt    time.Time        `json:"connectedAt"`
	ConnectorCount int              `json:"connectorCount"`
}
