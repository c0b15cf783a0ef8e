package protocol

import "time"

// OCPP 2.0.1 / 2.1 payloads. Only the fields the gateway reads are modelled.

type ChargingStation struct {
	Model           string `json:"model"`
	VendorName      string `json:"vendorName"`
	SerialNumber    string `json:"serialNumber,omitempty"`
	FirmwareVersion string `json:"firmwareVersion,omitempty"`
}

type BootNotificationRequest2x struct {
	ChargingStation ChargingStation `json:"chargingStation"`
	Reason          string          `json:"reason"`
}

type StatusNotificationRequest2x struct {
	Timestamp       *time.Time `json:"timestamp"`
	ConnectorStatus string     `json:"connectorStatus"`
	EvseID          *int       `json:"evseId"`
	ConnectorID     *int       `json:"connectorId"`
}

type EVSE struct {
	ID          int  `json:"id"`
	ConnectorID *int `json:"connectorId,omitempty"`
}

type TransactionInfo struct {
	TransactionID string `json:"transactionId"`
	ChargingState string `json:"chargingState,omitempty"`
	StoppedReason string `json:"stoppedReason,omitempty"`
	RemoteStartID *int   `json:"remoteStartId,omitempty"`
}

type TransactionEventRequest struct {
	EventType       string          `json:"eventType"`
	Timestamp       *time.Time      `json:"timestamp"`
	TriggerReason   string          `json:"triggerReason"`
	SeqNo           int             `json:"seqNo"`
	Offline         bool            `json:"offline,omitempty"`
	TransactionInfo TransactionInfo `json:"transactionInfo"`
	IdToken         *IdToken        `json:"idToken,omitempty"`
	EVSE            *EVSE           `json:"evse,omitempty"`
	MeterValue      []MeterValue    `json:"meterValue,omitempty"`
}

type TransactionEventResponse struct {
	IdTokenInfo *IdTokenInfo `json:"idTokenInfo,omitempty"`
}

type MeterValuesRequest2x struct {
	EvseID        int          `json:"evseId"`
	TransactionID string       `json:"transactionId,omitempty"`
	MeterValue    []MeterValue `json:"meterValue"`
}

type RequestStartTransactionRequest struct {
	IdToken       IdToken `json:"idToken"`
	RemoteStartID int     `json:"remoteStartId"`
	EvseID        *int    `json:"evseId,omitempty"`
}

type RequestStopTransactionRequest struct {
	TransactionID string `json:"transactionId"`
}

type TriggerMessageRequest2x struct {
	RequestedMessage string `json:"requestedMessage"`
	EVSE             *EVSE  `json:"evse,omitempty"`
}

type UnitOfMeasure struct {
	Unit       string `json:"unit,omitempty"`
	Multiplier int    `json:"multiplier,omitempty"`
}

// SampledValue2x is the 2.x sampled value; value is a JSON number.
type SampledValue2x struct {
	Value         float64        `json:"value"`
	Context       string         `json:"context,omitempty"`
	Measurand     string         `json:"measurand,omitempty"`
	Phase         string         `json:"phase,omitempty"`
	Location      string         `json:"location,omitempty"`
	UnitOfMeasure *UnitOfMeasure `json:"unitOfMeasure,omitempty"`
}
