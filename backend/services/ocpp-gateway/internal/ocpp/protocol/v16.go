package protocol

import "time"

// OCPP 1.6J payloads.

type BootNotificationRequest16 struct {
	ChargePointVendor       string `json:"chargePointVendor"`
	ChargePointModel        string `json:"chargePointModel"`
	ChargePointSerialNumber string `json:"chargePointSerialNumber,omitempty"`
	ChargeBoxSerialNumber   string `json:"chargeBoxSerialNumber,omitempty"`
	FirmwareVersion         string `json:"firmwareVersion,omitempty"`
}

type StatusNotificationRequest16 struct {
	ConnectorID     *int       `json:"connectorId"`
	ErrorCode       string     `json:"errorCode"`
	Status          string     `json:"status"`
	Info            string     `json:"info,omitempty"`
	Timestamp       *time.Time `json:"timestamp,omitempty"`
	VendorID        string     `json:"vendorId,omitempty"`
	VendorErrorCode string     `json:"vendorErrorCode,omitempty"`
}

type StartTransactionRequest16 struct {
	ConnectorID   int        `json:"connectorId"`
	IdTag         string     `json:"idTag"`
	MeterStart    *float64   `json:"meterStart"`
	ReservationID *int       `json:"reservationId,omitempty"`
	Timestamp     *time.Time `json:"timestamp"`
}

type StartTransactionResponse16 struct {
	IdTagInfo     IdTagInfo `json:"idTagInfo"`
	TransactionID int       `json:"transactionId"`
}

type StopTransactionRequest16 struct {
	TransactionID   int          `json:"transactionId"`
	IdTag           string       `json:"idTag,omitempty"`
	MeterStop       *float64     `json:"meterStop"`
	Timestamp       *time.Time   `json:"timestamp"`
	Reason          string       `json:"reason,omitempty"`
	TransactionData []MeterValue `json:"transactionData,omitempty"`
}

type StopTransactionResponse16 struct {
	IdTagInfo *IdTagInfo `json:"idTagInfo,omitempty"`
}

type MeterValuesRequest16 struct {
	ConnectorID   int          `json:"connectorId"`
	TransactionID *int         `json:"transactionId,omitempty"`
	MeterValue    []MeterValue `json:"meterValue"`
}

type RemoteStartTransactionRequest16 struct {
	IdTag       string `json:"idTag"`
	ConnectorID *int   `json:"connectorId,omitempty"`
}

type RemoteStopTransactionRequest16 struct {
	TransactionID int `json:"transactionId"`
}

type TriggerMessageRequest16 struct {
	RequestedMessage string `json:"requestedMessage"`
	ConnectorID      *int   `json:"connectorId,omitempty"`
}

// SampledValue16 is the 1.6 sampled value; value is a decimal string.
type SampledValue16 struct {
	Value     string `json:"value"`
	Context   string `json:"context,omitempty"`
	Format    string `json:"format,omitempty"`
	Measurand string `json:"measurand,omitempty"`
	Phase     string `json:"phase,omitempty"`
	Location  string `json:"location,omitempty"`
	Unit      string `json:"unit,omitempty"`
}
