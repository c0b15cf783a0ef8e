package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// TransactionID identifies a transaction within one station. OCPP 1.6 ids are integers
// issued by the gateway, OCPP 2.x ids are strings chosen by the station.
type TransactionID struct {
	value   string
	numeric bool
}

// IntTransactionID builds a 1.6 style id.
func IntTransactionID(id int) TransactionID {
	return TransactionID{value: strconv.Itoa(id), numeric: true}
}

// StringTransactionID builds a 2.x style id.
func StringTransactionID(id string) TransactionID {
	return TransactionID{value: id}
}

// String returns the map key form of the id.
func (id TransactionID) String() string { return id.value }

// Int returns the integer form for 1.6 ids.
func (id TransactionID) Int() (int, bool) {
	if !id.numeric {
		return 0, false
	}
	n, err := strconv.Atoi(id.value)
	return n, err == nil
}

// IsZero reports whether the id is unset.
func (id TransactionID) IsZero() bool { return id.value == "" }

// MarshalJSON renders integer ids as JSON numbers and string ids as JSON strings.
func (id TransactionID) MarshalJSON() ([]byte, error) {
	if id.numeric {
		return []byte(id.value), nil
	}
	return json.Marshal(id.value)
}

// MeterSample is one reported meter-value group. RawValues holds the sampledValue array
// exactly as the station sent it.
type MeterSample struct {
	Timestamp time.Time       `json:"timestamp"`
	RawValues json.RawMessage `json:"sampledValue"`
}

// Transaction is one charging session. It is open while EndTime is nil.
type Transaction struct {
	ID              TransactionID `json:"transactionId"`
	StationIdentity string        `json:"chargePointId"`
	ConnectorID     int           `json:"connectorId"`
	EvseID          *int          `json:"evseId,omitempty"`
	IdTag           string        `json:"idTag"`
	MeterStart      *float64      `json:"meterStart,omitempty"`
	MeterStop       *float64      `json:"meterStop,omitempty"`
	StartTime       time.Time     `json:"startTime"`
	EndTime         *time.Time    `json:"endTime,omitempty"`
	StopReason      string        `json:"stopReason,omitempty"`
	Samples         []MeterSample `json:"-"`
}

// IsOpen reports whether the transaction has not been closed yet.
func (t Transaction) IsOpen() bool { return t.EndTime == nil }

// TransactionSummary is the listing view of a transaction.
type TransactionSummary struct {
	ID          TransactionID `json:"transactionId"`
	ConnectorID int           `json:"connectorId"`
	EvseID      *int          `json:"evseId,omitempty"`
	IdTag       string        `json:"idTag"`
	StartTime   time.Time     `json:"startTime"`
	EndTime     *time.Time    `json:"endTime,omitempty"`
	MeterStart  *float64      `json:"meterStart,omitempty"`
	MeterStop   *float64      `json:"meterStop,omitempty"`
	StopReason  string        `json:"stopReason,omitempty"`
	SampleCount int           `json:"sampleCount"`
}

// Summary builds the listing view.
func (t Transaction) Summary() TransactionSummary {
	return TransactionSummary{
		ID:          t.ID,
		ConnectorID: t.ConnectorID,
		EvseID:      t.EvseID,
		IdTag:       t.IdTag,
		StartTime:   t.StartTime,
		EndTime:     t.EndTime,
		MeterStart:  t.MeterStart,
		MeterStop:   t.MeterStop,
		StopReason:  t.StopReason,
		SampleCount: len(t.Samples),
	}
}
