package protocol

import (
	"fmt"
	"strings"
)

// MessageType values as per OCPP-J.
const (
	MessageTypeCall       = 2
	MessageTypeCallResult = 3
	MessageTypeCallError  = 4
)

// Version is the negotiated WebSocket subprotocol.
type Version string

const (
	Version16  Version = "ocpp1.6"
	Version201 Version = "ocpp2.0.1"
	Version21  Version = "ocpp2.1"
)

// Dialect groups wire-compatible versions.
type Dialect int

const (
	DialectV16 Dialect = iota + 1
	DialectV2x
)

// MarshalText renders the dialect name in JSON.
func (d Dialect) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText parses the dialect name.
func (d *Dialect) UnmarshalText(text []byte) error {
	switch string(text) {
	case "v16":
		*d = DialectV16
	case "v20x":
		*d = DialectV2x
	default:
		return fmt.Errorf("protocol: unknown dialect %q", text)
	}
	return nil
}

func (d Dialect) String() string {
	switch d {
	case DialectV16:
		return "v16"
	case DialectV2x:
		return "v20x"
	default:
		return "unknown"
	}
}

// ParseVersion maps a subprotocol token onto a supported Version.
func ParseVersion(subprotocol string) (Version, bool) {
	switch Version(strings.ToLower(strings.TrimSpace(subprotocol))) {
	case Version16:
		return Version16, true
	case Version201:
		return Version201, true
	case Version21:
		return Version21, true
	default:
		return "", false
	}
}

// Dialect reports which message family the version speaks.
func (v Version) Dialect() Dialect {
	switch v {
	case Version16:
		return DialectV16
	case Version201, Version21:
		return DialectV2x
	default:
		return 0
	}
}

func (v Version) String() string { return string(v) }

// Station initiated actions.
const (
	ActionBootNotification   = "BootNotification"
	ActionHeartbeat          = "Heartbeat"
	ActionStatusNotification = "StatusNotification"
	ActionAuthorize          = "Authorize"
	ActionStartTransaction   = "StartTransaction"
	ActionStopTransaction    = "StopTransaction"
	ActionTransactionEvent   = "TransactionEvent"
	ActionMeterValues        = "MeterValues"
)

// Gateway initiated actions.
const (
	ActionRemoteStartTransaction  = "RemoteStartTransaction"
	ActionRemoteStopTransaction   = "RemoteStopTransaction"
	ActionRequestStartTransaction = "RequestStartTransaction"
	ActionRequestStopTransaction  = "RequestStopTransaction"
	ActionTriggerMessage          = "TriggerMessage"
)

// Generic status values shared by registration, authorization and command replies.
const (
	StatusAccepted = "Accepted"
	StatusRejected = "Rejected"
)

// Connector status values (subset).
const (
	ConnectorAvailable   = "Available"
	ConnectorUnavailable = "Unavailable"
	ConnectorCharging    = "Charging"
	ConnectorFinishing   = "Finishing"
	ConnectorPreparing   = "Preparing"
	ConnectorFaulted     = "Faulted"
	ConnectorReserved    = "Reserved"
)

// TransactionEvent eventType values.
const (
	EventStarted = "Started"
	EventUpdated = "Updated"
	EventEnded   = "Ended"
)

// MeasurandEnergyImportRegister is also the OCPP default when a sampled value omits measurand.
const MeasurandEnergyImportRegister = "Energy.Active.Import.Register"

// CALLERROR codes. 1.6 spells the formatting error FormationViolation, 2.x FormatViolation.
const (
	ErrorNotImplemented      = "NotImplemented"
	ErrorFormationViolation  = "FormationViolation"
	ErrorFormatViolation     = "FormatViolation"
	ErrorInternalError       = "InternalError"
	ErrorGenericError        = "GenericError"
	ErrorNotSupported        = "NotSupported"
	ErrorProtocolError       = "ProtocolError"
	ErrorSecurityError       = "SecurityError"
	ErrorTypeConstraintError = "TypeConstraintViolation"
)
