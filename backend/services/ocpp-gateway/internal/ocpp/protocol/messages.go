package protocol

import (
	"encoding/json"
	"time"
)

// Shapes used by both dialects.

// IdTagInfo carries an authorization verdict (1.6).
type IdTagInfo struct {
	Status string `json:"status"`
}

// IdTokenInfo carries an authorization verdict (2.x).
type IdTokenInfo struct {
	Status string `json:"status"`
}

// IdToken is the 2.x credential shape.
type IdToken struct {
	IdToken string `json:"idToken"`
	Type    string `json:"type"`
}

// MeterValue is one timestamped group of sampled values. SampledValue is kept raw because
// 1.6 encodes values as strings and 2.x as numbers.
type MeterValue struct {
	Timestamp    time.Time       `json:"timestamp"`
	SampledValue json.RawMessage `json:"sampledValue"`
}

// BootNotificationResponse is identical in 1.6 and 2.x.
type BootNotificationResponse struct {
	CurrentTime time.Time `json:"currentTime"`
	Interval    int       `json:"interval"`
	Status      string    `json:"status"`
}

// HeartbeatResponse returns server time.
type HeartbeatResponse struct {
	CurrentTime time.Time `json:"currentTime"`
}

// Empty is the `{}` acknowledgement.
type Empty struct{}

// CommandResponse covers every gateway-initiated call we issue: all of them answer with a
// status field.
type CommandResponse struct {
	Status string `json:"status"`
}
