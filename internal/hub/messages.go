package hub

import "time"

// MessageType labels a server-to-client envelope.
type MessageType string

const (
	// TypeInitialData carries the latest bundle (or a NoDataNotice) to a
	// subscriber immediately after registration.
	TypeInitialData MessageType = "initial_data"
	// TypeDataUpdate carries a new bundle after scheduled change detection.
	TypeDataUpdate MessageType = "data_update"
	// TypeForcedUpdate carries the bundle produced by a client-requested cycle.
	TypeForcedUpdate MessageType = "forced_update"
	// TypeHeartbeat signals an unchanged scheduled cycle.
	TypeHeartbeat MessageType = "heartbeat"
	// TypePong answers a client ping.
	TypePong MessageType = "pong"
)

// Client-to-server message types.
const (
	ClientPing          = "ping"
	ClientRequestUpdate = "request_update"
	ClientSubscribe     = "subscribe"
)

// Envelope is the wire frame for every server-to-client message. Changed is
// set only on update envelopes.
type Envelope struct {
	Type      MessageType `json:"type"`
	Data      any         `json:"data,omitempty"`
	Changed   *bool       `json:"changed,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// ClientMessage is the wire frame for every client-to-server message.
// Preferences is only meaningful on subscribe.
type ClientMessage struct {
	Type        string         `json:"type"`
	Preferences map[string]any `json:"preferences,omitempty"`
}

// HeartbeatStatus is the heartbeat payload.
type HeartbeatStatus struct {
	Subscribers int `json:"subscribers"`
}

// NoDataNotice is the initial_data payload used before the first forecast
// cycle has completed.
type NoDataNotice struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
