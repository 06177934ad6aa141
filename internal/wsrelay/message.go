package wsrelay

import "github.com/ebooklister/ebooklister/internal/publish"

// Message represents the JSON payload exchanged with websocket clients.
type Message struct {
	ID      string         `json:"id,omitempty"`
	Type    string         `json:"type"`
	Payload *publish.Event `json:"payload,omitempty"`
}

const (
	// MessageTypeHello is sent once after the upgrade.
	MessageTypeHello = "hello"
	// MessageTypeProgress carries one publish progress event. ID is the job id.
	MessageTypeProgress = "progress"
	// MessageTypePing represents ping messages from clients.
	MessageTypePing = "ping"
	// MessageTypePong represents pong responses back to clients.
	MessageTypePong = "pong"
)
