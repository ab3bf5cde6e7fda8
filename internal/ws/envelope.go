package ws

import "encoding/json"

// Envelope is the wire format for both directions: an event name plus
// its JSON payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode marshals an outbound envelope. Payload marshal errors are
// programmer errors (all payloads are plain structs and maps), so the
// envelope is returned with empty data rather than failing delivery.
func Encode(event string, payload any) []byte {
	data, _ := json.Marshal(payload)
	b, _ := json.Marshal(Envelope{Event: event, Data: data})
	return b
}
