package eventlog

import "github.com/goccy/go-json"

// Event is one durably stored, accepted inbound notification.
type Event struct {
	ID         uint64          `json:"id"`
	Timestamp  string          `json:"timestamp,omitempty"`
	Source     string          `json:"source"`
	ExternalID string          `json:"external_id,omitempty"`
	Payload    json.RawMessage `json:"payload"`
}

// UnmarshalPayload deserializes the stored payload into v.
func (e *Event) UnmarshalPayload(v any) error {
	return json.Unmarshal(e.Payload, v)
}
