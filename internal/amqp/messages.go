package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types carried on the dashboard queue.
const (
	TypeRecipientUsed = "recipient.used"
	TypeSheetExport   = "sheets.export"
)

// Envelope wraps every event so one queue can carry several kinds.
type Envelope struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// RecipientUsedMessage is published after a successful transfer so the
// sender's recipient book records the destination.
type RecipientUsedMessage struct {
	UserID string    `json:"user_id"`
	Name   string    `json:"name,omitempty"`
	Phone  string    `json:"phone,omitempty"`
	Email  string    `json:"email,omitempty"`
	UsedAt time.Time `json:"used_at"`
}

// SheetExportMessage carries already-rendered rows of the admin
// transaction listing to be appended to the export spreadsheet.
type SheetExportMessage struct {
	RequestedBy string     `json:"requested_by"`
	Filter      string     `json:"filter"`
	Header      []string   `json:"header"`
	Rows        [][]string `json:"rows"`
}

// NewEnvelope encodes payload under eventType.
func NewEnvelope(eventType string, payload any) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return &Envelope{Type: eventType, Timestamp: time.Now(), Payload: raw}, nil
}

// ToJSON converts the envelope to JSON bytes
func (e *Envelope) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EnvelopeFromJSON decodes an envelope; the payload stays raw.
func EnvelopeFromJSON(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	if env.Type == "" {
		return nil, fmt.Errorf("envelope without type")
	}
	return &env, nil
}

// Decode unmarshals the payload into v.
func (e *Envelope) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}
