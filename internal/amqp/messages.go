package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"findot/internal/core"
	"findot/internal/events"
)

// LedgerEventMessage is the wire form of events.LedgerEvent.
type LedgerEventMessage struct {
	Kind       string    `json:"kind"`
	Ref        string    `json:"ref"`
	Cells      []string  `json:"cells,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func NewLedgerEventMessage(ev events.LedgerEvent) *LedgerEventMessage {
	return &LedgerEventMessage{
		Kind:       string(ev.Kind),
		Ref:        string(ev.Ref),
		Cells:      ev.Cells,
		OccurredAt: ev.OccurredAt,
	}
}

func (m *LedgerEventMessage) Validate() error {
	switch events.Kind(m.Kind) {
	case events.KindCreated, events.KindIgnored:
		if len(m.Cells) == 0 {
			return fmt.Errorf("%s event without cells", m.Kind)
		}
	case events.KindDeleted:
	default:
		return fmt.Errorf("unknown event kind %q", m.Kind)
	}
	if m.Ref == "" {
		return errors.New("event without ref")
	}
	return nil
}

func (m *LedgerEventMessage) Event() events.LedgerEvent {
	return events.LedgerEvent{
		Kind:       events.Kind(m.Kind),
		Ref:        core.RowRef(m.Ref),
		Cells:      m.Cells,
		OccurredAt: m.OccurredAt,
	}
}

func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerEventMessageFromJSON decodes and validates a message body.
func LedgerEventMessageFromJSON(data []byte) (*LedgerEventMessage, error) {
	var msg LedgerEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
