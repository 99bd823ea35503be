package broker

import (
	"encoding/json"
	"fmt"

	"github.com/OpenFieldOps/open-job-api/internal/apperr"
)

// UserEvent is the wire envelope on the global channel: the target user
// plus the {type, data} event to forward.
type UserEvent struct {
	UserID int64           `json:"userId"`
	Type   string          `json:"type"`
	Data   json.RawMessage `json:"data"`
}

// Event is the {type, data} envelope forwarded to a user-events
// connection.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// EncodeUserEvent builds a global-channel envelope.
func EncodeUserEvent(userID int64, eventType string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(UserEvent{UserID: userID, Type: eventType, Data: raw})
}

// EncodeEvent builds a connection envelope.
func EncodeEvent(eventType string, data json.RawMessage) ([]byte, error) {
	return json.Marshal(Event{Type: eventType, Data: data})
}

// DecodeUserEvent parses and validates a global-channel envelope. Anything
// that does not carry a positive user id and a non-empty type is a
// malformed envelope: the subscriber logs and drops it without disturbing
// later deliveries.
func DecodeUserEvent(payload []byte) (*UserEvent, error) {
	var evt UserEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrMalformedEnvelope, err)
	}
	if evt.UserID <= 0 {
		return nil, fmt.Errorf("%w: missing userId", apperr.ErrMalformedEnvelope)
	}
	if evt.Type == "" {
		return nil, fmt.Errorf("%w: missing type", apperr.ErrMalformedEnvelope)
	}
	return &evt, nil
}
