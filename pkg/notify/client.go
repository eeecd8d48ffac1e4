package notify

import (
	"encoding/json"
	"fmt"
	"time"
)

// ClientMessage is the inbound wire format from a subscriber.
type ClientMessage struct {
	Type string `json:"type"`

	// Filters accompanies update_filters.
	Filters *Filters `json:"filters,omitempty"`

	// NotificationID accompanies acknowledge_notification.
	NotificationID string `json:"notification_id,omitempty"`
}

const (
	clientPing          = "ping"
	clientUpdateFilters = "update_filters"
	clientAcknowledge   = "acknowledge_notification"
)

// HandleClientMessage applies one inbound message to its subscription
// and returns the reply envelope, or nil when no reply is due.
func (s *Service) HandleClientMessage(sub *Subscription, raw []byte) (*Envelope, error) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("malformed client message: %w", err)
	}

	switch msg.Type {
	case clientPing:
		return NewEnvelope(TypePong, "", "", "", map[string]any{
			"server_time": time.Now().UTC().Format(time.RFC3339),
		}), nil

	case clientUpdateFilters:
		if msg.Filters == nil {
			return nil, fmt.Errorf("update_filters without filters payload")
		}
		sub.UpdateFilters(*msg.Filters)
		return nil, nil

	case clientAcknowledge:
		return NewEnvelope(TypeAcknowledged, "", "", "", map[string]any{
			"notification_id": msg.NotificationID,
		}), nil
	}

	return nil, fmt.Errorf("unknown client message type %q", msg.Type)
}
