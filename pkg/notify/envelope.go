// Package notify fans change and alert messages out to connected
// subscribers. Delivery is at-most-once through a single bounded queue;
// a subscription that cannot keep up is disconnected rather than buffered
// without limit.
package notify

import (
	"time"

	"github.com/google/uuid"

	"github.com/shareguard/shareguard/pkg/acl"
)

// MessageType labels an outbound envelope.
type MessageType string

const (
	TypePermissionChange      MessageType = "permission_change"
	TypeGroupMembershipChange MessageType = "group_membership_change"
	TypeNewAccessGranted      MessageType = "new_access_granted"
	TypeAccessRemoved         MessageType = "access_removed"
	TypeAlertTriggered        MessageType = "alert_triggered"
	TypeSystemStatus          MessageType = "system_status"

	// Protocol-level types, exempt from subscription filters.
	TypeConnectionEstablished MessageType = "connection_established"
	TypePong                  MessageType = "pong"
	TypeAcknowledged          MessageType = "notification_acknowledged"
)

// notificationTypes are the filterable, user-facing message types.
var notificationTypes = map[MessageType]struct{}{
	TypePermissionChange:      {},
	TypeGroupMembershipChange: {},
	TypeNewAccessGranted:      {},
	TypeAccessRemoved:         {},
	TypeAlertTriggered:        {},
	TypeSystemStatus:          {},
}

// Envelope is the stable wire format for one message.
type Envelope struct {
	ID        string         `json:"id"`
	Type      MessageType    `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Severity  acl.Severity   `json:"severity,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
	Read      bool           `json:"read"`
}

// NewEnvelope stamps a fresh envelope with an id and a UTC timestamp.
func NewEnvelope(t MessageType, title, message string, severity acl.Severity, data map[string]any) *Envelope {
	return &Envelope{
		ID:        uuid.New().String(),
		Type:      t,
		Title:     title,
		Message:   message,
		Severity:  severity,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// IsNotification reports whether the envelope is subject to subscription
// filters, as opposed to protocol replies which always pass through.
func (e *Envelope) IsNotification() bool {
	_, ok := notificationTypes[e.Type]
	return ok
}

// path extracts data.path for prefix filtering; empty when absent.
func (e *Envelope) path() string {
	if e.Data == nil {
		return ""
	}
	if p, ok := e.Data["path"].(string); ok {
		return p
	}
	return ""
}
