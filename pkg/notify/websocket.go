package notify

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shareguard/shareguard/internal/logger"
)

// WebSocketTransport adapts a gorilla connection to the Transport
// interface. Gorilla connections allow one concurrent writer, so writes
// serialize on a mutex.
type WebSocketTransport struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWebSocketTransport wraps an upgraded connection.
func NewWebSocketTransport(conn *websocket.Conn) *WebSocketTransport {
	return &WebSocketTransport{conn: conn}
}

// Send writes one envelope as a JSON text frame, honoring the context
// deadline as the write deadline.
func (t *WebSocketTransport) Send(ctx context.Context, env *Envelope) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	deadline := time.Now().Add(DefaultSendTimeout)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return t.conn.WriteJSON(env)
}

// Close sends a close frame and tears the connection down.
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return t.conn.Close()
}

// ServeReads pumps inbound client messages for one subscription until
// the connection drops. Replies go through the service queue so they
// interleave correctly with notifications. Blocks; run it per
// connection.
func (s *Service) ServeReads(sub *Subscription, conn *websocket.Conn) {
	defer s.Disconnect(sub.ID)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("websocket read error",
					logger.SubscriptionID(sub.ID), logger.Err(err))
			}
			return
		}

		reply, err := s.HandleClientMessage(sub, raw)
		if err != nil {
			logger.Debug("ignoring client message",
				logger.SubscriptionID(sub.ID), logger.Err(err))
			continue
		}
		if reply != nil {
			s.SendTo(sub.ID, reply)
		}
	}
}
