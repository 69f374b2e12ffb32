package homeassistant

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// wsMessage covers every message shape exchanged during the Home Assistant
// websocket handshake and event subscription.
type wsMessage struct {
	Id          int64           `json:"id,omitempty"`
	Type        string          `json:"type"`
	AccessToken string          `json:"access_token,omitempty"`
	EventType   string          `json:"event_type,omitempty"`
	Success     *bool           `json:"success,omitempty"`
	Event       *wsEventPayload `json:"event,omitempty"`
}

type wsEventPayload struct {
	EventType string `json:"event_type"`
	Data      struct {
		EntityId string       `json:"entity_id"`
		OldState *EntityState `json:"old_state"`
		NewState *EntityState `json:"new_state"`
	} `json:"data"`
}

// StateChangedEvent is a single state_changed event observed via the websocket API.
type StateChangedEvent struct {
	EntityId string
	OldState *EntityState
	NewState *EntityState
}

// EventStream is a live subscription to the application's state_changed events.
// Events are delivered on the Events channel until Close is called or the
// connection drops.
type EventStream struct {
	logger *zap.Logger

	conn      *websocket.Conn
	events    chan StateChangedEvent
	closeOnce sync.Once
	nextId    atomic.Int64
}

// SubscribeStateChanges opens a websocket connection to the application, performs
// the auth handshake, and subscribes to state_changed events.
func (c *Client) SubscribeStateChanges() (*EventStream, error) {
	wsUrl := strings.Replace(c.baseUrl, "http", "ws", 1) + "/api/websocket"

	conn, _, err := websocket.DefaultDialer.Dial(wsUrl, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: could not dial \"%s\": %s", ErrAuthHandshakeFailed, wsUrl, err)
	}

	stream := &EventStream{
		logger: c.logger,
		conn:   conn,
		events: make(chan StateChangedEvent, 64),
	}

	if err = stream.authenticate(c.authManager); err != nil {
		_ = conn.Close()
		return nil, err
	}

	if err = stream.subscribe(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	go stream.pump()

	return stream, nil
}

// Events returns the channel on which state_changed events are delivered.
func (s *EventStream) Events() <-chan StateChangedEvent {
	return s.events
}

// Close tears down the websocket connection. The Events channel is closed once the
// read loop exits.
func (s *EventStream) Close() {
	s.closeOnce.Do(func() {
		_ = s.conn.Close()
	})
}

// authenticate performs the auth_required -> auth -> auth_ok handshake.
func (s *EventStream) authenticate(authManager *AuthManager) error {
	var hello wsMessage
	if err := s.conn.ReadJSON(&hello); err != nil {
		return fmt.Errorf("%w: %s", ErrAuthHandshakeFailed, err)
	}
	if hello.Type != "auth_required" {
		return fmt.Errorf("%w: expected auth_required, received \"%s\"", ErrAuthHandshakeFailed, hello.Type)
	}

	token, err := authManager.GetAccessToken()
	if err != nil {
		return err
	}

	if err = s.conn.WriteJSON(&wsMessage{Type: "auth", AccessToken: token}); err != nil {
		return fmt.Errorf("%w: %s", ErrAuthHandshakeFailed, err)
	}

	var result wsMessage
	if err = s.conn.ReadJSON(&result); err != nil {
		return fmt.Errorf("%w: %s", ErrAuthHandshakeFailed, err)
	}
	if result.Type != "auth_ok" {
		return fmt.Errorf("%w: received \"%s\"", ErrAuthHandshakeFailed, result.Type)
	}

	return nil
}

func (s *EventStream) subscribe() error {
	id := s.nextId.Add(1)
	if err := s.conn.WriteJSON(&wsMessage{Id: id, Type: "subscribe_events", EventType: "state_changed"}); err != nil {
		return fmt.Errorf("%w: %s", ErrSubscriptionFailed, err)
	}

	var result wsMessage
	if err := s.conn.ReadJSON(&result); err != nil {
		return fmt.Errorf("%w: %s", ErrSubscriptionFailed, err)
	}
	if result.Type != "result" || result.Success == nil || !*result.Success {
		return fmt.Errorf("%w: received \"%s\"", ErrSubscriptionFailed, result.Type)
	}

	return nil
}

func (s *EventStream) pump() {
	defer close(s.events)

	for {
		var message wsMessage
		if err := s.conn.ReadJSON(&message); err != nil {
			s.logger.Debug("Event stream read loop exiting.", zap.Error(err))
			return
		}

		if message.Type != "event" || message.Event == nil || message.Event.EventType != "state_changed" {
			continue
		}

		s.events <- StateChangedEvent{
			EntityId: message.Event.Data.EntityId,
			OldState: message.Event.Data.OldState,
			NewState: message.Event.Data.NewState,
		}
	}
}
