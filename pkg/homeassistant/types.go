package homeassistant

import "errors"

var (
	ErrTokenExchangeFailed = errors.New("failed to exchange refresh token for an access token")
	ErrRequestFailed       = errors.New("home assistant api request failed")
	ErrEntityNotFound      = errors.New("entity not found")
	ErrSunStateUnavailable = errors.New("could not retrieve sun.sun entity state")

	ErrAuthHandshakeFailed = errors.New("websocket authentication handshake failed")
	ErrSubscriptionFailed  = errors.New("websocket event subscription failed")
)

// EntityState is the state object Home Assistant returns for a single entity.
type EntityState struct {
	EntityID    string                 `json:"entity_id"`
	State       string                 `json:"state"`
	Attributes  map[string]interface{} `json:"attributes"`
	LastChanged string                 `json:"last_changed"`
	LastUpdated string                 `json:"last_updated"`
}

// StringAttribute returns the named attribute as a string, if present.
func (s *EntityState) StringAttribute(name string) (string, bool) {
	if s == nil || s.Attributes == nil {
		return "", false
	}

	value, ok := s.Attributes[name].(string)
	if !ok || value == "" {
		return "", false
	}

	return value, true
}

// StateMatcher reports whether an observed entity state satisfies an expectation.
type StateMatcher func(state string) bool

// StateEquals returns a StateMatcher satisfied by an exact state value.
func StateEquals(expected string) StateMatcher {
	return func(state string) bool {
		return state == expected
	}
}
