// Package message defines the wire contract spoken between rack agents and
// the authorization service. All payloads are JSON objects carrying a "type"
// tag; the tag sets are closed and unknown tags are rejected at parse time.
package message

import (
	"errors"
	"fmt"
)

// Topic names. These are part of the deployed contract and must not change
// without coordinating a firmware rollout.
const (
	TopicAuthRequest = "station/auth"
	TopicAuthReply   = "station/auth_reply"
	TopicEvents      = "station/events"
	TopicHeartbeat   = "station/heartbeat"
	TopicLocation    = "station/location"
)

// QoS tiers per topic. Authorization traffic uses the channel's highest
// reliability tier; replies are never retained because a reply is useless to
// a rack that has already timed out back to idle.
const (
	QoSAuth      byte = 2
	QoSEvents    byte = 1
	QoSTelemetry byte = 0
)

// Message type tags.
const (
	TypeAuthRequest = "user_auth"
	TypeAuthReply   = "auth_response"
	TypeLock        = "lock"
	TypeUnlock      = "unlock"
	TypeLockTimeout = "lock_timeout"
	TypeError       = "error"
	TypeHeartbeat   = "heartbeat"
)

var ErrUnknownType = errors.New("unknown message type")

// Action is what the rack is asking permission for.
type Action string

const (
	ActionLock   Action = "lock"
	ActionUnlock Action = "unlock"
)

// ParseAction maps a wire string onto the closed action set.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionLock:
		return ActionLock, nil
	case ActionUnlock:
		return ActionUnlock, nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// Decision is the server's verdict on an authorization request.
type Decision string

const (
	Accepted Decision = "accept"
	Denied   Decision = "deny"
)

// FieldError reports a missing or malformed payload field.
type FieldError struct {
	Field string
}

func (e *FieldError) Error() string {
	return "missing or invalid field: " + e.Field
}
