package message

import (
	"time"

	"github.com/goccy/go-json"
)

// Request asks the server to authorize a lock or unlock at a rack.
// It exists only on the wire and as pending in-memory state on both ends;
// there is no request identifier, so at most one request per
// (rack_id, action) pair may be outstanding at a time.
type Request struct {
	Type      string    `json:"type"`
	UserID    string    `json:"user_id"`
	BikeID    string    `json:"bike_id"`
	RackID    string    `json:"rack_id"`
	Action    Action    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

// Reply carries the server's verdict back to the rack. Correlation is by
// rack_id and action only; see Matches.
type Reply struct {
	Type      string    `json:"type"`
	UserID    string    `json:"user_id"`
	BikeID    string    `json:"bike_id,omitempty"`
	RackID    string    `json:"rack_id"`
	Action    Action    `json:"action"`
	Reply     Decision  `json:"reply"`
	Timestamp time.Time `json:"timestamp"`
	StationID string    `json:"station_id,omitempty"`
}

// Matches reports whether this reply answers a pending request for the
// given rack and action. User matching is only enforced when strictUser is
// set: the deployed tag readers report bike tags on the same channel as
// user cards, so the user check stays relaxed until readers are replaced.
func (r Reply) Matches(rackID string, action Action, userID string, strictUser bool) bool {
	if r.RackID != rackID || r.Action != action {
		return false
	}
	if strictUser && r.UserID != userID {
		return false
	}
	return true
}

// Event is published by a rack when a flow completes or aborts: a finished
// lock or unlock, a placement timeout, or a generic error.
type Event struct {
	Type      string    `json:"type"`
	RackID    string    `json:"rack_id"`
	BikeID    string    `json:"bike_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Heartbeat advertises a rack's liveness and availability so the server has
// a fresh fleet view without polling.
type Heartbeat struct {
	Type        string    `json:"type"`
	RackID      string    `json:"rack_id"`
	Status      string    `json:"status"`
	Available   bool      `json:"available"`
	CurrentBike string    `json:"current_bike,omitempty"`
	State       string    `json:"state,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// ParseRequest decodes and validates an authorization request payload.
// Every failure is a reason to deny, never to stay silent, so on a
// validation error the partially decoded request is returned alongside the
// error: the caller still needs its fields to address the deny reply.
func ParseRequest(data []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Request{}, err
	}
	if req.Type != TypeAuthRequest {
		return req, ErrUnknownType
	}
	if req.UserID == "" {
		return req, &FieldError{Field: "user_id"}
	}
	if req.RackID == "" {
		return req, &FieldError{Field: "rack_id"}
	}
	if _, err := ParseAction(string(req.Action)); err != nil {
		return req, &FieldError{Field: "action"}
	}
	// A lock request may omit bike_id: the rack cannot know which bike a
	// rider walks up with, so the server resolves it from the rider's
	// current bike. Unlock always names the docked bike.
	if req.BikeID == "" && req.Action != ActionLock {
		return req, &FieldError{Field: "bike_id"}
	}
	if req.Timestamp.IsZero() {
		return req, &FieldError{Field: "timestamp"}
	}
	return req, nil
}

// ParseReply decodes and validates an authorization reply payload.
func ParseReply(data []byte) (Reply, error) {
	var rep Reply
	if err := json.Unmarshal(data, &rep); err != nil {
		return Reply{}, err
	}
	if rep.Type != TypeAuthReply {
		return Reply{}, ErrUnknownType
	}
	if rep.RackID == "" {
		return Reply{}, &FieldError{Field: "rack_id"}
	}
	if _, err := ParseAction(string(rep.Action)); err != nil {
		return Reply{}, &FieldError{Field: "action"}
	}
	if rep.Reply != Accepted && rep.Reply != Denied {
		return Reply{}, &FieldError{Field: "reply"}
	}
	return rep, nil
}

// ParseEvent decodes a completion or error event published by a rack.
func ParseEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, err
	}
	switch ev.Type {
	case TypeLock, TypeUnlock, TypeLockTimeout, TypeError:
	default:
		return Event{}, ErrUnknownType
	}
	if ev.RackID == "" {
		return Event{}, &FieldError{Field: "rack_id"}
	}
	return ev, nil
}

// ParseHeartbeat decodes a rack heartbeat.
func ParseHeartbeat(data []byte) (Heartbeat, error) {
	var hb Heartbeat
	if err := json.Unmarshal(data, &hb); err != nil {
		return Heartbeat{}, err
	}
	if hb.Type != TypeHeartbeat {
		return Heartbeat{}, ErrUnknownType
	}
	if hb.RackID == "" {
		return Heartbeat{}, &FieldError{Field: "rack_id"}
	}
	return hb, nil
}

// Encode marshals any contract payload for publishing.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}
