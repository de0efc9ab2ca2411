// internal/protocol/codec.go
package protocol

import (
	"encoding/json"
	"fmt"
)

// Envelope is the outer frame for every message in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// UnknownEventError is returned by Decode for an event type the client
// does not speak. Callers log it; it is never fatal to the connection.
type UnknownEventError struct {
	Type string
}

func (e *UnknownEventError) Error() string {
	return fmt.Sprintf("protocol: unknown event type %q", e.Type)
}

// Encode frames an outbound event into its wire form.
func Encode(msg Outbound) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msg.Event(), err)
	}
	// Empty-struct events collapse to "{}"; omit the payload field then.
	env := Envelope{Type: msg.Event()}
	if string(payload) != "{}" {
		env.Payload = payload
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msg.Event(), err)
	}
	return data, nil
}

// Decode parses a raw inbound frame into its typed event. The switch is
// the exhaustive dispatch boundary: every inbound event named by the
// backend contract has a case here.
func Decode(data []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return decodePayload(env.Type, env.Payload)
}

func decodePayload(eventType string, payload json.RawMessage) (Inbound, error) {
	unmarshal := func(v Inbound) (Inbound, error) {
		if len(payload) == 0 {
			return v, nil
		}
		if err := json.Unmarshal(payload, v); err != nil {
			return nil, fmt.Errorf("unmarshal %s payload: %w", eventType, err)
		}
		return v, nil
	}

	switch eventType {
	case "queue_joined":
		return unmarshal(&QueueJoined{})
	case "queue_left":
		return unmarshal(&QueueLeft{})
	case "match_found":
		return unmarshal(&MatchFound{})
	case "match_started":
		return unmarshal(&MatchStarted{})
	case "player_ready_status":
		return unmarshal(&PlayerReadyStatus{})
	case "match_error":
		return unmarshal(&MatchError{})
	case "opponent_submitted":
		return unmarshal(&OpponentSubmitted{})
	case "match_ended":
		return unmarshal(&MatchEnded{})
	case "opponent_disconnected":
		return &OpponentDisconnected{}, nil
	case "opponent_code_update":
		return unmarshal(&OpponentCodeUpdate{})
	case "match_message":
		return unmarshal(&MatchMessage{})
	case "room_created":
		return unmarshal(&RoomCreated{})
	case "room_joined":
		return unmarshal(&RoomJoined{})
	case "room_updated":
		return unmarshal(&RoomUpdated{})
	case "room_error":
		return unmarshal(&RoomError{})
	case "room_info":
		return unmarshal(&RoomInfo{})
	case "room_message":
		return unmarshal(&RoomMessage{})
	case "problem_changed":
		return unmarshal(&ProblemChanged{})
	case "room_reset":
		return unmarshal(&RoomReset{})
	case "room_list":
		return unmarshal(&RoomList{})
	case "system_status":
		return unmarshal(&SystemStatus{})
	case "online_users_count":
		// Sent as a bare number, not an object.
		var n int
		if err := json.Unmarshal(payload, &n); err != nil {
			return nil, fmt.Errorf("unmarshal online_users_count payload: %w", err)
		}
		return &OnlineUsersCount{Count: n}, nil
	default:
		return nil, &UnknownEventError{Type: eventType}
	}
}
