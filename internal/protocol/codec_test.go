// internal/protocol/codec_test.go
package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeQueueJoined(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"queue_joined","payload":{"message":"in queue","queueSize":3}}`))
	require.NoError(t, err)

	joined, ok := ev.(*QueueJoined)
	require.True(t, ok, "expected *QueueJoined, got %T", ev)
	assert.Equal(t, 3, joined.QueueSize)
	assert.Equal(t, "in queue", joined.Message)
}

func TestDecodeMatchFound(t *testing.T) {
	raw := `{"type":"match_found","payload":{
		"matchId":"m-42",
		"opponent":"rival",
		"problem":{"id":"two-sum","title":"Two Sum","difficulty":"Easy","examples":[{"input":"[2,7]","output":"[0,1]"}]},
		"timeLimit":300000}}`

	ev, err := Decode([]byte(raw))
	require.NoError(t, err)

	found, ok := ev.(*MatchFound)
	require.True(t, ok, "expected *MatchFound, got %T", ev)
	assert.Equal(t, "m-42", found.MatchID)
	assert.Equal(t, "rival", found.Opponent)
	assert.Equal(t, "two-sum", found.Problem.ID)
	assert.Equal(t, int64(300000), found.TimeLimit)
	require.Len(t, found.Problem.Examples, 1)
}

func TestDecodeMatchEndedDraw(t *testing.T) {
	raw := `{"type":"match_ended","payload":{
		"winner":null,
		"player1":{"id":"u1","username":"a","score":50,"code":"x"},
		"player2":{"id":"u2","username":"b","score":50,"code":"y"},
		"reason":"completed",
		"matchDuration":180000}}`

	ev, err := Decode([]byte(raw))
	require.NoError(t, err)

	ended, ok := ev.(*MatchEnded)
	require.True(t, ok)
	assert.Nil(t, ended.Winner)
	assert.Equal(t, 50, ended.Player1.Score)
	assert.Equal(t, int64(180000), ended.MatchDuration)
}

func TestDecodeOpponentDisconnectedNoPayload(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"opponent_disconnected"}`))
	require.NoError(t, err)
	_, ok := ev.(*OpponentDisconnected)
	assert.True(t, ok)
}

func TestDecodeOnlineUsersCountBareNumber(t *testing.T) {
	// Presence pushes carry a bare number, not an object.
	ev, err := Decode([]byte(`{"type":"online_users_count","payload":17}`))
	require.NoError(t, err)

	count, ok := ev.(*OnlineUsersCount)
	require.True(t, ok)
	assert.Equal(t, 17, count.Count)
}

func TestDecodeUnknownEvent(t *testing.T) {
	_, err := Decode([]byte(`{"type":"server_maintenance","payload":{}}`))
	require.Error(t, err)

	var unknown *UnknownEventError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "server_maintenance", unknown.Type)
}

func TestDecodeMalformedEnvelope(t *testing.T) {
	_, err := Decode([]byte(`{"type":`))
	assert.Error(t, err)
}

func TestEncodeSubmitCode(t *testing.T) {
	data, err := Encode(&SubmitCode{
		Code:      "function twoSum() {}",
		ProblemID: "two-sum",
		Language:  "javascript",
		Timestamp: 1720000000000,
	})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "submit_code", env.Type)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, "two-sum", payload["problemId"])
	assert.Equal(t, "javascript", payload["language"])
}

func TestEncodeEmptyEventOmitsPayload(t *testing.T) {
	data, err := Encode(&JoinQueue{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"join_queue"}`, string(data))
}

func TestOutboundWireNames(t *testing.T) {
	cases := map[string]Outbound{
		"join_queue":        &JoinQueue{},
		"leave_queue":       &LeaveQueue{},
		"player_ready":      &PlayerReady{},
		"submit_code":       &SubmitCode{},
		"code_update":       &CodeUpdate{},
		"room_code_update":  &RoomCodeUpdate{},
		"create_room":       &CreateRoom{},
		"join_room":         &JoinRoomRequest{},
		"leave_room":        &LeaveRoom{},
		"get_room_info":     &GetRoomInfo{},
		"change_problem":    &ChangeProblem{},
		"start_room_match":  &StartRoomMatch{},
		"join_match":        &JoinMatch{},
		"leave_match":       &LeaveMatch{},
		"match_message":     &SendMatchMessage{},
		"get_all_rooms":     &GetAllRooms{},
		"get_system_status": &GetSystemStatus{},
	}
	for want, msg := range cases {
		assert.Equal(t, want, msg.Event())
	}
}
