// internal/protocol/messages.go
package protocol

// The wire protocol is a JSON envelope {"type": ..., "payload": ...}
// with one struct per named event. Inbound and Outbound are closed
// unions: adding a new event without teaching Decode about it is a
// compile-time gap in the dispatch switch, not a silent drop.

// Inbound is a server -> client event.
type Inbound interface{ isInbound() }

// Outbound is a client -> server event. Event returns the wire name.
type Outbound interface{ Event() string }

// --- Inbound events ---

// QueueJoined acknowledges a join_queue request.
type QueueJoined struct {
	Message   string `json:"message"`
	QueueSize int    `json:"queueSize"`
}

// QueueLeft acknowledges a leave_queue request.
type QueueLeft struct {
	Message string `json:"message"`
}

// MatchFound pairs the queued player with an opponent.
type MatchFound struct {
	MatchID   string  `json:"matchId"`
	Opponent  string  `json:"opponent"`
	Problem   Problem `json:"problem"`
	TimeLimit int64   `json:"timeLimit"`
}

// MatchStarted begins the active phase of a quick match.
type MatchStarted struct {
	MatchID   string  `json:"matchId,omitempty"`
	Problem   Problem `json:"problem"`
	TimeLimit int64   `json:"timeLimit"`
	StartTime int64   `json:"startTime"`
}

// PlayerReadyStatus reports both players' ready flags while matched.
type PlayerReadyStatus struct {
	Player1Ready bool `json:"player1Ready"`
	Player2Ready bool `json:"player2Ready"`
}

// MatchError aborts the current match flow.
type MatchError struct {
	Message string `json:"message"`
}

// OpponentSubmitted reports submission flags for both players.
type OpponentSubmitted struct {
	Player1Submitted bool `json:"player1Submitted"`
	Player2Submitted bool `json:"player2Submitted"`
}

// MatchEnded is the single terminal event for a match. Winner is nil on
// a draw.
type MatchEnded struct {
	Winner        *string      `json:"winner"`
	Player1       PlayerResult `json:"player1"`
	Player2       PlayerResult `json:"player2"`
	Reason        string       `json:"reason"`
	MatchDuration int64        `json:"matchDuration"`
}

// OpponentDisconnected declares a forfeit win for the local player.
type OpponentDisconnected struct{}

// OpponentCodeUpdate carries the opponent's live editor buffer.
type OpponentCodeUpdate struct {
	Code   string `json:"code"`
	UserID string `json:"userId"`
}

// MatchMessage is in-match chat.
type MatchMessage struct {
	Message   string `json:"message"`
	Username  string `json:"username"`
	UserID    string `json:"userId"`
	Timestamp int64  `json:"timestamp"`
}

// RoomCreated acknowledges create_room.
type RoomCreated struct {
	RoomCode string `json:"roomCode"`
	Room     Room   `json:"room"`
}

// RoomJoined acknowledges join_room.
type RoomJoined struct {
	RoomCode string `json:"roomCode"`
	Room     Room   `json:"room"`
}

// RoomUpdated replaces the local view of the room wholesale.
type RoomUpdated struct {
	Room Room `json:"room"`
}

// RoomError reports a failed room operation.
type RoomError struct {
	Message string `json:"message"`
}

// RoomInfo answers get_room_info.
type RoomInfo struct {
	Room Room `json:"room"`
}

// RoomMessage is a free-form notice scoped to the room.
type RoomMessage struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// ProblemChanged announces a host-requested problem swap before start.
type ProblemChanged struct {
	Problem    Problem `json:"problem"`
	HostReady  bool    `json:"hostReady"`
	GuestReady bool    `json:"guestReady"`
}

// RoomReset returns a completed room to its waiting state.
type RoomReset struct {
	Room Room `json:"room"`
}

// RoomList answers get_all_rooms.
type RoomList struct {
	Rooms []RoomListing `json:"rooms"`
}

// SystemStatus answers get_system_status.
type SystemStatus struct {
	QueueSize   int `json:"queueSize"`
	ActiveRooms int `json:"activeRooms"`
	OnlineUsers int `json:"onlineUsers"`
}

// OnlineUsersCount is pushed whenever presence changes.
type OnlineUsersCount struct {
	Count int `json:"count"`
}

func (QueueJoined) isInbound()          {}
func (QueueLeft) isInbound()            {}
func (MatchFound) isInbound()           {}
func (MatchStarted) isInbound()         {}
func (PlayerReadyStatus) isInbound()    {}
func (MatchError) isInbound()           {}
func (OpponentSubmitted) isInbound()    {}
func (MatchEnded) isInbound()           {}
func (OpponentDisconnected) isInbound() {}
func (OpponentCodeUpdate) isInbound()   {}
func (MatchMessage) isInbound()         {}
func (RoomCreated) isInbound()          {}
func (RoomJoined) isInbound()           {}
func (RoomUpdated) isInbound()          {}
func (RoomError) isInbound()            {}
func (RoomInfo) isInbound()             {}
func (RoomMessage) isInbound()          {}
func (ProblemChanged) isInbound()       {}
func (RoomReset) isInbound()            {}
func (RoomList) isInbound()             {}
func (SystemStatus) isInbound()         {}
func (OnlineUsersCount) isInbound()     {}

// --- Outbound events ---

// JoinQueue enters the matchmaking queue.
type JoinQueue struct{}

// LeaveQueue exits the matchmaking queue.
type LeaveQueue struct{}

// PlayerReady signals readiness after a match is found.
type PlayerReady struct{}

// SubmitCode is the one-shot solution submission.
type SubmitCode struct {
	Code      string `json:"code"`
	ProblemID string `json:"problemId"`
	Language  string `json:"language"`
	Timestamp int64  `json:"timestamp"`
}

// CodeUpdate broadcasts the local buffer during a quick match.
type CodeUpdate struct {
	Code      string `json:"code"`
	MatchID   string `json:"matchId,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// RoomCodeUpdate broadcasts the local buffer during a room match.
type RoomCodeUpdate struct {
	Code      string `json:"code"`
	Timestamp int64  `json:"timestamp"`
}

// SendMatchMessage sends in-match chat.
type SendMatchMessage struct {
	Message string `json:"message"`
}

// CreateRoom asks the backend to open a private room.
type CreateRoom struct {
	Settings RoomSettings `json:"settings"`
}

// JoinRoomRequest joins an existing room by code.
type JoinRoomRequest struct {
	RoomCode string `json:"roomCode"`
}

// LeaveRoom exits the current room.
type LeaveRoom struct{}

// GetRoomInfo requests the authoritative room state.
type GetRoomInfo struct {
	RoomCode string `json:"roomCode"`
}

// ChangeProblem asks for a problem swap (host only). Empty ProblemID
// requests a random problem.
type ChangeProblem struct {
	ProblemID string `json:"problemId,omitempty"`
}

// StartRoomMatch starts the room's match (host only).
type StartRoomMatch struct{}

// JoinMatch attaches to an already-running quick match by id.
type JoinMatch struct {
	MatchID string `json:"matchId"`
}

// LeaveMatch abandons a quick match.
type LeaveMatch struct {
	MatchID string `json:"matchId"`
}

// GetAllRooms requests the public room list.
type GetAllRooms struct{}

// GetSystemStatus requests queue/room/presence counters.
type GetSystemStatus struct{}

func (JoinQueue) Event() string        { return "join_queue" }
func (LeaveQueue) Event() string       { return "leave_queue" }
func (PlayerReady) Event() string      { return "player_ready" }
func (SubmitCode) Event() string       { return "submit_code" }
func (CodeUpdate) Event() string       { return "code_update" }
func (RoomCodeUpdate) Event() string   { return "room_code_update" }
func (SendMatchMessage) Event() string { return "match_message" }
func (CreateRoom) Event() string       { return "create_room" }
func (JoinRoomRequest) Event() string  { return "join_room" }
func (LeaveRoom) Event() string        { return "leave_room" }
func (GetRoomInfo) Event() string      { return "get_room_info" }
func (ChangeProblem) Event() string    { return "change_problem" }
func (StartRoomMatch) Event() string   { return "start_room_match" }
func (JoinMatch) Event() string        { return "join_match" }
func (LeaveMatch) Event() string       { return "leave_match" }
func (GetAllRooms) Event() string      { return "get_all_rooms" }
func (GetSystemStatus) Event() string  { return "get_system_status" }
