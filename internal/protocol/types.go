// internal/protocol/types.go
package protocol

// Shared wire shapes referenced by several events. Field names mirror the
// JSON the backend sends; the backend is authoritative for all of them.

// Example is a worked input/output pair shown with a problem statement.
type Example struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// Problem is the coding problem assigned to a match.
type Problem struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Difficulty  string    `json:"difficulty"`
	Examples    []Example `json:"examples"`
	StarterCode string    `json:"starterCode,omitempty"`
	Keywords    []string  `json:"keywords,omitempty"`
	Category    string    `json:"category,omitempty"`
}

// RoomSettings is the host-chosen configuration for a private room.
type RoomSettings struct {
	TimeLimit  int64  `json:"timeLimit"`
	Difficulty string `json:"difficulty,omitempty"`
	ProblemID  string `json:"problemId,omitempty"`
	IsPrivate  bool   `json:"isPrivate"`
	MaxPlayers int    `json:"maxPlayers"`
}

// RoomStatus values the backend reports for a room.
const (
	RoomWaiting   = "waiting"
	RoomReady     = "ready"
	RoomActive    = "active"
	RoomCompleted = "completed"
)

// Room is the backend's view of a private room. Guest is empty until a
// second player joins. Problem may be nil before the host picks one.
type Room struct {
	Code     string       `json:"code"`
	Host     string       `json:"host"`
	Guest    string       `json:"guest,omitempty"`
	Problem  *Problem     `json:"problem,omitempty"`
	Settings RoomSettings `json:"settings"`
	Status   string       `json:"status"`
}

// RoomListing is the compact shape returned by the public room list.
type RoomListing struct {
	Code      string `json:"code"`
	Host      string `json:"host"`
	Guest     string `json:"guest,omitempty"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"createdAt"`
}

// TestResult is a single test-case outcome inside a match result.
type TestResult struct {
	Passed   bool    `json:"passed"`
	Output   string  `json:"output"`
	Expected string  `json:"expected"`
	Error    *string `json:"error,omitempty"`
}

// PlayerResult is one participant's slice of the match_ended payload.
// TestResults and ExecutionTime are optional; older backend versions omit
// them entirely.
type PlayerResult struct {
	ID            string       `json:"id"`
	Username      string       `json:"username"`
	Score         int          `json:"score"`
	Code          string       `json:"code"`
	TestResults   []TestResult `json:"testResults,omitempty"`
	ExecutionTime *int64       `json:"executionTime,omitempty"`
}
