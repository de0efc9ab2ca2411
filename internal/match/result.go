// internal/match/result.go
package match

import (
	"github.com/codeduel-dev/codeduel/internal/protocol"
)

// Outcome classifies the terminal payload from the local player's
// perspective.
type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLoss Outcome = "loss"
	OutcomeDraw Outcome = "draw"
)

// ParticipantResult is one player's slice of the summary. Tests and
// ExecutionTimeMs are optional; a partial record still renders.
type ParticipantResult struct {
	ID              string
	Username        string
	Score           int
	Code            string
	Tests           []protocol.TestResult
	ExecutionTimeMs *int64
}

// Summary is the immutable post-match projection handed to the results
// view. Constructed once from the terminal event, never mutated.
type Summary struct {
	Outcome    Outcome
	Winner     string // empty on a draw
	Self       ParticipantResult
	Opponent   ParticipantResult
	Reason     string
	DurationMs int64
}

// Project is a pure transform of the terminal payload. A nil winner is
// a draw; a winner matching localID is a win; anything else is a loss.
// Participant records missing optional fields project as-is.
func Project(ev *protocol.MatchEnded, localID string) Summary {
	outcome := OutcomeDraw
	winner := ""
	if ev.Winner != nil {
		winner = *ev.Winner
		if winner == localID {
			outcome = OutcomeWin
		} else {
			outcome = OutcomeLoss
		}
	}

	self, opponent := ev.Player1, ev.Player2
	if ev.Player2.ID == localID {
		self, opponent = ev.Player2, ev.Player1
	}

	return Summary{
		Outcome:    outcome,
		Winner:     winner,
		Self:       fromPlayer(self),
		Opponent:   fromPlayer(opponent),
		Reason:     ev.Reason,
		DurationMs: ev.MatchDuration,
	}
}

func fromPlayer(p protocol.PlayerResult) ParticipantResult {
	return ParticipantResult{
		ID:              p.ID,
		Username:        p.Username,
		Score:           p.Score,
		Code:            p.Code,
		Tests:           p.TestResults,
		ExecutionTimeMs: p.ExecutionTime,
	}
}
