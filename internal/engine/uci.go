package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"chessbot/internal/board"
)

// Budget bounds one search. Zero fields are omitted from the go command.
type Budget struct {
	Skill    int // Stockfish "Skill Level" 0-20, negative leaves the option untouched
	Depth    int
	MoveTime time.Duration
}

// depthOnlyDeadline bounds searches that carry no movetime
const depthOnlyDeadline = 10 * time.Second

// Deadline is the longest a reply may take before the adapter is declared hung
func (b Budget) Deadline(grace time.Duration) time.Duration {
	if b.MoveTime > 0 {
		return b.MoveTime + grace
	}
	return depthOnlyDeadline + grace
}

// Request asks for the best move in a position. Replies are matched to
// sessions by CorrelationID, never by adapter.
type Request struct {
	CorrelationID string
	FEN           string
	Budget        Budget
	Advisory      bool
}

// Reply is the engine's answer. Score is in centipawns from the side to move;
// Mate is the signed distance to mate in moves, 0 when no mate was reported.
type Reply struct {
	CorrelationID string
	BestMove      string
	NoMove        bool
	Score         int
	Mate          int
	Depth         int
	AdapterID     int
}

func formatSkill(skill int) string {
	if skill > 20 {
		skill = 20
	}
	return fmt.Sprintf("setoption name Skill Level value %d", skill)
}

func formatOption(name, value string) string {
	return fmt.Sprintf("setoption name %s value %s", name, value)
}

func formatPosition(fen string) string {
	return "position fen " + fen
}

func formatGo(b Budget) string {
	cmd := "go"
	if b.Depth > 0 {
		cmd += " depth " + strconv.Itoa(b.Depth)
	}
	if b.MoveTime > 0 {
		cmd += " movetime " + strconv.FormatInt(b.MoveTime.Milliseconds(), 10)
	}
	if cmd == "go" {
		cmd += " depth 1"
	}
	return cmd
}

// parseInfo folds depth and score fields of an "info" line into r
func parseInfo(line string, r *Reply) {
	fields := strings.Fields(line)
	for i := 1; i < len(fields)-1; i++ {
		switch fields[i] {
		case "depth":
			if d, err := strconv.Atoi(fields[i+1]); err == nil {
				r.Depth = d
			}
		case "score":
			if i+2 >= len(fields) {
				return
			}
			v, err := strconv.Atoi(fields[i+2])
			if err != nil {
				continue
			}
			switch fields[i+1] {
			case "cp":
				r.Score, r.Mate = v, 0
			case "mate":
				r.Mate = v
				if v > 0 {
					r.Score = 100000 - v
				} else {
					r.Score = -100000 - v
				}
			}
			i += 2
		case "pv", "string":
			return
		}
	}
}

// parseBestMove validates a "bestmove" line. "(none)" and "0000" report that
// the side to move has no legal move.
func parseBestMove(line string) (move string, none bool, err error) {
	fields := strings.Fields(line)
	if len(fields) < 2 || fields[0] != "bestmove" {
		return "", false, fmt.Errorf("malformed bestmove line %q", line)
	}
	switch fields[1] {
	case "(none)", "0000":
		return "", true, nil
	}
	m, err := board.ParseUCI(fields[1])
	if err != nil {
		return "", false, fmt.Errorf("malformed bestmove %q: %w", fields[1], err)
	}
	return m.String(), false, nil
}
