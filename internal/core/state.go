package core

// Color is the side a player or the engine controls
type Color byte

const (
	ColorWhite Color = iota + 1
	ColorBlack
)

func (c Color) String() string {
	if c == ColorWhite {
		return "w"
	} else if c == ColorBlack {
		return "b"
	} else {
		return "-"
	}
}

// Name returns the long color name used in status text
func (c Color) Name() string {
	switch c {
	case ColorWhite:
		return "White"
	case ColorBlack:
		return "Black"
	default:
		return "None"
	}
}

func OppositeColor(c Color) Color {
	if c == ColorWhite {
		return ColorBlack
	}
	return ColorWhite
}

// ParseColor accepts "w", "white", "b", "black"; empty defaults to white
func ParseColor(s string) (Color, bool) {
	switch s {
	case "", "w", "white":
		return ColorWhite, true
	case "b", "black":
		return ColorBlack, true
	default:
		return 0, false
	}
}

// Status is the lifecycle status of a game session
type Status int

const (
	StatusInProgress Status = iota
	StatusCheckmate
	StatusStalemate
	StatusDrawByRule
	StatusResigned
	StatusAbandoned
)

func (s Status) String() string {
	switch s {
	case StatusInProgress:
		return "in-progress"
	case StatusCheckmate:
		return "checkmate"
	case StatusStalemate:
		return "stalemate"
	case StatusDrawByRule:
		return "draw-by-rule"
	case StatusResigned:
		return "resigned"
	case StatusAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// ParseStatus is the inverse of Status.String
func ParseStatus(s string) (Status, bool) {
	for st := StatusInProgress; st <= StatusAbandoned; st++ {
		if st.String() == s {
			return st, true
		}
	}
	return 0, false
}

// Over reports whether no further moves are accepted
func (s Status) Over() bool {
	return s != StatusInProgress
}

// Phase is the coordinator state of a session
type Phase int

const (
	PhaseAwaitingHuman Phase = iota
	PhaseAwaitingEngine
	PhaseGameOver
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingHuman:
		return "awaiting-human-move"
	case PhaseAwaitingEngine:
		return "awaiting-engine-move"
	case PhaseGameOver:
		return "game-over"
	default:
		return "unknown"
	}
}
