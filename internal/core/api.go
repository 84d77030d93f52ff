package core

// Request types

type NewGameRequest struct {
	Level int    `json:"level" validate:"omitempty,min=1,max=10"` // 0 selects the configured default
	Color string `json:"color,omitempty" validate:"omitempty,oneof=w b white black"`
	FEN   string `json:"fen,omitempty" validate:"omitempty,max=100"`
}

type MoveRequest struct {
	Move string `json:"move" validate:"required,min=2,max=8"` // UCI "e2e4", "e7e8q" or SAN "Nf3", "O-O"
}

type UndoRequest struct {
	Count int `json:"count" validate:"omitempty,min=1,max=300"`
}

type PositionRequest struct {
	FEN string `json:"fen" validate:"required,max=100"`
}

// Response types

type SessionResponse struct {
	Identity string    `json:"identity"`
	GameID   string    `json:"gameId"`
	FEN      string    `json:"fen"`
	Turn     string    `json:"turn"` // "w" or "b"
	Human    string    `json:"human"`
	Level    int       `json:"level"`
	Status   string    `json:"status"`
	Phase    string    `json:"phase"`
	Version  int64     `json:"version"`
	Moves    []string  `json:"moves"`
	LastMove *MoveInfo `json:"lastMove,omitempty"`
	Message  string    `json:"message"`
}

type MoveInfo struct {
	Move        string `json:"move"`
	SAN         string `json:"san,omitempty"`
	PlayerColor string `json:"playerColor"` // "w" or "b"
	Score       int    `json:"score,omitempty"`
	Mate        int    `json:"mate,omitempty"`
	Depth       int    `json:"depth,omitempty"`
}

type HintResponse struct {
	Move    string `json:"move"`
	SAN     string `json:"san"`
	Score   int    `json:"score,omitempty"`
	Mate    int    `json:"mate,omitempty"`
	Message string `json:"message"`
}

type EvalResponse struct {
	FEN     string `json:"fen"`
	Score   int    `json:"score"`
	Mate    int    `json:"mate,omitempty"`
	Depth   int    `json:"depth,omitempty"`
	Message string `json:"message"`
}

type BoardResponse struct {
	FEN   string `json:"fen"`
	Board string `json:"board"` // ASCII representation
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}
