package coordinator

import (
	"chessbot/internal/core"
	"chessbot/internal/render"
)

// CommandType defines the type of command being executed
type CommandType int

const (
	CmdNewGame CommandType = iota
	CmdMove
	CmdHint
	CmdEval
	CmdApplyHint
	CmdResign
	CmdBoard
	CmdFEN
	CmdSetPosition
	CmdUndo
	CmdRetry
	CmdReset
)

var commandNames = map[CommandType]string{
	CmdNewGame:     "new_game",
	CmdMove:        "move",
	CmdHint:        "hint",
	CmdEval:        "eval",
	CmdApplyHint:   "apply_hint",
	CmdResign:      "resign",
	CmdBoard:       "board",
	CmdFEN:         "fen",
	CmdSetPosition: "set_position",
	CmdUndo:        "undo",
	CmdRetry:       "retry",
	CmdReset:       "reset",
}

func (t CommandType) String() string {
	if s, ok := commandNames[t]; ok {
		return s
	}
	return "unknown"
}

// Command is one already-parsed chat command from an identity
type Command struct {
	Type     CommandType
	Identity string
	Args     any // Command-specific arguments
}

// Response is the outcome of a command. Text is the chat message; Board,
// when set, asks the transport to render and deliver a board image.
type Response struct {
	Success bool                `json:"success"`
	Data    any                 `json:"data,omitempty"`
	Text    string              `json:"text,omitempty"`
	Board   *render.Request     `json:"-"`
	Error   *core.ErrorResponse `json:"error,omitempty"`
}

func NewNewGameCommand(identity string, req core.NewGameRequest) Command {
	return Command{Type: CmdNewGame, Identity: identity, Args: req}
}

func NewMoveCommand(identity string, req core.MoveRequest) Command {
	return Command{Type: CmdMove, Identity: identity, Args: req}
}

func NewHintCommand(identity string) Command {
	return Command{Type: CmdHint, Identity: identity}
}

func NewEvalCommand(identity string) Command {
	return Command{Type: CmdEval, Identity: identity}
}

func NewApplyHintCommand(identity string) Command {
	return Command{Type: CmdApplyHint, Identity: identity}
}

func NewResignCommand(identity string) Command {
	return Command{Type: CmdResign, Identity: identity}
}

func NewBoardCommand(identity string) Command {
	return Command{Type: CmdBoard, Identity: identity}
}

func NewFENCommand(identity string) Command {
	return Command{Type: CmdFEN, Identity: identity}
}

func NewSetPositionCommand(identity string, req core.PositionRequest) Command {
	return Command{Type: CmdSetPosition, Identity: identity, Args: req}
}

func NewUndoCommand(identity string, req core.UndoRequest) Command {
	return Command{Type: CmdUndo, Identity: identity, Args: req}
}

func NewRetryCommand(identity string) Command {
	return Command{Type: CmdRetry, Identity: identity}
}

func NewResetCommand(identity string) Command {
	return Command{Type: CmdReset, Identity: identity}
}
