package core

import (
	"errors"
	"fmt"
)

// Error codes
const (
	ErrCodeSessionNotFound = "SESSION_NOT_FOUND"
	ErrCodeIllegalMove     = "ILLEGAL_MOVE"
	ErrCodeInvalidMove     = "INVALID_MOVE"
	ErrCodeGameOver        = "GAME_OVER"
	ErrCodeEngineThinking  = "ENGINE_THINKING"
	ErrCodeEngineTimeout   = "ENGINE_TIMEOUT"
	ErrCodeEngineProtocol  = "ENGINE_PROTOCOL"
	ErrCodeEngineBusy      = "ENGINE_BUSY"
	ErrCodeRateLimit       = "RATE_LIMIT_EXCEEDED"
	ErrCodeInvalidContent  = "INVALID_CONTENT_TYPE"
	ErrCodeInvalidRequest  = "INVALID_REQUEST"
	ErrCodeInvalidFEN      = "INVALID_FEN"
	ErrCodeInternal        = "INTERNAL_ERROR"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeSuperseded      = "REQUEST_SUPERSEDED"
	ErrCodeEngineRetry     = "ENGINE_RETRY"
)

// Sentinel errors, match with errors.Is
var (
	ErrIllegalMove      = errors.New("illegal move")
	ErrInvalidFEN       = errors.New("invalid FEN")
	ErrSessionNotFound  = errors.New("session not found")
	ErrGameOver         = errors.New("game is over")
	ErrEngineThinking   = errors.New("engine move in progress")
	ErrNotEngineTurn    = errors.New("not the engine's turn")
	ErrNothingToUndo    = errors.New("no moves to undo")
	ErrNoHint           = errors.New("no suggestion for the current position")
	ErrEngineTimeout    = errors.New("engine timeout")
	ErrEngineProtocol   = errors.New("engine protocol error")
	ErrPoolExhausted    = errors.New("engine pool exhausted")
	ErrPoolClosed       = errors.New("engine pool closed")
	ErrNoLegalMove      = errors.New("no legal move")
	ErrInvalidArguments = errors.New("invalid arguments")
	ErrSuperseded       = errors.New("game changed while the engine was thinking")
	ErrEngineOwesMove   = errors.New("engine move outstanding, retry to ask again")
)

// IllegalMoveError is a user-caused rejection of a move, the session is untouched
type IllegalMoveError struct {
	Move   string
	Reason string
}

func (e *IllegalMoveError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("illegal move %q", e.Move)
	}
	return fmt.Sprintf("illegal move %q: %s", e.Move, e.Reason)
}

func (e *IllegalMoveError) Unwrap() error { return ErrIllegalMove }

// EngineError is an infrastructure failure of one engine round-trip.
// Err is ErrEngineTimeout or ErrEngineProtocol.
type EngineError struct {
	Err           error
	AdapterID     int
	CorrelationID string
	Detail        string
}

func (e *EngineError) Error() string {
	msg := fmt.Sprintf("engine %d: %v", e.AdapterID, e.Err)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.CorrelationID != "" {
		msg += " (request " + e.CorrelationID + ")"
	}
	return msg
}

func (e *EngineError) Unwrap() error { return e.Err }

// CodeFor maps an error to its stable error code
func CodeFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSessionNotFound):
		return ErrCodeSessionNotFound
	case errors.Is(err, ErrIllegalMove):
		return ErrCodeIllegalMove
	case errors.Is(err, ErrInvalidFEN):
		return ErrCodeInvalidFEN
	case errors.Is(err, ErrGameOver):
		return ErrCodeGameOver
	case errors.Is(err, ErrEngineThinking), errors.Is(err, ErrNotEngineTurn):
		return ErrCodeEngineThinking
	case errors.Is(err, ErrEngineTimeout):
		return ErrCodeEngineTimeout
	case errors.Is(err, ErrEngineProtocol):
		return ErrCodeEngineProtocol
	case errors.Is(err, ErrPoolExhausted), errors.Is(err, ErrPoolClosed):
		return ErrCodeEngineBusy
	case errors.Is(err, ErrSuperseded):
		return ErrCodeSuperseded
	case errors.Is(err, ErrEngineOwesMove):
		return ErrCodeEngineRetry
	case errors.Is(err, ErrNothingToUndo), errors.Is(err, ErrNoHint), errors.Is(err, ErrInvalidArguments):
		return ErrCodeInvalidRequest
	default:
		return ErrCodeInternal
	}
}

// UserMessage maps an error to the text shown in the chat
func UserMessage(err error) string {
	switch CodeFor(err) {
	case "":
		return ""
	case ErrCodeSessionNotFound:
		return "No game in progress. Start a new game first."
	case ErrCodeIllegalMove:
		var ime *IllegalMoveError
		if errors.As(err, &ime) {
			return fmt.Sprintf("Illegal move: %s. Ask for a hint to see a valid move.", ime.Move)
		}
		return "Illegal move. Ask for a hint to see a valid move."
	case ErrCodeInvalidFEN:
		return "That position is not valid."
	case ErrCodeGameOver:
		return "The game is over. Start a new game to play again."
	case ErrCodeEngineThinking:
		return "The engine is still thinking, please wait."
	case ErrCodeEngineTimeout, ErrCodeEngineProtocol:
		return "Engine unavailable, try again."
	case ErrCodeEngineBusy:
		return "The engine is busy right now, try again in a moment."
	case ErrCodeSuperseded:
		return "The game changed while the engine was thinking."
	case ErrCodeEngineRetry:
		return "The engine has not moved yet. Send retry to ask it again."
	case ErrCodeInvalidRequest:
		return err.Error()
	default:
		return "Something went wrong."
	}
}
