package http

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"chessbot/internal/coordinator"
	"chessbot/internal/core"
	"chessbot/internal/render"
)

// boardNone in the board query suppresses the board artifact
const boardNone = "none"

// CommandReply is what the chat front end receives for every command:
// the text to post, the session view and the board to attach
type CommandReply struct {
	Success bool                `json:"success"`
	Text    string              `json:"text"`
	Data    any                 `json:"data,omitempty"`
	Board   *BoardArtifact      `json:"board,omitempty"`
	Error   *core.ErrorResponse `json:"error,omitempty"`
}

// BoardArtifact is a rendered board, Data is base64 in JSON
type BoardArtifact struct {
	Format      string `json:"format"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"`
	Caption     string `json:"caption,omitempty"`
}

// Health reports engine pool load and storage status
func (h *HTTPHandler) Health(c *fiber.Ctx) error {
	status := "healthy"
	resp := fiber.Map{"time": h.now().Unix()}

	if h.engine != nil {
		stats := h.engine.Stats()
		if stats.Live == 0 {
			status = "degraded"
		}
		resp["engine"] = stats
	}

	storage := "disabled"
	if h.storage != nil {
		storage = "ok"
		if !h.storage.IsHealthy() {
			storage = "degraded"
			status = "degraded"
		}
	}
	resp["storage"] = storage

	if h.sessions != nil {
		resp["sessions"] = h.sessions()
	}
	resp["status"] = status
	return c.JSON(resp)
}

// NewGame starts a game, replacing any current one
func (h *HTTPHandler) NewGame(c *fiber.Ctx) error {
	req, err := validatedBody[core.NewGameRequest](c)
	if err != nil {
		return h.bypass(c, err)
	}
	return h.run(c, coordinator.NewNewGameCommand(c.Params("identity"), req), fiber.StatusCreated)
}

// Move submits a human move in UCI or SAN
func (h *HTTPHandler) Move(c *fiber.Ctx) error {
	req, err := validatedBody[core.MoveRequest](c)
	if err != nil {
		return h.bypass(c, err)
	}
	return h.run(c, coordinator.NewMoveCommand(c.Params("identity"), req), fiber.StatusOK)
}

// SetPosition restarts the game from a FEN
func (h *HTTPHandler) SetPosition(c *fiber.Ctx) error {
	req, err := validatedBody[core.PositionRequest](c)
	if err != nil {
		return h.bypass(c, err)
	}
	return h.run(c, coordinator.NewSetPositionCommand(c.Params("identity"), req), fiber.StatusCreated)
}

// Undo takes back moves
func (h *HTTPHandler) Undo(c *fiber.Ctx) error {
	req, err := validatedBody[core.UndoRequest](c)
	if err != nil {
		return h.bypass(c, err)
	}
	return h.run(c, coordinator.NewUndoCommand(c.Params("identity"), req), fiber.StatusOK)
}

func (h *HTTPHandler) Hint(c *fiber.Ctx) error {
	return h.run(c, coordinator.NewHintCommand(c.Params("identity")), fiber.StatusOK)
}

func (h *HTTPHandler) Eval(c *fiber.Ctx) error {
	return h.run(c, coordinator.NewEvalCommand(c.Params("identity")), fiber.StatusOK)
}

func (h *HTTPHandler) ApplyHint(c *fiber.Ctx) error {
	return h.run(c, coordinator.NewApplyHintCommand(c.Params("identity")), fiber.StatusOK)
}

func (h *HTTPHandler) Resign(c *fiber.Ctx) error {
	return h.run(c, coordinator.NewResignCommand(c.Params("identity")), fiber.StatusOK)
}

func (h *HTTPHandler) Retry(c *fiber.Ctx) error {
	return h.run(c, coordinator.NewRetryCommand(c.Params("identity")), fiber.StatusOK)
}

func (h *HTTPHandler) GetFEN(c *fiber.Ctx) error {
	return h.run(c, coordinator.NewFENCommand(c.Params("identity")), fiber.StatusOK)
}

// Reset removes the session and its game
func (h *HTTPHandler) Reset(c *fiber.Ctx) error {
	return h.run(c, coordinator.NewResetCommand(c.Params("identity")), fiber.StatusOK)
}

// GetBoard returns the rendered board itself, SVG unless format=ascii
func (h *HTTPHandler) GetBoard(c *fiber.Ctx) error {
	format := c.Query("format", render.FormatSVG)
	if !h.renderer.Supports(format) {
		return c.Status(fiber.StatusBadRequest).JSON(core.ErrorResponse{
			Error:   "unknown board format",
			Code:    core.ErrCodeInvalidRequest,
			Details: "format must be svg or ascii",
		})
	}

	resp := h.coord.Execute(c.UserContext(), coordinator.NewBoardCommand(c.Params("identity")))
	if !resp.Success {
		return c.Status(statusFor(resp.Error.Code)).JSON(resp.Error)
	}

	art, err := h.renderer.Render(c.UserContext(), format, *resp.Board)
	if err != nil {
		h.log.Error().Err(err).Str("identity", c.Params("identity")).Msg("board render failed")
		return c.Status(fiber.StatusInternalServerError).JSON(core.ErrorResponse{
			Error: "board render failed",
			Code:  core.ErrCodeInternal,
		})
	}
	c.Set(fiber.HeaderContentType, art.ContentType)
	return c.Send(art.Data)
}

// GetSession returns the session view. With wait=true it long-polls until
// the session version differs from the version query parameter.
func (h *HTTPHandler) GetSession(c *fiber.Ctx) error {
	identity := c.Params("identity")

	if c.Query("wait", "false") != "true" {
		snap, err := h.coord.Snapshot(c.UserContext(), identity)
		if err != nil {
			return h.fail(c, err)
		}
		return c.JSON(snap)
	}

	version, err := strconv.ParseInt(c.Query("version", "-1"), 10, 64)
	if err != nil {
		version = -1
	}

	// fasthttp's request context ends on server shutdown
	ctx := c.Context()
	snap, err := h.coord.Wait(ctx, identity, version)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return h.fail(c, err)
	}
	return c.JSON(snap)
}

// run executes one command and renders its board unless board=none
func (h *HTTPHandler) run(c *fiber.Ctx, cmd coordinator.Command, okStatus int) error {
	format := c.Query("board", render.FormatSVG)
	if format != boardNone && !h.renderer.Supports(format) {
		return c.Status(fiber.StatusBadRequest).JSON(core.ErrorResponse{
			Error:   "unknown board format",
			Code:    core.ErrCodeInvalidRequest,
			Details: "board must be svg, ascii or none",
		})
	}

	resp := h.coord.Execute(c.UserContext(), cmd)
	reply := CommandReply{
		Success: resp.Success,
		Text:    resp.Text,
		Data:    resp.Data,
		Error:   resp.Error,
	}

	if resp.Board != nil && format != boardNone {
		art, err := h.renderer.Render(c.UserContext(), format, *resp.Board)
		if err != nil {
			// the command already took effect, deliver it without the picture
			h.log.Warn().Err(err).Str("identity", cmd.Identity).Str("command", cmd.Type.String()).Msg("board render failed")
		} else {
			reply.Board = &BoardArtifact{
				Format:      format,
				ContentType: art.ContentType,
				Data:        art.Data,
				Caption:     art.Caption,
			}
		}
	}

	status := okStatus
	if !resp.Success {
		status = statusFor(resp.Error.Code)
	}
	return c.Status(status).JSON(reply)
}

func (h *HTTPHandler) fail(c *fiber.Ctx, err error) error {
	code := core.CodeFor(err)
	return c.Status(statusFor(code)).JSON(core.ErrorResponse{
		Error:   core.UserMessage(err),
		Code:    code,
		Details: err.Error(),
	})
}

func (h *HTTPHandler) bypass(c *fiber.Ctx, err error) error {
	h.log.Error().Err(err).Msg("request reached handler unvalidated")
	return c.Status(fiber.StatusInternalServerError).JSON(core.ErrorResponse{
		Error: "validation data missing",
		Code:  core.ErrCodeInternal,
	})
}
