// Package client talks to a running chessbot server over its HTTP API and
// returns replies in the coordinator's shape, so front ends can drive a
// remote server the same way they drive an in-process coordinator.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"chessbot/internal/board"
	"chessbot/internal/coordinator"
	"chessbot/internal/core"
	"chessbot/internal/render"
)

type Client struct {
	BaseURL    string
	AuthToken  string
	HTTPClient *http.Client
	log        zerolog.Logger
}

func New(baseURL, token string, log zerolog.Logger) *Client {
	return &Client{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		AuthToken: token,
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		log: log.With().Str("component", "api-client").Logger(),
	}
}

// reply mirrors the server's command reply; Data is decoded per command
type reply struct {
	Success bool                `json:"success"`
	Text    string              `json:"text"`
	Data    json.RawMessage     `json:"data"`
	Error   *core.ErrorResponse `json:"error"`
}

// route returns the HTTP method, path suffix and body for a command
func route(cmd coordinator.Command) (method, path string, body any, err error) {
	switch cmd.Type {
	case coordinator.CmdNewGame:
		return http.MethodPost, "/new", cmd.Args, nil
	case coordinator.CmdMove:
		return http.MethodPost, "/move", cmd.Args, nil
	case coordinator.CmdSetPosition:
		return http.MethodPost, "/position", cmd.Args, nil
	case coordinator.CmdUndo:
		return http.MethodPost, "/undo", cmd.Args, nil
	case coordinator.CmdHint:
		return http.MethodPost, "/hint", nil, nil
	case coordinator.CmdEval:
		return http.MethodPost, "/eval", nil, nil
	case coordinator.CmdApplyHint:
		return http.MethodPost, "/apply-hint", nil, nil
	case coordinator.CmdResign:
		return http.MethodPost, "/resign", nil, nil
	case coordinator.CmdRetry:
		return http.MethodPost, "/retry", nil, nil
	case coordinator.CmdBoard, coordinator.CmdFEN:
		return http.MethodGet, "/fen", nil, nil
	case coordinator.CmdReset:
		return http.MethodDelete, "", nil, nil
	default:
		return "", "", nil, fmt.Errorf("%w: command %s has no route", core.ErrInvalidArguments, cmd.Type)
	}
}

// Execute sends cmd to the server. Transport failures come back as an
// unsuccessful Response with an internal error code.
func (c *Client) Execute(ctx context.Context, cmd coordinator.Command) coordinator.Response {
	method, suffix, body, err := route(cmd)
	if err != nil {
		return failure(err)
	}

	base := "/api/v1/sessions/" + url.PathEscape(cmd.Identity)
	var r reply
	status, err := c.do(ctx, method, base+suffix+"?board=none", body, &r)
	if err != nil {
		return failure(err)
	}

	if cmd.Type == coordinator.CmdBoard && r.Success {
		// the fen call created the session if needed; the snapshot adds the last move
		var snap reply
		status, err := c.do(ctx, http.MethodGet, base, nil, &snap)
		if err != nil {
			return failure(err)
		}
		return c.boardFromSnapshot(status, snap)
	}

	resp := coordinator.Response{Success: r.Success, Text: r.Text, Error: r.Error}
	if r.Error == nil && !r.Success {
		resp.Error = &core.ErrorResponse{Error: r.Text, Code: core.ErrCodeInternal, Details: fmt.Sprintf("status %d", status)}
	}
	resp.Data, resp.Board = decodeData(cmd.Type, r.Data)
	return resp
}

// boardFromSnapshot turns a GET session body into a board reply
func (c *Client) boardFromSnapshot(status int, r reply) coordinator.Response {
	if status != http.StatusOK {
		e := r.Error
		if e == nil {
			e = &core.ErrorResponse{Error: "unexpected reply", Code: core.ErrCodeInternal, Details: fmt.Sprintf("status %d", status)}
		}
		return coordinator.Response{Success: false, Text: e.Error, Error: e}
	}
	var snap core.SessionResponse
	if err := json.Unmarshal(r.Data, &snap); err != nil {
		return failure(fmt.Errorf("decode session: %w", err))
	}
	return coordinator.Response{
		Success: true,
		Data:    snap,
		Text:    snap.Message,
		Board:   boardRequest(snap.Identity, snap.FEN, snap.LastMove, snap.Message),
	}
}

// decodeData types the reply payload by command. A board request is built
// when the payload names a position and is not an advisory answer.
func decodeData(t coordinator.CommandType, raw json.RawMessage) (any, *render.Request) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	switch t {
	case coordinator.CmdHint:
		var h core.HintResponse
		if json.Unmarshal(raw, &h) == nil {
			return h, nil
		}
	case coordinator.CmdEval:
		var e core.EvalResponse
		if json.Unmarshal(raw, &e) == nil {
			return e, nil
		}
	case coordinator.CmdFEN:
		var b core.BoardResponse
		if json.Unmarshal(raw, &b) == nil {
			return b, nil
		}
	default:
		var snap core.SessionResponse
		if json.Unmarshal(raw, &snap) == nil && snap.FEN != "" {
			return snap, boardRequest(snap.Identity, snap.FEN, snap.LastMove, snap.Message)
		}
	}
	return raw, nil
}

func boardRequest(identity, fen string, last *core.MoveInfo, caption string) *render.Request {
	req := &render.Request{Identity: identity, FEN: fen, Caption: caption}
	if last != nil {
		if m, err := board.ParseUCI(last.Move); err == nil {
			req.LastMove = &m
		}
	}
	return req
}

func failure(err error) coordinator.Response {
	return coordinator.Response{
		Success: false,
		Text:    "Server unavailable, try again.",
		Error: &core.ErrorResponse{
			Error:   "request failed",
			Code:    core.ErrCodeInternal,
			Details: err.Error(),
		},
	}
}

// do performs one request and decodes the JSON body into out. The returned
// status is valid whenever err is nil; error statuses are not errors here.
func (c *Client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.AuthToken)
	}

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("api call")

	if out != nil && len(data) > 0 {
		if raw, ok := out.(*reply); ok && data[0] == '{' && !bytes.Contains(data, []byte(`"success"`)) {
			// plain bodies: session snapshots and errors from middleware
			var e core.ErrorResponse
			if json.Unmarshal(data, &e) == nil && e.Code != "" {
				raw.Error = &e
				raw.Text = e.Error
			} else {
				raw.Data = data
			}
			return resp.StatusCode, nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s %s (status %d): %w", method, path, resp.StatusCode, err)
		}
	}
	return resp.StatusCode, nil
}
