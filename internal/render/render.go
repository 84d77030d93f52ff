// Package render turns positions into board artifacts for the chat side:
// SVG images through notnil/chess/image and plain text boards.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"strings"

	"github.com/notnil/chess"
	"github.com/notnil/chess/image"

	"chessbot/internal/board"
	"chessbot/internal/core"
)

const (
	FormatSVG   = "svg"
	FormatASCII = "ascii"
)

// Request is a board image request: a position, an optional last-move
// highlight and the caption sent along with it
type Request struct {
	Identity string
	FEN      string
	LastMove *board.Move
	Caption  string
}

// Artifact is a rendered board ready for delivery
type Artifact struct {
	ContentType string
	Data        []byte
	Caption     string
}

// Renderer produces one artifact format
type Renderer interface {
	Render(ctx context.Context, req Request) (Artifact, error)
}

// SVGRenderer draws the board as SVG with the last move's squares marked
type SVGRenderer struct {
	Light     color.Color
	Dark      color.Color
	Highlight color.Color
}

// NewSVGRenderer uses the classic brown board with a yellow highlight
func NewSVGRenderer() *SVGRenderer {
	return &SVGRenderer{
		Light:     color.RGBA{240, 217, 181, 255},
		Dark:      color.RGBA{181, 136, 99, 255},
		Highlight: color.RGBA{205, 210, 106, 170},
	}
}

func (r *SVGRenderer) Render(ctx context.Context, req Request) (Artifact, error) {
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}
	opt, err := chess.FEN(req.FEN)
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: %v", core.ErrInvalidFEN, err)
	}
	b := chess.NewGame(opt).Position().Board()

	var buf bytes.Buffer
	colors := image.SquareColors(r.Light, r.Dark)
	if req.LastMove != nil {
		mark := image.MarkSquares(r.Highlight, chess.Square(req.LastMove.From), chess.Square(req.LastMove.To))
		err = image.SVG(&buf, b, colors, mark)
	} else {
		err = image.SVG(&buf, b, colors)
	}
	if err != nil {
		return Artifact{}, fmt.Errorf("render svg: %w", err)
	}
	return Artifact{ContentType: "image/svg+xml", Data: buf.Bytes(), Caption: req.Caption}, nil
}

// ASCIIRenderer prints the board as text. The square the last move left is
// shown as '*'.
type ASCIIRenderer struct{}

func (ASCIIRenderer) Render(ctx context.Context, req Request) (Artifact, error) {
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}
	p, err := board.ParseFEN(req.FEN)
	if err != nil {
		return Artifact{}, err
	}
	text := p.ToASCII()
	if req.LastMove != nil && p.PieceAt(req.LastMove.From) == 0 {
		text = markSquare(text, req.LastMove.From, '*')
	}
	return Artifact{ContentType: "text/plain; charset=utf-8", Data: []byte(text), Caption: req.Caption}, nil
}

func markSquare(text string, sq board.Square, sym byte) string {
	lines := strings.Split(text, "\n")
	row := 8 - sq.Rank() // header occupies line 0
	if row < 1 || row >= len(lines) {
		return text
	}
	line := []byte(lines[row])
	if col := 2 + sq.File()*2; col < len(line) {
		line[col] = sym
	}
	lines[row] = string(line)
	return strings.Join(lines, "\n")
}

// Gateway picks a renderer by format, SVG being the default
type Gateway struct {
	renderers map[string]Renderer
}

func NewGateway() *Gateway {
	return &Gateway{renderers: map[string]Renderer{
		FormatSVG:   NewSVGRenderer(),
		FormatASCII: ASCIIRenderer{},
	}}
}

// Register adds or replaces the renderer for a format
func (g *Gateway) Register(format string, r Renderer) {
	g.renderers[format] = r
}

// Supports reports whether a renderer is registered for format
func (g *Gateway) Supports(format string) bool {
	_, ok := g.renderers[format]
	return ok
}

func (g *Gateway) Render(ctx context.Context, format string, req Request) (Artifact, error) {
	if format == "" {
		format = FormatSVG
	}
	r, ok := g.renderers[format]
	if !ok {
		return Artifact{}, fmt.Errorf("%w: unknown board format %q", core.ErrInvalidArguments, format)
	}
	return r.Render(ctx, req)
}
