package engine

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestParseInfo(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		line string
		want Reply
	}{
		{"centipawns", "info depth 18 seldepth 24 multipv 1 score cp -42 nodes 1 pv e7e5", Reply{Depth: 18, Score: -42}},
		{"mate for side to move", "info depth 9 score mate 3 pv d8h4", Reply{Depth: 9, Score: 99997, Mate: 3}},
		{"mated", "info depth 9 score mate -2", Reply{Depth: 9, Score: -99998, Mate: -2}},
		{"bound", "info depth 7 score cp 15 lowerbound nodes 20", Reply{Depth: 7, Score: 15}},
		{"string ignored", "info string NNUE evaluation using nn.nnue depth 99", Reply{}},
		{"pv tokens ignored", "info depth 3 pv e2e4 depth", Reply{Depth: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var got Reply
			parseInfo(tt.line, &got)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("parseInfo() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseBestMove(t *testing.T) {
	t.Parallel()
	tests := []struct {
		line     string
		wantMove string
		wantNone bool
		wantErr  bool
	}{
		{"bestmove e2e4 ponder e7e5", "e2e4", false, false},
		{"bestmove e7e8q", "e7e8q", false, false},
		{"bestmove (none)", "", true, false},
		{"bestmove 0000", "", true, false},
		{"bestmove", "", false, true},
		{"bestmove zz99", "", false, true},
		{"readyok", "", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			t.Parallel()
			move, none, err := parseBestMove(tt.line)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseBestMove(%q) error = %v, wantErr %v", tt.line, err, tt.wantErr)
			}
			if move != tt.wantMove || none != tt.wantNone {
				t.Errorf("parseBestMove(%q) = %q, %v, want %q, %v", tt.line, move, none, tt.wantMove, tt.wantNone)
			}
		})
	}
}

func TestFormatGo(t *testing.T) {
	t.Parallel()
	tests := []struct {
		b    Budget
		want string
	}{
		{Budget{Depth: 8, MoveTime: 300 * time.Millisecond}, "go depth 8 movetime 300"},
		{Budget{MoveTime: time.Second}, "go movetime 1000"},
		{Budget{Depth: 5}, "go depth 5"},
		{Budget{}, "go depth 1"},
	}
	for _, tt := range tests {
		if got := formatGo(tt.b); got != tt.want {
			t.Errorf("formatGo(%+v) = %q, want %q", tt.b, got, tt.want)
		}
	}
}

func TestBudgetDeadline(t *testing.T) {
	t.Parallel()
	grace := 2 * time.Second
	if got := (Budget{MoveTime: 500 * time.Millisecond}).Deadline(grace); got != 2500*time.Millisecond {
		t.Errorf("Deadline() = %v, want 2.5s", got)
	}
	if got := (Budget{Depth: 10}).Deadline(grace); got != depthOnlyDeadline+grace {
		t.Errorf("Deadline() = %v, want %v", got, depthOnlyDeadline+grace)
	}
}

func TestStrengthTable(t *testing.T) {
	t.Parallel()
	if err := DefaultStrength.Validate(); err != nil {
		t.Fatalf("DefaultStrength.Validate() error = %v", err)
	}
	for level := MinLevel; level <= MaxLevel; level++ {
		if _, err := DefaultStrength.Budget(level); err != nil {
			t.Errorf("Budget(%d) error = %v", level, err)
		}
	}
	for _, level := range []int{0, MaxLevel + 1} {
		if _, err := DefaultStrength.Budget(level); err == nil {
			t.Errorf("Budget(%d) error = nil, want out of range", level)
		}
	}

	decreasing := append(StrengthTable(nil), DefaultStrength...)
	decreasing[5].Depth = 1
	if err := decreasing.Validate(); err == nil {
		t.Error("Validate() accepted a decreasing table")
	}
	if err := DefaultStrength[:3].Validate(); err == nil {
		t.Error("Validate() accepted a short table")
	}
}
