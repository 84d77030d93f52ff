package engine

import (
	"fmt"
	"time"
)

const (
	MinLevel = 1
	MaxLevel = 10
)

// StrengthTable maps difficulty levels 1..10 to search budgets. Index 0 is level 1.
type StrengthTable []Budget

// DefaultStrength grows skill, depth and movetime together so higher levels
// never search less than lower ones.
var DefaultStrength = StrengthTable{
	{Skill: 0, Depth: 1, MoveTime: 50 * time.Millisecond},
	{Skill: 2, Depth: 2, MoveTime: 100 * time.Millisecond},
	{Skill: 4, Depth: 4, MoveTime: 150 * time.Millisecond},
	{Skill: 6, Depth: 6, MoveTime: 200 * time.Millisecond},
	{Skill: 8, Depth: 8, MoveTime: 300 * time.Millisecond},
	{Skill: 10, Depth: 10, MoveTime: 400 * time.Millisecond},
	{Skill: 13, Depth: 12, MoveTime: 600 * time.Millisecond},
	{Skill: 16, Depth: 14, MoveTime: 800 * time.Millisecond},
	{Skill: 18, Depth: 18, MoveTime: 1000 * time.Millisecond},
	{Skill: 20, Depth: 22, MoveTime: 1500 * time.Millisecond},
}

// AdvisoryBudget is used for hints and evaluations, full strength on a short clock
var AdvisoryBudget = Budget{Skill: 20, MoveTime: 500 * time.Millisecond}

// Budget returns the budget for a level
func (t StrengthTable) Budget(level int) (Budget, error) {
	if level < MinLevel || level > len(t) {
		return Budget{}, fmt.Errorf("level %d out of range %d-%d", level, MinLevel, len(t))
	}
	return t[level-1], nil
}

// Validate checks the table covers every level and is monotonically non-decreasing
func (t StrengthTable) Validate() error {
	if len(t) != MaxLevel {
		return fmt.Errorf("strength table has %d levels, want %d", len(t), MaxLevel)
	}
	for i := 1; i < len(t); i++ {
		prev, cur := t[i-1], t[i]
		if cur.Skill < prev.Skill || cur.Depth < prev.Depth || cur.MoveTime < prev.MoveTime {
			return fmt.Errorf("strength table decreases at level %d", i+1)
		}
	}
	return nil
}
