// Package progression derives user levels from cumulative experience points
// and keeps the per-user XP ledger.
package progression

import "fmt"

// DefaultWidths is the built-in per-level XP table.
var DefaultWidths = []int64{50, 75, 100, 125, 150, 200, 250, 300, 400, 500}

// Table is an ordered list of per-level XP widths, level 1 first.
type Table struct {
	widths []int64
}

// NewTable validates widths. Every width must be strictly positive.
func NewTable(widths []int64) (Table, error) {
	if len(widths) == 0 {
		return Table{}, fmt.Errorf("level table is empty")
	}
	w := make([]int64, len(widths))
	for i, v := range widths {
		if v <= 0 {
			return Table{}, fmt.Errorf("level %d width must be positive, got %d", i+1, v)
		}
		w[i] = v
	}
	return Table{widths: w}, nil
}

// DefaultTable returns the table built from DefaultWidths.
func DefaultTable() Table {
	t, _ := NewTable(DefaultWidths)
	return t
}

// Levels returns the number of levels in the table.
func (t Table) Levels() int { return len(t.widths) }

// Widths returns a copy of the widths.
func (t Table) Widths() []int64 {
	out := make([]int64, len(t.widths))
	copy(out, t.widths)
	return out
}

// Ceiling is the total XP at which the table is exhausted.
func (t Table) Ceiling() int64 {
	var sum int64
	for _, w := range t.widths {
		sum += w
	}
	return sum
}

// Floor returns the cumulative XP at which level starts. Level is 1-based.
func (t Table) Floor(level int) int64 {
	var c int64
	for i := 0; i < level-1 && i < len(t.widths); i++ {
		c += t.widths[i]
	}
	return c
}

// Level is the derived position of a total inside the table.
type Level struct {
	Level     int   `json:"level"`
	XPInLevel int64 `json:"xp_in_level"`
	Width     int64 `json:"level_width"`
	Maxed     bool  `json:"maxed"`
}

// Progress is XPInLevel/Width clamped to [0,1].
func (l Level) Progress() float64 {
	if l.Width <= 0 {
		return 0
	}
	p := float64(l.XPInLevel) / float64(l.Width)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// Derive walks the table from level 1 with a running floor C. A total in
// [C, C+W[i]) lands in level i. A total at or past the ceiling clamps to the
// last level with XPInLevel == Width. Negative totals are treated as zero.
func (t Table) Derive(total int64) Level {
	if len(t.widths) == 0 {
		return Level{Level: 1}
	}
	if total < 0 {
		total = 0
	}
	var c int64
	for i, w := range t.widths {
		if total < c+w {
			return Level{Level: i + 1, XPInLevel: total - c, Width: w}
		}
		c += w
	}
	last := t.widths[len(t.widths)-1]
	return Level{Level: len(t.widths), XPInLevel: last, Width: last, Maxed: true}
}

// Change is a before/after pair of derived levels for one award.
type Change struct {
	TotalBefore int64 `json:"total_before"`
	TotalAfter  int64 `json:"total_after"`
	Before      Level `json:"before"`
	After       Level `json:"after"`
	LeveledUp   bool  `json:"leveled_up"`
}

// Change derives both totals independently.
func (t Table) Change(before, after int64) Change {
	b, a := t.Derive(before), t.Derive(after)
	return Change{
		TotalBefore: before,
		TotalAfter:  after,
		Before:      b,
		After:       a,
		LeveledUp:   a.Level > b.Level,
	}
}
