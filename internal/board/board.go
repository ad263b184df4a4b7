package board

import (
	"errors"
	"fmt"
	"strings"
)

const (
	DefaultWidth  = 7
	DefaultHeight = 6
	WinLength     = 4
)

// ErrInvalidMove is returned for out-of-range or full columns.
var ErrInvalidMove = errors.New("invalid move")

// Cell holds either Empty or a slot token.
type Cell int8

const (
	Empty Cell = -1
	Slot0 Cell = 0
	Slot1 Cell = 1
)

// Token returns the cell value for a player slot.
func Token(slot int) Cell {
	if slot == 1 {
		return Slot1
	}
	return Slot0
}

// Board is a row-major grid; row 0 is the bottom row.
// Values are treated as immutable: ApplyDrop returns a new Board.
type Board struct {
	width  int
	height int
	cells  []Cell
}

// New returns an empty board of the given dimensions.
func New(width, height int) Board {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	cells := make([]Cell, width*height)
	for i := range cells {
		cells[i] = Empty
	}
	return Board{width: width, height: height, cells: cells}
}

// NewDefault returns an empty 7x6 board.
func NewDefault() Board { return New(DefaultWidth, DefaultHeight) }

func (b Board) Width() int  { return b.width }
func (b Board) Height() int { return b.height }

// At returns the cell at (row, col). Out-of-range coordinates read as Empty.
func (b Board) At(row, col int) Cell {
	if !b.inside(row, col) {
		return Empty
	}
	return b.cells[row*b.width+col]
}

func (b Board) inside(row, col int) bool {
	return row >= 0 && row < b.height && col >= 0 && col < b.width
}

// ColumnFull reports whether the top cell of col is occupied.
func (b Board) ColumnFull(col int) bool {
	return b.At(b.height-1, col) != Empty
}

// Full reports whether every column is full.
func (b Board) Full() bool {
	for c := 0; c < b.width; c++ {
		if !b.ColumnFull(c) {
			return false
		}
	}
	return true
}

// Filled counts occupied cells.
func (b Board) Filled() int {
	n := 0
	for _, c := range b.cells {
		if c != Empty {
			n++
		}
	}
	return n
}

// Rows returns a copy of the grid, top row first, for presentation.
func (b Board) Rows() [][]int {
	out := make([][]int, 0, b.height)
	for r := b.height - 1; r >= 0; r-- {
		row := make([]int, b.width)
		for c := 0; c < b.width; c++ {
			row[c] = int(b.At(r, c))
		}
		out = append(out, row)
	}
	return out
}

// String encodes the board as rows separated by '/', bottom row first.
// '.' is empty, '0' and '1' are slot tokens.
func (b Board) String() string {
	var sb strings.Builder
	sb.Grow(len(b.cells) + b.height)
	for r := 0; r < b.height; r++ {
		if r > 0 {
			sb.WriteByte('/')
		}
		for c := 0; c < b.width; c++ {
			switch b.At(r, c) {
			case Slot0:
				sb.WriteByte('0')
			case Slot1:
				sb.WriteByte('1')
			default:
				sb.WriteByte('.')
			}
		}
	}
	return sb.String()
}

// Parse decodes the String form. It rejects layouts that violate gravity.
func Parse(s string) (Board, error) {
	rows := strings.Split(strings.TrimSpace(s), "/")
	if len(rows) == 0 || rows[0] == "" {
		return Board{}, fmt.Errorf("parse board: empty")
	}
	width := len(rows[0])
	b := New(width, len(rows))
	for r, line := range rows {
		if len(line) != width {
			return Board{}, fmt.Errorf("parse board: row %d has width %d, want %d", r, len(line), width)
		}
		for c := 0; c < width; c++ {
			var v Cell
			switch line[c] {
			case '.':
				v = Empty
			case '0':
				v = Slot0
			case '1':
				v = Slot1
			default:
				return Board{}, fmt.Errorf("parse board: bad cell %q", line[c])
			}
			if v != Empty && r > 0 && b.At(r-1, c) == Empty {
				return Board{}, fmt.Errorf("parse board: floating token at row %d col %d", r, c)
			}
			b.cells[r*width+c] = v
		}
	}
	return b, nil
}
