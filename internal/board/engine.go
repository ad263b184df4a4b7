package board

// Position addresses a single cell.
type Position struct {
	Row    int `json:"row"`
	Column int `json:"column"`
}

// Status is the result of evaluating a board.
type Status int

const (
	Ongoing Status = iota
	Win
	Draw
)

func (s Status) String() string {
	switch s {
	case Win:
		return "win"
	case Draw:
		return "draw"
	default:
		return "ongoing"
	}
}

// Result carries the evaluation status and, for Win, the winning slot.
type Result struct {
	Status Status
	Slot   int
}

// ApplyDrop places slot's token in the lowest empty cell of column and returns
// the new board together with the row it landed in. b is left untouched.
func ApplyDrop(b Board, column, slot int) (Board, Position, error) {
	if column < 0 || column >= b.width || b.ColumnFull(column) {
		return b, Position{}, ErrInvalidMove
	}
	next := Board{width: b.width, height: b.height, cells: make([]Cell, len(b.cells))}
	copy(next.cells, b.cells)
	for r := 0; r < b.height; r++ {
		if next.At(r, column) == Empty {
			next.cells[r*b.width+column] = Token(slot)
			return next, Position{Row: r, Column: column}, nil
		}
	}
	return b, Position{}, ErrInvalidMove
}

var directions = [4][2]int{{0, 1}, {1, 0}, {1, 1}, {1, -1}}

// Evaluate inspects only the lines through last. A win takes priority over a
// draw even when the winning drop also fills the board.
func Evaluate(b Board, last Position) Result {
	mark := b.At(last.Row, last.Column)
	if mark != Empty {
		for _, d := range directions {
			count := 1 + b.run(last, d[0], d[1], mark) + b.run(last, -d[0], -d[1], mark)
			if count >= WinLength {
				return Result{Status: Win, Slot: int(mark)}
			}
		}
	}
	if b.Full() {
		return Result{Status: Draw}
	}
	return Result{Status: Ongoing}
}

// run counts consecutive mark cells from p (exclusive) stepping by (dr, dc).
func (b Board) run(p Position, dr, dc int, mark Cell) int {
	n := 0
	r, c := p.Row+dr, p.Column+dc
	for b.inside(r, c) && b.At(r, c) == mark {
		n++
		r += dr
		c += dc
	}
	return n
}
