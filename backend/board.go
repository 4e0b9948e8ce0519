package main

type Cell int

const (
	CellEmpty Cell = iota
	CellOne
	CellTwo
)

const (
	BoardRows = 6
	BoardCols = 7
	winLength = 4
)

var winDirections = [4][2]int{
	{0, 1},  // horizontal
	{1, 0},  // vertical
	{1, 1},  // diagonal down-right
	{1, -1}, // diagonal down-left
}

type Board struct {
	cells [BoardRows * BoardCols]Cell
}

func NewBoard() Board {
	return Board{}
}

func (b Board) At(row, col int) Cell {
	return b.cells[b.index(row, col)]
}

func (b *Board) Set(row, col int, value Cell) {
	b.cells[b.index(row, col)] = value
}

func (b Board) InBounds(col int) bool {
	return col >= 0 && col < BoardCols
}

// Drop places the mark in the lowest empty row of col. Returns the row
// it landed in, or false when the column is full. Callers validate the
// column range first.
func (b *Board) Drop(col int, value Cell) (int, bool) {
	for row := BoardRows - 1; row >= 0; row-- {
		if b.At(row, col) == CellEmpty {
			b.Set(row, col, value)
			return row, true
		}
	}
	return -1, false
}

// IsWin reports whether value holds four consecutive cells in any row,
// column, or diagonal.
func (b Board) IsWin(value Cell) bool {
	for row := 0; row < BoardRows; row++ {
		for col := 0; col < BoardCols; col++ {
			if b.At(row, col) != value {
				continue
			}
			for _, dir := range winDirections {
				count := 0
				for k := 0; k < winLength; k++ {
					r := row + dir[0]*k
					c := col + dir[1]*k
					if r < 0 || r >= BoardRows || c < 0 || c >= BoardCols || b.At(r, c) != value {
						break
					}
					count++
				}
				if count == winLength {
					return true
				}
			}
		}
	}
	return false
}

func (b Board) IsDraw() bool {
	return b.IsFull() && !b.IsWin(CellOne) && !b.IsWin(CellTwo)
}

func (b Board) IsFull() bool {
	return b.CountEmpty() == 0
}

func (b Board) CountEmpty() int {
	count := 0
	for _, cell := range b.cells {
		if cell == CellEmpty {
			count++
		}
	}
	return count
}

func (b Board) LegalColumns() []int {
	cols := make([]int, 0, BoardCols)
	for col := 0; col < BoardCols; col++ {
		if b.At(0, col) == CellEmpty {
			cols = append(cols, col)
		}
	}
	return cols
}

// Grid flattens the board into row-major int rows for protocol payloads.
func (b Board) Grid() [][]int {
	rows := make([][]int, BoardRows)
	for row := 0; row < BoardRows; row++ {
		rows[row] = make([]int, BoardCols)
		for col := 0; col < BoardCols; col++ {
			rows[row][col] = int(b.At(row, col))
		}
	}
	return rows
}

func (b Board) index(row, col int) int {
	return row*BoardCols + col
}

func (c Cell) String() string {
	switch c {
	case CellOne:
		return "Mark1"
	case CellTwo:
		return "Mark2"
	default:
		return "Empty"
	}
}

func CellForOrdinal(ordinal int) Cell {
	if ordinal == 0 {
		return CellOne
	}
	return CellTwo
}

func otherCell(value Cell) Cell {
	if value == CellOne {
		return CellTwo
	}
	return CellOne
}
