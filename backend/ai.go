package main

import "math"

const winScore = 1_000_000.0

// BestColumn runs a fixed-depth alpha-beta search and returns the column
// with the best backed-up score for aiMark. Ties break toward the lowest
// column index so repeated searches over the same position are
// reproducible. The caller guarantees at least one legal column.
func BestColumn(board Board, aiMark Cell, depth int, weights HeuristicWeights) int {
	bestCol := -1
	bestScore := math.Inf(-1)
	alpha := math.Inf(-1)
	beta := math.Inf(1)
	for col := 0; col < BoardCols; col++ {
		child := board
		if _, ok := child.Drop(col, aiMark); !ok {
			continue
		}
		var score float64
		if child.IsWin(aiMark) {
			score = winScore + float64(depth)
		} else {
			score = searchValue(child, depth-1, alpha, beta, false, aiMark, weights)
		}
		if bestCol == -1 || score > bestScore {
			bestCol = col
			bestScore = score
		}
		if score > alpha {
			alpha = score
		}
	}
	return bestCol
}

func searchValue(board Board, depth int, alpha, beta float64, maximizing bool, aiMark Cell, weights HeuristicWeights) float64 {
	legal := board.LegalColumns()
	if depth <= 0 || len(legal) == 0 {
		return evaluateBoard(board, aiMark, weights)
	}
	mover := aiMark
	if !maximizing {
		mover = otherCell(aiMark)
	}
	if maximizing {
		value := math.Inf(-1)
		for _, col := range legal {
			child := board
			child.Drop(col, mover)
			var score float64
			if child.IsWin(mover) {
				// Immediate win for the mover; no deeper search needed.
				score = winScore + float64(depth)
			} else {
				score = searchValue(child, depth-1, alpha, beta, false, aiMark, weights)
			}
			if score > value {
				value = score
			}
			if value > alpha {
				alpha = value
			}
			if alpha >= beta {
				break
			}
		}
		return value
	}
	value := math.Inf(1)
	for _, col := range legal {
		child := board
		child.Drop(col, mover)
		var score float64
		if child.IsWin(mover) {
			score = -winScore - float64(depth)
		} else {
			score = searchValue(child, depth-1, alpha, beta, true, aiMark, weights)
		}
		if score < value {
			value = score
		}
		if value < beta {
			beta = value
		}
		if alpha >= beta {
			break
		}
	}
	return value
}

// evaluateBoard scores a leaf for aiMark: a center-column occupancy
// bonus plus a window score for every contiguous 4-cell line.
func evaluateBoard(board Board, aiMark Cell, weights HeuristicWeights) float64 {
	score := 0.0

	centerCol := BoardCols / 2
	for row := 0; row < BoardRows; row++ {
		if board.At(row, centerCol) == aiMark {
			score += weights.Center
		}
	}

	var window [winLength]Cell
	for row := 0; row < BoardRows; row++ {
		for col := 0; col+winLength <= BoardCols; col++ {
			for k := 0; k < winLength; k++ {
				window[k] = board.At(row, col+k)
			}
			score += windowScore(window, aiMark, weights)
		}
	}
	for col := 0; col < BoardCols; col++ {
		for row := 0; row+winLength <= BoardRows; row++ {
			for k := 0; k < winLength; k++ {
				window[k] = board.At(row+k, col)
			}
			score += windowScore(window, aiMark, weights)
		}
	}
	for row := 0; row+winLength <= BoardRows; row++ {
		for col := 0; col+winLength <= BoardCols; col++ {
			for k := 0; k < winLength; k++ {
				window[k] = board.At(row+k, col+k)
			}
			score += windowScore(window, aiMark, weights)
		}
		for col := winLength - 1; col < BoardCols; col++ {
			for k := 0; k < winLength; k++ {
				window[k] = board.At(row+k, col-k)
			}
			score += windowScore(window, aiMark, weights)
		}
	}
	return score
}

func windowScore(window [winLength]Cell, aiMark Cell, weights HeuristicWeights) float64 {
	oppMark := otherCell(aiMark)
	mine, theirs, empty := 0, 0, 0
	for _, cell := range window {
		switch cell {
		case aiMark:
			mine++
		case oppMark:
			theirs++
		default:
			empty++
		}
	}
	switch {
	case mine == 4:
		return weights.WindowFour
	case mine == 3 && empty == 1:
		return weights.WindowThree
	case mine == 2 && empty == 2:
		return weights.WindowTwo
	case theirs == 3 && empty == 1:
		return -weights.OpponentThree
	}
	return 0
}
