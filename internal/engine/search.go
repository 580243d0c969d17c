// Package engine implements the chess search: principal variation search
// with quiescence, null-move and reverse-futility pruning, a shared
// lock-free transposition table, and lazy-SMP parallel deepening. Board
// representation and move generation come from dragontoothmg; the engine
// treats boards as an opaque oracle.
package engine

import (
	dragon "github.com/Bubblyworld/dragontoothmg"
)

// Score is a centipawn evaluation. int16 leaves headroom above any
// achievable material total (~8000 with promotions).
type Score = int16

// Search constants
const (
	posInf Score = 32767
	negInf Score = -posInf // MinInt16+1, so -negInf is representable

	// matedScore is returned by the evaluator when the side to move is
	// checkmated. One above negInf so it stays negatable at any depth.
	matedScore Score = negInf + 1

	// mateBound separates ordinary evaluations from mate scores. Pruning
	// that fabricates bounds (null move, RFP) is disabled past it.
	mateBound Score = posInf - 100
)

const (
	// MaxPly bounds the distance from root (killer table size).
	MaxPly = 128

	// maxMoves is the practical upper bound on legal moves in a chess
	// position; quiescence buffers are sized to it.
	maxMoves = 256

	// stopCheckMask: the stop flag is sampled every 4096 nodes.
	stopCheckMask = 4095
)

// NoMove is the absent-move sentinel.
const NoMove dragon.Move = 0

// Pruning constants
const (
	nullMoveReduction      = 2   // extra +1 when depth > 6
	rfpMaxDepth            = 3   // reverse futility only below this depth
	rfpMargin        Score = 120 // per remaining depth
)
