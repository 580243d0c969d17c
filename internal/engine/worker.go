package engine

import (
	"sync/atomic"

	dragon "github.com/Bubblyworld/dragontoothmg"
)

// Worker runs searches over its private board copy. Killer moves and the
// node counter are worker-local; only the transposition table is shared.
type Worker struct {
	id      int
	board   dragon.Board
	tt      *Table
	orderer MoveOrderer
	nodes   uint64
	stop    *atomic.Bool
}

// NewWorker creates a search worker around its own copy of the board.
func NewWorker(id int, board dragon.Board, tt *Table, stop *atomic.Bool) *Worker {
	return &Worker{
		id:    id,
		board: board,
		tt:    tt,
		stop:  stop,
	}
}

// Nodes returns the number of nodes searched so far.
func (w *Worker) Nodes() uint64 {
	return w.nodes
}

// aborted samples the stop flag every stopCheckMask+1 nodes.
func (w *Worker) aborted() bool {
	return w.nodes&stopCheckMask == 0 && w.stop.Load()
}

// SearchRoot searches every legal root move at the given depth and
// returns the argmax move with its score. pvMove, if set, is ordered
// first. ok is false if the search was aborted, in which case the move
// and score must not be used.
func (w *Worker) SearchRoot(depth uint8, pvMove dragon.Move) (move dragon.Move, score Score, ok bool) {
	if depth == 0 {
		return NoMove, 0, false
	}

	moves := w.board.GenerateLegalMoves()
	if len(moves) == 0 {
		if w.board.OurKingInCheck() {
			return NoMove, matedScore, true
		}
		return NoMove, 0, true
	}

	scores := w.orderer.ScoreMoves(&w.board, moves, 0, pvMove)

	alpha := negInf
	best := NoMove
	for i := range moves {
		pickMove(moves, scores, i)
		m := moves[i]

		unapply := w.board.Apply(m)
		v, done := w.pvs(depth-1, -posInf, -alpha, 1, true)
		unapply()
		if !done {
			return NoMove, 0, false
		}

		if v = -v; v > alpha {
			alpha = v
			best = m
		}
	}
	return best, alpha, true
}

// pvs is one frame of principal variation search. It returns the score
// of the position within (alpha, beta) from the side to move's
// perspective, or ok=false if the stop signal fired, which unwinds the
// whole line without producing a result.
func (w *Worker) pvs(depth uint8, alpha, beta Score, ply int, nullOK bool) (Score, bool) {
	if w.aborted() {
		return 0, false
	}

	hash := w.board.Hash()

	// A sufficiently deep cached result tightens the window and may end
	// the frame outright.
	if e, found := w.tt.Get(hash); found && e.Depth >= depth {
		switch e.Flag {
		case FlagExact:
			return e.Value, true
		case FlagLowerBound:
			if e.Value > alpha {
				alpha = e.Value
			}
		case FlagUpperBound:
			if e.Value < beta {
				beta = e.Value
			}
		}
		if alpha >= beta {
			return e.Value, true
		}
	}

	w.nodes++

	moves := w.board.GenerateLegalMoves()
	if depth == 0 || len(moves) == 0 {
		return w.quiesce(alpha, beta)
	}

	inCheck := w.board.OurKingInCheck()

	// Null-move pruning: if passing the turn still fails high at reduced
	// depth, the position is good enough to cut. Unsafe in check, near
	// mate bounds, and in endgames (zugzwang).
	if nullOK && !inCheck && beta < mateBound && !IsEndgame(&w.board) {
		r := uint8(nullMoveReduction)
		if depth > 6 {
			r++
		}
		if depth > r {
			unapply := w.board.ApplyNullMove()
			v, done := w.pvs(depth-1-r, -beta, -beta+1, ply+1, false)
			unapply()
			if !done {
				return 0, false
			}
			if v = -v; v >= beta {
				return v, true
			}
		}
	}

	// Reverse futility: at shallow depth, a static eval comfortably above
	// beta is trusted without searching.
	if depth < rfpMaxDepth && !inCheck && beta < mateBound {
		margin := rfpMargin * Score(depth)
		if static := Evaluate(&w.board); static-margin >= beta {
			return static - margin, true
		}
	}

	origAlpha := alpha
	scores := w.orderer.ScoreMoves(&w.board, moves, ply, NoMove)

	cutoff := false
	for i := range moves {
		pickMove(moves, scores, i)
		m := moves[i]
		quiet := !isCapture(&w.board, m)

		unapply := w.board.Apply(m)
		var v Score
		var done bool
		if i == 0 {
			v, done = w.pvs(depth-1, -beta, -alpha, ply+1, true)
			v = -v
		} else {
			// Null window first; re-search on a genuine improvement.
			v, done = w.pvs(depth-1, -alpha-1, -alpha, ply+1, true)
			v = -v
			if done && alpha < v && v < beta {
				v, done = w.pvs(depth-1, -beta, -v, ply+1, true)
				v = -v
			}
		}
		unapply()
		if !done {
			return 0, false
		}

		if v > alpha {
			alpha = v
		}
		if alpha >= beta {
			if quiet {
				w.orderer.NoteKiller(m, ply)
			}
			cutoff = true
			break
		}
	}

	flag := FlagExact
	switch {
	case alpha <= origAlpha:
		flag = FlagUpperBound
	case cutoff:
		flag = FlagLowerBound
	}
	w.tt.Set(Entry{Key: hash, Value: alpha, Depth: depth, Flag: flag})

	return alpha, true
}

// quiesce extends the search through captures only, so leaf evaluations
// are never taken mid-exchange. Standing pat allows the side to move to
// decline all captures. No table access, no pruning heuristics.
func (w *Worker) quiesce(alpha, beta Score) (Score, bool) {
	if w.aborted() {
		return 0, false
	}
	w.nodes++

	standPat := Evaluate(&w.board)
	if standPat >= beta {
		return beta, true
	}
	if standPat > alpha {
		alpha = standPat
	}

	var buf [maxMoves]dragon.Move
	var scoreBuf [maxMoves]int
	enemy := occupancy(&w.board, !w.board.Wtomove)
	n := 0
	for _, m := range w.board.GenerateLegalMoves() {
		if enemy&(uint64(1)<<m.To()) != 0 {
			buf[n] = m
			n++
		}
	}
	captures := buf[:n]
	scores := scoreBuf[:n]
	w.orderer.ScoreCaptures(&w.board, captures, scores)

	for i := range captures {
		pickMove(captures, scores, i)

		unapply := w.board.Apply(captures[i])
		v, done := w.quiesce(-beta, -alpha)
		unapply()
		if !done {
			return 0, false
		}

		if v = -v; v >= beta {
			return beta, true
		}
		if v > alpha {
			alpha = v
		}
	}
	return alpha, true
}
