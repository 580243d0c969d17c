package engine

import (
	dragon "github.com/Bubblyworld/dragontoothmg"
)

// Move ordering priorities. The PV hint outranks everything, captures
// outrank killers, killers outrank unmatched quiet moves.
const (
	pvMoveScore     = 1 << 24
	captureBase     = 1 << 20
	killerBaseScore = 1 << 16
)

// killersPerPly is the number of quiet cutoff moves remembered per ply.
const killersPerPly = 3

// MoveOrderer holds the per-worker ordering state: a killer-move table
// indexed by distance from root. It is never shared between workers.
type MoveOrderer struct {
	killers [MaxPly][killersPerPly]dragon.Move
}

// occupancy returns the combined piece bitboard for one color.
func occupancy(b *dragon.Board, white bool) uint64 {
	if white {
		return b.Bbs[dragon.White][dragon.All]
	}
	return b.Bbs[dragon.Black][dragon.All]
}

// pieceValueOn returns the value of the given color's piece on sq, or 0
// for an empty square.
func pieceValueOn(b *dragon.Board, white bool, sq uint8) Score {
	side := dragon.White
	if !white {
		side = dragon.Black
	}
	bit := uint64(1) << sq
	for _, kind := range materialKinds {
		if b.Bbs[side][kind]&bit != 0 {
			return pieceValues[kind]
		}
	}
	if b.Bbs[side][dragon.King]&bit != 0 {
		return KingValue
	}
	return 0
}

// isCapture reports whether m lands on an enemy-occupied square. En
// passant slips through (the target square is empty), which only costs
// ordering accuracy, never correctness.
func isCapture(b *dragon.Board, m dragon.Move) bool {
	return occupancy(b, !b.Wtomove)&(uint64(1)<<m.To()) != 0
}

// mvvLva ranks a capture: most valuable victim first, least valuable
// attacker as the tiebreak.
func mvvLva(b *dragon.Board, m dragon.Move) int {
	victim := pieceValueOn(b, !b.Wtomove, m.To())
	attacker := pieceValueOn(b, b.Wtomove, m.From())
	return int(victim)*16 - int(attacker)
}

// ScoreMoves assigns an ordering score to every move: PV hint, then
// captures by MVV-LVA, then this ply's killers by recency, then quiets.
func (o *MoveOrderer) ScoreMoves(b *dragon.Board, moves []dragon.Move, ply int, pvMove dragon.Move) []int {
	scores := make([]int, len(moves))
	for i, m := range moves {
		switch {
		case m == pvMove && m != NoMove:
			scores[i] = pvMoveScore
		case isCapture(b, m):
			scores[i] = captureBase + mvvLva(b, m)
		default:
			scores[i] = o.killerRank(m, ply)
		}
	}
	return scores
}

// ScoreCaptures is quiescence ordering: MVV-LVA only, no killers.
func (o *MoveOrderer) ScoreCaptures(b *dragon.Board, moves []dragon.Move, scores []int) {
	for i, m := range moves {
		scores[i] = mvvLva(b, m)
	}
}

// killerRank scores a quiet move by killer recency, 0 if unmatched.
func (o *MoveOrderer) killerRank(m dragon.Move, ply int) int {
	if ply >= MaxPly {
		return 0
	}
	for k, killer := range o.killers[ply] {
		if killer == m {
			return killerBaseScore - k
		}
	}
	return 0
}

// NoteKiller installs a quiet cutoff move as the most recent killer for
// its ply, shifting older entries back and deduplicating.
func (o *MoveOrderer) NoteKiller(m dragon.Move, ply int) {
	if m == NoMove || ply >= MaxPly {
		return
	}
	slots := &o.killers[ply]
	last := killersPerPly - 1
	for k := 0; k < killersPerPly; k++ {
		if slots[k] == m {
			last = k
			break
		}
	}
	for k := last; k > 0; k-- {
		slots[k] = slots[k-1]
	}
	slots[0] = m
}

// pickMove moves the best-scored remaining move to position i, sorting
// lazily: cutoffs usually happen before the tail is ever ordered.
func pickMove(moves []dragon.Move, scores []int, i int) {
	best := i
	for j := i + 1; j < len(moves); j++ {
		if scores[j] > scores[best] {
			best = j
		}
	}
	if best != i {
		moves[i], moves[best] = moves[best], moves[i]
		scores[i], scores[best] = scores[best], scores[i]
	}
}
