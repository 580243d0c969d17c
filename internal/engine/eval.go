package engine

import (
	"math/bits"

	dragon "github.com/Bubblyworld/dragontoothmg"
)

// Piece values in centipawns.
const (
	PawnValue   Score = 100
	KnightValue Score = 325
	BishopValue Score = 335
	RookValue   Score = 500
	QueenValue  Score = 975
	KingValue   Score = 1500
)

var pieceValues = [8]Score{
	dragon.Pawn:   PawnValue,
	dragon.Knight: KnightValue,
	dragon.Bishop: BishopValue,
	dragon.Rook:   RookValue,
	dragon.Queen:  QueenValue,
	dragon.King:   KingValue,
}

// materialKinds excludes the king: material() measures capturable force.
var materialKinds = [5]dragon.Piece{
	dragon.Pawn, dragon.Knight, dragon.Bishop, dragon.Rook, dragon.Queen,
}

// Redundancy adjustments applied once per odd piece count.
const (
	bishopPairTerm Score = 30
	knightPairTerm Score = -8
	rookPairTerm   Score = -16
)

// mobilityFallback stands in for the non-mover's reply count when it
// cannot be computed cheaply (the mover is in check, so passing the turn
// is illegal).
const mobilityFallback Score = 20

// endgameMaterial: below this the side to move is considered to be in an
// endgame, where null-move pruning is unsafe (zugzwang).
const endgameMaterial Score = 1300

// material sums piece values for one color, king excluded.
func material(b *dragon.Board, white bool) Score {
	side := dragon.White
	if !white {
		side = dragon.Black
	}
	var total Score
	for _, kind := range materialKinds {
		total += Score(bits.OnesCount64(b.Bbs[side][kind])) * pieceValues[kind]
	}
	return total
}

// pairs scores piece-count parity: an odd bishop count loses the pair
// bonus, odd knights and rooks are mildly preferred over pairs.
func pairs(b *dragon.Board, white bool) Score {
	side := dragon.White
	if !white {
		side = dragon.Black
	}
	odd := func(kind dragon.Piece) Score {
		return Score(bits.OnesCount64(b.Bbs[side][kind]) % 2)
	}
	return odd(dragon.Bishop)*bishopPairTerm +
		odd(dragon.Knight)*knightPairTerm +
		odd(dragon.Rook)*rookPairTerm
}

// IsEndgame reports whether the side to move has dropped below the
// endgame material threshold.
func IsEndgame(b *dragon.Board) bool {
	return material(b, b.Wtomove) < endgameMaterial
}

// Evaluate scores a position from the point of view of the side to move
// (negamax convention). Checkmate is matedScore, stalemate is 0;
// otherwise material plus mobility plus pair terms, White-relative and
// negated for Black. The board is restored before returning.
func Evaluate(b *dragon.Board) Score {
	moverMoves := b.GenerateLegalMoves()
	if len(moverMoves) == 0 {
		if b.OurKingInCheck() {
			return matedScore
		}
		return 0
	}

	moverMobility := Score(len(moverMoves))
	otherMobility := mobilityFallback
	if !b.OurKingInCheck() {
		unapply := b.ApplyNullMove()
		otherMobility = Score(len(b.GenerateLegalMoves()))
		unapply()
	}

	whiteMobility, blackMobility := moverMobility, otherMobility
	if !b.Wtomove {
		whiteMobility, blackMobility = otherMobility, moverMobility
	}

	score := material(b, true) - material(b, false)
	score += pairs(b, true) - pairs(b, false)
	score += whiteMobility - blackMobility

	if !b.Wtomove {
		score = -score
	}
	return score
}
