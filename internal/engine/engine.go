package engine

import (
	"context"
	"fmt"
	"math/bits"
	"runtime"
	"sync"
	"sync/atomic"

	dragon "github.com/Bubblyworld/dragontoothmg"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Engine coordinates a pool of search workers over a shared
// transposition table. It is safe for sequential reuse across
// positions; ResetTable clears learned state between games.
type Engine struct {
	tt   *Table
	jobs int
}

// New builds an engine with a transposition table of about tableSize
// entries (rounded down to a power of two) and the given worker count.
// jobs <= 0 selects one worker per CPU.
func New(tableSize uint64, jobs int) (*Engine, error) {
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}
	tt, err := NewTable(DefaultTableSize(tableSize))
	if err != nil {
		return nil, fmt.Errorf("creating transposition table: %w", err)
	}
	return &Engine{tt: tt, jobs: jobs}, nil
}

// Table exposes the shared transposition table, mainly for stats.
func (e *Engine) Table() *Table {
	return e.tt
}

// ResetTable drops all cached search results.
func (e *Engine) ResetTable() {
	e.tt.Clear()
}

// bestMoveSlot holds the deepest fully-searched result so far.
// Publication is monotonic in depth, so a slow worker finishing a
// shallow iteration late never clobbers a deeper answer.
type bestMoveSlot struct {
	mu    sync.Mutex
	move  dragon.Move
	score Score
	depth uint8
}

func (s *bestMoveSlot) read() (dragon.Move, Score, uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.move, s.score, s.depth
}

func (s *bestMoveSlot) publish(move dragon.Move, score Score, depth uint8) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if depth <= s.depth {
		return false
	}
	s.move, s.score, s.depth = move, score, depth
	return true
}

// BestMove searches the position to maxDepth and returns the best move
// found with its score from the side to move's perspective. Cancelling
// ctx stops the search early; the deepest completed result is returned.
// A position with no legal moves yields NoMove with the mate or
// stalemate score.
func (e *Engine) BestMove(ctx context.Context, board *dragon.Board, maxDepth uint8) (dragon.Move, Score) {
	if len(board.GenerateLegalMoves()) == 0 {
		if board.OurKingInCheck() {
			return NoMove, matedScore
		}
		return NoMove, 0
	}
	if maxDepth == 0 {
		maxDepth = 1
	}

	var stop atomic.Bool
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			stop.Store(true)
		case <-done:
		}
	}()

	var slot bestMoveSlot
	var g errgroup.Group
	for id := 1; id <= e.jobs; id++ {
		w := NewWorker(id, *board, e.tt, &stop)
		offset := depthOffset(id)
		g.Go(func() error {
			e.runWorker(w, offset, maxDepth, &slot, &stop)
			return nil
		})
	}
	g.Wait()
	close(done)

	move, score, depth := slot.read()
	log.Debug().
		Uint8("depth", depth).
		Int16("score", score).
		Float64("ttHitRate", e.tt.HitRate()).
		Msg("search finished")
	return move, score
}

// depthOffset staggers worker depths: odd-id workers take the ply right
// above the deepest published result, a quarter of the pool one further
// ahead, and so on. Worker ids start at 1.
func depthOffset(id int) int {
	return bits.TrailingZeros(uint(id))
}

// runWorker repeatedly picks the next depth above the deepest published
// result, offset by the worker's depth stagger, and searches it. Workers
// with offset zero follow the principal variation; higher offsets probe
// ahead to seed the table.
func (e *Engine) runWorker(w *Worker, offset int, maxDepth uint8, slot *bestMoveSlot, stop *atomic.Bool) {
	for {
		hint, _, reached := slot.read()
		if reached >= maxDepth || stop.Load() {
			return
		}
		if offset != 0 {
			hint = NoMove
		}

		depth := int(reached) + 1 + offset
		if depth > int(maxDepth) {
			depth = int(maxDepth)
		}

		move, score, ok := w.SearchRoot(uint8(depth), hint)
		if !ok {
			return
		}
		if slot.publish(move, score, uint8(depth)) {
			log.Debug().
				Int("worker", w.id).
				Int("depth", depth).
				Int16("score", score).
				Uint64("nodes", w.Nodes()).
				Str("move", move.String()).
				Msg("iteration complete")
			if uint8(depth) >= maxDepth {
				stop.Store(true)
				return
			}
		}
	}
}
