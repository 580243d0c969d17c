package engine

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	dragon "github.com/Bubblyworld/dragontoothmg"
	"github.com/rs/zerolog"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	os.Exit(m.Run())
}

func TestEvaluateStartposIsBalanced(t *testing.T) {
	board := dragon.ParseFen(dragon.Startpos)
	if v := Evaluate(&board); v != 0 {
		t.Errorf("startpos evaluated to %d, want 0", v)
	}
}

func TestEvaluateAntisymmetry(t *testing.T) {
	// Mirrored positions with the same side to move must score as exact
	// negatives of each other.
	white := dragon.ParseFen("rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR w KQkq - 0 1")
	black := dragon.ParseFen("rnbqkbnr/pppp1ppp/8/4p3/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1")
	vw, vb := Evaluate(&white), Evaluate(&black)
	if vw != -vb {
		t.Errorf("mirrored positions scored %d and %d, want exact negatives", vw, vb)
	}
}

func TestEvaluateMaterialImbalance(t *testing.T) {
	// White is up a queen; the mover's score must be clearly positive.
	board := dragon.ParseFen("k7/8/8/8/8/8/8/KQ6 w - - 0 1")
	if v := Evaluate(&board); v < QueenValue {
		t.Errorf("queen-up position scored %d, want at least %d", v, QueenValue)
	}
}

func TestEvaluateCheckmate(t *testing.T) {
	board := dragon.ParseFen("R5k1/5ppp/8/8/8/8/8/7K b - - 0 1")
	if v := Evaluate(&board); v != matedScore {
		t.Errorf("checkmated position scored %d, want %d", v, matedScore)
	}
}

func TestEvaluateStalemate(t *testing.T) {
	board := dragon.ParseFen("7k/5Q2/6K1/8/8/8/8/8 b - - 0 1")
	if v := Evaluate(&board); v != 0 {
		t.Errorf("stalemate scored %d, want 0", v)
	}
}

func TestIsEndgame(t *testing.T) {
	bare := dragon.ParseFen("k7/8/8/8/8/8/8/KQ6 b - - 0 1")
	if !IsEndgame(&bare) {
		t.Error("bare king side should be in the endgame")
	}
	start := dragon.ParseFen(dragon.Startpos)
	if IsEndgame(&start) {
		t.Error("startpos should not be in the endgame")
	}
}

func TestTableSizeMustBePowerOfTwo(t *testing.T) {
	for _, size := range []uint64{0, 3, 100, 1<<10 + 1} {
		if _, err := NewTable(size); err == nil {
			t.Errorf("NewTable(%d) succeeded, want error", size)
		}
	}
	if _, err := NewTable(1 << 10); err != nil {
		t.Errorf("NewTable(1<<10) failed: %v", err)
	}
}

func TestTableRoundTrip(t *testing.T) {
	tt, err := NewTable(1 << 8)
	if err != nil {
		t.Fatal(err)
	}
	want := Entry{Key: 0xdeadbeefcafe, Value: -412, Depth: 7, Flag: FlagUpperBound}
	tt.Set(want)
	got, found := tt.Get(want.Key)
	if !found {
		t.Fatal("stored entry not found")
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if _, found := tt.Get(want.Key + tt.Size()); found {
		t.Error("different key in the same bucket read as a hit")
	}
}

func TestTableRejectsCorruptEntry(t *testing.T) {
	tt, err := NewTable(1 << 8)
	if err != nil {
		t.Fatal(err)
	}
	e := Entry{Key: 42, Value: 100, Depth: 3, Flag: FlagExact}
	tt.Set(e)

	// Simulate a torn write by flipping a bit of the packed data word.
	s := &tt.slots[e.Key&tt.mask]
	s.data.Store(s.data.Load() ^ 1)

	if _, found := tt.Get(e.Key); found {
		t.Error("corrupt entry read as a hit")
	}
}

func TestTableConcurrentAccess(t *testing.T) {
	tt, err := NewTable(1 << 6)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(seed uint64) {
			defer wg.Done()
			for i := uint64(0); i < 5000; i++ {
				key := seed*1_000_003 + i
				tt.Set(Entry{Key: key, Value: Score(int16(key)), Depth: uint8(key >> 3), Flag: Flag(key % 3)})
				if e, found := tt.Get(key); found {
					if e.Key != key || e.Value != Score(int16(e.Key)) {
						t.Errorf("hit returned inconsistent entry %+v for key %d", e, key)
					}
				}
			}
		}(uint64(g))
	}
	wg.Wait()
}

func TestKillersRecencyAndDedup(t *testing.T) {
	var mo MoveOrderer
	mv := func(s string) dragon.Move {
		m, err := dragon.ParseMove(s)
		if err != nil {
			t.Fatalf("bad move %q: %v", s, err)
		}
		return m
	}

	a, b, c, d := mv("e2e4"), mv("d2d4"), mv("g1f3"), mv("b1c3")
	for _, m := range []dragon.Move{a, b, c, d} {
		mo.NoteKiller(m, 5)
	}
	if mo.killers[5] != [killersPerPly]dragon.Move{d, c, b} {
		t.Errorf("killers after four inserts: %v, want most recent first", mo.killers[5])
	}

	// Re-noting a held killer must not duplicate it.
	mo.NoteKiller(c, 5)
	if mo.killers[5] != [killersPerPly]dragon.Move{c, d, b} {
		t.Errorf("killers after re-note: %v, want %v", mo.killers[5], [killersPerPly]dragon.Move{c, d, b})
	}

	if mo.killers[6] != [killersPerPly]dragon.Move{} {
		t.Error("noting killers at one ply leaked into another")
	}
}

func TestPickMoveSelectsBestRemaining(t *testing.T) {
	moves := []dragon.Move{1, 2, 3, 4}
	scores := []int{10, 40, 20, 30}
	pickMove(moves, scores, 0)
	if moves[0] != 2 {
		t.Errorf("first pick chose move %d, want the top-scored one", moves[0])
	}
	pickMove(moves, scores, 1)
	if moves[1] != 4 {
		t.Errorf("second pick chose move %d, want the next-scored one", moves[1])
	}
}

func newTestWorker(t *testing.T, fen string) *Worker {
	t.Helper()
	tt, err := NewTable(1 << 10)
	if err != nil {
		t.Fatal(err)
	}
	var stop atomic.Bool
	return NewWorker(1, dragon.ParseFen(fen), tt, &stop)
}

func TestQuiesceNeverBelowStandingPat(t *testing.T) {
	fens := []string{
		dragon.Startpos,
		"r1bqkbnr/pppp1ppp/2n5/4p3/3P4/5N2/PPP1PPPP/RNBQKB1R b KQkq - 0 3",
		"rnbqkb1r/ppp1pppp/5n2/3p4/4P3/2N5/PPPP1PPP/R1BQKBNR w KQkq - 2 3",
	}
	for _, fen := range fens {
		w := newTestWorker(t, fen)
		standPat := Evaluate(&w.board)
		v, ok := w.quiesce(negInf, posInf)
		if !ok {
			t.Fatalf("quiescence aborted without a stop signal on %s", fen)
		}
		if v < standPat {
			t.Errorf("quiescence scored %d below standing pat %d on %s", v, standPat, fen)
		}
	}
}

func TestSearchRootDepthOneTakesHangingPiece(t *testing.T) {
	w := newTestWorker(t, "k7/8/3q4/8/8/3R4/8/K7 w - - 0 1")
	move, score, ok := w.SearchRoot(1, NoMove)
	if !ok {
		t.Fatal("search aborted without a stop signal")
	}
	if got := move.String(); got != "d3d6" {
		t.Errorf("depth-1 move %s, want the queen capture d3d6", got)
	}
	if score <= 0 {
		t.Errorf("queen capture scored %d, want a positive score", score)
	}
}

func newTestEngine(t *testing.T, jobs int) *Engine {
	t.Helper()
	e, err := New(1<<16, jobs)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestBestMoveStartposDepthOne(t *testing.T) {
	e := newTestEngine(t, 1)
	board := dragon.ParseFen(dragon.Startpos)
	move, score := e.BestMove(context.Background(), &board, 1)

	legal := false
	for _, m := range board.GenerateLegalMoves() {
		if m == move {
			legal = true
			break
		}
	}
	if !legal {
		t.Fatalf("depth-1 search returned illegal move %v", move)
	}
	// Before any reply the position is near-symmetric; only small
	// mobility differences separate the opening moves.
	if score < 0 || score >= PawnValue {
		t.Errorf("depth-1 opening score %d, want a small non-negative value", score)
	}
}

func TestBestMoveFindsMateInOne(t *testing.T) {
	e := newTestEngine(t, 1)
	board := dragon.ParseFen("6k1/5ppp/8/8/8/8/8/R6K w - - 0 1")
	move, score := e.BestMove(context.Background(), &board, 3)
	if got := move.String(); got != "a1a8" {
		t.Errorf("best move %s, want a1a8", got)
	}
	if score != -matedScore {
		t.Errorf("mate in one scored %d, want %d", score, -matedScore)
	}
}

func TestBestMoveSingleLegalMove(t *testing.T) {
	e := newTestEngine(t, 2)
	board := dragon.ParseFen("k7/8/8/8/8/8/8/KQ6 b - - 0 1")
	move, _ := e.BestMove(context.Background(), &board, 4)
	if got := move.String(); got != "a8a7" {
		t.Errorf("best move %s, want the only legal move a8a7", got)
	}
}

func TestBestMoveStalemate(t *testing.T) {
	e := newTestEngine(t, 2)
	board := dragon.ParseFen("7k/5Q2/6K1/8/8/8/8/8 b - - 0 1")
	move, score := e.BestMove(context.Background(), &board, 4)
	if move != NoMove || score != 0 {
		t.Errorf("stalemate returned move %v score %d, want no move and score 0", move, score)
	}
}

func TestBestMoveCheckmatedRoot(t *testing.T) {
	e := newTestEngine(t, 1)
	board := dragon.ParseFen("R5k1/5ppp/8/8/8/8/8/7K b - - 0 1")
	move, score := e.BestMove(context.Background(), &board, 4)
	if move != NoMove || score != matedScore {
		t.Errorf("checkmated root returned move %v score %d, want no move and %d", move, score, matedScore)
	}
}

func TestBestMoveReturnsLegalMove(t *testing.T) {
	e := newTestEngine(t, 4)
	board := dragon.ParseFen(dragon.Startpos)
	move, _ := e.BestMove(context.Background(), &board, 5)

	legal := false
	for _, m := range board.GenerateLegalMoves() {
		if m == move {
			legal = true
			break
		}
	}
	if !legal {
		t.Errorf("parallel search returned illegal move %v", move)
	}
}

func TestBestMoveSingleWorkerIsDeterministic(t *testing.T) {
	board := dragon.ParseFen("r1bqkbnr/pppp1ppp/2n5/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R w KQkq - 4 3")

	run := func() (dragon.Move, Score) {
		e := newTestEngine(t, 1)
		b := board
		return e.BestMove(context.Background(), &b, 4)
	}
	m1, s1 := run()
	m2, s2 := run()
	if m1 != m2 || s1 != s2 {
		t.Errorf("two identical single-worker searches disagreed: %v/%d vs %v/%d", m1, s1, m2, s2)
	}
}

func TestBestMoveHonorsCancellation(t *testing.T) {
	e := newTestEngine(t, 2)
	board := dragon.ParseFen(dragon.Startpos)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	var move dragon.Move
	go func() {
		move, _ = e.BestMove(ctx, &board, 60)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("search did not stop after context cancellation")
	}

	// Whatever iteration completed before the cutoff must still be legal.
	if move != NoMove {
		legal := false
		for _, m := range board.GenerateLegalMoves() {
			if m == move {
				legal = true
				break
			}
		}
		if !legal {
			t.Errorf("cancelled search returned illegal move %v", move)
		}
	}
}

func TestBestMoveWinningPositionScoresPositive(t *testing.T) {
	e := newTestEngine(t, 1)
	board := dragon.ParseFen("6k1/5ppp/8/8/8/8/PPP2PPP/R5KQ w - - 0 1")
	_, score := e.BestMove(context.Background(), &board, 4)
	if score <= 0 {
		t.Errorf("attacking side scored %d, want a positive score", score)
	}
}
