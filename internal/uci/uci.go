// Package uci implements the Universal Chess Interface protocol on top
// of the search engine, enough of it to drive the engine from a GUI or
// a match runner.
package uci

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	dragon "github.com/Bubblyworld/dragontoothmg"
	"github.com/rs/zerolog/log"

	"pikefish/internal/engine"
)

const defaultDepth = 9

// UCI reads protocol commands from in and writes responses to out.
type UCI struct {
	engine *engine.Engine
	board  dragon.Board

	in  io.Reader
	out io.Writer

	// Search state. A nil cancel means no search is running.
	cancel     context.CancelFunc
	searchDone chan struct{}
}

// New creates a UCI handler around an engine.
func New(eng *engine.Engine, in io.Reader, out io.Writer) *UCI {
	return &UCI{
		engine: eng,
		board:  dragon.ParseFen(dragon.Startpos),
		in:     in,
		out:    out,
	}
}

// Run processes commands until "quit" or end of input.
func (u *UCI) Run() error {
	scanner := bufio.NewScanner(u.in)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := parts[0]
		args := parts[1:]

		switch cmd {
		case "uci":
			fmt.Fprintln(u.out, "id name Pikefish")
			fmt.Fprintln(u.out, "id author Pikefish contributors")
			fmt.Fprintln(u.out, "uciok")
		case "isready":
			fmt.Fprintln(u.out, "readyok")
		case "ucinewgame":
			u.stopSearch()
			u.engine.ResetTable()
			u.board = dragon.ParseFen(dragon.Startpos)
		case "position":
			u.stopSearch()
			u.handlePosition(args)
		case "go":
			u.handleGo(args)
		case "stop":
			u.stopSearch()
		case "quit":
			u.stopSearch()
			return nil
		case "d":
			fmt.Fprintln(u.out, u.board.ToFen())
		default:
			log.Debug().Str("command", cmd).Msg("ignoring unknown command")
		}
	}
	return scanner.Err()
}

// handlePosition parses "position startpos|fen <fen> [moves ...]".
func (u *UCI) handlePosition(args []string) {
	if len(args) == 0 {
		return
	}

	movesAt := len(args)
	for i, arg := range args {
		if arg == "moves" {
			movesAt = i
			break
		}
	}

	switch args[0] {
	case "startpos":
		u.board = dragon.ParseFen(dragon.Startpos)
	case "fen":
		u.board = dragon.ParseFen(strings.Join(args[1:movesAt], " "))
	default:
		return
	}

	for _, moveStr := range args[min(movesAt+1, len(args)):] {
		move, err := dragon.ParseMove(moveStr)
		if err != nil {
			fmt.Fprintf(u.out, "info string invalid move %s\n", moveStr)
			return
		}
		if !u.applyIfLegal(move) {
			fmt.Fprintf(u.out, "info string illegal move %s\n", moveStr)
			return
		}
	}
}

// applyIfLegal applies move only if movegen agrees it is legal, so a
// malformed GUI line cannot corrupt the board.
func (u *UCI) applyIfLegal(move dragon.Move) bool {
	for _, m := range u.board.GenerateLegalMoves() {
		if m == move {
			u.board.Apply(m)
			return true
		}
	}
	return false
}

// goOptions is the subset of "go" parameters the engine understands.
type goOptions struct {
	depth    int
	moveTime time.Duration
	infinite bool
}

func parseGoOptions(args []string) goOptions {
	opts := goOptions{}
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "depth":
			if i+1 < len(args) {
				opts.depth, _ = strconv.Atoi(args[i+1])
				i++
			}
		case "movetime":
			if i+1 < len(args) {
				ms, _ := strconv.Atoi(args[i+1])
				opts.moveTime = time.Duration(ms) * time.Millisecond
				i++
			}
		case "infinite":
			opts.infinite = true
		}
	}
	return opts
}

// handleGo starts a search in the background. "stop" or a movetime
// expiry cancels it; either way the best move found so far is printed.
func (u *UCI) handleGo(args []string) {
	u.stopSearch()

	opts := parseGoOptions(args)

	depth := opts.depth
	if depth <= 0 || depth > 255 {
		depth = defaultDepth
	}
	if opts.infinite || opts.moveTime > 0 {
		depth = 255
	}

	var ctx context.Context
	var cancel context.CancelFunc
	if opts.moveTime > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), opts.moveTime)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	u.cancel = cancel
	u.searchDone = make(chan struct{})

	board := u.board
	go func() {
		defer close(u.searchDone)
		start := time.Now()

		move, score := u.engine.BestMove(ctx, &board, uint8(depth))
		if move == engine.NoMove {
			fmt.Fprintln(u.out, "bestmove 0000")
			return
		}

		fmt.Fprintf(u.out, "info score cp %d time %d\n", score, time.Since(start).Milliseconds())
		fmt.Fprintf(u.out, "bestmove %s\n", move.String())
	}()
}

// stopSearch cancels any running search and waits for its bestmove.
func (u *UCI) stopSearch() {
	if u.cancel == nil {
		return
	}
	u.cancel()
	<-u.searchDone
	u.cancel = nil
	u.searchDone = nil
}
