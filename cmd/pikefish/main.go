package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	dragon "github.com/Bubblyworld/dragontoothmg"
	"github.com/pkg/profile"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"pikefish/internal/engine"
	"pikefish/internal/store"
	"pikefish/internal/uci"
)

const usage = `usage: pikefish <command> [flags]

commands:
  move   print the best move for a position
  uci    run as a UCI engine
`

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "move":
		err = runMove(os.Args[2:])
	case "uci":
		err = runUCI(os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("pikefish failed")
	}
}

// runMove searches one or more positions and prints the best move for
// each. Positions come from -fen, or line by line on stdin.
func runMove(args []string) error {
	fs := flag.NewFlagSet("move", flag.ExitOnError)
	var (
		fen         = fs.String("fen", "", "position to analyze; reads FENs from stdin if empty")
		depth       = fs.Uint("depth", 9, "search depth in plies")
		jobs        = fs.Int("jobs", 0, "parallel search workers, 0 for one per CPU")
		memo        = fs.Uint64("memo", 1<<25, "transposition table slots, rounded to a power of two")
		interactive = fs.Bool("interactive", false, "prompt for FENs and keep state between them")
		cacheDir    = fs.String("cache", "", "directory for the persistent analysis cache")
		profileMode = fs.String("profile", "", "write a cpu or mem profile")
		verbose     = fs.Bool("v", false, "enable debug logging")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	switch *profileMode {
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
	case "mem":
		defer profile.Start(profile.MemProfile, profile.ProfilePath(".")).Stop()
	case "":
	default:
		return fmt.Errorf("unknown profile mode %q", *profileMode)
	}

	eng, err := engine.New(*memo, *jobs)
	if err != nil {
		return err
	}

	var cache *store.Store
	if *cacheDir != "" {
		cache, err = store.Open(filepath.Clean(*cacheDir))
		if err != nil {
			return fmt.Errorf("opening analysis cache: %w", err)
		}
		defer cache.Close()
	}

	analyze := func(fenStr string) error {
		return analyzePosition(eng, cache, fenStr, uint8(*depth))
	}

	if *fen != "" {
		return analyze(*fen)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		if *interactive {
			fmt.Print("fen> ")
		}
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := analyze(line); err != nil {
			if !*interactive {
				return err
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
	return scanner.Err()
}

// analyzePosition searches one FEN, consulting and updating the cache
// when one is configured.
func analyzePosition(eng *engine.Engine, cache *store.Store, fen string, depth uint8) error {
	if cache != nil {
		cached, err := cache.Get(fen)
		if err != nil {
			return err
		}
		if cached != nil && cached.Depth >= depth {
			log.Debug().Str("fen", fen).Uint8("depth", cached.Depth).Msg("cache hit")
			fmt.Printf("%s (score %d, depth %d, cached)\n", cached.Move, cached.Score, cached.Depth)
			return nil
		}
	}

	board := dragon.ParseFen(fen)
	start := time.Now()
	move, score := eng.BestMove(context.Background(), &board, depth)
	elapsed := time.Since(start)

	if move == engine.NoMove {
		if score == 0 {
			fmt.Println("no move: stalemate")
		} else {
			fmt.Println("no move: checkmate")
		}
		return nil
	}

	log.Info().
		Str("move", move.String()).
		Int16("score", score).
		Dur("elapsed", elapsed).
		Float64("ttHitRate", eng.Table().HitRate()).
		Msg("analysis complete")
	fmt.Printf("%s (score %d, depth %d)\n", move.String(), score, depth)

	if cache != nil {
		return cache.Put(fen, store.Analysis{
			Move:  move.String(),
			Score: score,
			Depth: depth,
		})
	}
	return nil
}

// runUCI speaks the UCI protocol on stdin/stdout until quit.
func runUCI(args []string) error {
	fs := flag.NewFlagSet("uci", flag.ExitOnError)
	var (
		jobs = fs.Int("jobs", 0, "parallel search workers, 0 for one per CPU")
		memo = fs.Uint64("memo", 1<<25, "transposition table slots, rounded to a power of two")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	// Protocol traffic owns stdout; logs stay on stderr.
	eng, err := engine.New(*memo, *jobs)
	if err != nil {
		return err
	}
	return uci.New(eng, os.Stdin, os.Stdout).Run()
}
