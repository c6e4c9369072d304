// Package board wraps the chess rules library behind the small oracle
// surface the engine needs: decode a position, parse and validate a move in
// either supported notation, apply it, and classify the outcome. It holds no
// state of its own beyond the live position and performs no I/O.
package board

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/immanelg/tgpawn/internal/store"
)

// StartingFEN is the standard initial position.
const StartingFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

var (
	// ErrInvalidNotation means the text resolves to no move in either
	// notation (short algebraic first, then coordinate/UCI).
	ErrInvalidNotation = errors.New("board: not a move in any supported notation")
)

// Board is a live, mutable game position.
type Board struct {
	game *nchess.Game
}

// Start returns a board at the standard starting position.
func Start() *Board {
	return &Board{game: nchess.NewGame()}
}

// Decode rebuilds a board from a stored FEN.
func Decode(fen string) (*Board, error) {
	opt, err := nchess.FEN(strings.TrimSpace(fen))
	if err != nil {
		return nil, fmt.Errorf("decode fen: %w", err)
	}
	return &Board{game: nchess.NewGame(opt)}, nil
}

// Encode returns the canonical FEN of the current position.
func (b *Board) Encode() string {
	return b.game.FEN()
}

// Turn returns the side to move.
func (b *Board) Turn() store.Color {
	if b.game.Position().Turn() == nchess.White {
		return store.White
	}
	return store.Black
}

// Parse resolves move text against the current position, trying short
// algebraic notation first and coordinate (UCI) notation as fallback.
// SAN only resolves to legal moves; a UCI move parses independently of
// legality, so callers must still check Legal.
func (b *Board) Parse(text string) (*nchess.Move, error) {
	text = strings.TrimSpace(text)
	pos := b.game.Position()

	if mv, err := (nchess.AlgebraicNotation{}).Decode(pos, text); err == nil {
		return mv, nil
	}
	if isUCISyntax(text) {
		if mv, err := (nchess.UCINotation{}).Decode(pos, strings.ToLower(text)); err == nil {
			return mv, nil
		}
	}
	return nil, ErrInvalidNotation
}

// Legal reports whether the move is in the legal-move set of the position.
func (b *Board) Legal(mv *nchess.Move) bool {
	if mv == nil {
		return false
	}
	want := mv.String()
	for _, lm := range b.game.ValidMoves() {
		if lm.String() == want {
			return true
		}
	}
	return false
}

// Apply plays the move, mutating the board.
func (b *Board) Apply(mv *nchess.Move) error {
	if err := b.game.Move(mv, nil); err != nil {
		return fmt.Errorf("apply move: %w", err)
	}
	return nil
}

// Outcome classifies the current position. Checkmate yields a decisive
// winner; every automatic draw (stalemate, insufficient material,
// repetition, move-count rules) collapses to a draw with no winner.
func (b *Board) Outcome() (over bool, winner *store.Color, termination store.Termination) {
	switch b.game.Outcome() {
	case nchess.WhiteWon:
		c := store.White
		return true, &c, store.TerminationCheckmate
	case nchess.BlackWon:
		c := store.Black
		return true, &c, store.TerminationCheckmate
	case nchess.Draw:
		return true, nil, store.TerminationDraw
	default:
		return false, nil, ""
	}
}

// isUCISyntax reports whether s looks like coordinate notation:
// [a-h][1-8][a-h][1-8] with an optional promotion piece.
func isUCISyntax(s string) bool {
	s = strings.ToLower(s)
	if len(s) < 4 || len(s) > 5 {
		return false
	}
	if s[0] < 'a' || s[0] > 'h' || s[2] < 'a' || s[2] > 'h' {
		return false
	}
	if s[1] < '1' || s[1] > '8' || s[3] < '1' || s[3] > '8' {
		return false
	}
	if len(s) == 5 {
		switch s[4] {
		case 'q', 'r', 'b', 'n':
		default:
			return false
		}
	}
	return true
}
