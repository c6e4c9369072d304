package board

import (
	"testing"

	"github.com/immanelg/tgpawn/internal/store"
)

func mustMove(t *testing.T, b *Board, text string) {
	t.Helper()
	mv, err := b.Parse(text)
	if err != nil {
		t.Fatalf("Parse(%q): %v", text, err)
	}
	if !b.Legal(mv) {
		t.Fatalf("Parse(%q): move %s not legal", text, mv)
	}
	if err := b.Apply(mv); err != nil {
		t.Fatalf("Apply(%q): %v", text, err)
	}
}

func TestStartPosition(t *testing.T) {
	b := Start()
	if got := b.Encode(); got != StartingFEN {
		t.Fatalf("starting fen = %q, want %q", got, StartingFEN)
	}
	if b.Turn() != store.White {
		t.Fatalf("side to move = %s, want white", b.Turn())
	}
}

func TestParseBothNotations(t *testing.T) {
	b := Start()

	mv, err := b.Parse("Nf3")
	if err != nil {
		t.Fatalf("Parse SAN: %v", err)
	}
	if mv.String() != "g1f3" {
		t.Fatalf("SAN Nf3 resolved to %s", mv)
	}

	mv, err = b.Parse("e2e4")
	if err != nil {
		t.Fatalf("Parse UCI: %v", err)
	}
	if mv.String() != "e2e4" {
		t.Fatalf("UCI e2e4 resolved to %s", mv)
	}

	if _, err := b.Parse("hello"); err != ErrInvalidNotation {
		t.Fatalf("Parse garbage: got %v, want ErrInvalidNotation", err)
	}
}

func TestLegality(t *testing.T) {
	b := Start()

	// Syntactically fine coordinate moves that are not legal here.
	for _, text := range []string{"e2e5", "e7e5"} {
		mv, err := b.Parse(text)
		if err != nil {
			t.Fatalf("Parse(%q): %v", text, err)
		}
		if b.Legal(mv) {
			t.Fatalf("move %q reported legal in the starting position", text)
		}
	}
}

func TestApplyAndRoundTrip(t *testing.T) {
	b, err := Decode(StartingFEN)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	mustMove(t, b, "e2e4")
	fen := b.Encode()

	b2, err := Decode(fen)
	if err != nil {
		t.Fatalf("Decode after move: %v", err)
	}
	if b2.Turn() != store.Black {
		t.Fatalf("side to move after e4 = %s, want black", b2.Turn())
	}
	if b2.Encode() != fen {
		t.Fatalf("fen round trip: %q != %q", b2.Encode(), fen)
	}
}

func TestTurnAlternation(t *testing.T) {
	b := Start()
	want := []store.Color{store.White, store.Black, store.White, store.Black}
	moves := []string{"e2e4", "e7e5", "g1f3"}
	for i, text := range moves {
		if b.Turn() != want[i] {
			t.Fatalf("ply %d: side to move = %s, want %s", i, b.Turn(), want[i])
		}
		mustMove(t, b, text)
	}
	if b.Turn() != want[len(moves)] {
		t.Fatalf("after %d plies: side to move = %s", len(moves), b.Turn())
	}
}

func TestCheckmateOutcome(t *testing.T) {
	b := Start()
	for _, text := range []string{"f3", "e5", "g4", "Qh4#"} {
		mustMove(t, b, text)
	}
	over, winner, termination := b.Outcome()
	if !over {
		t.Fatalf("fool's mate: game not over")
	}
	if winner == nil || *winner != store.Black {
		t.Fatalf("fool's mate winner = %v, want black", winner)
	}
	if termination != store.TerminationCheckmate {
		t.Fatalf("termination = %s, want checkmate", termination)
	}
}

func TestStalemateIsDraw(t *testing.T) {
	// Sam Loyd's ten-move stalemate.
	line := []string{
		"e3", "a5", "Qh5", "Ra6", "Qxa5", "h5", "Qxc7", "Rah6",
		"h4", "f6", "Qxd7+", "Kf7", "Qxb7", "Qd3", "Qxb8", "Qh7",
		"Qxc8", "Kg6", "Qe6",
	}
	b := Start()
	for _, text := range line {
		mustMove(t, b, text)
	}
	over, winner, termination := b.Outcome()
	if !over {
		t.Fatalf("stalemate position not reported over")
	}
	if winner != nil {
		t.Fatalf("stalemate winner = %s, want none", *winner)
	}
	if termination != store.TerminationDraw {
		t.Fatalf("termination = %s, want draw", termination)
	}
}

func TestOngoingGameHasNoOutcome(t *testing.T) {
	b := Start()
	mustMove(t, b, "e2e4")
	if over, _, _ := b.Outcome(); over {
		t.Fatalf("game over after one move")
	}
}
