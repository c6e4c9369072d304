package store

import (
	"context"
	"sync"
	"testing"
)

const testFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

func newGame(t *testing.T, st Store, whiteID int64) *Game {
	t.Helper()
	g, err := st.OpenGame(context.Background(), whiteID, testFEN)
	if err != nil {
		t.Fatalf("OpenGame: %v", err)
	}
	return g
}

func TestClaimSeatFillsBlack(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	g := newGame(t, st, 1)
	if !g.Pending() {
		t.Fatalf("fresh game not pending: %+v", g)
	}

	claimed, err := st.ClaimSeat(ctx, 2)
	if err != nil {
		t.Fatalf("ClaimSeat: %v", err)
	}
	if claimed == nil || claimed.ID != g.ID {
		t.Fatalf("ClaimSeat = %+v, want game %d", claimed, g.ID)
	}
	if !claimed.Active() {
		t.Fatalf("claimed game not active: %+v", claimed)
	}
	if c, ok := claimed.ColorOf(2); !ok || c != Black {
		t.Fatalf("joiner seated as %v, want black", c)
	}
	if c, ok := claimed.ColorOf(1); !ok || c != White {
		t.Fatalf("creator seated as %v, want white", c)
	}
}

func TestClaimSeatNothingPending(t *testing.T) {
	st := NewMemory()
	g, err := st.ClaimSeat(context.Background(), 1)
	if err != nil {
		t.Fatalf("ClaimSeat: %v", err)
	}
	if g != nil {
		t.Fatalf("claimed a seat with no pending games: %+v", g)
	}
}

func TestClaimSeatWhileSeatedConflicts(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	newGame(t, st, 1)
	if _, err := st.ClaimSeat(ctx, 1); err != ErrConflict {
		t.Fatalf("seated user's claim: got %v, want ErrConflict", err)
	}
}

func TestOpenGameJoinsPendingGame(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	pending := newGame(t, st, 1)
	g, err := st.OpenGame(ctx, 2, testFEN)
	if err != nil {
		t.Fatalf("OpenGame: %v", err)
	}
	if g.ID != pending.ID {
		t.Fatalf("fallback opened game %d instead of claiming pending %d", g.ID, pending.ID)
	}
	if !g.Active() {
		t.Fatalf("claimed game not active: %+v", g)
	}
	if c, ok := g.ColorOf(2); !ok || c != Black {
		t.Fatalf("fallback joiner seated as %v, want black", c)
	}
}

func TestOpenGameWhileSeatedConflicts(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	newGame(t, st, 1)
	if _, err := st.OpenGame(ctx, 1, testFEN); err != ErrConflict {
		t.Fatalf("seated user's open: got %v, want ErrConflict", err)
	}

	s, err := st.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if s.Games != 1 {
		t.Fatalf("rejected open still created a game: %+v", s)
	}
}

func TestActiveGameByUser(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	g := newGame(t, st, 1)
	if _, err := st.ClaimSeat(ctx, 2); err != nil {
		t.Fatalf("ClaimSeat: %v", err)
	}

	for _, uid := range []int64{1, 2} {
		got, err := st.ActiveGameByUser(ctx, uid)
		if err != nil {
			t.Fatalf("ActiveGameByUser(%d): %v", uid, err)
		}
		if got == nil || got.ID != g.ID {
			t.Fatalf("ActiveGameByUser(%d) = %+v, want game %d", uid, got, g.ID)
		}
	}

	got, err := st.ActiveGameByUser(ctx, 3)
	if err != nil {
		t.Fatalf("ActiveGameByUser(3): %v", err)
	}
	if got != nil {
		t.Fatalf("stranger has an active game: %+v", got)
	}

	if err := st.FinishGame(ctx, g.ID, nil, TerminationDraw); err != nil {
		t.Fatalf("FinishGame: %v", err)
	}
	got, err = st.ActiveGameByUser(ctx, 1)
	if err != nil {
		t.Fatalf("ActiveGameByUser after finish: %v", err)
	}
	if got != nil {
		t.Fatalf("finished game still reported active: %+v", got)
	}
}

func TestAppendMovePlySequence(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	g := newGame(t, st, 1)
	if _, err := st.ClaimSeat(ctx, 2); err != nil {
		t.Fatalf("ClaimSeat: %v", err)
	}

	for i, notation := range []string{"e2e4", "e7e5", "g1f3"} {
		ply, err := st.AppendMove(ctx, g.ID, notation, testFEN, nil)
		if err != nil {
			t.Fatalf("AppendMove #%d: %v", i, err)
		}
		if ply != i {
			t.Fatalf("AppendMove #%d: ply = %d", i, ply)
		}
	}

	moves, err := st.MovesByGame(ctx, g.ID)
	if err != nil {
		t.Fatalf("MovesByGame: %v", err)
	}
	if len(moves) != 3 {
		t.Fatalf("move count = %d, want 3", len(moves))
	}
	for i, mv := range moves {
		if mv.Ply != i {
			t.Fatalf("move %d has ply %d", i, mv.Ply)
		}
	}
}

func TestAppendMoveWithEnd(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	g := newGame(t, st, 1)
	if _, err := st.ClaimSeat(ctx, 2); err != nil {
		t.Fatalf("ClaimSeat: %v", err)
	}

	winner := Black
	if _, err := st.AppendMove(ctx, g.ID, "d8h4", testFEN, &GameEnd{Winner: &winner, Termination: TerminationCheckmate}); err != nil {
		t.Fatalf("AppendMove: %v", err)
	}

	got, err := st.Game(ctx, g.ID)
	if err != nil {
		t.Fatalf("Game: %v", err)
	}
	if !got.Ended {
		t.Fatalf("game not ended after terminal move")
	}
	if got.Winner == nil || *got.Winner != Black {
		t.Fatalf("winner = %v, want black", got.Winner)
	}
	if got.Termination == nil || *got.Termination != TerminationCheckmate {
		t.Fatalf("termination = %v, want checkmate", got.Termination)
	}

	if _, err := st.AppendMove(ctx, g.ID, "a2a3", testFEN, nil); err != ErrConflict {
		t.Fatalf("AppendMove after end: got %v, want ErrConflict", err)
	}
}

func TestFinishGameTwice(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	g := newGame(t, st, 1)
	winner := White
	if err := st.FinishGame(ctx, g.ID, &winner, TerminationResignation); err != nil {
		t.Fatalf("FinishGame: %v", err)
	}
	if err := st.FinishGame(ctx, g.ID, &winner, TerminationResignation); err != ErrConflict {
		t.Fatalf("second FinishGame: got %v, want ErrConflict", err)
	}
}

func TestConcurrentClaimsSingleWinner(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	newGame(t, st, 1)

	const claimers = 8
	var wg sync.WaitGroup
	results := make([]*Game, claimers)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			g, err := st.ClaimSeat(ctx, int64(100+i))
			if err != nil {
				t.Errorf("ClaimSeat: %v", err)
				return
			}
			results[i] = g
		}(i)
	}
	wg.Wait()

	var won int
	for _, g := range results {
		if g != nil {
			won++
		}
	}
	if won != 1 {
		t.Fatalf("%d claimers seated in a single open game", won)
	}
}

func TestStats(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	for _, uid := range []int64{1, 2, 3} {
		if err := st.EnsureUser(ctx, uid); err != nil {
			t.Fatalf("EnsureUser: %v", err)
		}
	}
	g := newGame(t, st, 1)
	if _, err := st.ClaimSeat(ctx, 2); err != nil {
		t.Fatalf("ClaimSeat: %v", err)
	}
	newGame(t, st, 3)
	if _, err := st.AppendMove(ctx, g.ID, "e2e4", testFEN, nil); err != nil {
		t.Fatalf("AppendMove: %v", err)
	}

	s, err := st.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if s.Users != 3 || s.Games != 2 || s.ActiveGames != 1 || s.PendingGames != 1 || s.Moves != 1 {
		t.Fatalf("stats = %+v", s)
	}
}
