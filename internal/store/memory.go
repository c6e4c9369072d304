package store

import (
	"context"
	"sort"
	"sync"
)

// memory is an in-memory Store used by tests and when no DATABASE_URL is
// configured. It mirrors the Postgres implementation's atomicity: every
// method runs under one lock, so a method call is one transaction.
type memory struct {
	mu sync.Mutex

	nextGameID int64
	users      map[int64]struct{}
	games      map[int64]*Game
	moves      map[int64][]Move
}

func NewMemory() Store {
	return &memory{
		users: make(map[int64]struct{}),
		games: make(map[int64]*Game),
		moves: make(map[int64][]Move),
	}
}

func (m *memory) Close() error { return nil }

func (m *memory) EnsureUser(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[userID] = struct{}{}
	return nil
}

func (m *memory) ActiveGameByUser(ctx context.Context, userID int64) (*Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.sortedGameIDs() {
		g := m.games[id]
		if g.Ended {
			continue
		}
		if _, ok := g.ColorOf(userID); ok {
			cp := *g
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memory) Game(ctx context.Context, id int64) (*Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[id]
	if !ok {
		return nil, nil
	}
	cp := *g
	return &cp, nil
}

func (m *memory) ClaimSeat(ctx context.Context, userID int64) (*Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seatedLocked(userID) {
		return nil, ErrConflict
	}
	return m.claimLocked(userID), nil
}

func (m *memory) OpenGame(ctx context.Context, userID int64, fen string) (*Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seatedLocked(userID) {
		return nil, ErrConflict
	}
	if g := m.claimLocked(userID); g != nil {
		return g, nil
	}
	m.nextGameID++
	uid := userID
	g := &Game{ID: m.nextGameID, WhiteID: &uid, FEN: fen}
	m.games[g.ID] = g
	cp := *g
	return &cp, nil
}

// seatedLocked reports whether userID already holds a non-terminal game.
func (m *memory) seatedLocked(userID int64) bool {
	for _, g := range m.games {
		if g.Ended {
			continue
		}
		if _, ok := g.ColorOf(userID); ok {
			return true
		}
	}
	return false
}

// claimLocked fills the empty seat of the oldest pending game, or returns
// nil when none exists.
func (m *memory) claimLocked(userID int64) *Game {
	for _, id := range m.sortedGameIDs() {
		g := m.games[id]
		if !g.Pending() {
			continue
		}
		if _, ok := g.ColorOf(userID); ok {
			continue
		}
		uid := userID
		if g.WhiteID == nil {
			g.WhiteID = &uid
		} else {
			g.BlackID = &uid
		}
		cp := *g
		return &cp
	}
	return nil
}

func (m *memory) AppendMove(ctx context.Context, gameID int64, notation, fen string, end *GameEnd) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[gameID]
	if !ok || g.Ended {
		return 0, ErrConflict
	}
	ply := len(m.moves[gameID])
	m.moves[gameID] = append(m.moves[gameID], Move{GameID: gameID, Ply: ply, Notation: notation})
	g.FEN = fen
	if end != nil {
		g.Ended = true
		g.Winner = copyColor(end.Winner)
		t := end.Termination
		g.Termination = &t
	}
	return ply, nil
}

func (m *memory) FinishGame(ctx context.Context, gameID int64, winner *Color, termination Termination) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[gameID]
	if !ok || g.Ended {
		return ErrConflict
	}
	g.Ended = true
	g.Winner = copyColor(winner)
	t := termination
	g.Termination = &t
	return nil
}

func (m *memory) MovesByGame(ctx context.Context, gameID int64) ([]Move, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Move(nil), m.moves[gameID]...), nil
}

func (m *memory) Stats(ctx context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Stats{Users: int64(len(m.users)), Games: int64(len(m.games))}
	for _, g := range m.games {
		if g.Pending() {
			s.PendingGames++
		}
		if g.Active() {
			s.ActiveGames++
		}
	}
	for _, ms := range m.moves {
		s.Moves += int64(len(ms))
	}
	return s, nil
}

func (m *memory) sortedGameIDs() []int64 {
	ids := make([]int64, 0, len(m.games))
	for id := range m.games {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func copyColor(c *Color) *Color {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}
