package store

// Color identifies a chess side.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Other returns the opposing side.
func (c Color) Other() Color {
	if c == White {
		return Black
	}
	return White
}

// Termination is the reason a game ended. The move pipeline only ever
// produces checkmate and draw; resignation comes from the resign command.
// Timeout is reserved and never produced (there is no clock).
type Termination string

const (
	TerminationCheckmate   Termination = "checkmate"
	TerminationDraw        Termination = "draw"
	TerminationResignation Termination = "resignation"
	TerminationTimeout     Termination = "timeout"
)

// User is a chat-transport participant, created on first observed message.
type User struct {
	ID int64
}

// Game is a durable game row. WhiteID and BlackID are nil until the
// matching seat is filled. The FEN column is the authoritative position;
// in-memory boards are derived from it and never trusted over it.
type Game struct {
	ID          int64
	WhiteID     *int64
	BlackID     *int64
	Ended       bool
	Winner      *Color
	Termination *Termination
	FEN         string
}

// Pending reports whether exactly one seat is filled and the game is ongoing.
func (g *Game) Pending() bool {
	return !g.Ended && (g.WhiteID == nil) != (g.BlackID == nil)
}

// Active reports whether both seats are filled and the game is ongoing.
func (g *Game) Active() bool {
	return !g.Ended && g.WhiteID != nil && g.BlackID != nil
}

// ColorOf returns the side userID occupies, if any.
func (g *Game) ColorOf(userID int64) (Color, bool) {
	if g.WhiteID != nil && *g.WhiteID == userID {
		return White, true
	}
	if g.BlackID != nil && *g.BlackID == userID {
		return Black, true
	}
	return "", false
}

// PlayerID returns the user seated on the given side, if filled.
func (g *Game) PlayerID(c Color) (int64, bool) {
	switch c {
	case White:
		if g.WhiteID != nil {
			return *g.WhiteID, true
		}
	case Black:
		if g.BlackID != nil {
			return *g.BlackID, true
		}
	}
	return 0, false
}

// OpponentOf returns the user seated opposite userID, if both seats are known.
func (g *Game) OpponentOf(userID int64) (int64, bool) {
	c, ok := g.ColorOf(userID)
	if !ok {
		return 0, false
	}
	return g.PlayerID(c.Other())
}

// Move is one applied half-move. Append-only, keyed by (GameID, Ply).
type Move struct {
	GameID   int64
	Ply      int
	Notation string
}

// GameEnd carries the terminal outcome committed together with a move.
// Winner is nil for draws.
type GameEnd struct {
	Winner      *Color
	Termination Termination
}

// Stats is a point-in-time summary for the ops endpoint.
type Stats struct {
	Users        int64 `json:"users"`
	Games        int64 `json:"games"`
	PendingGames int64 `json:"pending_games"`
	ActiveGames  int64 `json:"active_games"`
	Moves        int64 `json:"moves"`
}
