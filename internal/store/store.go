package store

import (
	"context"
	"errors"
)

// ErrConflict is returned when a guarded update matched zero rows, e.g. a
// move or resignation against a game that turned terminal concurrently.
// The caller's cached state is stale and must be discarded.
var ErrConflict = errors.New("store: conflicting update")

// Store is the durable record of users, games and moves. It is the single
// source of truth across restarts; its transactions are the sole arbiter of
// ordering between concurrent mutations of the same game.
type Store interface {
	// EnsureUser inserts the user row if it does not exist yet.
	EnsureUser(ctx context.Context, userID int64) error

	// ActiveGameByUser returns the user's unique non-terminal game,
	// or nil when the user is not playing.
	ActiveGameByUser(ctx context.Context, userID int64) (*Game, error)

	// Game returns the game row by id, or nil when absent.
	Game(ctx context.Context, id int64) (*Game, error)

	// ClaimSeat atomically fills the empty seat of the oldest pending game
	// not involving userID and returns the now-active game. Returns nil
	// when no such game exists, and ErrConflict when userID already holds
	// a non-terminal game. Two concurrent claims can never fill the same
	// seat, and a claim can never seat a user who is already playing.
	ClaimSeat(ctx context.Context, userID int64) (*Game, error)

	// OpenGame is the matchmaking fallback: in one transaction it re-runs
	// the seat claim and, only if no pending game is claimable, inserts a
	// fresh pending game with userID seated as white. Returns ErrConflict
	// when userID already holds a non-terminal game. Serialized with
	// ClaimSeat, so two users racing past empty claims end up in one
	// shared game rather than two fresh pending ones.
	OpenGame(ctx context.Context, userID int64, fen string) (*Game, error)

	// AppendMove persists one accepted move and the updated position in a
	// single transaction: the move row at ply = count of already-persisted
	// moves for the game, and the game row's fen. When end is non-nil the
	// game row is additionally marked terminal with winner and termination.
	// Returns the ply assigned, or ErrConflict if the game is already ended.
	AppendMove(ctx context.Context, gameID int64, notation, fen string, end *GameEnd) (int, error)

	// FinishGame marks the game terminal without appending a move
	// (resignation). Winner is nil when a pending game is abandoned.
	// Returns ErrConflict if the game is already ended.
	FinishGame(ctx context.Context, gameID int64, winner *Color, termination Termination) error

	// MovesByGame returns the persisted moves of a game in ply order.
	MovesByGame(ctx context.Context, gameID int64) ([]Move, error)

	// Stats returns row counts for the ops endpoint.
	Stats(ctx context.Context) (Stats, error)

	Close() error
}
