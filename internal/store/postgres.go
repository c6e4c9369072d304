package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schemaFiles embed.FS

// Postgres implements Store on top of database/sql with the pq driver.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(databaseURL string) (*Postgres, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	p := &Postgres{db: db}
	if err := p.applySchema(ctx); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return p, nil
}

func (p *Postgres) applySchema(ctx context.Context) error {
	raw, err := schemaFiles.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, string(raw))
	return err
}

func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

func (p *Postgres) EnsureUser(ctx context.Context, userID int64) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO users (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, userID)
	if err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	return nil
}

const gameColumns = `id, white_id, black_id, ended, winner, termination, fen`

func (p *Postgres) ActiveGameByUser(ctx context.Context, userID int64) (*Game, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+gameColumns+`
		FROM games
		WHERE (white_id = $1 OR black_id = $1) AND ended = FALSE
		LIMIT 1`, userID)
	return scanGame(row)
}

func (p *Postgres) Game(ctx context.Context, id int64) (*Game, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+gameColumns+` FROM games WHERE id = $1`, id)
	return scanGame(row)
}

// matchmakingLockKey serializes all matchmaking transactions on one
// advisory lock, making the one-game-per-user guard atomic with the seat
// write and the OpenGame fallback atomic with the claim it re-runs.
const matchmakingLockKey int64 = 0x7467_7061_776e

func lockMatchmaking(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, matchmakingLockKey)
	return err
}

// seatedTx reports whether userID already holds a non-terminal game. Only
// meaningful under the matchmaking lock.
func seatedTx(ctx context.Context, tx *sql.Tx, userID int64) (bool, error) {
	var seated bool
	err := tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM games
			WHERE (white_id = $1 OR black_id = $1) AND ended = FALSE
		)`, userID).Scan(&seated)
	return seated, err
}

// claimSeatTx is the claim statement itself: a single constrained UPDATE
// picks the oldest pending game not already involving userID, locks it
// (skipping rows locked outside matchmaking, e.g. a resignation in flight)
// and fills whichever seat is empty. Old column values are visible in the
// SET expressions, so the CASE fills exactly one seat.
func claimSeatTx(ctx context.Context, tx *sql.Tx, userID int64) (*Game, error) {
	row := tx.QueryRowContext(ctx, `
		UPDATE games
		SET white_id = COALESCE(white_id, $1),
		    black_id = CASE WHEN white_id IS NULL THEN black_id ELSE COALESCE(black_id, $1) END
		WHERE id = (
			SELECT id FROM games
			WHERE ended = FALSE
			  AND (white_id IS NULL OR black_id IS NULL)
			  AND white_id IS DISTINCT FROM $1
			  AND black_id IS DISTINCT FROM $1
			ORDER BY id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+gameColumns, userID)
	return scanGame(row)
}

func (p *Postgres) ClaimSeat(ctx context.Context, userID int64) (*Game, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer tx.Rollback()

	if err := lockMatchmaking(ctx, tx); err != nil {
		return nil, fmt.Errorf("lock matchmaking: %w", err)
	}
	seated, err := seatedTx(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("check user games: %w", err)
	}
	if seated {
		return nil, ErrConflict
	}
	g, err := claimSeatTx(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim tx: %w", err)
	}
	return g, nil
}

func (p *Postgres) OpenGame(ctx context.Context, userID int64, fen string) (*Game, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin open tx: %w", err)
	}
	defer tx.Rollback()

	if err := lockMatchmaking(ctx, tx); err != nil {
		return nil, fmt.Errorf("lock matchmaking: %w", err)
	}
	seated, err := seatedTx(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("check user games: %w", err)
	}
	if seated {
		return nil, ErrConflict
	}

	// A pending game may have appeared since the caller's claims came up
	// empty; taking its seat here is what keeps two racing joiners from
	// stranding two fresh pending games.
	g, err := claimSeatTx(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		row := tx.QueryRowContext(ctx, `
			INSERT INTO games (white_id, black_id, ended, fen)
			VALUES ($1, NULL, FALSE, $2)
			RETURNING `+gameColumns, userID, fen)
		g, err = scanGame(row)
		if err != nil {
			return nil, err
		}
		if g == nil {
			return nil, fmt.Errorf("open game: no row returned")
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit open tx: %w", err)
	}
	return g, nil
}

func (p *Postgres) AppendMove(ctx context.Context, gameID int64, notation, fen string, end *GameEnd) (int, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin move tx: %w", err)
	}
	defer tx.Rollback()

	// Ply comes from the persisted move count, not an in-memory counter,
	// so the sequence stays gapless across restarts.
	var ply int
	err = tx.QueryRowContext(ctx, `
		INSERT INTO moves (game_id, ply, notation)
		VALUES ($1, (SELECT COUNT(*) FROM moves WHERE game_id = $1), $2)
		RETURNING ply`, gameID, notation).Scan(&ply)
	if err != nil {
		return 0, fmt.Errorf("insert move: %w", err)
	}

	var res sql.Result
	if end != nil {
		res, err = tx.ExecContext(ctx, `
			UPDATE games SET fen = $2, ended = TRUE, winner = $3, termination = $4
			WHERE id = $1 AND ended = FALSE`,
			gameID, fen, nullColor(end.Winner), string(end.Termination))
	} else {
		res, err = tx.ExecContext(ctx, `
			UPDATE games SET fen = $2 WHERE id = $1 AND ended = FALSE`, gameID, fen)
	}
	if err != nil {
		return 0, fmt.Errorf("update game: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrConflict
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit move tx: %w", err)
	}
	return ply, nil
}

func (p *Postgres) FinishGame(ctx context.Context, gameID int64, winner *Color, termination Termination) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE games SET ended = TRUE, winner = $2, termination = $3
		WHERE id = $1 AND ended = FALSE`,
		gameID, nullColor(winner), string(termination))
	if err != nil {
		return fmt.Errorf("finish game: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

func (p *Postgres) MovesByGame(ctx context.Context, gameID int64) ([]Move, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT game_id, ply, notation FROM moves
		WHERE game_id = $1 ORDER BY ply`, gameID)
	if err != nil {
		return nil, fmt.Errorf("select moves: %w", err)
	}
	defer rows.Close()

	var moves []Move
	for rows.Next() {
		var m Move
		if err := rows.Scan(&m.GameID, &m.Ply, &m.Notation); err != nil {
			return nil, fmt.Errorf("scan move: %w", err)
		}
		moves = append(moves, m)
	}
	return moves, rows.Err()
}

func (p *Postgres) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := p.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM games),
			(SELECT COUNT(*) FROM games WHERE ended = FALSE AND (white_id IS NULL OR black_id IS NULL)),
			(SELECT COUNT(*) FROM games WHERE ended = FALSE AND white_id IS NOT NULL AND black_id IS NOT NULL),
			(SELECT COUNT(*) FROM moves)`).
		Scan(&s.Users, &s.Games, &s.PendingGames, &s.ActiveGames, &s.Moves)
	if err != nil {
		return Stats{}, fmt.Errorf("select stats: %w", err)
	}
	return s, nil
}

func scanGame(row *sql.Row) (*Game, error) {
	var (
		g           Game
		whiteID     sql.NullInt64
		blackID     sql.NullInt64
		winner      sql.NullString
		termination sql.NullString
	)
	err := row.Scan(&g.ID, &whiteID, &blackID, &g.Ended, &winner, &termination, &g.FEN)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan game: %w", err)
	}
	if whiteID.Valid {
		g.WhiteID = &whiteID.Int64
	}
	if blackID.Valid {
		g.BlackID = &blackID.Int64
	}
	if winner.Valid {
		c := Color(winner.String)
		g.Winner = &c
	}
	if termination.Valid {
		t := Termination(termination.String)
		g.Termination = &t
	}
	return &g, nil
}

func nullColor(c *Color) sql.NullString {
	if c == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*c), Valid: true}
}
