// Package engine is the game session core: it pairs joining users into
// games, applies moves under the rules engine, and keeps the durable store
// and the in-process board cache consistent. The store's transactions are
// the sole arbiter of ordering; the cache only accelerates position access
// and is dropped whenever it could run ahead of a commit.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/immanelg/tgpawn/internal/board"
	"github.com/immanelg/tgpawn/internal/cache"
	"github.com/immanelg/tgpawn/internal/msgcat"
	"github.com/immanelg/tgpawn/internal/obslog"
	"github.com/immanelg/tgpawn/internal/store"
)

// Notifier delivers a single human-readable line to one user. Delivery is
// fire-and-forget: failures are the transport's to log and never roll back
// committed game state.
type Notifier interface {
	Notify(ctx context.Context, userID int64, text string)
}

// Names resolves display names for notifications. Implementations must
// tolerate unknown users by returning "".
type Names interface {
	Remember(ctx context.Context, userID int64, name string)
	Name(ctx context.Context, userID int64) string
}

// Commands holds the configured chat literals that classify inbound text.
type Commands struct {
	Join   []string
	Resign []string
}

// Event is one inbound chat message, as handed over by the transport.
type Event struct {
	UserID      int64
	DisplayName string
	Text        string
}

type Engine struct {
	store  store.Store
	boards *cache.Cache
	notify Notifier
	names  Names
	cat    *msgcat.Catalog

	cmds       Commands
	joinCmds   map[string]struct{}
	resignCmds map[string]struct{}
}

func New(st store.Store, boards *cache.Cache, notifier Notifier, names Names, cat *msgcat.Catalog, cmds Commands) *Engine {
	if names == nil {
		names = noopNames{}
	}
	e := &Engine{
		store:      st,
		boards:     boards,
		notify:     notifier,
		names:      names,
		cat:        cat,
		cmds:       cmds,
		joinCmds:   commandSet(cmds.Join),
		resignCmds: commandSet(cmds.Resign),
	}
	return e
}

// HandleEvent classifies one inbound message as a join, a resignation or a
// move attempt (the default), runs it, and turns any operation error into a
// single-line status message for the sender. Safe for concurrent use.
func (e *Engine) HandleEvent(ctx context.Context, ev Event) {
	log := obslog.L().With(
		zap.String("op_id", uuid.NewString()[:8]),
		zap.Int64("user_id", ev.UserID),
	)
	log.Info("event", zap.String("name", ev.DisplayName), zap.String("text", ev.Text))

	if err := e.store.EnsureUser(ctx, ev.UserID); err != nil {
		log.Error("ensure_user_error", zap.Error(err))
		e.notify.Notify(ctx, ev.UserID, e.render("error.temporary", nil, "Something went wrong, please try again."))
		return
	}
	e.names.Remember(ctx, ev.UserID, ev.DisplayName)

	var err error
	switch {
	case e.isCommand(e.joinCmds, ev.Text):
		_, err = e.Join(ctx, ev.UserID)
	case e.isCommand(e.resignCmds, ev.Text):
		_, err = e.Resign(ctx, ev.UserID)
	default:
		_, err = e.Move(ctx, ev.UserID, ev.Text)
	}
	if err != nil {
		e.notify.Notify(ctx, ev.UserID, e.errorMessage(err))
		if errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrInvariant) {
			log.Error("operation_error", zap.Error(err))
		} else {
			log.Debug("operation_rejected", zap.Error(err))
		}
	}
}

// JoinOutcome reports how a join request resolved.
type JoinOutcome struct {
	GameID     int64
	Waiting    bool
	Color      store.Color
	OpponentID int64
}

// Join pairs the user with a pending game, or opens a new one. The store
// serializes matchmaking: a claim both fills a seat and enforces that the
// user holds no other non-terminal game, and the OpenGame fallback re-runs
// the claim atomically with the insert. A double-sent join command can
// therefore never seat the same user in two games, however the goroutines
// interleave.
func (e *Engine) Join(ctx context.Context, userID int64) (*JoinOutcome, error) {
	active, err := e.store.ActiveGameByUser(ctx, userID)
	if err != nil {
		joinsTotal.WithLabelValues("error").Inc()
		return nil, e.storeErr("lookup active game", err)
	}
	if active != nil {
		joinsTotal.WithLabelValues("already_playing").Inc()
		return nil, ErrAlreadyPlaying
	}

	// An empty claim is retried once before the fallback: the pending game
	// may have been taken and replaced between the two searches.
	for attempt := 0; attempt < 2; attempt++ {
		g, err := e.store.ClaimSeat(ctx, userID)
		if errors.Is(err, store.ErrConflict) {
			joinsTotal.WithLabelValues("already_playing").Inc()
			return nil, ErrAlreadyPlaying
		}
		if err != nil {
			joinsTotal.WithLabelValues("error").Inc()
			return nil, e.storeErr("claim seat", err)
		}
		if g == nil {
			continue
		}
		return e.joined(ctx, userID, g)
	}

	g, err := e.store.OpenGame(ctx, userID, board.StartingFEN)
	if errors.Is(err, store.ErrConflict) {
		joinsTotal.WithLabelValues("already_playing").Inc()
		return nil, ErrAlreadyPlaying
	}
	if err != nil {
		joinsTotal.WithLabelValues("error").Inc()
		return nil, e.storeErr("open game", err)
	}
	if g.Active() {
		// The fallback seated us in a game opened by a racing joiner.
		return e.joined(ctx, userID, g)
	}
	e.notify.Notify(ctx, userID, e.render("join.waiting", nil, "Created a new game. Waiting for an opponent to join."))
	joinsTotal.WithLabelValues("waiting").Inc()
	obslog.L().Info("game_created", zap.Int64("game_id", g.ID), zap.Int64("white_id", userID))
	return &JoinOutcome{GameID: g.ID, Waiting: true, Color: store.White}, nil
}

// joined finishes a successful seat claim: verifies the game came back
// fully seated, notifies both players and reports the pairing.
func (e *Engine) joined(ctx context.Context, userID int64, g *store.Game) (*JoinOutcome, error) {
	color, seated := g.ColorOf(userID)
	opponent, hasOpponent := g.OpponentOf(userID)
	if !seated || !hasOpponent || !g.Active() {
		obslog.L().Error("matchmaking_bad_claim",
			zap.Int64("game_id", g.ID),
			zap.Int64("user_id", userID),
			zap.Bool("seated", seated),
			zap.Bool("ended", g.Ended))
		joinsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: seat claim on game %d", ErrInvariant, g.ID)
	}

	whiteID, _ := g.PlayerID(store.White)
	blackID, _ := g.PlayerID(store.Black)
	e.notify.Notify(ctx, whiteID, e.render("join.paired_white", nil, "You are white. Your turn!"))
	e.notify.Notify(ctx, blackID, e.render("join.paired_black", nil, "You are black. Waiting for opponent's move."))
	joinsTotal.WithLabelValues("paired").Inc()
	obslog.L().Info("paired",
		zap.Int64("game_id", g.ID),
		zap.Int64("white_id", whiteID),
		zap.Int64("black_id", blackID))
	return &JoinOutcome{GameID: g.ID, Color: color, OpponentID: opponent}, nil
}

// MoveOutcome reports one accepted move.
type MoveOutcome struct {
	GameID      int64
	Ply         int
	Notation    string
	FEN         string
	GameOver    bool
	Winner      *store.Color
	Termination store.Termination
}

// Move runs the full pipeline for one move attempt: active-game lookup,
// board acquisition, turn check, parse, legality, apply, transactional
// persist, terminal eviction and notifications. A failed commit drops the
// cache entry so the next access rebuilds from the untouched store row.
func (e *Engine) Move(ctx context.Context, userID int64, text string) (*MoveOutcome, error) {
	g, err := e.store.ActiveGameByUser(ctx, userID)
	if err != nil {
		movesTotal.WithLabelValues("error").Inc()
		return nil, e.storeErr("lookup active game", err)
	}
	if g == nil {
		movesTotal.WithLabelValues("not_playing").Inc()
		return nil, ErrNotPlaying
	}
	color, seated := g.ColorOf(userID)
	if !seated {
		movesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: active game %d without seat for user %d", ErrInvariant, g.ID, userID)
	}

	h, err := e.boards.Acquire(ctx, g.ID, e.boardLoader(g.ID))
	if err != nil {
		if errors.Is(err, errGameOver) {
			movesTotal.WithLabelValues("not_playing").Inc()
			return nil, ErrNotPlaying
		}
		movesTotal.WithLabelValues("error").Inc()
		return nil, e.storeErr("load board", err)
	}
	defer h.Release()
	defer e.syncGauge()

	if h.Board.Turn() != color {
		movesTotal.WithLabelValues("not_your_turn").Inc()
		return nil, ErrNotYourTurn
	}
	mv, err := h.Board.Parse(text)
	if err != nil {
		movesTotal.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidNotation
	}
	if !h.Board.Legal(mv) {
		movesTotal.WithLabelValues("illegal").Inc()
		return nil, ErrIllegalMove
	}

	if err := h.Board.Apply(mv); err != nil {
		h.Evict()
		movesTotal.WithLabelValues("error").Inc()
		obslog.L().Error("apply_after_legal_failed",
			zap.Int64("game_id", g.ID), zap.String("move", mv.String()), zap.Error(err))
		return nil, fmt.Errorf("%w: apply legal move: %v", ErrInvariant, err)
	}

	fen := h.Board.Encode()
	over, winner, termination := h.Board.Outcome()
	var end *store.GameEnd
	if over {
		end = &store.GameEnd{Winner: winner, Termination: termination}
	}

	ply, err := e.store.AppendMove(ctx, g.ID, mv.String(), fen, end)
	if err != nil {
		// The cached board is now ahead of the store; drop it so the next
		// access rebuilds from the committed position.
		h.Evict()
		if errors.Is(err, store.ErrConflict) {
			movesTotal.WithLabelValues("not_playing").Inc()
			return nil, ErrNotPlaying
		}
		movesTotal.WithLabelValues("error").Inc()
		return nil, e.storeErr("commit move", err)
	}
	if over {
		h.Evict()
	}

	out := &MoveOutcome{
		GameID:      g.ID,
		Ply:         ply,
		Notation:    mv.String(),
		FEN:         fen,
		GameOver:    over,
		Winner:      winner,
		Termination: termination,
	}
	e.notifyMove(ctx, g, out)
	movesTotal.WithLabelValues("applied").Inc()
	if over {
		gamesFinishedTotal.WithLabelValues(string(termination)).Inc()
	}
	obslog.L().Info("move",
		zap.Int64("game_id", g.ID),
		zap.Int64("user_id", userID),
		zap.Int("ply", ply),
		zap.String("notation", out.Notation),
		zap.Bool("game_over", over))
	return out, nil
}

// ResignOutcome reports a resignation.
type ResignOutcome struct {
	GameID int64
	Winner *store.Color
}

// Resign marks the user's game terminal with the opponent as winner. A
// pending game (no opponent yet) is simply abandoned with no winner.
func (e *Engine) Resign(ctx context.Context, userID int64) (*ResignOutcome, error) {
	g, err := e.store.ActiveGameByUser(ctx, userID)
	if err != nil {
		return nil, e.storeErr("lookup active game", err)
	}
	if g == nil {
		return nil, ErrNotPlaying
	}
	color, seated := g.ColorOf(userID)
	if !seated {
		return nil, fmt.Errorf("%w: active game %d without seat for user %d", ErrInvariant, g.ID, userID)
	}

	// Acquire the board entry to serialize with any in-flight move on the
	// same game before the terminal transition.
	h, err := e.boards.Acquire(ctx, g.ID, e.boardLoader(g.ID))
	if err != nil {
		if errors.Is(err, errGameOver) {
			return nil, ErrNotPlaying
		}
		return nil, e.storeErr("load board", err)
	}
	defer h.Release()
	defer e.syncGauge()

	opponent, hasOpponent := g.OpponentOf(userID)
	var winner *store.Color
	if hasOpponent {
		w := color.Other()
		winner = &w
	}

	if err := e.store.FinishGame(ctx, g.ID, winner, store.TerminationResignation); err != nil {
		h.Evict()
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrNotPlaying
		}
		return nil, e.storeErr("finish game", err)
	}
	h.Evict()

	if hasOpponent {
		e.notify.Notify(ctx, userID, e.render("resign.you",
			map[string]string{"Winner": e.playerLabel(ctx, g, *winner)}, "You resigned."))
		e.notify.Notify(ctx, opponent, e.render("resign.opponent", nil, "Your opponent resigned. You win!"))
	} else {
		e.notify.Notify(ctx, userID, e.render("resign.abandoned", nil, "Game abandoned."))
	}
	gamesFinishedTotal.WithLabelValues(string(store.TerminationResignation)).Inc()
	obslog.L().Info("resigned",
		zap.Int64("game_id", g.ID),
		zap.Int64("user_id", userID),
		zap.Bool("had_opponent", hasOpponent))
	return &ResignOutcome{GameID: g.ID, Winner: winner}, nil
}

// boardLoader rebuilds a game's board from the store row. It re-reads the
// row under the entry lock so a position committed between lookup and load
// can never be replayed onto a stale base.
func (e *Engine) boardLoader(gameID int64) cache.Loader {
	return func(ctx context.Context) (*board.Board, error) {
		g, err := e.store.Game(ctx, gameID)
		if err != nil {
			return nil, err
		}
		if g == nil || g.Ended {
			return nil, errGameOver
		}
		return board.Decode(g.FEN)
	}
}

var errGameOver = errors.New("engine: game already over")

// noopNames is used when no name source is configured.
type noopNames struct{}

func (noopNames) Remember(context.Context, int64, string) {}
func (noopNames) Name(context.Context, int64) string      { return "" }

func (e *Engine) notifyMove(ctx context.Context, g *store.Game, out *MoveOutcome) {
	played := e.render("move.played",
		map[string]string{"Move": out.Notation, "FEN": out.FEN},
		fmt.Sprintf("Played %s, FEN is now %s", out.Notation, out.FEN))

	var gameOver string
	if out.GameOver {
		if out.Winner != nil {
			gameOver = e.render("move.game_over_checkmate",
				map[string]string{"Winner": e.playerLabel(ctx, g, *out.Winner)}, "Game over: checkmate.")
		} else {
			gameOver = e.render("move.game_over_draw", nil, "Game over: draw.")
		}
	}

	for _, c := range []store.Color{store.White, store.Black} {
		id, ok := g.PlayerID(c)
		if !ok {
			continue
		}
		e.notify.Notify(ctx, id, played)
		if gameOver != "" {
			e.notify.Notify(ctx, id, gameOver)
		}
	}
}

// playerLabel names a side for messages: "White (Alice)" when the display
// name is known, otherwise just "White".
func (e *Engine) playerLabel(ctx context.Context, g *store.Game, c store.Color) string {
	label := "White"
	if c == store.Black {
		label = "Black"
	}
	if id, ok := g.PlayerID(c); ok {
		if name := e.names.Name(ctx, id); name != "" {
			return fmt.Sprintf("%s (%s)", label, name)
		}
	}
	return label
}

func (e *Engine) errorMessage(err error) string {
	switch {
	case errors.Is(err, ErrAlreadyPlaying):
		return e.render("join.already_playing",
			map[string]string{"Resign": firstCommand(e.cmds.Resign, "/resign")},
			"You are already playing.")
	case errors.Is(err, ErrNotPlaying):
		return e.render("move.not_playing",
			map[string]string{"Join": firstCommand(e.cmds.Join, "/start")},
			"Join a game first.")
	case errors.Is(err, ErrNotYourTurn):
		return e.render("move.not_your_turn", nil, "Not your turn!")
	case errors.Is(err, ErrInvalidNotation):
		return e.render("move.invalid", nil, "This is not a valid move.")
	case errors.Is(err, ErrIllegalMove):
		return e.render("move.illegal", nil, "This move is not legal.")
	default:
		return e.render("error.temporary", nil, "Something went wrong, please try again.")
	}
}

func (e *Engine) render(key string, data any, fallback string) string {
	s, err := e.cat.Render(key, data)
	if err != nil {
		obslog.L().Warn("msgcat_render_error", zap.String("key", key), zap.Error(err))
		return fallback
	}
	return s
}

func (e *Engine) storeErr(op string, err error) error {
	obslog.L().Error("store_error", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}

func (e *Engine) syncGauge() {
	cachedBoards.Set(float64(e.boards.Len()))
}

func (e *Engine) isCommand(set map[string]struct{}, text string) bool {
	_, ok := set[strings.ToLower(strings.TrimSpace(text))]
	return ok
}

// firstCommand picks the literal echoed in status messages: the first
// slash-prefixed entry in configured order, then the first entry at all.
func firstCommand(cmds []string, fallback string) string {
	for _, c := range cmds {
		if strings.HasPrefix(strings.TrimSpace(c), "/") {
			return strings.TrimSpace(c)
		}
	}
	for _, c := range cmds {
		if s := strings.TrimSpace(c); s != "" {
			return s
		}
	}
	return fallback
}

func commandSet(cmds []string) map[string]struct{} {
	set := make(map[string]struct{}, len(cmds))
	for _, c := range cmds {
		c = strings.ToLower(strings.TrimSpace(c))
		if c != "" {
			set[c] = struct{}{}
		}
	}
	return set
}
