// Package cache holds the live board for each non-terminal game. It is a
// read-through accelerator over the durable store, never authoritative:
// entries are rebuilt from the store on miss and removed the moment a game
// turns terminal. The per-entry lock serializes all in-process mutation of
// one game's board; cross-game operations never contend.
package cache

import (
	"context"
	"sync"

	"github.com/immanelg/tgpawn/internal/board"
)

// Loader rebuilds a board from durable truth. It runs with the entry lock
// held, so the position it reads cannot be advanced concurrently in-process.
type Loader func(ctx context.Context) (*board.Board, error)

type entry struct {
	mu    sync.Mutex
	board *board.Board
	dead  bool
}

type Cache struct {
	mu      sync.Mutex
	entries map[int64]*entry
}

func New() *Cache {
	return &Cache{entries: make(map[int64]*entry)}
}

// Handle is an acquired cache entry. The entry lock is held until Release;
// the board must not be touched afterwards.
type Handle struct {
	Board *board.Board

	c      *Cache
	e      *entry
	gameID int64
}

// Acquire returns the live board for gameID with its lock held, loading it
// first if absent. A goroutine that was queued behind an eviction retries
// against a fresh entry rather than observing the dead board.
func (c *Cache) Acquire(ctx context.Context, gameID int64, load Loader) (*Handle, error) {
	for {
		c.mu.Lock()
		e, ok := c.entries[gameID]
		if !ok {
			e = &entry{}
			c.entries[gameID] = e
		}
		c.mu.Unlock()

		e.mu.Lock()
		if e.dead {
			e.mu.Unlock()
			continue
		}
		if e.board == nil {
			b, err := load(ctx)
			if err != nil {
				e.dead = true
				e.mu.Unlock()
				c.remove(gameID, e)
				return nil, err
			}
			e.board = b
		}
		return &Handle{Board: e.board, c: c, e: e, gameID: gameID}, nil
	}
}

// Release unlocks the entry. Must be called exactly once.
func (h *Handle) Release() {
	h.e.mu.Unlock()
}

// Evict drops the entry while still holding its lock, so goroutines queued
// on the same game reload from the store instead of seeing a board that is
// terminal or ahead of a failed commit. Release must still follow.
func (h *Handle) Evict() {
	h.e.dead = true
	h.e.board = nil
	h.c.remove(h.gameID, h.e)
}

// Len returns the number of cached boards.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// remove deletes the entry only if it is still the current one, so an
// eviction racing a fresh Acquire cannot drop the replacement entry.
func (c *Cache) remove(gameID int64, e *entry) {
	c.mu.Lock()
	if cur, ok := c.entries[gameID]; ok && cur == e {
		delete(c.entries, gameID)
	}
	c.mu.Unlock()
}
