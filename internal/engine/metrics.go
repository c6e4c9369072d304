package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	joinsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tgpawn_joins_total",
		Help: "Join requests by result (waiting, paired, already_playing, error).",
	}, []string{"result"})

	movesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tgpawn_moves_total",
		Help: "Move attempts by result (applied, not_playing, not_your_turn, invalid, illegal, error).",
	}, []string{"result"})

	gamesFinishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tgpawn_games_finished_total",
		Help: "Games reaching a terminal state, by termination reason.",
	}, []string{"termination"})

	cachedBoards = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tgpawn_cached_boards",
		Help: "Live boards currently held in the in-process cache.",
	})
)
