package wsserver

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Move outcomes counted by Metrics.Moves.
const (
	MoveValid   = "valid"
	MoveInvalid = "invalid"
	MoveBanned  = "banned"
	MoveDropped = "dropped"
)

// Metrics are the session counters exported on /metrics.
type Metrics struct {
	GamesStarted  prometheus.Counter
	GamesFinished prometheus.Counter
	Moves         *prometheus.CounterVec
	Bans          prometheus.Counter
	Peers         prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		GamesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dobble",
			Name:      "games_started_total",
			Help:      "Sessions that left the waiting state.",
		}),
		GamesFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dobble",
			Name:      "games_finished_total",
			Help:      "Sessions that ended with a winner.",
		}),
		Moves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dobble",
			Name:      "moves_total",
			Help:      "Choose frames by outcome.",
		}, []string{"outcome"}),
		Bans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dobble",
			Name:      "bans_total",
			Help:      "Bans handed out for invalid claims.",
		}),
		Peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dobble",
			Name:      "connected_peers",
			Help:      "Websocket peers currently connected.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.GamesStarted, m.GamesFinished, m.Moves, m.Bans, m.Peers)
	}
	return m
}
