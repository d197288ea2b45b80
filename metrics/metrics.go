// Package metrics exports chain activity as Prometheus counters. Counters are
// fed from committed events only.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tolelom/arcadechain/events"
)

// Metrics owns a private registry so tests and multiple nodes in one
// process do not collide on the default one.
type Metrics struct {
	reg *prometheus.Registry

	blocks        prometheus.Counter
	txs           *prometheus.CounterVec
	matchesOpened *prometheus.CounterVec
	matchesClosed *prometheus.CounterVec
	moves         *prometheus.CounterVec
	escrowPaid    prometheus.Counter
	escrowSwept   prometheus.Counter
}

// New registers every collector, plus the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		blocks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arcade_blocks_committed_total",
			Help: "Blocks committed to the chain.",
		}),
		txs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arcade_txs_executed_total",
			Help: "Transactions included in committed blocks.",
		}, []string{"type"}),
		matchesOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arcade_matches_started_total",
			Help: "Lobbies promoted to matches.",
		}, []string{"game"}),
		matchesClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arcade_matches_closed_total",
			Help: "Matches settled, by outcome.",
		}, []string{"game", "outcome"}),
		moves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arcade_moves_applied_total",
			Help: "Accepted moves.",
		}, []string{"game"}),
		escrowPaid: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arcade_escrow_paid_total",
			Help: "Tokens paid out of escrow to players.",
		}),
		escrowSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arcade_escrow_swept_total",
			Help: "Tokens swept from escrow to the protocol pool.",
		}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.blocks, m.txs, m.matchesOpened, m.matchesClosed, m.moves, m.escrowPaid, m.escrowSwept,
	)
	return m
}

// Attach subscribes m to emitter.
func (m *Metrics) Attach(emitter *events.Emitter) {
	emitter.SubscribeAll(m.Observe)
}

// Observe updates the counters for one event.
func (m *Metrics) Observe(ev events.Event) {
	switch ev.Type {
	case events.EventBlockCommit:
		m.blocks.Inc()
	case events.EventTxExecuted:
		m.txs.WithLabelValues(str(ev.Data["type"])).Inc()
	case events.EventMatchStarted:
		m.matchesOpened.WithLabelValues(str(ev.Data["game_id"])).Inc()
	case events.EventMoveApplied:
		m.moves.WithLabelValues(str(ev.Data["game_id"])).Inc()
	case events.EventMatchResolved:
		m.matchesClosed.WithLabelValues(str(ev.Data["game_id"]), str(ev.Data["outcome"])).Inc()
		m.escrowPaid.Add(num(ev.Data["paid"]))
		m.escrowSwept.Add(num(ev.Data["swept"]))
	}
}

// Registry exposes the underlying registry for custom collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func num(v any) float64 {
	switch n := v.(type) {
	case uint64:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	}
	return 0
}
