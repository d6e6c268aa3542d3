package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the server
type Metrics struct {
	// List endpoint metrics
	serverListRequests prometheus.Counter

	// Registry metrics
	connectedGameServers prometheus.Gauge
	inGamePlayers        prometheus.Gauge

	// Connection lifecycle metrics
	registrationsTotal      prometheus.Counter
	disconnectionsTotal     prometheus.Counter
	playerUpdatesTotal      prometheus.Counter
	protocolViolationsTotal *prometheus.CounterVec
	reapedConnectionsTotal  prometheus.Counter
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		serverListRequests: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "server_list_requests",
				Help: "Server List Requests",
			},
		),
		connectedGameServers: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "connected_game_servers",
				Help: "Connected Game Servers",
			},
		),
		inGamePlayers: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "in_game_players",
				Help: "In Game Players",
			},
		),
		registrationsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "gameserverlist_registrations_total",
				Help: "Total number of game servers that completed registration",
			},
		),
		disconnectionsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "gameserverlist_disconnections_total",
				Help: "Total number of registered game servers that disconnected",
			},
		),
		playerUpdatesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "gameserverlist_player_updates_total",
				Help: "Total number of player count updates applied",
			},
		),
		protocolViolationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gameserverlist_protocol_violations_total",
				Help: "Total number of connections closed for protocol violations",
			},
			[]string{"reason"},
		),
		reapedConnectionsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "gameserverlist_reaped_connections_total",
				Help: "Total number of idle connections closed by the sweeper",
			},
		),
	}
}

// RecordListRequest increments the list request counter
func (m *Metrics) RecordListRequest() {
	m.serverListRequests.Inc()
}

// RecordRegistered tracks a game server entering the registry
func (m *Metrics) RecordRegistered() {
	m.connectedGameServers.Inc()
	m.registrationsTotal.Inc()
}

// RecordDisconnected tracks a game server leaving the registry,
// removing its remaining players from the global gauge
func (m *Metrics) RecordDisconnected(players uint32) {
	m.connectedGameServers.Dec()
	m.inGamePlayers.Sub(float64(players))
	m.disconnectionsTotal.Inc()
}

// RecordPlayerUpdate moves the global player gauge by the difference
// between the previous and new count for one server
func (m *Metrics) RecordPlayerUpdate(prev, players uint32) {
	m.inGamePlayers.Add(float64(players) - float64(prev))
	m.playerUpdatesTotal.Inc()
}

// RecordViolation increments the violation counter for a reason
func (m *Metrics) RecordViolation(reason string) {
	m.protocolViolationsTotal.WithLabelValues(reason).Inc()
}

// RecordReaped increments the idle-reap counter
func (m *Metrics) RecordReaped() {
	m.reapedConnectionsTotal.Inc()
}
