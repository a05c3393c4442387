package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	ticks          *prometheus.CounterVec
	shutdowns      *prometheus.CounterVec
	polls          *prometheus.CounterVec
	vmStatus       *prometheus.GaugeVec
	playerCount    prometheus.Gauge
	idleSeconds    prometheus.Gauge
	httpRequests   *prometheus.CounterVec
	commandsTotal  *prometheus.CounterVec
	notifyFailures *prometheus.CounterVec
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in tests.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		gatherer: reg,
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_ticks_total",
			Help: "Idle-detection ticks by outcome.",
		}, []string{"outcome"}),
		shutdowns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_shutdowns_total",
			Help: "Shutdown sequences by trigger and result.",
		}, []string{"trigger", "result"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "poller_polls_total",
			Help: "Telemetry polls by outcome.",
		}, []string{"outcome"}),
		vmStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vm_status",
			Help: "1 for the last observed VM status, 0 otherwise.",
		}, []string{"status"}),
		playerCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "game_players_online",
			Help: "Last observed player count.",
		}),
		idleSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "game_idle_seconds",
			Help: "Seconds the running server has been empty; 0 when occupied.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_commands_total",
			Help: "Chat commands by name and result.",
		}, []string{"command", "result"}),
		notifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_failures_total",
			Help: "Failed lifecycle notifications by sink.",
		}, []string{"sink"}),
	}

	reg.MustRegister(
		m.ticks,
		m.shutdowns,
		m.polls,
		m.vmStatus,
		m.playerCount,
		m.idleSeconds,
		m.httpRequests,
		m.commandsTotal,
		m.notifyFailures,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) Tick(outcome string) {
	if m == nil {
		return
	}
	m.ticks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Shutdown(trigger string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.shutdowns.WithLabelValues(trigger, result).Inc()
}

func (m *Metrics) Poll(online bool) {
	if m == nil {
		return
	}
	outcome := "online"
	if !online {
		outcome = "offline"
	}
	m.polls.WithLabelValues(outcome).Inc()
}

// VMStatus marks status as the current one.
func (m *Metrics) VMStatus(status string) {
	if m == nil {
		return
	}
	m.vmStatus.Reset()
	m.vmStatus.WithLabelValues(status).Set(1)
}

func (m *Metrics) Occupancy(players int, idleSeconds float64) {
	if m == nil {
		return
	}
	m.playerCount.Set(float64(players))
	m.idleSeconds.Set(idleSeconds)
}

func (m *Metrics) HTTPRequest(route string, status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

func (m *Metrics) Command(name, result string) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(name, result).Inc()
}

func (m *Metrics) NotifyFailure(sink string) {
	if m == nil {
		return
	}
	m.notifyFailures.WithLabelValues(sink).Inc()
}
