// Package metrics registers the agent's Prometheus instruments and
// serves them over /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pilot_decisions_total",
			Help: "Cycle decisions by resulting action",
		},
		[]string{"action"},
	)

	orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pilot_orders_total",
			Help: "Order attempts by outcome (filled|rejected|failed)",
		},
		[]string{"outcome"},
	)

	folds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pilot_closes_total",
			Help: "Position closes by strategy",
		},
		[]string{"strategy"},
	)

	equity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pilot_equity",
			Help: "Account equity in the account currency",
		},
	)

	riskLevel = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pilot_risk_level",
			Help: "Current risk level (0 low, 1 medium, 2 high)",
		},
	)
)

func init() {
	prometheus.MustRegister(decisions, orders, folds, equity, riskLevel)
}

func CountDecision(action string) { decisions.WithLabelValues(action).Inc() }
func CountOrder(outcome string)   { orders.WithLabelValues(outcome).Inc() }
func CountClose(strategy string)  { folds.WithLabelValues(strategy).Inc() }
func SetEquity(v float64)         { equity.Set(v) }
func SetRiskLevel(level int)      { riskLevel.Set(float64(level)) }

// Serve exposes /metrics on addr. It blocks, so callers run it in a
// goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
