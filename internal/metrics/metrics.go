package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the process-wide Prometheus collectors. Handlers increment
// them at the boundary; core services stay metrics-free.
type Metrics struct {
	registry *prometheus.Registry

	LedgerPostings  *prometheus.CounterVec
	EntryDecisions  *prometheus.CounterVec
	TradeDecisions  *prometheus.CounterVec
	ReferralPayouts prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		LedgerPostings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradepay_ledger_postings_total",
			Help: "Completed ledger postings by entry type.",
		}, []string{"type", "service"}),
		EntryDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradepay_entry_decisions_total",
			Help: "Admin decisions on pending ledger entries by outcome.",
		}, []string{"outcome"}),
		TradeDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradepay_trade_decisions_total",
			Help: "Admin decisions on trades by outcome.",
		}, []string{"outcome"}),
		ReferralPayouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradepay_referral_payouts_total",
			Help: "Referral credits settled.",
		}),
	}

	reg.MustRegister(m.LedgerPostings, m.EntryDecisions, m.TradeDecisions, m.ReferralPayouts)
	return m
}

// Handler serves the /metrics endpoint from this registry only. Default
// Go collectors are not exposed on the public listener.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
