package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DepositsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "vault_deposits_total", Help: "Deposits accepted, by input asset"},
		[]string{"asset"},
	)
	WithdrawalsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "vault_withdrawals_total", Help: "Withdrawals accepted"},
	)
	SwapsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "vault_swaps_total", Help: "Swap-mediated deposits executed, by input asset"},
		[]string{"asset"},
	)
	RejectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "vault_rejects_total", Help: "Operations rejected, by reason"},
		[]string{"reason"},
	)
	TotalDeposited = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "vault_total_deposited", Help: "Reference-asset value in custody (float approximation, display only)"},
	)
)

func init() {
	prometheus.MustRegister(DepositsTotal, WithdrawalsTotal, SwapsTotal, RejectsTotal, TotalDeposited)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
