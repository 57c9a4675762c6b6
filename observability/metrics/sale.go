package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type SaleMetrics struct {
	purchases   *prometheus.CounterVec
	minted      prometheus.Counter
	withdrawals *prometheus.CounterVec
	tokenSupply prometheus.Gauge
	rejections  *prometheus.CounterVec
}

var (
	saleOnce     sync.Once
	saleRegistry *SaleMetrics
)

func Sale() *SaleMetrics {
	saleOnce.Do(func() {
		saleRegistry = &SaleMetrics{
			purchases: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "sale_purchases_total",
				Help: "Count of completed purchases by payment asset.",
			}, []string{"asset"}),
			minted: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "sale_minted_total",
				Help: "Total reward token base units minted through the sale.",
			}),
			withdrawals: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "sale_withdrawals_total",
				Help: "Count of post-sale withdrawals by asset.",
			}, []string{"asset"}),
			tokenSupply: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "token_total_supply",
				Help: "Current reward token supply in base units.",
			}),
			rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "sale_rejections_total",
				Help: "Count of rejected purchase attempts by reason.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			saleRegistry.purchases,
			saleRegistry.minted,
			saleRegistry.withdrawals,
			saleRegistry.tokenSupply,
			saleRegistry.rejections,
		)
	})
	return saleRegistry
}

func (m *SaleMetrics) ObservePurchase(asset string, minted float64) {
	if m == nil {
		return
	}
	if asset == "" {
		asset = "unknown"
	}
	m.purchases.WithLabelValues(asset).Inc()
	m.minted.Add(minted)
}

func (m *SaleMetrics) ObserveWithdrawal(asset string) {
	if m == nil {
		return
	}
	if asset == "" {
		asset = "unknown"
	}
	m.withdrawals.WithLabelValues(asset).Inc()
}

func (m *SaleMetrics) SetTokenSupply(supply float64) {
	if m == nil {
		return
	}
	m.tokenSupply.Set(supply)
}

func (m *SaleMetrics) ObserveRejection(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.rejections.WithLabelValues(reason).Inc()
}

type RPCMetrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	rpcOnce     sync.Once
	rpcRegistry *RPCMetrics
)

func RPC() *RPCMetrics {
	rpcOnce.Do(func() {
		rpcRegistry = &RPCMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "rpc_requests_total",
				Help: "Count of JSON-RPC requests by method.",
			}, []string{"method"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "rpc_errors_total",
				Help: "Count of JSON-RPC error responses by method.",
			}, []string{"method"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "rpc_request_duration_seconds",
				Help:    "JSON-RPC handler latency by method.",
				Buckets: prometheus.DefBuckets,
			}, []string{"method"}),
		}
		prometheus.MustRegister(rpcRegistry.requests, rpcRegistry.errors, rpcRegistry.latency)
	})
	return rpcRegistry
}

func (m *RPCMetrics) ObserveRequest(method string, duration time.Duration, failed bool) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	m.requests.WithLabelValues(method).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
	if failed {
		m.errors.WithLabelValues(method).Inc()
	}
}
