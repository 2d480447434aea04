package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "settlement_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method", "endpoint"})

	QRGeneratedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_qr_generated_total",
		Help: "QR codes issued",
	})

	QRRedemptionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_qr_redemptions_total",
		Help: "QR redemption attempts by outcome and reason",
	}, []string{"outcome", "reason"})

	PaymentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_ips_payments_total",
		Help: "Instant payments initiated by route and resulting status",
	}, []string{"route", "status"})

	PaymentCallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_ips_status_messages_total",
		Help: "Inbound payment status messages by source and whether they changed a record",
	}, []string{"source", "applied"})

	TransportAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_ips_transport_attempts_total",
		Help: "Outbound gateway and participant calls by route and result",
	}, []string{"route", "result"})

	LedgerPostingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_ledger_postings_total",
		Help: "Ledger entries written by kind; replays are counted as duplicate",
	}, []string{"kind", "result"})
)
