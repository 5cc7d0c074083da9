package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Proxy metrics
	ProxyRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doseid_proxy_requests_total",
			Help: "Total number of proxied requests by outcome",
		},
		[]string{"outcome"},
	)

	ProxyRequestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "doseid_proxy_request_duration_seconds",
			Help:    "Proxied request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Deployment metrics
	ImageBuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doseid_image_builds_total",
			Help: "Total number of image builds by result",
		},
		[]string{"result"},
	)

	DeploymentsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "doseid_deployments_total",
			Help: "Total number of deployments created",
		},
	)

	// Certificate metrics
	CertificatesIssued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "doseid_certificates_issued_total",
			Help: "Total number of certificates issued",
		},
	)

	CertificateRenewals = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "doseid_certificate_renewals_total",
			Help: "Total number of renewal requests enqueued by the sweep",
		},
	)

	CertificateFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "doseid_certificate_failures_total",
			Help: "Total number of abandoned certificate orders",
		},
	)
)

func init() {
	prometheus.MustRegister(ProxyRequestsTotal)
	prometheus.MustRegister(ProxyRequestDuration)
	prometheus.MustRegister(ImageBuildsTotal)
	prometheus.MustRegister(DeploymentsTotal)
	prometheus.MustRegister(CertificatesIssued)
	prometheus.MustRegister(CertificateRenewals)
	prometheus.MustRegister(CertificateFailures)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
