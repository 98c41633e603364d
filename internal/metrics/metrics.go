// Package metrics exposes Prometheus counters for the usage ledger and
// token stores. Counters are always collected; the /metrics endpoint is
// mounted only when ENABLE_METRICS is set.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// UsageIncrements counts successful ledger increments per usage type.
	UsageIncrements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "replyguy_usage_increments_total",
		Help: "Number of usage counter increments, by usage type.",
	}, []string{"type"})

	// LimitDenials counts actions denied by billing-period caps.
	LimitDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "replyguy_usage_limit_denials_total",
		Help: "Number of actions denied because a billing-period cap was reached.",
	}, []string{"tier"})

	// TokenRedemptions counts trial token redemption attempts by outcome.
	TokenRedemptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "replyguy_trial_redemptions_total",
		Help: "Number of trial token redemption attempts, by outcome.",
	}, []string{"result"})

	// ReferralCodes counts referral codes issued.
	ReferralCodes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "replyguy_referral_codes_issued_total",
		Help: "Number of referral codes generated.",
	})

	// WebhookDeliveries counts webhook delivery attempts by status.
	WebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "replyguy_webhook_deliveries_total",
		Help: "Number of webhook delivery attempts, by status.",
	}, []string{"status"})
)

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
