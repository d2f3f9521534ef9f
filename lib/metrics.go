package lib

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	challengesIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "darkglass_challenges_issued",
		Help: "The total number of challenges issued, by kind and generator",
	}, []string{"kind", "source"})

	renderFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "darkglass_render_fallbacks",
		Help: "The total number of challenges replaced with a text fallback because rendering failed",
	})

	validationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "darkglass_validations",
		Help: "The total number of answers judged",
	})

	validationsPassed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "darkglass_validations_passed",
		Help: "The total number of answers judged correct",
	})

	rateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "darkglass_rate_limited",
		Help: "The total number of submissions refused by the rate limit",
	})
)
