package oracle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var fallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "darkglass_oracle_fallbacks",
	Help: "The total number of oracle calls that fell back to the local implementation",
}, []string{"op"})
