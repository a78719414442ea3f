package registry

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	resolutions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "generate",
		Subsystem: "registry",
		Name:      "resolutions_total",
		Help:      "Extension IRI resolutions by kind and outcome.",
	}, []string{"kind", "result"})

	cacheRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "generate",
		Subsystem: "eval_cache",
		Name:      "requests_total",
		Help:      "Memoized function evaluations by outcome.",
	}, []string{"result"})
)

// RegisterMetrics registers the registry collectors with reg
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{resolutions, cacheRequests} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
