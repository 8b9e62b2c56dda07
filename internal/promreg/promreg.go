package promreg

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var registry *prometheus.Registry
var auto promauto.Factory

func init() {
	registry = prometheus.NewRegistry()
	auto = promauto.With(registry)
}

// Auto returns the metric factory bound to the module's private registry.
func Auto() promauto.Factory {
	return auto
}

// Registry returns the private registry so callers can expose or gather it.
func Registry() *prometheus.Registry {
	return registry
}
