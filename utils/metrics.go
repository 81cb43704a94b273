package utils

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// MustRegister registers c with reg and returns it. If an equal collector is
// already registered, that one is returned instead.
func MustRegister[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}
