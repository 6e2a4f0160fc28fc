package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Credential modes reported in metrics.
const (
	modeNone   = "none"
	modeToken  = "token"
	modeAPIKey = "api_key"
)

// Metrics counts credential resolutions. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	resolutions   *prometheus.CounterVec
	touchFailures prometheus.Counter
}

// NewMetrics creates the auth metrics and registers them with reg. Pass nil
// to skip registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "turnstile_auth_resolutions_total",
				Help: "Credential resolutions by mode and result.",
			},
			[]string{"mode", "result"},
		),
		touchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "turnstile_api_key_touch_failures_total",
			Help: "Failed writes of api key last-used timestamps.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.resolutions, m.touchFailures)
	}
	return m
}

func (m *Metrics) observeResolution(mode string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = KindOf(err).String()
	}
	m.resolutions.WithLabelValues(mode, result).Inc()
}

func (m *Metrics) touchFailed() {
	if m == nil {
		return
	}
	m.touchFailures.Inc()
}
