package service

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"imaro-auth/backend/internal/otp/domain"
)

// Metrics counts OTP requests and verification outcomes.
type Metrics struct {
	Requests      *prometheus.CounterVec
	Verifications *prometheus.CounterVec
}

// NewMetrics registers the OTP collectors with reg. A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "imaro",
			Subsystem: "otp",
			Name:      "requests_total",
			Help:      "OTP issuance requests partitioned by result.",
		}, []string{"result"}),
		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "imaro",
			Subsystem: "otp",
			Name:      "verifications_total",
			Help:      "OTP verification attempts partitioned by result.",
		}, []string{"result"}),
	}
}

func (m *Metrics) request(result string) {
	if m != nil {
		m.Requests.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) verification(err error) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(verifyResult(err)).Inc()
}

func verifyResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrExpired):
		return "expired"
	case errors.Is(err, domain.ErrAttemptsExceeded):
		return "attempts_exceeded"
	case errors.Is(err, domain.ErrMismatch):
		return "mismatch"
	default:
		return "error"
	}
}
