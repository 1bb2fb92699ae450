// Package metrics defines the Prometheus counters exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the application counters.
type Metrics struct {
	Registry *prometheus.Registry

	Logins        *prometheus.CounterVec
	Registrations *prometheus.CounterVec
	QROpens       prometheus.Counter
	Scans         *prometheus.CounterVec
	Marks         *prometheus.CounterVec
	Clients       prometheus.Counter
}

// New registers every counter, plus the Go and process collectors, on a
// fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smartattend",
			Name:      "logins_total",
			Help:      "Login attempts by role and result.",
		}, []string{"role", "result"}),
		Registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smartattend",
			Name:      "registrations_total",
			Help:      "Registration attempts by role and result.",
		}, []string{"role", "result"}),
		QROpens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "smartattend",
			Name:      "qr_opens_total",
			Help:      "QR modals opened by teachers.",
		}),
		Scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smartattend",
			Name:      "scans_total",
			Help:      "Scanner events by outcome.",
		}, []string{"result"}),
		Marks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smartattend",
			Name:      "attendance_marks_total",
			Help:      "Attendance marks, split into new and duplicate.",
		}, []string{"result"}),
		Clients: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "smartattend",
			Name:      "clients_total",
			Help:      "Client tokens issued.",
		}),
	}
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Logins, m.Registrations, m.QROpens, m.Scans, m.Marks, m.Clients,
	)
	return m
}

// Result maps a boolean outcome to a label value.
func Result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
