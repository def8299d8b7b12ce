// Package metrics provides Prometheus instrumentation for the iSCSI
// target, exported over the admin API's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks target-wide Prometheus metrics.
//
// All metrics use the iscsi_ prefix. Every method tolerates a nil receiver
// so callers can pass a nil *Metrics to disable collection without a
// conditional at every call site.
type Metrics struct {
	// ConnectionsTotal counts accepted connections.
	ConnectionsTotal prometheus.Counter
	// ConnectionsRejectedTotal counts connections turned away over the
	// configured connection limit or during shutdown.
	ConnectionsRejectedTotal prometheus.Counter
	// ConnectionsForceClosedTotal counts connections force-closed after a
	// shutdown drain timeout.
	ConnectionsForceClosedTotal prometheus.Counter
	// ActiveConnections is the current number of connections being served.
	ActiveConnections prometheus.Gauge

	// CommandsTotal counts SCSI commands dispatched, by CDB opcode and
	// resulting SAM status.
	CommandsTotal *prometheus.CounterVec
	// CommandDuration tracks SCSI command dispatch latency by CDB opcode.
	CommandDuration *prometheus.HistogramVec

	// BytesRead/BytesWritten count payload bytes moved across Data-In/
	// Data-Out PDUs.
	BytesRead    prometheus.Counter
	BytesWritten prometheus.Counter

	// LoginsTotal counts completed Login Request exchanges by outcome
	// ("success", "auth_failure", "rejected").
	LoginsTotal *prometheus.CounterVec

	// SessionsActive is the current number of sessions in full feature
	// phase.
	SessionsActive prometheus.Gauge
}

// New creates target metrics registered against reg. Panics if
// registration fails, which only happens on a programming error (a
// duplicate metric name) caught at startup.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "iscsi_connections_total",
			Help: "Total TCP connections accepted",
		}),
		ConnectionsRejectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "iscsi_connections_rejected_total",
			Help: "Total connections rejected over the connection limit or during shutdown",
		}),
		ConnectionsForceClosedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "iscsi_connections_force_closed_total",
			Help: "Total connections force-closed after a shutdown drain timeout",
		}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "iscsi_active_connections",
			Help: "Current number of connections being served",
		}),
		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iscsi_commands_total",
				Help: "Total SCSI commands dispatched by CDB opcode and status",
			},
			[]string{"opcode", "status"},
		),
		CommandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "iscsi_command_duration_seconds",
				Help:    "SCSI command dispatch duration in seconds by CDB opcode",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"opcode"},
		),
		BytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "iscsi_bytes_read_total",
			Help: "Total payload bytes returned to initiators via Data-In",
		}),
		BytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "iscsi_bytes_written_total",
			Help: "Total payload bytes accepted from initiators via immediate data and Data-Out",
		}),
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iscsi_logins_total",
				Help: "Total completed login exchanges by outcome",
			},
			[]string{"outcome"},
		),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "iscsi_sessions_active",
			Help: "Current number of sessions in full feature phase",
		}),
	}

	reg.MustRegister(
		m.ConnectionsTotal,
		m.ConnectionsRejectedTotal,
		m.ConnectionsForceClosedTotal,
		m.ActiveConnections,
		m.CommandsTotal,
		m.CommandDuration,
		m.BytesRead,
		m.BytesWritten,
		m.LoginsTotal,
		m.SessionsActive,
	)

	return m
}

// RecordConnectionAccepted implements target.MetricsRecorder.
func (m *Metrics) RecordConnectionAccepted() {
	if m == nil {
		return
	}
	m.ConnectionsTotal.Inc()
}

// RecordConnectionClosed implements target.MetricsRecorder.
func (m *Metrics) RecordConnectionClosed() {
	if m == nil {
		return
	}
}

// RecordConnectionForceClosed implements target.MetricsRecorder.
func (m *Metrics) RecordConnectionForceClosed() {
	if m == nil {
		return
	}
	m.ConnectionsForceClosedTotal.Inc()
}

// RecordConnectionRejected implements target.MetricsRecorder.
func (m *Metrics) RecordConnectionRejected() {
	if m == nil {
		return
	}
	m.ConnectionsRejectedTotal.Inc()
}

// SetActiveConnections implements target.MetricsRecorder.
func (m *Metrics) SetActiveConnections(count int32) {
	if m == nil {
		return
	}
	m.ActiveConnections.Set(float64(count))
}

// RecordCommand records a dispatched SCSI command's CDB opcode, resulting
// status, and dispatch duration.
func (m *Metrics) RecordCommand(opcode string, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(opcode, status).Inc()
	m.CommandDuration.WithLabelValues(opcode).Observe(durationSeconds)
}

// RecordBytesRead adds n to the cumulative Data-In byte counter.
func (m *Metrics) RecordBytesRead(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.BytesRead.Add(float64(n))
}

// RecordBytesWritten adds n to the cumulative Data-Out/immediate-data byte
// counter.
func (m *Metrics) RecordBytesWritten(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.BytesWritten.Add(float64(n))
}

// RecordLogin records one completed login exchange's outcome: "success",
// "auth_failure", or "rejected".
func (m *Metrics) RecordLogin(outcome string) {
	if m == nil {
		return
	}
	m.LoginsTotal.WithLabelValues(outcome).Inc()
}

// SetSessionsActive updates the active full-feature-phase session gauge.
func (m *Metrics) SetSessionsActive(count int) {
	if m == nil {
		return
	}
	m.SessionsActive.Set(float64(count))
}

// Null returns a nil *Metrics, which every method above handles as a no-op.
func Null() *Metrics {
	return nil
}
