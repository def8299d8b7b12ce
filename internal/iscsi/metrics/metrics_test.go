package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gatherNames(t *testing.T, reg *prometheus.Registry) map[string]bool {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(mfs))
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	return names
}

func TestNewRegistersEveryMetric(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	require.NotNil(t, m)

	m.RecordConnectionAccepted()
	m.SetActiveConnections(3)
	m.RecordCommand("0x28", "0x00", 0.001)
	m.RecordBytesRead(512)
	m.RecordBytesWritten(512)
	m.RecordLogin("success")
	m.SetSessionsActive(2)

	names := gatherNames(t, reg)
	for _, want := range []string{
		"iscsi_connections_total",
		"iscsi_connections_rejected_total",
		"iscsi_connections_force_closed_total",
		"iscsi_active_connections",
		"iscsi_commands_total",
		"iscsi_command_duration_seconds",
		"iscsi_bytes_read_total",
		"iscsi_bytes_written_total",
		"iscsi_logins_total",
		"iscsi_sessions_active",
	} {
		assert.True(t, names[want], "expected metric %q to be registered", want)
	}
}

func TestRecordConnectionAcceptedIncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordConnectionAccepted()
	m.RecordConnectionAccepted()

	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() == "iscsi_connections_total" {
			require.Len(t, mf.GetMetric(), 1)
			assert.Equal(t, 2.0, mf.GetMetric()[0].GetCounter().GetValue())
			return
		}
	}
	t.Fatal("iscsi_connections_total not found")
}

func TestSetActiveConnectionsUpdatesGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SetActiveConnections(7)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() == "iscsi_active_connections" {
			require.Len(t, mf.GetMetric(), 1)
			assert.Equal(t, 7.0, mf.GetMetric()[0].GetGauge().GetValue())
			return
		}
	}
	t.Fatal("iscsi_active_connections not found")
}

// TestNilMetricsNoPanic mirrors the teacher's nil-receiver safety
// convention: every method must tolerate a nil *Metrics so callers never
// need a conditional at the call site.
func TestNilMetricsNoPanic(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordConnectionAccepted()
		m.RecordConnectionClosed()
		m.RecordConnectionForceClosed()
		m.RecordConnectionRejected()
		m.SetActiveConnections(1)
		m.RecordCommand("0x28", "0x00", 0.01)
		m.RecordBytesRead(1)
		m.RecordBytesWritten(1)
		m.RecordLogin("success")
		m.SetSessionsActive(1)
	})
}

func TestNullReturnsNilMetrics(t *testing.T) {
	assert.Nil(t, Null())
}
