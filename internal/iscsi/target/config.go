// Package target implements the top-level iSCSI target server: the TCP
// accept loop, connection accounting, and graceful shutdown, per spec §4.6.
// Protocol behavior itself lives in internal/iscsi/connection; this package
// only owns the listener lifecycle around it.
package target

import (
	"time"

	"github.com/coregate/iscsid/internal/iscsi/auth"
	"github.com/coregate/iscsid/internal/iscsi/connection"
)

// Config is the server's startup configuration.
type Config struct {
	// BindAddress is the IP to listen on. Empty or "0.0.0.0" binds all
	// interfaces.
	BindAddress string
	// Port is the TCP port to listen on, conventionally 3260.
	Port int

	// TargetName is the IQN this server answers logins for.
	TargetName string
	// RequireCHAP mandates CHAP authentication during login.
	RequireCHAP bool
	// CredentialStore supplies per-initiator CHAP secrets.
	CredentialStore auth.CredentialStore

	// LUNs resolves LUN lookups and discovery portals for every
	// connection this server accepts.
	LUNs connection.LUNSource

	// MaxConnections caps concurrent connections. 0 means unlimited.
	MaxConnections int

	// ShutdownTimeout bounds how long Stop waits for in-flight
	// connections to finish before force-closing them.
	ShutdownTimeout time.Duration

	// Metrics records connection lifecycle events. Nil disables metrics
	// collection with zero overhead.
	Metrics MetricsRecorder
}

// MetricsRecorder lets the server report connection lifecycle events
// without importing the metrics package, mirroring the session package's
// use of plain function hooks to avoid an import cycle.
type MetricsRecorder interface {
	RecordConnectionAccepted()
	RecordConnectionClosed()
	RecordConnectionForceClosed()
	RecordConnectionRejected()
	SetActiveConnections(count int32)
}
