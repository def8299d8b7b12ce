package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds connection/session-scoped logging context that is
// threaded through every stage of PDU handling so a single log line can be
// correlated back to the TCP connection, the iSCSI session, and the task
// that produced it.
type LogContext struct {
	ConnectionID  string    // Per-accept connection identifier
	SessionID     string    // ISID/TSIH-derived session identifier
	InitiatorName string    // Initiator IQN, known once login negotiates it
	TargetName    string    // Target IQN this connection is bound to
	ClientIP      string    // Remote TCP address (without port)
	ITT           uint32    // Initiator Task Tag of the PDU in flight
	StartTime     time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for a freshly accepted connection.
func NewLogContext(connectionID, clientIP string) *LogContext {
	return &LogContext{
		ConnectionID: connectionID,
		ClientIP:     clientIP,
		StartTime:    time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	return &LogContext{
		ConnectionID:  lc.ConnectionID,
		SessionID:     lc.SessionID,
		InitiatorName: lc.InitiatorName,
		TargetName:    lc.TargetName,
		ClientIP:      lc.ClientIP,
		ITT:           lc.ITT,
		StartTime:     lc.StartTime,
	}
}

// WithSession returns a copy with the session identifier set
func (lc *LogContext) WithSession(sessionID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.SessionID = sessionID
	}
	return clone
}

// WithNames returns a copy with the initiator and target IQNs set
func (lc *LogContext) WithNames(initiator, target string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.InitiatorName = initiator
		clone.TargetName = target
	}
	return clone
}

// WithITT returns a copy with the initiator task tag set
func (lc *LogContext) WithITT(itt uint32) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.ITT = itt
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
