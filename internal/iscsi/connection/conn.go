// Package connection implements the per-TCP-connection read/dispatch loop:
// one goroutine per accepted socket, owning exactly one session, per
// spec §4.5 and §5's "parallel workers, one logical task per connection"
// scheduling model.
package connection

import (
	"bufio"
	"net"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/coregate/iscsid/internal/iscsi/pdu"
	"github.com/coregate/iscsid/internal/iscsi/scsi"
	"github.com/coregate/iscsid/internal/iscsi/session"
	"github.com/coregate/iscsid/pkg/device"
)

// Portal is one bind-address:port a target is reachable on, used to answer
// SendTargets=All discovery queries.
type Portal struct {
	TargetName string
	Address    string // "ip:port"
}

// LUNSource is the per-target LUN directory a connection consults to
// resolve the backing device for a command and to enumerate LUNs/portals
// for REPORT LUNS and discovery. Implemented by internal/iscsi/registry.
type LUNSource interface {
	Lookup(targetName string, lun uint64) (dev device.BlockDevice, id scsi.Identity, ok bool)
	LUNs(targetName string) []uint64
	Portals() []Portal
}

// Metrics records per-command and per-login outcomes for one connection.
// Implemented structurally by *metrics.Metrics; a nil Metrics disables
// instrumentation.
type Metrics interface {
	RecordCommand(opcode, status string, durationSeconds float64)
	RecordBytesRead(n int)
	RecordBytesWritten(n int)
	RecordLogin(outcome string)
}

// SessionSnapshot is a point-in-time, immutable copy of the fields of a
// Session the admin API is allowed to see. Session itself is exclusively
// owned by its connection's serve goroutine and must never be read from
// anywhere else; Conn republishes a SessionSnapshot after every state
// change a viewer would care about instead.
type SessionSnapshot struct {
	ConnID        string
	RemoteAddr    string
	InitiatorName string
	TargetName    string
	ISID          [6]byte
	TSIH          uint16
	Stage         session.Stage
}

// Conn is one accepted TCP connection and the single session it owns
// exclusively for its lifetime.
type Conn struct {
	id       string
	netConn  net.Conn
	reader   *bufio.Reader
	sess     *session.Session
	loginCfg session.Config
	luns     LUNSource
	metrics  Metrics

	snapshot atomic.Pointer[SessionSnapshot]
}

// New wraps an accepted socket. loginCfg carries the target's login policy
// (target name, CHAP requirement, credential store, shutdown/connection
// hooks); luns resolves SCSI commands to backing devices. m may be nil.
func New(netConn net.Conn, loginCfg session.Config, luns LUNSource, m Metrics) *Conn {
	c := &Conn{
		id:       uuid.NewString(),
		netConn:  netConn,
		reader:   bufio.NewReader(netConn),
		sess:     session.New(),
		loginCfg: loginCfg,
		luns:     luns,
		metrics:  m,
	}
	c.publishSnapshot()
	return c
}

// ID returns the connection's unique identifier, used for log correlation
// and the admin API's session listing.
func (c *Conn) ID() string { return c.id }

// Snapshot returns the most recently published SessionSnapshot. Safe for
// concurrent use by the admin API; it never touches the live Session.
func (c *Conn) Snapshot() SessionSnapshot {
	if s := c.snapshot.Load(); s != nil {
		return *s
	}
	return SessionSnapshot{ConnID: c.id, Stage: session.StageFree}
}

// publishSnapshot copies the current Session fields an admin API viewer is
// allowed to see into a fresh SessionSnapshot. Must only be called from the
// goroutine that owns c.sess (the Serve loop), at points where the Session
// has just settled into a new stage.
func (c *Conn) publishSnapshot() {
	c.snapshot.Store(&SessionSnapshot{
		ConnID:        c.id,
		RemoteAddr:    c.netConn.RemoteAddr().String(),
		InitiatorName: c.sess.InitiatorName,
		TargetName:    c.sess.TargetName,
		ISID:          c.sess.ISID,
		TSIH:          c.sess.TSIH,
		Stage:         c.sess.Stage,
	})
}

func (c *Conn) writePDU(p *pdu.PDU) error {
	_, err := p.WriteTo(c.netConn)
	return err
}

// recvLimit returns the data segment size this connection currently
// accepts: the pre-negotiation default before login completes, the
// target's declared receive limit once FFP is reached.
func (c *Conn) recvLimit() int {
	if c.sess.Stage == session.StageFullFeaturePhase {
		return int(c.sess.Params.TargetMaxRecvDataSegmentLength())
	}
	return pdu.DefaultMaxDataSegmentLength
}
