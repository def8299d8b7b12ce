package session

import (
	"sync/atomic"

	"github.com/coregate/iscsid/internal/iscsi/auth"
)

// tsihCounter hands out monotonically increasing Target Session Identifying
// Handles. TSIH 0 is reserved (it means "new session" on an initial Login
// Request), so the counter starts at 1.
var tsihCounter uint32

// NewTSIH allocates the next Target Session Identifying Handle. TSIHs are
// 16 bits on the wire; the counter wraps deliberately (skipping the reserved
// 0) rather than erroring, since a target restart (the only time wraparound
// at 65535 sessions would matter within a single process lifetime) already
// invalidates all prior TSIHs.
func NewTSIH() uint16 {
	for {
		if v := uint16(atomic.AddUint32(&tsihCounter, 1)); v != 0 {
			return v
		}
	}
}

// ChapState is the per-session record of an in-progress or completed CHAP
// exchange, per spec §3.
type ChapState struct {
	Challenge *auth.Challenge
	Username  string
	Verified  bool
}

// Session is the exclusively-owned state for one connection, per spec §3.
// No field is accessed concurrently: the owning connection worker is the
// only goroutine that ever touches a Session.
type Session struct {
	InitiatorName string
	TargetName    string
	Type          Type
	ISID          [6]byte
	TSIH          uint16

	Params ParameterBundle
	Stage  Stage

	Chap *ChapState

	// CmdSN/StatSN/ExpCmdSN/MaxCmdSN implement the flow-control window
	// from spec §4.4: the target tracks the last CmdSN it has seen and
	// advertises a window of CmdSN values it will still accept.
	expCmdSN    uint32
	maxCmdSN    uint32
	cmdWindow   uint32
	statSN      uint32
	cmdSNInited bool

	LUN uint64

	Pending *PendingWrite
}

// New returns a fresh session in StageFree, with default operational
// parameters offered as the negotiation starting point.
func New() *Session {
	return &Session{
		Stage:     StageFree,
		Params:    DefaultParameterBundle(),
		cmdWindow: 32,
	}
}

// ObserveCmdSN records an incoming command's CmdSN and returns whether it
// falls within the current acceptance window [ExpCmdSN, MaxCmdSN). The
// first command observed on a session seeds ExpCmdSN/MaxCmdSN from its
// value rather than comparing against zero.
func (s *Session) ObserveCmdSN(cmdSN uint32) (inWindow bool) {
	if !s.cmdSNInited {
		s.expCmdSN = cmdSN
		s.maxCmdSN = cmdSN + s.cmdWindow
		s.cmdSNInited = true
	}

	inWindow = cmdSN >= s.expCmdSN && cmdSN < s.maxCmdSN
	if inWindow && cmdSN == s.expCmdSN {
		s.expCmdSN++
		s.maxCmdSN = s.expCmdSN + s.cmdWindow
	}
	return inWindow
}

// ExpCmdSN returns the next CmdSN the target expects, for embedding in a
// response's ExpCmdSN field.
func (s *Session) ExpCmdSN() uint32 { return s.expCmdSN }

// MaxCmdSN returns the upper bound of the current acceptance window.
func (s *Session) MaxCmdSN() uint32 { return s.maxCmdSN }

// NextStatSN returns the next StatSN to stamp on an outgoing SCSI-bearing
// status PDU and advances the counter. Per spec §4.4, StatSN increments
// monotonically on every such response; PDUs that carry no SCSI status
// (e.g. a mid-write R2T) do not consume a StatSN.
func (s *Session) NextStatSN() uint32 {
	v := s.statSN
	s.statSN++
	return v
}

// StatSN returns the current StatSN without advancing it.
func (s *Session) StatSN() uint32 { return s.statSN }
