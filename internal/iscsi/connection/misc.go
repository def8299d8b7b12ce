package connection

import (
	"context"

	"github.com/coregate/iscsid/internal/logger"
	"github.com/coregate/iscsid/internal/iscsi/pdu"
	"github.com/coregate/iscsid/internal/iscsi/session"
)

// nopITTNone is the ITT value ("no task") an initiator sends on a NOP-Out
// used purely as a keepalive ping, with no response expected.
const nopITTNone = 0xffffffff

// handleNopOut answers a NOP-Out. A ping (ITT == 0xffffffff) gets no
// reply; anything else is echoed back as a NOP-In carrying the same data,
// per RFC 3720 §10.18.
func (c *Conn) handleNopOut(ctx context.Context, req *pdu.PDU) (bool, error) {
	c.sess.ObserveCmdSN(req.Header.CmdSN())

	if req.Header.ITT() == nopITTNone {
		return false, nil
	}

	resp := pdu.New(pdu.OpNopIn, req.Header.ITT())
	resp.Header.SetLUN(req.Header.LUN())
	resp.Header.SetTargetTransferTag(nopITTNone)
	resp.Header.SetStatSN(c.sess.NextStatSN())
	resp.Header.SetExpCmdSN(c.sess.ExpCmdSN())
	resp.Header.SetMaxCmdSN(c.sess.MaxCmdSN())
	resp.Data = req.Data

	return false, c.writePDU(resp)
}

// handleLogout answers a Logout Request with a Logout Response carrying
// reason "connection/session closed successfully", then signals the
// caller to tear down the connection -- per spec §4.5, a Logout Response
// is always the last PDU written on a connection.
func (c *Conn) handleLogout(ctx context.Context, req *pdu.PDU) (bool, error) {
	c.sess.ObserveCmdSN(req.Header.CmdSN())
	c.sess.Stage = session.StageLoggedOut
	c.publishSnapshot()

	resp := pdu.New(pdu.OpLogoutResponse, req.Header.ITT())
	resp.Header.SetReason(0) // success
	resp.Header.SetStatSN(c.sess.NextStatSN())
	resp.Header.SetExpCmdSN(c.sess.ExpCmdSN())
	resp.Header.SetMaxCmdSN(c.sess.MaxCmdSN())

	logger.InfoCtx(ctx, "session logged out", logger.InitiatorName(c.sess.InitiatorName))
	if err := c.writePDU(resp); err != nil {
		return true, err
	}
	return true, nil
}

// taskMgmtFunctionComplete is the RFC 3720 §10.6.1 response code meaning
// the requested task management function completed successfully.
const taskMgmtFunctionComplete = 0x00

// handleTaskManagement answers a Task Management Request. This target
// tracks no independent task state to abort -- every command runs to
// completion synchronously within its connection's single goroutine before
// the next PDU is even read -- so every function is reported complete
// without further action, matching the no-op outcome a synchronous target
// would legitimately report for ABORT TASK/LUN RESET against a command
// that has already finished.
func (c *Conn) handleTaskManagement(ctx context.Context, req *pdu.PDU) (bool, error) {
	c.sess.ObserveCmdSN(req.Header.CmdSN())

	resp := pdu.New(pdu.OpSCSITaskMgmtResponse, req.Header.ITT())
	resp.Header.SetReason(taskMgmtFunctionComplete)
	resp.Header.SetStatSN(c.sess.NextStatSN())
	resp.Header.SetExpCmdSN(c.sess.ExpCmdSN())
	resp.Header.SetMaxCmdSN(c.sess.MaxCmdSN())

	logger.InfoCtx(ctx, "task management request", logger.ITT(req.Header.ITT()))
	return false, c.writePDU(resp)
}
