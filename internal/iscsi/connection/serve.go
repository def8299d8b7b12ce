package connection

import (
	"context"
	"errors"
	"net"

	"github.com/coregate/iscsid/internal/logger"
	"github.com/coregate/iscsid/internal/iscsi/pdu"
	"github.com/coregate/iscsid/internal/iscsi/session"
)

// Serve runs the connection's read/dispatch loop until the session logs
// out, a transport error occurs, or ctx is cancelled. The caller (the
// target server) is responsible for connection accounting around this
// call; Serve itself never touches a connection counter.
func (c *Conn) Serve(ctx context.Context) {
	logCtx := logger.NewLogContext(c.id, c.netConn.RemoteAddr().String())
	ctx = logger.WithContext(ctx, logCtx)
	logger.InfoCtx(ctx, "iscsi connection accepted")
	defer func() {
		_ = c.netConn.Close()
		c.sess.Stage = session.StageClosed
		c.publishSnapshot()
		logger.InfoCtx(ctx, "iscsi connection closed")
	}()

	go func() {
		<-ctx.Done()
		_ = c.netConn.Close()
	}()

	for {
		req, err := pdu.Parse(c.reader, c.recvLimit())
		if err != nil {
			var pe *pdu.ParseError
			if errors.As(err, &pe) && pe.Kind == pdu.ErrBadPadding && req != nil {
				logger.DebugCtx(ctx, "non-zero PDU padding ignored", logger.Err(err))
			} else {
				c.handleParseError(ctx, err)
				return
			}
		}

		close, err := c.dispatch(ctx, req)
		if err != nil {
			logger.ErrorCtx(ctx, "iscsi connection write failed", logger.Err(err))
			return
		}
		if close || c.sess.Stage == session.StageLoggedOut || c.sess.Stage == session.StageClosed {
			return
		}
	}
}

// handleParseError logs and, where an in-band response is possible, sends
// one before the connection is torn down. Per spec §7, only transport
// failures and post-reject states are allowed to drop the connection
// silently; everything else gets an in-band status first.
func (c *Conn) handleParseError(ctx context.Context, err error) {
	var pe *pdu.ParseError
	if !errors.As(err, &pe) {
		logger.WarnCtx(ctx, "iscsi connection read failed", logger.Err(err))
		return
	}

	switch pe.Kind {
	case pdu.ErrShortRead:
		if errors.Is(pe.Err, net.ErrClosed) {
			return
		}
		logger.DebugCtx(ctx, "iscsi connection ended", logger.Err(err))
	case pdu.ErrDataTooLarge:
		logger.WarnCtx(ctx, "oversized PDU data segment", logger.Err(err))
		c.sendProtocolReject(ctx, pdu.RejectReasonProtocolError)
	default:
		logger.WarnCtx(ctx, "malformed PDU", logger.Err(err))
	}
}

// dispatch routes one parsed PDU to the login FSM or, once in full feature
// phase, to the appropriate FFP handler. It returns close=true when the
// connection must be torn down after the response it already wrote.
func (c *Conn) dispatch(ctx context.Context, req *pdu.PDU) (bool, error) {
	if c.sess.Stage != session.StageFullFeaturePhase {
		return c.dispatchLogin(ctx, req)
	}

	switch req.Opcode() {
	case pdu.OpLoginRequest:
		// A second Login Request after FFP has already been reached is a
		// protocol violation; RFC 3720 has no provision for re-entering
		// login on an established session.
		return c.rejectInvalidPDU(ctx, req, pdu.RejectReasonProtocolError)
	case pdu.OpSCSICommand:
		return c.handleSCSICommand(ctx, req)
	case pdu.OpSCSIDataOut:
		return c.handleDataOut(ctx, req)
	case pdu.OpNopOut:
		return c.handleNopOut(ctx, req)
	case pdu.OpTextRequest:
		return c.handleTextRequest(ctx, req)
	case pdu.OpLogoutRequest:
		return c.handleLogout(ctx, req)
	case pdu.OpSCSITaskMgmtRequest:
		return c.handleTaskManagement(ctx, req)
	default:
		return c.rejectInvalidPDU(ctx, req, pdu.RejectReasonCommandNotSupported)
	}
}

func (c *Conn) dispatchLogin(ctx context.Context, req *pdu.PDU) (bool, error) {
	if req.Opcode() != pdu.OpLoginRequest {
		resp := session.BuildInvalidRequestDuringLoginReject(req.Header.ITT())
		if err := c.writePDU(resp); err != nil {
			return true, err
		}
		return true, nil
	}

	result, err := session.HandleLogin(c.sess, c.loginCfg, req)
	if err != nil {
		logger.ErrorCtx(ctx, "login handler internal error", logger.Err(err))
		return true, nil
	}

	if err := c.writePDU(result.Response); err != nil {
		return true, err
	}

	if result.Close {
		logger.InfoCtx(ctx, "login rejected",
			logger.Status(int(result.Response.Header.StatusClass())<<8|int(result.Response.Header.StatusDetail())))
		if c.metrics != nil {
			outcome := "rejected"
			if result.Response.Header.StatusClass() == pdu.StatusClassInitiatorErr &&
				result.Response.Header.StatusDetail() == pdu.StatusDetailAuthFailure {
				outcome = "auth_failure"
			}
			c.metrics.RecordLogin(outcome)
		}
		return true, nil
	}

	c.publishSnapshot()

	if c.sess.Stage == session.StageFullFeaturePhase {
		logger.InfoCtx(ctx, "login succeeded",
			logger.InitiatorName(c.sess.InitiatorName), logger.TargetName(c.sess.TargetName),
			logger.TSIH(c.sess.TSIH))
		if c.metrics != nil {
			c.metrics.RecordLogin("success")
		}
	}

	return false, nil
}
