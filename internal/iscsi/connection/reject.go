package connection

import (
	"context"

	"github.com/coregate/iscsid/internal/logger"
	"github.com/coregate/iscsid/internal/iscsi/pdu"
)

// rejectInvalidPDU sends a Reject PDU (opcode 0x3f) for a PDU that parsed
// fine but could not be honored in FFP -- unknown opcode or a protocol
// state violation. The session continues per spec §7 ("session may
// continue"); only the malformed response triggers closing.
func (c *Conn) rejectInvalidPDU(ctx context.Context, req *pdu.PDU, reason byte) (bool, error) {
	resp := pdu.New(pdu.OpReject, 0xffffffff)
	resp.Header.SetReason(reason)
	resp.Header.SetExpCmdSN(c.sess.ExpCmdSN())
	resp.Header.SetMaxCmdSN(c.sess.MaxCmdSN())
	logger.WarnCtx(ctx, "rejecting PDU", logger.Opcode(byte(req.Opcode())), logger.ErrorCode(int(reason)))
	return false, c.writePDU(resp)
}

// sendProtocolReject sends a Reject PDU for a framing-level failure (an
// oversized data segment) where the offending PDU itself could not be
// fully parsed. The connection is always closed afterward by the caller:
// once a data segment longer than the negotiated limit has been seen, the
// socket's read position can no longer be trusted to align on the next
// PDU boundary.
func (c *Conn) sendProtocolReject(ctx context.Context, reason byte) {
	resp := pdu.New(pdu.OpReject, 0xffffffff)
	resp.Header.SetReason(reason)
	resp.Header.SetExpCmdSN(c.sess.ExpCmdSN())
	resp.Header.SetMaxCmdSN(c.sess.MaxCmdSN())
	if err := c.writePDU(resp); err != nil {
		logger.WarnCtx(ctx, "failed to send protocol reject", logger.Err(err))
	}
}
