package connection

import (
	"context"

	"github.com/coregate/iscsid/internal/logger"
	"github.com/coregate/iscsid/internal/iscsi/pdu"
)

// handleTextRequest answers a Text Request PDU. The only text operation
// this target supports outside login is discovery: SendTargets=All,
// answered with one TargetName followed by a TargetAddress per configured
// portal of that target (consecutive portals of the same target share one
// TargetName key), per spec §6's discovery response format.
func (c *Conn) handleTextRequest(ctx context.Context, req *pdu.PDU) (bool, error) {
	kvs, err := pdu.ParseKeyValues(req.Data)
	if err != nil {
		return c.rejectInvalidPDU(ctx, req, pdu.RejectReasonInvalidPDUField)
	}

	c.sess.ObserveCmdSN(req.Header.CmdSN())

	sendTargets, _ := kvs.Get("SendTargets")

	var reply pdu.KeyValueList
	if sendTargets != "" {
		logger.InfoCtx(ctx, "discovery request", logger.StatusMsg(sendTargets))
		prevTarget := ""
		for _, portal := range c.luns.Portals() {
			if portal.TargetName != prevTarget {
				reply.Add("TargetName", portal.TargetName)
				prevTarget = portal.TargetName
			}
			reply.Add("TargetAddress", portal.Address+",1")
		}
	}

	resp := pdu.New(pdu.OpTextResponse, req.Header.ITT())
	resp.Header.SetFinal(true)
	resp.Header.SetTargetTransferTag(0xffffffff)
	resp.Header.SetStatSN(c.sess.NextStatSN())
	resp.Header.SetExpCmdSN(c.sess.ExpCmdSN())
	resp.Header.SetMaxCmdSN(c.sess.MaxCmdSN())
	resp.Data = pdu.EncodeKeyValues(reply)

	return false, c.writePDU(resp)
}
