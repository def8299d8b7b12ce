package connection

import (
	"context"
	"fmt"
	"time"

	"github.com/coregate/iscsid/internal/logger"
	"github.com/coregate/iscsid/internal/iscsi/pdu"
	"github.com/coregate/iscsid/internal/iscsi/scsi"
	"github.com/coregate/iscsid/internal/iscsi/session"
	"github.com/coregate/iscsid/internal/telemetry"
	"github.com/coregate/iscsid/pkg/device"
)

// dispatchTraced wraps scsi.Dispatch in a span covering exactly the
// dispatch call, the iSCSI analogue of the per-request span the admin API
// and connection metrics already cover with a Prometheus counter.
func dispatchTraced(ctx context.Context, lun uint64, itt uint32, dev device.BlockDevice, req scsi.Request) scsi.Result {
	ctx, span := telemetry.StartSCSISpan(ctx, lun, itt, req.CDB.Opcode())
	defer span.End()
	result := scsi.Dispatch(ctx, dev, req)
	telemetry.SetAttributes(ctx, telemetry.Status(result.Status))
	return result
}

// recordCommand reports one dispatched CDB's opcode, resulting status, and
// dispatch latency, when a Metrics recorder is wired. op is computed
// separately from result rather than inside Dispatch itself, since
// Dispatch has no notion of instrumentation.
func (c *Conn) recordCommand(op byte, status byte, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordCommand(fmt.Sprintf("0x%02x", op), fmt.Sprintf("0x%02x", status), time.Since(start).Seconds())
}

// handleSCSICommand handles one SCSI Command PDU: resolve the LUN, observe
// CmdSN against the session window, and either dispatch immediately (no
// data or a read) or start the R2T/Data-Out exchange (a write whose
// payload didn't arrive complete as immediate data).
func (c *Conn) handleSCSICommand(ctx context.Context, req *pdu.PDU) (bool, error) {
	if !c.sess.ObserveCmdSN(req.Header.CmdSN()) {
		logger.WarnCtx(ctx, "SCSI command outside CmdSN window", logger.CmdSN(req.Header.CmdSN()))
		return c.rejectInvalidPDU(ctx, req, pdu.RejectReasonProtocolError)
	}

	lun := req.Header.LUN()
	itt := req.Header.ITT()
	cdbBytes := req.Header.CDB()
	cdbLen := scsi.Len(cdbBytes[0])
	if cdbLen == 0 {
		return c.sendSCSIResponse(ctx, itt, scsi.Result{Status: scsi.StatusCheckCondition, Sense: scsi.InvalidOpcodeSense()})
	}
	cdb := scsi.CDB(cdbBytes[:cdbLen])

	dev, identity, ok := c.luns.Lookup(c.sess.TargetName, lun)
	if !ok {
		return c.sendSCSIResponse(ctx, itt, scsi.Result{Status: scsi.StatusCheckCondition, Sense: scsi.InvalidFieldSense()})
	}

	if !req.Header.Write() {
		start := time.Now()
		result := dispatchTraced(ctx, lun, itt, dev, scsi.Request{
			CDB: cdb, LUN: lun, LUNs: c.luns.LUNs(c.sess.TargetName), Identity: identity,
		})
		c.recordCommand(cdb.Opcode(), result.Status, start)
		return c.sendSCSIResultWithData(ctx, itt, result)
	}

	expected := req.Header.ExpectedDataTransferLength()
	if expected == 0 {
		start := time.Now()
		result := dispatchTraced(ctx, lun, itt, dev, scsi.Request{CDB: cdb, LUN: lun, Identity: identity})
		c.recordCommand(cdb.Opcode(), result.Status, start)
		return c.sendSCSIResponse(ctx, itt, result)
	}

	pw := session.NewPendingWrite(lun, cdb.LBA(), itt, expected)
	pw.CDB = cdbBytes[:cdbLen]
	if len(req.Data) > 0 {
		pw.AppendImmediate(req.Data)
	}

	if pw.Complete() {
		return c.finishWrite(ctx, pw)
	}

	c.sess.Pending = pw
	return false, c.sendR2T(pw)
}

// handleDataOut appends one Data-Out PDU to the session's pending write,
// completing and dispatching it once every expected byte has arrived.
func (c *Conn) handleDataOut(ctx context.Context, req *pdu.PDU) (bool, error) {
	pw := c.sess.Pending
	if pw == nil {
		logger.WarnCtx(ctx, "Data-Out with no pending write", logger.ITT(req.Header.ITT()))
		return c.rejectInvalidPDU(ctx, req, pdu.RejectReasonProtocolError)
	}

	if !pw.AppendDataOut(req.Header.DataSN(), req.Data) {
		logger.WarnCtx(ctx, "out-of-order Data-Out", logger.DataSN(req.Header.DataSN()))
		c.sess.Pending = nil
		return c.rejectInvalidPDU(ctx, req, pdu.RejectReasonProtocolError)
	}

	if pw.Complete() {
		c.sess.Pending = nil
		return c.finishWrite(ctx, pw)
	}

	if req.Header.Final() {
		return false, c.sendR2T(pw)
	}

	return false, nil
}

// finishWrite dispatches a fully assembled write against its backing
// device and sends the resulting SCSI Response.
func (c *Conn) finishWrite(ctx context.Context, pw *session.PendingWrite) (bool, error) {
	dev, _, ok := c.luns.Lookup(c.sess.TargetName, pw.LUN)
	if !ok {
		return c.sendSCSIResponse(ctx, pw.ITT, scsi.Result{Status: scsi.StatusCheckCondition, Sense: scsi.InvalidFieldSense()})
	}
	start := time.Now()
	result := dispatchTraced(ctx, pw.LUN, pw.ITT, dev, scsi.Request{CDB: scsi.CDB(pw.CDB), LUN: pw.LUN, WriteData: pw.Data()})
	c.recordCommand(scsi.CDB(pw.CDB).Opcode(), result.Status, start)
	if c.metrics != nil {
		c.metrics.RecordBytesWritten(len(pw.Data()))
	}
	return c.sendSCSIResponse(ctx, pw.ITT, result)
}

// sendR2T asks the initiator for the next burst of a pending write,
// bounded by the negotiated MaxBurstLength.
func (c *Conn) sendR2T(pw *session.PendingWrite) error {
	remaining := pw.Remaining()
	burst := c.sess.Params.MaxBurstLength
	if remaining < burst {
		burst = remaining
	}

	resp := pdu.New(pdu.OpR2T, pw.ITT)
	resp.Header.SetLUN(pw.LUN)
	resp.Header.SetTargetTransferTag(pw.ITT)
	resp.Header.SetStatSN(c.sess.StatSN())
	resp.Header.SetExpCmdSN(c.sess.ExpCmdSN())
	resp.Header.SetMaxCmdSN(c.sess.MaxCmdSN())
	resp.Header.SetDataSN(pw.NextR2TSN())
	resp.Header.SetBufferOffset(uint32(len(pw.Data())))
	resp.Header.SetDesiredDataTransferLength(burst)
	return c.writePDU(resp)
}

// sendSCSIResponse writes a SCSI Response PDU with no associated data
// segment (a write's completion, or any command that produced no read
// payload).
func (c *Conn) sendSCSIResponse(ctx context.Context, itt uint32, result scsi.Result) (bool, error) {
	resp := pdu.New(pdu.OpSCSIResponse, itt)
	resp.Header.SetSCSIStatus(result.Status)
	resp.Header.SetStatSN(c.sess.NextStatSN())
	resp.Header.SetExpCmdSN(c.sess.ExpCmdSN())
	resp.Header.SetMaxCmdSN(c.sess.MaxCmdSN())
	if result.Underflow {
		resp.Header.SetUnderflow(true)
		resp.Header.SetResidualCount(result.Residual)
	}
	resp.Data = result.Sense
	logger.DebugCtx(ctx, "SCSI command completed", logger.ITT(itt), logger.SCSIStatus(result.Status))
	return false, c.writePDU(resp)
}

// sendSCSIResultWithData writes a read command's result: one or more
// Data-In PDUs carrying result.Data, bounded by the initiator's declared
// MaxRecvDataSegmentLength, with the final segment piggybacking status.
func (c *Conn) sendSCSIResultWithData(ctx context.Context, itt uint32, result scsi.Result) (bool, error) {
	if result.Status != scsi.StatusGood || len(result.Data) == 0 {
		return c.sendSCSIResponse(ctx, itt, result)
	}

	limit := int(c.sess.Params.MaxRecvDataSegmentLength)
	if limit <= 0 {
		limit = pdu.DefaultMaxDataSegmentLength
	}

	data := result.Data
	statSN := c.sess.NextStatSN()
	var dataSN uint32
	for offset := 0; offset < len(data); offset += limit {
		end := offset + limit
		if end > len(data) {
			end = len(data)
		}
		last := end == len(data)

		resp := pdu.New(pdu.OpSCSIDataIn, itt)
		resp.Header.SetLUN(0)
		resp.Header.SetTargetTransferTag(0xffffffff)
		resp.Header.SetDataSN(dataSN)
		resp.Header.SetBufferOffset(uint32(offset))
		resp.Header.SetFinal(last)
		resp.Data = data[offset:end]

		if last {
			resp.Header.SetStatusPresent(true)
			resp.Header.SetSCSIStatus(result.Status)
			resp.Header.SetStatSN(statSN)
			resp.Header.SetExpCmdSN(c.sess.ExpCmdSN())
			resp.Header.SetMaxCmdSN(c.sess.MaxCmdSN())
		}

		if err := c.writePDU(resp); err != nil {
			return false, err
		}
		dataSN++
	}

	if c.metrics != nil {
		c.metrics.RecordBytesRead(len(data))
	}
	logger.DebugCtx(ctx, "SCSI read completed", logger.ITT(itt), logger.BytesRead(len(data)))
	return false, nil
}
