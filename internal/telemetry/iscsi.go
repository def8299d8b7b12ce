package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for SCSI command spans.
const (
	AttrOpcode  = "scsi.opcode"
	AttrLUN     = "scsi.lun"
	AttrITT     = "iscsi.itt"
	AttrStatus  = "scsi.status"
	AttrISCSIOp = "iscsi.opcode"
)

// Opcode returns an attribute for a CDB opcode, rendered the same way the
// command metrics labels are (e.g. "0x28").
func Opcode(op byte) attribute.KeyValue {
	return attribute.String(AttrOpcode, fmt.Sprintf("0x%02x", op))
}

// LUN returns an attribute for the addressed logical unit.
func LUN(lun uint64) attribute.KeyValue {
	return attribute.Int64(AttrLUN, int64(lun))
}

// ITT returns an attribute for the PDU's Initiator Task Tag.
func ITT(itt uint32) attribute.KeyValue {
	return attribute.Int64(AttrITT, int64(itt))
}

// Status returns an attribute for a SAM status byte.
func Status(status byte) attribute.KeyValue {
	return attribute.String(AttrStatus, fmt.Sprintf("0x%02x", status))
}

// StartSCSISpan starts a span for one dispatched SCSI command, the iSCSI
// analogue of an NFS procedure span: one span per CDB dispatch, covering
// both the immediate-dispatch and completed-write paths.
func StartSCSISpan(ctx context.Context, lun uint64, itt uint32, op byte, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{LUN(lun), ITT(itt), Opcode(op)}, attrs...)
	return StartSpan(ctx, "scsi.dispatch", trace.WithAttributes(allAttrs...))
}
