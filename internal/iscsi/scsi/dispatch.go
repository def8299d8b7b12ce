package scsi

import (
	"context"
	"errors"

	"github.com/coregate/iscsid/pkg/device"
)

// Request bundles everything a single CDB handler needs. WriteData is the
// fully reassembled write payload (already spliced from immediate data and
// any R2T/Data-Out sequence by the session layer) and is nil for commands
// that carry no outbound data.
type Request struct {
	CDB       CDB
	WriteData []byte
	LastSense []byte
	LUN       uint64
	LUNs      []uint64
	Identity  Identity
}

// Result is the outcome of dispatching one CDB: a SAM status, sense data
// (only meaningful when Status != StatusGood), response payload bytes, and
// the residual/underflow accounting the SCSI Response PDU reports when the
// actual transfer is shorter than the initiator's declared expectation.
type Result struct {
	Status    byte
	Sense     []byte
	Data      []byte
	Residual  uint32
	Underflow bool
}

func ok(data []byte) Result {
	return Result{Status: StatusGood, Data: data}
}

func checkCondition(sense []byte) Result {
	return Result{Status: StatusCheckCondition, Sense: sense}
}

// Dispatch routes req.CDB to the matching emulated command and returns the
// status/sense/data triple the connection handler turns into a SCSI
// Response (and, for reads, a sequence of Data-In PDUs).
func Dispatch(ctx context.Context, dev device.BlockDevice, req Request) Result {
	cdb := req.CDB
	if len(cdb) == 0 {
		return checkCondition(InvalidFieldSense())
	}

	switch cdb.Opcode() {
	case TestUnitReady:
		return Result{Status: StatusGood}

	case RequestSense:
		if len(req.LastSense) > 0 {
			return ok(req.LastSense)
		}
		return ok(NoSense())

	case Inquiry:
		return dispatchInquiry(cdb, req.Identity)

	case ModeSense, ModeSense10:
		alloc := cdb.TransferLength()
		data := ModeSenseResponse(cdb.PageCode(), cdb.Opcode() == ModeSense, false)
		return ok(TruncateToAllocation(data, alloc))

	case ReadCapacity:
		capacity, err := dev.Capacity(ctx)
		if err != nil {
			return checkCondition(HardwareErrorSense())
		}
		return ok(ReadCapacity10Response(capacity, dev.BlockSize()))

	case ServiceActionIn16:
		if cdb.ServiceAction() != SaiReadCapacity16 {
			return checkCondition(InvalidOpcodeSense())
		}
		capacity, err := dev.Capacity(ctx)
		if err != nil {
			return checkCondition(HardwareErrorSense())
		}
		alloc := cdb.TransferLength()
		data := ReadCapacity16Response(capacity, dev.BlockSize())
		return ok(TruncateToAllocation(data, alloc))

	case Read6, Read10, Read16:
		return dispatchRead(ctx, dev, cdb, req.LUN)

	case Write6, Write10, Write16:
		return dispatchWrite(ctx, dev, cdb, req.LUN, req.WriteData)

	case ReportLuns:
		alloc := cdb.TransferLength()
		data := ReportLunsResponse(req.LUNs)
		return ok(TruncateToAllocation(data, alloc))

	case SynchronizeCache, SynchronizeCache16:
		if err := dev.Flush(ctx); err != nil {
			return checkCondition(HardwareErrorSense())
		}
		return Result{Status: StatusGood}

	case Verify10, Verify16:
		// Per the documented open question: this target returns GOOD
		// unconditionally rather than comparing against stored data, since
		// the pluggable backend has no independent notion of a medium
		// error distinct from a Read failure.
		return Result{Status: StatusGood}

	case StartStop:
		return Result{Status: StatusGood}

	default:
		return checkCondition(InvalidOpcodeSense())
	}
}

func dispatchInquiry(cdb CDB, id Identity) Result {
	if !cdb.EVPD() {
		if cdb.PageCode() != 0x00 {
			return checkCondition(InvalidFieldSense())
		}
		alloc := cdb.TransferLength()
		return ok(TruncateToAllocation(StandardInquiry(id), alloc))
	}

	alloc := cdb.TransferLength()
	switch cdb.PageCode() {
	case 0x00:
		return ok(TruncateToAllocation(SupportedVPDPages(), alloc))
	case 0x80:
		return ok(TruncateToAllocation(UnitSerialNumber(id.ProductRev+id.VendorID), alloc))
	case 0x83:
		return ok(TruncateToAllocation(DeviceIdentification(id), alloc))
	default:
		return checkCondition(InvalidFieldSense())
	}
}

func dispatchRead(ctx context.Context, dev device.BlockDevice, cdb CDB, lun uint64) Result {
	lba := cdb.LBA()
	blocks := cdb.TransferLength()
	if blocks == 0 {
		return Result{Status: StatusGood}
	}

	capacity, err := dev.Capacity(ctx)
	if err != nil {
		return checkCondition(HardwareErrorSense())
	}
	if lba+uint64(blocks) > capacity {
		return checkCondition(LBAOutOfRangeSense())
	}

	data, err := dev.ReadAt(ctx, lba, blocks)
	if err != nil {
		return checkCondition(MediumErrorSense())
	}
	return ok(data)
}

func dispatchWrite(ctx context.Context, dev device.BlockDevice, cdb CDB, lun uint64, data []byte) Result {
	lba := cdb.LBA()
	blocks := cdb.TransferLength()
	if blocks == 0 {
		return Result{Status: StatusGood}
	}

	expected := uint64(blocks) * uint64(dev.BlockSize())
	if uint64(len(data)) != expected {
		return checkCondition(InvalidFieldSense())
	}

	capacity, err := dev.Capacity(ctx)
	if err != nil {
		return checkCondition(HardwareErrorSense())
	}
	if lba+uint64(blocks) > capacity {
		return checkCondition(LBAOutOfRangeSense())
	}

	if err := dev.WriteAt(ctx, lba, data); err != nil {
		if errors.Is(err, context.Canceled) {
			return checkCondition(HardwareErrorSense())
		}
		return checkCondition(MediumErrorSense())
	}
	return Result{Status: StatusGood}
}
