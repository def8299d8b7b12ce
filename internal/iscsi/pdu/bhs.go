package pdu

import "encoding/binary"

// BHSLen is the fixed size, in bytes, of every iSCSI Basic Header Segment.
const BHSLen = 48

// BHS is the 48-byte Basic Header Segment common to every PDU. RFC 3720
// overlays different field names onto the same byte ranges depending on
// opcode and direction; rather than modeling each opcode as a distinct Go
// struct, BHS exposes the raw bytes plus named accessors that decode the
// overlay for the field the caller actually wants. This mirrors the wire
// format directly instead of building an intermediate representation that
// could silently diverge from it.
type BHS [BHSLen]byte

// Opcode returns the 6-bit opcode in byte 0.
func (b *BHS) Opcode() Opcode { return Opcode(b[0] & 0x3f) }

// SetOpcode sets the opcode bits in byte 0, leaving the Immediate bit intact.
func (b *BHS) SetOpcode(op Opcode) { b[0] = (b[0] & 0x40) | byte(op&0x3f) }

// Immediate reports the "I" bit (byte 0, bit 6): the initiator is asking
// for immediate delivery, bypassing normal CmdSN ordering.
func (b *BHS) Immediate() bool { return b[0]&0x40 != 0 }

// SetImmediate sets or clears the Immediate bit.
func (b *BHS) SetImmediate(v bool) { b.setBit(0, 0x40, v) }

// Final reports the generic "F" bit at byte 1 bit 7. Most opcodes
// (SCSI Command, SCSI Response, Data-In, Data-Out, Text) use this bit to
// mean "final PDU of this sequence".
func (b *BHS) Final() bool { return b[1]&0x80 != 0 }

// SetFinal sets or clears the Final/Transit bit.
func (b *BHS) SetFinal(v bool) { b.setBit(1, 0x80, v) }

// Transit is an alias for Final used on Login Request/Response PDUs, where
// RFC 3720 names the same bit "T" (Transit to NSG).
func (b *BHS) Transit() bool    { return b.Final() }
func (b *BHS) SetTransit(v bool) { b.SetFinal(v) }

// Continue reports the "C" bit (byte 1, bit 6), used by Login and Text
// PDUs to indicate more text follows in a subsequent PDU.
func (b *BHS) Continue() bool     { return b[1]&0x40 != 0 }
func (b *BHS) SetContinue(v bool) { b.setBit(1, 0x40, v) }

// CSG returns the Current Stage field (byte 1, bits 3-2) of a Login PDU.
func (b *BHS) CSG() uint8 { return (b[1] >> 2) & 0x3 }

// SetCSG sets the Current Stage field.
func (b *BHS) SetCSG(stage uint8) {
	b[1] = (b[1] &^ 0x0c) | ((stage & 0x3) << 2)
}

// NSG returns the Next Stage field (byte 1, bits 1-0) of a Login PDU.
func (b *BHS) NSG() uint8 { return b[1] & 0x3 }

// SetNSG sets the Next Stage field.
func (b *BHS) SetNSG(stage uint8) {
	b[1] = (b[1] &^ 0x03) | (stage & 0x3)
}

// TotalAHSLength returns the AHS length, in 4-byte words (BHS byte 4).
func (b *BHS) TotalAHSLength() int { return int(b[4]) }

// SetTotalAHSLength sets the AHS length in 4-byte words.
func (b *BHS) SetTotalAHSLength(words int) { b[4] = byte(words) }

// DataSegmentLength returns the 24-bit big-endian unpadded data segment
// length occupying bytes 5-7.
func (b *BHS) DataSegmentLength() int {
	return int(b[5])<<16 | int(b[6])<<8 | int(b[7])
}

// SetDataSegmentLength encodes n into the 24-bit field at bytes 5-7.
func (b *BHS) SetDataSegmentLength(n int) {
	b[5] = byte(n >> 16)
	b[6] = byte(n >> 8)
	b[7] = byte(n)
}

// LUN returns the 64-bit LUN field at bytes 8-15, used by SCSI Command,
// SCSI Response, Data-In/Out, and NOP PDUs.
func (b *BHS) LUN() uint64 { return binary.BigEndian.Uint64(b[8:16]) }

// SetLUN sets the 64-bit LUN field.
func (b *BHS) SetLUN(lun uint64) { binary.BigEndian.PutUint64(b[8:16], lun) }

// ISID returns the 6-byte Initiator Session ID that occupies bytes 8-13 of
// a Login PDU (overlaying the same bytes as LUN on other opcodes).
func (b *BHS) ISID() [6]byte {
	var isid [6]byte
	copy(isid[:], b[8:14])
	return isid
}

// SetISID sets the 6-byte Initiator Session ID.
func (b *BHS) SetISID(isid [6]byte) { copy(b[8:14], isid[:]) }

// TSIH returns the Target Session Identifying Handle at bytes 14-15 of a
// Login PDU.
func (b *BHS) TSIH() uint16 { return binary.BigEndian.Uint16(b[14:16]) }

// SetTSIH sets the Target Session Identifying Handle.
func (b *BHS) SetTSIH(tsih uint16) { binary.BigEndian.PutUint16(b[14:16], tsih) }

// ITT returns the Initiator Task Tag at bytes 16-19, present on every PDU
// type except Reject (which uses 0xffffffff to mean "no task").
func (b *BHS) ITT() uint32 { return binary.BigEndian.Uint32(b[16:20]) }

// SetITT sets the Initiator Task Tag.
func (b *BHS) SetITT(itt uint32) { binary.BigEndian.PutUint32(b[16:20], itt) }

// TargetTransferTag returns the field at bytes 20-23 used by R2T and
// Data-Out/Data-In to correlate a transfer with its originating command.
func (b *BHS) TargetTransferTag() uint32 { return binary.BigEndian.Uint32(b[20:24]) }

// SetTargetTransferTag sets the target transfer tag field.
func (b *BHS) SetTargetTransferTag(ttt uint32) { binary.BigEndian.PutUint32(b[20:24], ttt) }

// ExpectedDataTransferLength returns bytes 20-23 of a SCSI Command PDU: the
// total number of bytes the initiator expects to transfer in this command's
// direction.
func (b *BHS) ExpectedDataTransferLength() uint32 { return b.TargetTransferTag() }

// SetExpectedDataTransferLength sets bytes 20-23 on a SCSI Command PDU.
func (b *BHS) SetExpectedDataTransferLength(n uint32) { b.SetTargetTransferTag(n) }

// CmdSN returns bytes 24-27, named CmdSN on initiator-to-target PDUs.
func (b *BHS) CmdSN() uint32 { return binary.BigEndian.Uint32(b[24:28]) }

// SetCmdSN sets bytes 24-27.
func (b *BHS) SetCmdSN(sn uint32) { binary.BigEndian.PutUint32(b[24:28], sn) }

// StatSN returns bytes 24-27, named StatSN on target-to-initiator PDUs.
// It shares storage with CmdSN because RFC 3720 overlays the two fields on
// the same offset depending on PDU direction.
func (b *BHS) StatSN() uint32    { return b.CmdSN() }
func (b *BHS) SetStatSN(sn uint32) { b.SetCmdSN(sn) }

// ExpStatSN returns bytes 28-31, named ExpStatSN on initiator-to-target
// PDUs: the StatSN the initiator next expects.
func (b *BHS) ExpStatSN() uint32 { return binary.BigEndian.Uint32(b[28:32]) }

// SetExpStatSN sets bytes 28-31.
func (b *BHS) SetExpStatSN(sn uint32) { binary.BigEndian.PutUint32(b[28:32], sn) }

// ExpCmdSN returns bytes 28-31, named ExpCmdSN on target-to-initiator
// PDUs: the lower edge of the command window the target will still accept.
func (b *BHS) ExpCmdSN() uint32    { return b.ExpStatSN() }
func (b *BHS) SetExpCmdSN(sn uint32) { b.SetExpStatSN(sn) }

// MaxCmdSN returns bytes 32-35: the upper edge of the command window,
// valid on target-to-initiator PDUs only.
func (b *BHS) MaxCmdSN() uint32 { return binary.BigEndian.Uint32(b[32:36]) }

// SetMaxCmdSN sets bytes 32-35.
func (b *BHS) SetMaxCmdSN(sn uint32) { binary.BigEndian.PutUint32(b[32:36], sn) }

// StatusClass returns byte 36 of a Login Response: the coarse status
// class (success / redirect / initiator error / target error). This is the
// offset the design notes call out as a common implementation pitfall --
// not bytes 20-21.
func (b *BHS) StatusClass() uint8 { return b[36] }

// SetStatusClass sets byte 36.
func (b *BHS) SetStatusClass(class uint8) { b[36] = class }

// StatusDetail returns byte 37 of a Login Response.
func (b *BHS) StatusDetail() uint8 { return b[37] }

// SetStatusDetail sets byte 37.
func (b *BHS) SetStatusDetail(detail uint8) { b[37] = detail }

// SCSIStatus returns byte 3 of a SCSI Response PDU (SAM status byte).
func (b *BHS) SCSIStatus() uint8 { return b[3] }

// SetSCSIStatus sets byte 3.
func (b *BHS) SetSCSIStatus(status uint8) { b[3] = status }

// ResponseFlags returns byte 1 of a SCSI Response PDU: bidirectional
// overflow/underflow and residual overflow/underflow bits.
func (b *BHS) ResponseFlags() uint8 { return b[1] }

const (
	scsiRespFlagBidiOverflow  = 0x10
	scsiRespFlagBidiUnderflow = 0x08
	scsiRespFlagOverflow      = 0x04
	scsiRespFlagUnderflow     = 0x02
)

// Underflow reports whether the residual-underflow bit is set on a SCSI
// Response (the device transferred fewer bytes than requested).
func (b *BHS) Underflow() bool     { return b[1]&scsiRespFlagUnderflow != 0 }
func (b *BHS) SetUnderflow(v bool) { b.setBit(1, scsiRespFlagUnderflow, v) }

// Overflow reports whether the residual-overflow bit is set.
func (b *BHS) Overflow() bool     { return b[1]&scsiRespFlagOverflow != 0 }
func (b *BHS) SetOverflow(v bool) { b.setBit(1, scsiRespFlagOverflow, v) }

// ResidualCount returns bytes 40-43 of a SCSI Response: the byte delta
// between expected and actual transfer length.
func (b *BHS) ResidualCount() uint32 { return binary.BigEndian.Uint32(b[40:44]) }

// SetResidualCount sets bytes 40-43.
func (b *BHS) SetResidualCount(n uint32) { binary.BigEndian.PutUint32(b[40:44], n) }

// CDB returns the 16-byte Command Descriptor Block at bytes 32-47 of a
// SCSI Command PDU. CDBs longer than 16 bytes would require an AHS
// extension; this target does not emulate any command that needs one.
func (b *BHS) CDB() []byte { return b[32:48] }

// SetCDB copies cdb (at most 16 bytes) into bytes 32-47, zero-padding any
// remainder.
func (b *BHS) SetCDB(cdb []byte) {
	clear(b[32:48])
	copy(b[32:48], cdb)
}

// Read reports the "R" bit of a SCSI Command PDU (byte 1, bit 6): data
// flows from target to initiator.
func (b *BHS) Read() bool { return b[1]&0x40 != 0 }
func (b *BHS) SetRead(v bool) { b.setBit(1, 0x40, v) }

// Write reports the "W" bit of a SCSI Command PDU (byte 1, bit 5): data
// flows from initiator to target.
func (b *BHS) Write() bool     { return b[1]&0x20 != 0 }
func (b *BHS) SetWrite(v bool) { b.setBit(1, 0x20, v) }

// DataSN returns bytes 36-39 of a Data-In or Data-Out PDU: the sequence
// number of this PDU within its transfer.
func (b *BHS) DataSN() uint32 { return binary.BigEndian.Uint32(b[36:40]) }

// SetDataSN sets bytes 36-39.
func (b *BHS) SetDataSN(sn uint32) { binary.BigEndian.PutUint32(b[36:40], sn) }

// BufferOffset returns bytes 40-43 of a Data-In, Data-Out, or R2T PDU: the
// byte offset of this PDU's payload within the overall transfer.
func (b *BHS) BufferOffset() uint32 { return binary.BigEndian.Uint32(b[40:44]) }

// SetBufferOffset sets bytes 40-43.
func (b *BHS) SetBufferOffset(off uint32) { binary.BigEndian.PutUint32(b[40:44], off) }

// DesiredDataTransferLength returns bytes 44-47 of an R2T PDU: how many
// bytes the target is asking the initiator to send with this R2T.
func (b *BHS) DesiredDataTransferLength() uint32 { return binary.BigEndian.Uint32(b[44:48]) }

// SetDesiredDataTransferLength sets bytes 44-47.
func (b *BHS) SetDesiredDataTransferLength(n uint32) {
	binary.BigEndian.PutUint32(b[44:48], n)
}

// StatusPresent reports the "S" bit of a Data-In PDU (byte 1, bit 0): this
// segment piggybacks the final SCSI status, so StatSN/ResidualCount are
// valid.
func (b *BHS) StatusPresent() bool     { return b[1]&0x01 != 0 }
func (b *BHS) SetStatusPresent(v bool) { b.setBit(1, 0x01, v) }

// AuthMethodReason / reject reason share byte 2 across PDU types that need
// a single opcode-specific reason byte (Reject PDU, Task Management
// Response).
func (b *BHS) Reason() uint8     { return b[2] }
func (b *BHS) SetReason(r uint8) { b[2] = r }

func (b *BHS) setBit(byteIdx int, mask byte, v bool) {
	if v {
		b[byteIdx] |= mask
	} else {
		b[byteIdx] &^= mask
	}
}
