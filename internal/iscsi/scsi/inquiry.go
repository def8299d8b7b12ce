package scsi

import "bytes"

// fixedString left-justifies s in a field of the given length, space-padded
// or truncated, per the SCSI convention for VENDOR IDENTIFICATION /
// PRODUCT IDENTIFICATION / PRODUCT REVISION LEVEL fields.
func fixedString(s string, length int) []byte {
	b := []byte(s)
	if len(b) >= length {
		return b[:length]
	}
	return append(b, bytes.Repeat([]byte{' '}, length-len(b))...)
}

// Identity carries the vendor strings an INQUIRY response reports.
type Identity struct {
	VendorID   string
	ProductID  string
	ProductRev string
	// NAA is the 8-byte Network Address Authority identifier body used in
	// the EVPD 0x83 device-identification page. It is reported exactly as
	// the LUN's registry entry carries it: nothing derives it from the
	// target IQN, and it stays all zero unless the entry sets it, so LUNs
	// without one do not report distinct WWNs.
	NAA [8]byte
}

// StandardInquiry builds the 36-byte standard INQUIRY response: peripheral
// device type 0x00 (direct-access block device), RMB=0, version 0x05
// (SPC-3), response data format 0x02.
func StandardInquiry(id Identity) []byte {
	buf := make([]byte, 36)
	buf[0] = 0x00 // peripheral qualifier 0, device type 0 (direct access block device)
	buf[2] = 0x05 // SPC-3
	buf[3] = 0x02 // response data format
	buf[4] = 31   // additional length (36 - 5)
	buf[7] = 0x02 // CmdQue

	copy(buf[8:16], fixedString(id.VendorID, 8))
	copy(buf[16:32], fixedString(id.ProductID, 16))
	copy(buf[32:36], fixedString(id.ProductRev, 4))
	return buf
}

// SupportedVPDPages builds the EVPD page 0x00 response: the list of VPD
// pages this target supports.
func SupportedVPDPages() []byte {
	return []byte{0x00, 0x00, 0x00, 0x03, 0x00, 0x80, 0x83}
}

// UnitSerialNumber builds the EVPD page 0x80 response from a serial
// string. Dispatch passes the product revision followed by the vendor ID,
// so every LUN with the same identity reports the same serial.
func UnitSerialNumber(serial string) []byte {
	s := []byte(serial)
	buf := make([]byte, 4+len(s))
	buf[1] = 0x80
	buf[3] = byte(len(s))
	copy(buf[4:], s)
	return buf
}

// DeviceIdentification builds the EVPD page 0x83 response carrying a T10
// vendor-ID descriptor and a NAA binary descriptor derived from the
// target's identity.
func DeviceIdentification(id Identity) []byte {
	var descriptors bytes.Buffer

	// T10 vendor ID descriptor: code set ASCII, identifier type 1.
	vendor := fixedString(id.VendorID, 8)
	t10 := make([]byte, 4+len(vendor))
	t10[0] = 0x02 // code set: ASCII
	t10[1] = 0x01 // identifier type: T10 vendor ID
	t10[3] = byte(len(vendor))
	copy(t10[4:], vendor)
	descriptors.Write(t10)

	// NAA binary descriptor: code set binary, identifier type 3 (NAA).
	naa := make([]byte, 4+8)
	naa[0] = 0x01 // code set: binary
	naa[1] = 0x03 // identifier type: NAA
	naa[3] = 8
	copy(naa[4:], id.NAA[:])
	descriptors.Write(naa)

	body := descriptors.Bytes()
	buf := make([]byte, 4+len(body))
	buf[1] = 0x83
	buf[2] = byte(len(body) >> 8)
	buf[3] = byte(len(body))
	copy(buf[4:], body)
	return buf
}

// TruncateToAllocation trims data to allocLen bytes if data is longer, per
// SPC-4's rule that INQUIRY/MODE SENSE responses never exceed the CDB's
// declared allocation length.
func TruncateToAllocation(data []byte, allocLen uint32) []byte {
	if uint32(len(data)) > allocLen {
		return data[:allocLen]
	}
	return data
}
