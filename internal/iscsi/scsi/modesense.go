package scsi

import "encoding/binary"

// CachingModePage builds the 20-byte caching mode page (0x08). wce enables
// the Write Cache Enabled bit; this target reports it false by default
// since writes complete synchronously against the block device.
func CachingModePage(wce bool) []byte {
	buf := make([]byte, 20)
	buf[0] = 0x08 // page code
	buf[1] = 0x12 // page length (18, i.e. 20 bytes total)
	if wce {
		buf[2] |= 0x04
	}
	return buf
}

// ControlModePage builds the 12-byte control mode page (0x0A) with
// conservative defaults: no queue algorithm modifier, no task management
// extensions beyond what SPC-4 mandates.
func ControlModePage() []byte {
	buf := make([]byte, 12)
	buf[0] = 0x0a
	buf[1] = 0x0a // page length (10, i.e. 12 bytes total)
	buf[2] = 0x02 // GLTSD=1, D_SENSE=0 (fixed-format sense)
	return buf
}

// ModeSenseResponse builds a MODE SENSE 6 or MODE SENSE 10 response.
// pageCode 0x3f requests all supported pages. six selects the 6-byte
// header format; otherwise the 10-byte format is used.
func ModeSenseResponse(pageCode byte, six bool, wce bool) []byte {
	var pages []byte
	switch pageCode {
	case 0x08:
		pages = CachingModePage(wce)
	case 0x0a:
		pages = ControlModePage()
	case 0x3f:
		pages = append(CachingModePage(wce), ControlModePage()...)
	}

	const dpofua = 0x10 // DPO/FUA supported

	if six {
		hdr := make([]byte, 4)
		hdr[0] = byte(len(pages) + 3)
		hdr[2] = dpofua
		return append(hdr, pages...)
	}

	hdr := make([]byte, 8)
	binary.BigEndian.PutUint16(hdr[0:2], uint16(len(pages)+6))
	hdr[3] = dpofua
	return append(hdr, pages...)
}
