package session

// PendingWrite accumulates a multi-PDU WRITE command's data segment, per
// spec §3. Created when a SCSI Command PDU of write type arrives with more
// data than fits in one PDU (or as immediate data), mutated by each
// subsequent Data-Out PDU, and discarded once the full expected transfer
// has been assembled.
type PendingWrite struct {
	LUN        uint64
	LBA        uint64
	ITT        uint32
	Expected   uint32
	// CDB is the originating WRITE command's Command Descriptor Block,
	// stashed so the connection handler can re-dispatch it against the
	// backing device once the full payload has been assembled. Left unset
	// by NewPendingWrite; the caller fills it in after construction.
	CDB        []byte
	data       []byte
	nextDataSN uint32
	r2tSN      uint32
}

// NewPendingWrite starts accumulating a write of expected bytes at lba on
// lun, tagged by the initiator task tag that will be echoed on the eventual
// SCSI Response.
func NewPendingWrite(lun, lba uint64, itt uint32, expected uint32) *PendingWrite {
	return &PendingWrite{
		LUN:      lun,
		LBA:      lba,
		ITT:      itt,
		Expected: expected,
		data:     make([]byte, 0, expected),
	}
}

// AppendImmediate splices in the data segment carried directly on the SCSI
// Command PDU itself, before any Data-Out or R2T exchange.
func (p *PendingWrite) AppendImmediate(data []byte) {
	p.data = append(p.data, data...)
}

// AppendDataOut appends one Data-Out PDU's payload. dataSN is the PDU's
// DataSN field; out-of-order delivery is rejected since DataPDUInOrder is
// always negotiated true by this target (see params.go).
func (p *PendingWrite) AppendDataOut(dataSN uint32, data []byte) bool {
	if dataSN != p.nextDataSN {
		return false
	}
	p.data = append(p.data, data...)
	p.nextDataSN++
	return true
}

// Remaining returns how many bytes are still expected before the write is
// complete.
func (p *PendingWrite) Remaining() uint32 {
	got := uint32(len(p.data))
	if got >= p.Expected {
		return 0
	}
	return p.Expected - got
}

// Complete reports whether every expected byte has arrived.
func (p *PendingWrite) Complete() bool {
	return uint32(len(p.data)) >= p.Expected
}

// Data returns the assembled write payload. Only meaningful once Complete
// returns true.
func (p *PendingWrite) Data() []byte {
	return p.data
}

// NextR2TSN returns the next R2T sequence number to stamp on an R2T PDU
// targeting this write, and advances the counter.
func (p *PendingWrite) NextR2TSN() uint32 {
	v := p.r2tSN
	p.r2tSN++
	return v
}

// NextDataSN returns the DataSN the initiator is expected to use on its
// next Data-Out PDU for this write.
func (p *PendingWrite) NextDataSN() uint32 {
	return p.nextDataSN
}
