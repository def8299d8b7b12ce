// Package scsi emulates the SCSI command set a block-oriented iSCSI LUN
// needs to support: CDB parsing, sense-data construction, and per-command
// handlers that translate CDBs into calls against pkg/device.BlockDevice.
package scsi

// CDB opcodes this target recognizes. Names and values follow the SCSI
// Primary Commands / Block Commands standards.
const (
	TestUnitReady    = 0x00
	RequestSense     = 0x03
	Read6            = 0x08
	Write6           = 0x0a
	Inquiry          = 0x12
	ModeSelect       = 0x15
	ModeSense        = 0x1a
	StartStop        = 0x1b
	ReadCapacity     = 0x25
	Read10           = 0x28
	Write10          = 0x2a
	Verify10         = 0x2f
	SynchronizeCache = 0x35
	ModeSelect10     = 0x55
	ModeSense10      = 0x5a
	ReportLuns       = 0xa0
	Read16           = 0x88
	Write16          = 0x8a
	Verify16         = 0x8f
	SynchronizeCache16 = 0x91
	ServiceActionIn16  = 0x9e

	// ServiceActionIn16 sub-action for READ CAPACITY(16).
	SaiReadCapacity16 = 0x10
)

// SAM status codes (SPC-4 §4.5).
const (
	StatusGood                = 0x00
	StatusCheckCondition      = 0x02
	StatusConditionMet        = 0x04
	StatusBusy                = 0x08
	StatusReservationConflict = 0x18
	StatusTaskSetFull         = 0x28
	StatusTaskAborted         = 0x40
)

// Sense keys (SPC-4 table 28).
const (
	SenseNoSense        = 0x00
	SenseRecoveredError = 0x01
	SenseNotReady       = 0x02
	SenseMediumError    = 0x03
	SenseHardwareError  = 0x04
	SenseIllegalRequest = 0x05
	SenseUnitAttention  = 0x06
	SenseAbortedCommand = 0x0b
)

// Additional Sense Code / ASC Qualifier pairs used by this target.
const (
	AscInvalidCommandOperationCode = 0x20
	AscLBAOutOfRange               = 0x21
	AscInvalidFieldInCDB           = 0x24
	AscReadError                   = 0x11
	AscInternalTargetFailure       = 0x44
	AscNoAdditionalSenseInfo       = 0x00
)
