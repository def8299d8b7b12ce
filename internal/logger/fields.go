package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys for structured logging across the iSCSI core.
// Use these keys consistently across all log statements so log aggregation
// and querying stays uniform between the PDU codec, session FSM, SCSI
// dispatcher, and target server.
const (
	// ========================================================================
	// Connection & Session
	// ========================================================================
	KeyConnectionID   = "connection_id"   // Per-accept connection identifier
	KeySessionID      = "session_id"      // ISID/TSIH-derived session identifier
	KeyInitiatorName  = "initiator_name"  // Initiator IQN
	KeyTargetName     = "target_name"     // Target IQN
	KeyISID           = "isid"            // Initiator Session ID (hex)
	KeyTSIH           = "tsih"            // Target Session Identifying Handle
	KeyStage          = "stage"           // Login stage (security/operational/ffp)

	// ========================================================================
	// PDU / Opcode
	// ========================================================================
	KeyOpcode = "opcode" // iSCSI opcode byte
	KeyITT    = "itt"    // Initiator Task Tag
	KeyLUN    = "lun"    // Logical Unit Number
	KeyCmdSN  = "cmdsn"  // Command sequence number
	KeyStatSN = "statsn" // Status sequence number
	KeyDataSN = "datasn" // Data sequence number

	// ========================================================================
	// SCSI
	// ========================================================================
	KeySCSIOp     = "scsi_op"     // CDB opcode byte
	KeyLBA        = "lba"         // Logical block address
	KeyBlockCount = "block_count" // Number of blocks requested
	KeySCSIStatus = "scsi_status" // SAM status byte

	// ========================================================================
	// Status / Errors
	// ========================================================================
	KeyStatus    = "status"     // Protocol status code (login reject, etc.)
	KeyStatusMsg = "status_msg" // Human-readable status message
	KeyError     = "error"      // Error message
	KeyErrorCode = "error_code" // Numeric error code

	// ========================================================================
	// I/O
	// ========================================================================
	KeyOffset       = "offset"        // Buffer/LBA byte offset
	KeyCount        = "count"         // Byte count requested
	KeyBytesRead    = "bytes_read"    // Actual bytes read from the device
	KeyBytesWritten = "bytes_written" // Actual bytes written to the device

	// ========================================================================
	// Client Identification
	// ========================================================================
	KeyClientIP   = "client_ip"   // Remote TCP address
	KeyClientPort = "client_port" // Remote TCP port

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyAttempt    = "attempt"     // Retry attempt number
)

// ============================================================================
// Field constructors for type safety
// ============================================================================

// ConnectionID returns a slog.Attr for the connection identifier.
func ConnectionID(id string) slog.Attr { return slog.String(KeyConnectionID, id) }

// SessionID returns a slog.Attr for the session identifier.
func SessionID(id string) slog.Attr { return slog.String(KeySessionID, id) }

// InitiatorName returns a slog.Attr for the initiator IQN.
func InitiatorName(name string) slog.Attr { return slog.String(KeyInitiatorName, name) }

// TargetName returns a slog.Attr for the target IQN.
func TargetName(name string) slog.Attr { return slog.String(KeyTargetName, name) }

// ISID returns a slog.Attr for the Initiator Session ID, hex-formatted.
func ISID(isid []byte) slog.Attr { return slog.String(KeyISID, fmt.Sprintf("%x", isid)) }

// TSIH returns a slog.Attr for the Target Session Identifying Handle.
func TSIH(tsih uint16) slog.Attr { return slog.Uint64(KeyTSIH, uint64(tsih)) }

// Stage returns a slog.Attr for the login stage.
func Stage(s string) slog.Attr { return slog.String(KeyStage, s) }

// Opcode returns a slog.Attr for the iSCSI opcode byte.
func Opcode(op byte) slog.Attr { return slog.String(KeyOpcode, fmt.Sprintf("0x%02x", op)) }

// ITT returns a slog.Attr for the Initiator Task Tag.
func ITT(itt uint32) slog.Attr { return slog.Uint64(KeyITT, uint64(itt)) }

// LUN returns a slog.Attr for the Logical Unit Number.
func LUN(lun uint64) slog.Attr { return slog.Uint64(KeyLUN, lun) }

// CmdSN returns a slog.Attr for the command sequence number.
func CmdSN(sn uint32) slog.Attr { return slog.Uint64(KeyCmdSN, uint64(sn)) }

// StatSN returns a slog.Attr for the status sequence number.
func StatSN(sn uint32) slog.Attr { return slog.Uint64(KeyStatSN, uint64(sn)) }

// DataSN returns a slog.Attr for the Data-In/Data-Out sequence number.
func DataSN(sn uint32) slog.Attr { return slog.Uint64(KeyDataSN, uint64(sn)) }

// SCSIOp returns a slog.Attr for the CDB opcode byte.
func SCSIOp(op byte) slog.Attr { return slog.String(KeySCSIOp, fmt.Sprintf("0x%02x", op)) }

// LBA returns a slog.Attr for the logical block address.
func LBA(lba uint64) slog.Attr { return slog.Uint64(KeyLBA, lba) }

// BlockCount returns a slog.Attr for the requested block count.
func BlockCount(n uint32) slog.Attr { return slog.Uint64(KeyBlockCount, uint64(n)) }

// SCSIStatus returns a slog.Attr for the SAM status byte.
func SCSIStatus(status byte) slog.Attr { return slog.String(KeySCSIStatus, fmt.Sprintf("0x%02x", status)) }

// Status returns a slog.Attr for a protocol status code.
func Status(code int) slog.Attr { return slog.Int(KeyStatus, code) }

// StatusMsg returns a slog.Attr for a human-readable status message.
func StatusMsg(msg string) slog.Attr { return slog.String(KeyStatusMsg, msg) }

// Err returns a slog.Attr for an error, or a zero-value Attr if err is nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a slog.Attr for a numeric error code.
func ErrorCode(code int) slog.Attr { return slog.Int(KeyErrorCode, code) }

// Offset returns a slog.Attr for a buffer/LBA byte offset.
func Offset(off uint64) slog.Attr { return slog.Uint64(KeyOffset, off) }

// Count returns a slog.Attr for a requested byte count.
func Count(c uint32) slog.Attr { return slog.Uint64(KeyCount, uint64(c)) }

// BytesRead returns a slog.Attr for actual bytes read from the device.
func BytesRead(n int) slog.Attr { return slog.Int(KeyBytesRead, n) }

// BytesWritten returns a slog.Attr for actual bytes written to the device.
func BytesWritten(n int) slog.Attr { return slog.Int(KeyBytesWritten, n) }

// ClientIP returns a slog.Attr for the remote TCP address.
func ClientIP(addr string) slog.Attr { return slog.String(KeyClientIP, addr) }

// ClientPort returns a slog.Attr for the remote TCP port.
func ClientPort(port int) slog.Attr { return slog.Int(KeyClientPort, port) }

// DurationMs returns a slog.Attr for an operation duration in milliseconds.
func DurationMs(ms float64) slog.Attr { return slog.Float64(KeyDurationMs, ms) }

// Attempt returns a slog.Attr for a retry attempt number.
func Attempt(n int) slog.Attr { return slog.Int(KeyAttempt, n) }
