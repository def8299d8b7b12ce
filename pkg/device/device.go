// Package device defines the block-storage capability the iSCSI core
// consumes as an external collaborator, plus an in-memory reference
// implementation used by tests and as a default for ad-hoc targets.
package device

import "context"

// BlockDevice is the storage capability a LUN is backed by. The core
// guarantees bytes.len() == blockCount*BlockSize() on both Read and Write,
// and that lba+blockCount <= Capacity(); violations are rejected with LBA
// OUT OF RANGE sense data before the call is ever made, so implementations
// do not need to re-validate bounds defensively.
type BlockDevice interface {
	// Capacity returns the device size in blocks.
	Capacity(ctx context.Context) (uint64, error)
	// BlockSize returns the size of one block in bytes, typically 512.
	BlockSize() uint32
	// ReadAt reads blockCount blocks starting at lba.
	ReadAt(ctx context.Context, lba uint64, blockCount uint32) ([]byte, error)
	// WriteAt writes data (a multiple of BlockSize()) starting at lba.
	WriteAt(ctx context.Context, lba uint64, data []byte) error
	// Flush commits any buffered writes to stable storage.
	Flush(ctx context.Context) error
}
