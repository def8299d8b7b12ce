package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingWriteAccumulatesImmediateData(t *testing.T) {
	pw := NewPendingWrite(0, 10, 42, 8)
	pw.AppendImmediate([]byte("abcd"))
	assert.Equal(t, uint32(4), pw.Remaining())
	assert.False(t, pw.Complete())

	ok := pw.AppendDataOut(0, []byte("efgh"))
	require.True(t, ok)
	assert.True(t, pw.Complete())
	assert.Equal(t, uint32(0), pw.Remaining())
	assert.Equal(t, []byte("abcdefgh"), pw.Data())
}

func TestPendingWriteRejectsOutOfOrderDataSN(t *testing.T) {
	pw := NewPendingWrite(0, 0, 1, 16)
	ok := pw.AppendDataOut(1, []byte("xxxxxxxx"))
	assert.False(t, ok)
	assert.Equal(t, uint32(16), pw.Remaining())
}

func TestPendingWriteAdvancesDataSNOnEachAccept(t *testing.T) {
	pw := NewPendingWrite(0, 0, 1, 16)
	assert.Equal(t, uint32(0), pw.NextDataSN())
	require.True(t, pw.AppendDataOut(0, []byte("12345678")))
	assert.Equal(t, uint32(1), pw.NextDataSN())
	require.True(t, pw.AppendDataOut(1, []byte("87654321")))
	assert.Equal(t, uint32(2), pw.NextDataSN())
	assert.True(t, pw.Complete())
}

func TestPendingWriteR2TSNIncrementsEachCall(t *testing.T) {
	pw := NewPendingWrite(0, 0, 1, 16)
	assert.Equal(t, uint32(0), pw.NextR2TSN())
	assert.Equal(t, uint32(1), pw.NextR2TSN())
	assert.Equal(t, uint32(2), pw.NextR2TSN())
}

func TestPendingWriteFieldsPreserved(t *testing.T) {
	pw := NewPendingWrite(3, 99, 7, 100)
	assert.Equal(t, uint64(3), pw.LUN)
	assert.Equal(t, uint64(99), pw.LBA)
	assert.Equal(t, uint32(7), pw.ITT)
	assert.Equal(t, uint32(100), pw.Expected)
}
