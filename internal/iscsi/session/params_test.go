package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNegotiateDigestsAlwaysForceNone(t *testing.T) {
	b := DefaultParameterBundle()

	reply, recognized, err := b.Negotiate("HeaderDigest", "CRC32C")
	require.NoError(t, err)
	assert.True(t, recognized)
	assert.Equal(t, "None", reply)
	assert.Equal(t, DigestNone, b.HeaderDigest)

	reply, recognized, err = b.Negotiate("DataDigest", "CRC32C,None")
	assert.True(t, recognized)
	_ = reply
	_ = err
}

func TestNegotiateDataDigestRejectsGarbage(t *testing.T) {
	b := DefaultParameterBundle()
	_, recognized, err := b.Negotiate("DataDigest", "MD5")
	assert.True(t, recognized)
	assert.Error(t, err)
}

func TestNegotiateMaxRecvDataSegmentLengthIsDeclarative(t *testing.T) {
	b := DefaultParameterBundle()
	reply, recognized, err := b.Negotiate("MaxRecvDataSegmentLength", "1024")
	require.NoError(t, err)
	assert.True(t, recognized)

	assert.Equal(t, uint32(1024), b.MaxRecvDataSegmentLength)
	assert.Equal(t, "65536", reply)
}

func TestNegotiateMaxRecvDataSegmentLengthRejectsZero(t *testing.T) {
	b := DefaultParameterBundle()
	_, _, err := b.Negotiate("MaxRecvDataSegmentLength", "0")
	assert.Error(t, err)
}

func TestNegotiateMaxBurstLengthTakesMinimum(t *testing.T) {
	b := DefaultParameterBundle()
	require.Equal(t, uint32(262144), b.MaxBurstLength)

	reply, recognized, err := b.Negotiate("MaxBurstLength", "8192")
	require.NoError(t, err)
	assert.True(t, recognized)
	assert.Equal(t, "8192", reply)
	assert.Equal(t, uint32(8192), b.MaxBurstLength)

	reply, _, err = b.Negotiate("MaxBurstLength", "999999999")
	// domain is [512, 16777215]; 999999999 exceeds that
	assert.Error(t, err)
	_ = reply
}

func TestNegotiateFirstBurstLengthClampsToMaxBurst(t *testing.T) {
	b := DefaultParameterBundle()
	_, _, err := b.Negotiate("MaxBurstLength", "4096")
	require.NoError(t, err)

	reply, _, err := b.Negotiate("FirstBurstLength", "65536")
	require.NoError(t, err)
	assert.Equal(t, "4096", reply)
	assert.Equal(t, uint32(4096), b.FirstBurstLength)
}

func TestNegotiateDefaultTime2WaitTakesMaximum(t *testing.T) {
	b := DefaultParameterBundle()
	require.Equal(t, uint32(2), b.DefaultTime2Wait)

	reply, _, err := b.Negotiate("DefaultTime2Wait", "0")
	require.NoError(t, err)
	assert.Equal(t, "2", reply)

	reply, _, err = b.Negotiate("DefaultTime2Wait", "10")
	require.NoError(t, err)
	assert.Equal(t, "10", reply)
	assert.Equal(t, uint32(10), b.DefaultTime2Wait)
}

func TestNegotiateDefaultTime2RetainTakesMinimum(t *testing.T) {
	b := DefaultParameterBundle()
	require.Equal(t, uint32(20), b.DefaultTime2Retain)

	reply, _, err := b.Negotiate("DefaultTime2Retain", "5")
	require.NoError(t, err)
	assert.Equal(t, "5", reply)
	assert.Equal(t, uint32(5), b.DefaultTime2Retain)
}

func TestNegotiateMaxOutstandingR2TTakesMinimum(t *testing.T) {
	b := DefaultParameterBundle()
	reply, _, err := b.Negotiate("MaxOutstandingR2T", "4")
	require.NoError(t, err)
	assert.Equal(t, "1", reply)
	assert.Equal(t, uint32(1), b.MaxOutstandingR2T)
}

func TestNegotiateMaxOutstandingR2TRejectsZero(t *testing.T) {
	b := DefaultParameterBundle()
	_, _, err := b.Negotiate("MaxOutstandingR2T", "0")
	assert.Error(t, err)
}

func TestNegotiateInitialR2TIsOR(t *testing.T) {
	b := DefaultParameterBundle()
	require.True(t, bool(b.InitialR2T))

	reply, _, err := b.Negotiate("InitialR2T", "No")
	require.NoError(t, err)
	assert.Equal(t, "Yes", reply)
	assert.True(t, bool(b.InitialR2T))
}

func TestNegotiateImmediateDataIsAND(t *testing.T) {
	b := DefaultParameterBundle()
	require.False(t, bool(b.ImmediateData))

	reply, _, err := b.Negotiate("ImmediateData", "Yes")
	require.NoError(t, err)
	assert.Equal(t, "No", reply)
	assert.False(t, bool(b.ImmediateData))
}

func TestNegotiateDataPDUInOrderIsOR(t *testing.T) {
	b := DefaultParameterBundle()
	b.DataPDUInOrder = false
	reply, _, err := b.Negotiate("DataPDUInOrder", "Yes")
	require.NoError(t, err)
	assert.Equal(t, "Yes", reply)
	assert.True(t, bool(b.DataPDUInOrder))
}

func TestNegotiateDataSequenceInOrderIsOR(t *testing.T) {
	b := DefaultParameterBundle()
	b.DataSequenceInOrder = false
	reply, _, err := b.Negotiate("DataSequenceInOrder", "No")
	require.NoError(t, err)
	assert.Equal(t, "No", reply)
	assert.False(t, bool(b.DataSequenceInOrder))
}

func TestNegotiateMaxConnectionsAlwaysRepliesOne(t *testing.T) {
	b := DefaultParameterBundle()
	reply, _, err := b.Negotiate("MaxConnections", "8")
	require.NoError(t, err)
	assert.Equal(t, "1", reply)
	assert.Equal(t, uint32(1), b.MaxConnections)
}

func TestNegotiateMaxConnectionsRejectsZero(t *testing.T) {
	b := DefaultParameterBundle()
	_, _, err := b.Negotiate("MaxConnections", "0")
	assert.Error(t, err)
}

func TestNegotiateErrorRecoveryLevelCappedAtZero(t *testing.T) {
	b := DefaultParameterBundle()
	reply, _, err := b.Negotiate("ErrorRecoveryLevel", "2")
	require.NoError(t, err)
	assert.Equal(t, "0", reply)
	assert.Equal(t, uint32(0), b.ErrorRecoveryLevel)
}

func TestNegotiateErrorRecoveryLevelRejectsOutOfDomain(t *testing.T) {
	b := DefaultParameterBundle()
	_, _, err := b.Negotiate("ErrorRecoveryLevel", "3")
	assert.Error(t, err)
}

func TestNegotiateUnrecognizedKeyReportsNotRecognized(t *testing.T) {
	b := DefaultParameterBundle()
	_, recognized, err := b.Negotiate("X-com.example.Extension", "whatever")
	assert.False(t, recognized)
	assert.NoError(t, err)
}

func TestYesNoStringAndParseRoundTrip(t *testing.T) {
	v, ok := parseYesNo("Yes")
	require.True(t, ok)
	assert.Equal(t, "Yes", v.String())

	v, ok = parseYesNo("No")
	require.True(t, ok)
	assert.Equal(t, "No", v.String())

	_, ok = parseYesNo("maybe")
	assert.False(t, ok)
}
