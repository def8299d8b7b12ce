package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewTSIHNeverZero(t *testing.T) {
	for i := 0; i < 10; i++ {
		assert.NotEqual(t, uint16(0), NewTSIH())
	}
}

func TestNewTSIHMonotonicallyIncreases(t *testing.T) {
	a := NewTSIH()
	b := NewTSIH()
	assert.Less(t, a, b)
}

func TestNewSessionDefaults(t *testing.T) {
	s := New()
	assert.Equal(t, StageFree, s.Stage)
	assert.Equal(t, DefaultParameterBundle(), s.Params)
	assert.Equal(t, uint32(0), s.StatSN())
}

func TestObserveCmdSNSeedsWindowFromFirstCommand(t *testing.T) {
	s := New()
	inWindow := s.ObserveCmdSN(100)
	assert.True(t, inWindow)
	assert.Equal(t, uint32(101), s.ExpCmdSN())
	assert.Equal(t, uint32(101+32), s.MaxCmdSN())
}

func TestObserveCmdSNAdvancesOnInOrderDelivery(t *testing.T) {
	s := New()
	s.ObserveCmdSN(0)
	assert.True(t, s.ObserveCmdSN(1))
	assert.Equal(t, uint32(2), s.ExpCmdSN())
	assert.True(t, s.ObserveCmdSN(2))
	assert.Equal(t, uint32(3), s.ExpCmdSN())
}

func TestObserveCmdSNRejectsOutOfWindow(t *testing.T) {
	s := New()
	s.ObserveCmdSN(0)
	assert.False(t, s.ObserveCmdSN(1000))
	assert.Equal(t, uint32(1), s.ExpCmdSN())
}

func TestObserveCmdSNAcceptsButDoesNotAdvanceOutOfOrderWithinWindow(t *testing.T) {
	s := New()
	s.ObserveCmdSN(0)
	// CmdSN 2 arrives before 1: within window but not the expected one.
	assert.True(t, s.ObserveCmdSN(2))
	assert.Equal(t, uint32(1), s.ExpCmdSN())
	// Now 1 arrives: matches expected, advances.
	assert.True(t, s.ObserveCmdSN(1))
	assert.Equal(t, uint32(2), s.ExpCmdSN())
}

func TestNextStatSNIncrementsMonotonically(t *testing.T) {
	s := New()
	assert.Equal(t, uint32(0), s.NextStatSN())
	assert.Equal(t, uint32(1), s.NextStatSN())
	assert.Equal(t, uint32(2), s.StatSN())
}
