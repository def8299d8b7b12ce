package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStageWireRoundTrip(t *testing.T) {
	cases := []Stage{StageSecurityNegotiation, StageLoginOperationalNegotiation, StageFullFeaturePhase}
	for _, s := range cases {
		wire := s.ToWire()
		got, ok := StageFromWire(wire)
		assert.True(t, ok)
		assert.Equal(t, s, got)
	}
}

func TestStageFromWireRejectsReservedValue(t *testing.T) {
	_, ok := StageFromWire(LoginStage(2))
	assert.False(t, ok)
}

func TestStageToWirePanicsOnNonWireStage(t *testing.T) {
	assert.Panics(t, func() { StageFree.ToWire() })
	assert.Panics(t, func() { StageLoggedOut.ToWire() })
	assert.Panics(t, func() { StageClosed.ToWire() })
}

func TestParseTypeRoundTrip(t *testing.T) {
	ty, ok := ParseType("Normal")
	assert.True(t, ok)
	assert.Equal(t, TypeNormal, ty)
	assert.Equal(t, "Normal", ty.String())

	ty, ok = ParseType("Discovery")
	assert.True(t, ok)
	assert.Equal(t, TypeDiscovery, ty)
	assert.Equal(t, "Discovery", ty.String())

	_, ok = ParseType("Bogus")
	assert.False(t, ok)
}
