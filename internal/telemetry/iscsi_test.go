package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttributeHelpers(t *testing.T) {
	t.Run("Opcode", func(t *testing.T) {
		attr := Opcode(0x28)
		assert.Equal(t, AttrOpcode, string(attr.Key))
		assert.Equal(t, "0x28", attr.Value.AsString())
	})

	t.Run("LUN", func(t *testing.T) {
		attr := LUN(3)
		assert.Equal(t, AttrLUN, string(attr.Key))
		assert.Equal(t, int64(3), attr.Value.AsInt64())
	})

	t.Run("ITT", func(t *testing.T) {
		attr := ITT(0xdeadbeef)
		assert.Equal(t, AttrITT, string(attr.Key))
		assert.Equal(t, int64(0xdeadbeef), attr.Value.AsInt64())
	})

	t.Run("Status", func(t *testing.T) {
		attr := Status(0x02)
		assert.Equal(t, AttrStatus, string(attr.Key))
		assert.Equal(t, "0x02", attr.Value.AsString())
	})
}

func TestStartSCSISpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartSCSISpan(ctx, 0, 1, 0x28)
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()

	newCtx2, span2 := StartSCSISpan(ctx, 0, 2, 0x2a, Status(0x00))
	require.NotNil(t, newCtx2)
	require.NotNil(t, span2)
	span2.End()
}
