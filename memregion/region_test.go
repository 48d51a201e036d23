package memregion

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRangeHasAccess(t *testing.T) {
	cfg, err := New(
		Region{Kind: RWData, Start: 0x2000_0000, End: 0x2000_1000},
		Region{Kind: ROExec, Start: 0x0800_0000, End: 0x0800_8000},
	)
	require.NoError(t, err)

	require.True(t, cfg.RangeHasAccess(Read, 0x2000_0000, 0x2000_0100))
	require.True(t, cfg.RangeHasAccess(Write, 0x2000_0000, 0x2000_0100))
	require.False(t, cfg.RangeHasAccess(Execute, 0x2000_0000, 0x2000_0100))

	require.True(t, cfg.RangeHasAccess(Execute, 0x0800_0000, 0x0800_0100))
	require.False(t, cfg.RangeHasAccess(Write, 0x0800_0000, 0x0800_0100))

	// Partially overlapping a region boundary is not contained, and must
	// be rejected even though the start address is valid.
	require.False(t, cfg.RangeHasAccess(Read, 0x2000_0F00, 0x2000_1100))

	// Entirely outside any region.
	require.False(t, cfg.RangeHasAccess(Read, 0x4000_0000, 0x4000_0100))
}

func TestHasAccessSized(t *testing.T) {
	cfg, err := New(Region{Kind: Device, Start: 0x4000_0000, End: 0x4000_1000})
	require.NoError(t, err)

	require.True(t, cfg.HasAccess(Read, 0x4000_0010, 4))
	require.True(t, cfg.HasAccess(Write, 0x4000_0010, 4))
	require.False(t, cfg.HasAccess(Execute, 0x4000_0010, 4))
}

func TestNewRejectsInvalidRegion(t *testing.T) {
	_, err := New(Region{Kind: RWData, Start: 0x1000, End: 0x1000})
	require.Error(t, err)
}
