package sysinfo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleReturnsPopulatedSnapshot(t *testing.T) {
	snap, err := Sample(context.Background(), t.TempDir())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, snap.MemoryTotalMB, uint64(1))
	assert.GreaterOrEqual(t, snap.DiskTotalGB, float64(0))
	assert.WithinDuration(t, time.Now().UTC(), snap.SampledAt, time.Minute)
}
