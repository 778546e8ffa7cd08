package sampler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCPUProbe_Collect(t *testing.T) {
	p := &CPUProbe{}
	values, err := p.Collect(time.Now())
	require.NoError(t, err)

	v, ok := values["cpu"]
	require.True(t, ok)
	assert.GreaterOrEqual(t, v, 0.0)
	assert.LessOrEqual(t, v, 100.0)
}

func TestMemoryProbe_Collect(t *testing.T) {
	p := &MemoryProbe{}
	values, err := p.Collect(time.Now())
	require.NoError(t, err)

	v, ok := values["memory"]
	require.True(t, ok)
	assert.Greater(t, v, 0.0)
	assert.LessOrEqual(t, v, 100.0)
}

func TestDiskProbe_Collect(t *testing.T) {
	p := NewDiskProbe()
	require.NotEmpty(t, p.mounts, "at least one mount point expected")

	values, err := p.Collect(time.Now())
	require.NoError(t, err)
	require.NotEmpty(t, values)
	for mount, v := range values {
		assert.GreaterOrEqual(t, v, 0.0, "mount %s", mount)
		assert.LessOrEqual(t, v, 100.0, "mount %s", mount)
	}
}
