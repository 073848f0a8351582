package periodic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsOrphanBuildContainerAlwaysOrphan(t *testing.T) {
	w := &Workers{}
	assert.True(t, w.isOrphan("build-123", nil, nil))
}

func TestIsOrphanProjectSlotUnknownProject(t *testing.T) {
	w := &Workers{}
	known := map[int64]bool{1: true}
	assert.False(t, w.isOrphan("project-1-blue", known, nil))
	assert.True(t, w.isOrphan("project-2-blue", known, nil))
}

func TestIsOrphanStandaloneContainerUnknownName(t *testing.T) {
	w := &Workers{}
	known := map[string]bool{"redis": true}
	assert.False(t, w.isOrphan("container-redis", nil, known))
	assert.True(t, w.isOrphan("container-cache", nil, known))
}

func TestIsOrphanUnrelatedNameNeverOrphan(t *testing.T) {
	w := &Workers{}
	assert.False(t, w.isOrphan("some-unrelated-name", nil, nil))
}
