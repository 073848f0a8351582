package wsfanout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/easycicd/agent/internal/events"
)

func TestFiltersForBuildStatusCoversBuildProjectAndGlobal(t *testing.T) {
	filters := filtersFor(events.BuildStatusEvent{ProjectID: 1, BuildID: 2, Time: time.Now()})
	assert.Contains(t, filters, Filter{Kind: TargetGlobal})
	assert.Contains(t, filters, Filter{Kind: TargetBuild, ID: 2})
	assert.Contains(t, filters, Filter{Kind: TargetProject, ID: 1})
}

func TestFiltersForLogEventCoversBuildOnly(t *testing.T) {
	filters := filtersFor(events.LogEvent{ProjectID: 1, BuildID: 2, Time: time.Now()})
	assert.Contains(t, filters, Filter{Kind: TargetBuild, ID: 2})
	assert.NotContains(t, filters, Filter{Kind: TargetProject, ID: 1})
}

func TestFiltersForStandaloneContainerLog(t *testing.T) {
	filters := filtersFor(events.ContainerLogEvent{ContainerID: 9, Time: time.Now()})
	assert.Contains(t, filters, Filter{Kind: TargetContainer, ID: 9})
}

func TestClientGlobalFilterMatchesEverything(t *testing.T) {
	c := &client{filters: map[Filter]bool{{Kind: TargetGlobal}: true}}
	assert.True(t, c.matches(Filter{Kind: TargetBuild, ID: 42}))
}
