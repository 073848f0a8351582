package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordBuildAndDeploymentIncrementCounters(t *testing.T) {
	c := NewCollector()

	c.RecordBuild(true, 2*time.Second)
	c.RecordBuild(false, time.Second)
	c.RecordDeployment(true, 500*time.Millisecond)

	metrics, err := c.Registry().Gather()
	require.NoError(t, err)

	var sawBuildsTotal, sawDeploymentsTotal bool
	for _, mf := range metrics {
		switch mf.GetName() {
		case "easycicd_builds_total":
			sawBuildsTotal = true
			assert.Len(t, mf.GetMetric(), 2)
		case "easycicd_deployments_total":
			sawDeploymentsTotal = true
			assert.Len(t, mf.GetMetric(), 1)
		}
	}
	assert.True(t, sawBuildsTotal)
	assert.True(t, sawDeploymentsTotal)
}

func TestActiveDeploymentsGaugeIncDec(t *testing.T) {
	c := NewCollector()
	c.IncActiveDeployments()
	c.IncActiveDeployments()
	c.DecActiveDeployments()

	metrics, err := c.Registry().Gather()
	require.NoError(t, err)

	for _, mf := range metrics {
		if mf.GetName() == "easycicd_active_deployments" {
			require.Len(t, mf.GetMetric(), 1)
			assert.Equal(t, float64(1), mf.GetMetric()[0].GetGauge().GetValue())
		}
	}
}

func TestHandlerServesPrometheusFormat(t *testing.T) {
	InitGlobal()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "easycicd_uptime_seconds")
}
