package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveStage(t *testing.T) {
	ObserveStage("unit-test", time.Now().Add(-10*time.Millisecond))

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	var found bool
	for _, f := range families {
		if f.GetName() != "nexus_stage_duration_seconds" {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "stage" && l.GetValue() == "unit-test" {
					found = true
					assert.EqualValues(t, 1, m.GetHistogram().GetSampleCount())
					assert.Greater(t, m.GetHistogram().GetSampleSum(), 0.0)
				}
			}
		}
	}
	assert.True(t, found, "stage histogram not exported")
}
