// internal/metrics/metrics_test.go
package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"mcp-meal-vision/internal/analysis"
)

func TestOutcome(t *testing.T) {
	assert.Equal(t, "success", Outcome(nil))
	assert.Equal(t, "timeout", Outcome(analysis.NewError(analysis.KindTimeout, "op", "slow", nil)))
	assert.Equal(t, "unknown", Outcome(errors.New("plain")))
}

func TestObserver(t *testing.T) {
	Register()
	Register()

	obs := Observer{}
	before := testutil.ToFloat64(AttemptsTotal.WithLabelValues("test", "provider_error"))
	obs.AttemptFinished("test", 1, analysis.NewError(analysis.KindProvider, "op", "500", nil), time.Second)
	obs.AttemptFinished("test", 2, nil, time.Second)
	obs.AnalysisFinished("test", nil, 3*time.Second)

	assert.Equal(t, before+1, testutil.ToFloat64(AttemptsTotal.WithLabelValues("test", "provider_error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(AttemptsTotal.WithLabelValues("test", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(RequestsTotal.WithLabelValues("test", "success")))
}
