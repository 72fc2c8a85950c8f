package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := NewCollector(reg)

	assert.NotNil(t, collector.phaseDuration)
	assert.NotNil(t, collector.jobsTotal)
	assert.NotNil(t, collector.leaderRejections)
	assert.NotNil(t, collector.activeJobs)
}

func TestObservePhaseLabelsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := NewCollector(reg)

	collector.ObservePhase("task_execute", 10*time.Millisecond, nil)
	collector.ObservePhase("task_execute", 20*time.Millisecond, errors.New("boom"))
	collector.ObservePhase("task_init", time.Millisecond, nil)

	assert.Equal(t, 3, testutil.CollectAndCount(collector.phaseDuration))
}

func TestJobCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := NewCollector(reg)

	collector.JobStarted()
	collector.JobStarted()
	collector.JobFinished("COMPLETED")
	collector.JobFinished("EXECUTE_ERROR")
	collector.LeaderRejected()

	assert.Equal(t, float64(1), testutil.ToFloat64(collector.jobsTotal.WithLabelValues("COMPLETED")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.jobsTotal.WithLabelValues("EXECUTE_ERROR")))
	assert.Equal(t, float64(0), testutil.ToFloat64(collector.activeJobs))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.leaderRejections))
}

func TestNilCollectorIsSafe(t *testing.T) {
	var collector *Collector
	assert.NotPanics(t, func() {
		collector.ObservePhase("task_init", time.Second, nil)
		collector.JobStarted()
		collector.JobFinished("COMPLETED")
		collector.LeaderRejected()
	})
}

func TestServerExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := NewCollector(reg)
	collector.LeaderRejected()

	srv, err := Listen("127.0.0.1:0", reg)
	require.NoError(t, err)
	defer srv.Close(context.Background())

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "opgrid_leader_rejections_total 1"), string(body))
}
