package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollector(t *testing.T) {
	// Reset the Prometheus registry to avoid duplicate registration
	prometheus.DefaultRegisterer = prometheus.NewRegistry()

	c := NewCollector()

	require.NotNil(t, c)
	assert.NotNil(t, c.jobsSubmitted)
	assert.NotNil(t, c.jobsFinished)
	assert.NotNil(t, c.jobsRunning)
	assert.NotNil(t, c.queueDepth)
	assert.NotNil(t, c.stageDuration)
	assert.NotNil(t, c.factorsFound)
	assert.NotNil(t, c.httpRequests)
	assert.NotNil(t, c.httpDuration)
}

func TestCollector_SecondRegistrationPanics(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()

	first := NewCollector()
	require.NotNil(t, first)

	assert.Panics(t, func() {
		NewCollector()
	}, "a second collector must panic on duplicate registration")
}

func TestCollector_JobLifecycle(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	c := NewCollector()

	assert.NotPanics(t, func() {
		c.RecordJobSubmitted()
		c.JobStarted()
		c.ObserveStageDuration("trial_division", 0.42)
		c.RecordFactorFound("trial_division")
		c.JobStopped()
		c.RecordJobFinished("completed")
	})
}

func TestCollector_NilReceiverIsSafe(t *testing.T) {
	var c *Collector

	assert.NotPanics(t, func() {
		c.RecordJobSubmitted()
		c.RecordJobFinished("failed")
		c.JobStarted()
		c.JobStopped()
		c.SetQueueDepth(3)
		c.ObserveStageDuration("ecm", 1.5)
		c.RecordFactorFound("ecm")
		c.RecordHTTPRequest("GET", "/api/jobs", 200, 0.01)
	})
}

func TestCollector_HTTPMetrics(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	c := NewCollector()

	assert.NotPanics(t, func() {
		c.RecordHTTPRequest("POST", "/api/jobs", 201, 0.005)
		c.RecordHTTPRequest("GET", "/api/jobs", 200, 0.001)
		c.RecordHTTPRequest("GET", "/api/jobs", 404, 0.001)
		c.RecordHTTPRequest("POST", "/api/jobs", 500, 0.1)
	})
}

func TestHTTPStatusLabel(t *testing.T) {
	cases := map[int]string{
		100: "1xx",
		200: "2xx",
		201: "2xx",
		301: "3xx",
		400: "4xx",
		404: "4xx",
		500: "5xx",
		503: "5xx",
	}
	for status, want := range cases {
		assert.Equal(t, want, httpStatusLabel(status), "status %d", status)
	}
}

func TestCollector_ConcurrentUpdates(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	c := NewCollector()

	done := make(chan struct{}, 50)
	for i := 0; i < 50; i++ {
		go func() {
			c.RecordJobSubmitted()
			c.JobStarted()
			c.ObserveStageDuration("pollard_rho", 0.2)
			c.JobStopped()
			c.RecordJobFinished("completed")
			done <- struct{}{}
		}()
	}
	for i := 0; i < 50; i++ {
		<-done
	}
}
