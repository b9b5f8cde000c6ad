package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIntakeMetricsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewIntakeMetrics(reg)
	require.NotNil(t, m)

	m.ObserveTurn("collecting", 0.1)
	m.ObserveDetection("category", "regex", "high", 0.001)
	m.ObserveExtraction("filled")
	m.ObserveSubmission("accepted")

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNilReceiverIsSafe(t *testing.T) {
	var m *IntakeMetrics
	m.ObserveTurn("collecting", 0.1)
	m.ObserveDetection("category", "ai", "low", 0.5)
	m.ObserveExtraction("null")
	m.ObserveSubmission("rejected")
}
