package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestGetIsSingleton(t *testing.T) {
	assert.Same(t, Get(), Get())
}

func TestCountersIncrement(t *testing.T) {
	m := Get()
	before := testutil.ToFloat64(m.SprintsClosedTotal.WithLabelValues("backlog"))
	m.SprintsClosedTotal.WithLabelValues("backlog").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(m.SprintsClosedTotal.WithLabelValues("backlog")))
}
