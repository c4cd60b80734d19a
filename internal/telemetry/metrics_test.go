package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestApprovalTransitionsTotal_CanBeIncremented(t *testing.T) {
	before := testutil.ToFloat64(ApprovalTransitionsTotal.WithLabelValues("approved"))
	ApprovalTransitionsTotal.WithLabelValues("approved").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(ApprovalTransitionsTotal.WithLabelValues("approved")))
}

func TestEmailDeliveriesTotal_CanBeIncremented(t *testing.T) {
	c := EmailDeliveriesTotal.WithLabelValues("welcome", "sent")
	before := testutil.ToFloat64(c)
	c.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(c))
}

func TestDBOpenConnections_CanBeSet(t *testing.T) {
	DBOpenConnections.Set(7)
	assert.Equal(t, float64(7), testutil.ToFloat64(DBOpenConnections))
}
