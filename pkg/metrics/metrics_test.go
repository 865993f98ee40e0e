package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	logger := logrus.New()
	Register(logger)
	Register(logger)

	r := NewRecorder()
	before := testutil.ToFloat64(runsTotal.WithLabelValues("swap", "completed"))
	r.RunFinished("swap", "completed", 2*time.Second)
	require.Equal(t, before+1, testutil.ToFloat64(runsTotal.WithLabelValues("swap", "completed")))

	before = testutil.ToFloat64(quoteRequestsTotal.WithLabelValues("stale"))
	r.QuoteRequest("stale")
	require.Equal(t, before+1, testutil.ToFloat64(quoteRequestsTotal.WithLabelValues("stale")))

	before = testutil.ToFloat64(approvalsTotal.WithLabelValues("skipped"))
	r.Approval("skipped")
	require.Equal(t, before+1, testutil.ToFloat64(approvalsTotal.WithLabelValues("skipped")))
}

func TestRecorder_NilSafe(t *testing.T) {
	var r *Recorder
	require.NotPanics(t, func() {
		r.RunFinished("swap", "failed", time.Second)
		r.QuoteRequest("error")
		r.Approval("failed")
	})
}
