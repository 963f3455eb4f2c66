package metricsvc

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/planner/core/notification"
	"github.com/trezcool/planner/core/planning"
)

func TestMetrics(t *testing.T) {
	m := New()
	m.PlanCreated()
	m.PlanCreated()
	m.PlanTransitioned(planning.StatusApproved)
	m.NotificationFailed(notification.KindApproved)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.plansCreated))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.transitions.WithLabelValues("approved")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.transitions.WithLabelValues("rejected")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `planner_notification_failures_total{kind="aprovado"} 1`)
}
