package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAction(t *testing.T) {
	before := testutil.ToFloat64(wizardActions.WithLabelValues("skip", "error"))

	RecordAction("skip", errors.New("no later group"))

	assert.Equal(t, before+1, testutil.ToFloat64(wizardActions.WithLabelValues("skip", "error")))
}

func TestRecordGeneration(t *testing.T) {
	before := testutil.ToFloat64(generationsTotal.WithLabelValues("diffusion", "ok"))

	RecordGeneration("diffusion", 3*time.Second, nil)

	assert.Equal(t, before+1, testutil.ToFloat64(generationsTotal.WithLabelValues("diffusion", "ok")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	RecordImageDelivered()
	SetSessions(2)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "promptbot_backend_images_delivered_total")
	assert.Contains(t, string(body), "promptbot_wizard_sessions 2")
}
