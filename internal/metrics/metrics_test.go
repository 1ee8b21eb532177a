package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordCacheLookup(t *testing.T) {
	hits := testutil.ToFloat64(cacheLookups.WithLabelValues("lists", "hit"))
	misses := testutil.ToFloat64(cacheLookups.WithLabelValues("lists", "miss"))

	RecordCacheLookup("lists", true)
	RecordCacheLookup("lists", false)
	RecordCacheLookup("lists", false)

	assert.Equal(t, hits+1, testutil.ToFloat64(cacheLookups.WithLabelValues("lists", "hit")))
	assert.Equal(t, misses+2, testutil.ToFloat64(cacheLookups.WithLabelValues("lists", "miss")))
}

func TestRecordRemoteCall(t *testing.T) {
	before := testutil.ToFloat64(remoteCalls.WithLabelValues("list_page", "error"))
	RecordRemoteCall("list_page", errors.New("boom"))
	assert.Equal(t, before+1, testutil.ToFloat64(remoteCalls.WithLabelValues("list_page", "error")))
}

func TestHandler_ExposesMetrics(t *testing.T) {
	RecordBytesMirrored(42)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "drivemirror_bytes_mirrored_total")
}
