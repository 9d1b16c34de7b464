package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestMetricsUseRoutePatterns(t *testing.T) {
	reg := prometheus.NewRegistry()
	srv := newTestServer(t, WithMetrics(reg, "/metrics"))

	serve(srv, http.MethodPut, "/v1/objects/a.txt", strings.NewReader("abc"))
	serve(srv, http.MethodPut, "/v1/objects/nested/b.txt", strings.NewReader("defg"))
	serve(srv, http.MethodGet, "/v1/objects/missing.txt", nil)
	serve(srv, http.MethodGet, "/nope", nil)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	labels := map[string]float64{}
	for _, mf := range mfs {
		if mf.GetName() != "zonestore_http_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			key := ""
			for _, lp := range m.GetLabel() {
				key += lp.GetName() + "=" + lp.GetValue() + ","
			}
			labels[key] = m.GetCounter().GetValue()
		}
	}

	assert.Equal(t, float64(2), labels["method=PUT,route=/v1/objects/*,status_class=2xx,"])
	assert.Equal(t, float64(1), labels["method=GET,route=/v1/objects/*,status_class=4xx,"])
	assert.Equal(t, float64(1), labels["method=GET,route=other,status_class=4xx,"])
}

func TestRequestMetricsSkipsMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	srv := newTestServer(t, WithMetrics(reg, "/metrics"))

	rec := serve(srv, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	count, err := testutil.GatherAndCount(reg, "zonestore_http_requests_total")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestUploadBytesCounted(t *testing.T) {
	metrics := newHTTPMetrics(prometheus.NewRegistry())
	srv := newTestServer(t)
	handler := requestMetricsMiddleware(metrics, "/metrics")(srv.Handler())

	req := httptest.NewRequest(http.MethodPut, "/v1/objects/a.bin", strings.NewReader("12345"))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, float64(5), testutil.ToFloat64(metrics.uploadBytes))
}

func TestHTTPStatusClass(t *testing.T) {
	assert.Equal(t, "1xx", httpStatusClass(101))
	assert.Equal(t, "2xx", httpStatusClass(204))
	assert.Equal(t, "3xx", httpStatusClass(304))
	assert.Equal(t, "4xx", httpStatusClass(404))
	assert.Equal(t, "5xx", httpStatusClass(502))
}
