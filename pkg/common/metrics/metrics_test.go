package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsCollectorRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsCollector("test", reg)

	m.RecordSearchRequest("cars", "search", 200, 5*time.Millisecond)
	m.RecordSearchRequest("cars", "search", 0, time.Millisecond)
	m.RecordCompile("query", nil, time.Microsecond)
	m.RecordCompile("mapping", errors.New("boom"), time.Microsecond)
	m.RecordCacheHit()
	m.RecordCacheMiss()
	m.RecordCacheMiss()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchRequestsTotal.WithLabelValues("cars", "search", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchRequestsTotal.WithLabelValues("cars", "search", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CompileTotal.WithLabelValues("mapping", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MappingCacheHits))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.MappingCacheMisses))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["esdsl_test_search_requests_total"])
	assert.True(t, names["esdsl_test_compile_duration_seconds"])
}

func TestStatusClass(t *testing.T) {
	tests := []struct {
		status   int
		expected string
	}{
		{200, "2xx"},
		{201, "2xx"},
		{404, "4xx"},
		{503, "5xx"},
		{0, "error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, statusClass(tt.status))
	}
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetricsCollector("http", nil)

	router := gin.New()
	router.Use(HTTPMetricsMiddleware(m))
	router.GET("/_mapping/:doc_type", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"doc_type": c.Param("doc_type")})
	})

	for _, path := range []string{"/_mapping/car", "/_mapping/seller", "/nope"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/_mapping/:doc_type", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", unmatchedPath, "4xx")))
}
