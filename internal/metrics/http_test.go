package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInstrumentedRouter(t *testing.T) (*gin.Engine, *Provider) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	provider, err := NewProvider("test_app")
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, provider.Shutdown(context.Background()))
	})

	router := gin.New()
	router.Use(HTTPMetricsMiddleware(provider.MeterProvider(), "test_app"))
	return router, provider
}

func performRequest(router *gin.Engine, method, path string) int {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	router.ServeHTTP(w, req)
	return w.Code
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	t.Run("counts requests per method and status", func(t *testing.T) {
		router, provider := newInstrumentedRouter(t)
		router.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "healthy"})
		})
		router.POST("/v1/keys/rotate", func(c *gin.Context) {
			c.JSON(http.StatusCreated, gin.H{"version": 2})
		})

		for i := 0; i < 3; i++ {
			assert.Equal(t, http.StatusOK, performRequest(router, http.MethodGet, "/health"))
		}
		assert.Equal(t, http.StatusCreated, performRequest(router, http.MethodPost, "/v1/keys/rotate"))

		output := scrape(t, provider)
		assertMetricLine(t, output,
			`test_app_http_requests_total`,
			`method="GET".*path="/health".*status_code="200"`,
			`3`,
		)
		assertMetricLine(t, output,
			`test_app_http_requests_total`,
			`method="POST".*path="/v1/keys/rotate".*status_code="201"`,
			`1`,
		)
		assertMetricLine(t, output,
			`test_app_http_request_duration_seconds_count`,
			`method="GET".*path="/health"`,
			`3`,
		)
	})

	t.Run("labels use the route pattern, not the raw path", func(t *testing.T) {
		router, provider := newInstrumentedRouter(t)
		router.POST("/v1/keys/:version/revoke", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"version": c.Param("version")})
		})

		assert.Equal(t, http.StatusOK, performRequest(router, http.MethodPost, "/v1/keys/7/revoke"))
		assert.Equal(t, http.StatusOK, performRequest(router, http.MethodPost, "/v1/keys/8/revoke"))

		output := scrape(t, provider)
		assertMetricLine(t, output,
			`test_app_http_requests_total`,
			`path="/v1/keys/:version/revoke"`,
			`2`,
		)
		assert.NotContains(t, output, `path="/v1/keys/7/revoke"`)
	})

	t.Run("unmatched routes collapse into one label", func(t *testing.T) {
		router, provider := newInstrumentedRouter(t)

		assert.Equal(t, http.StatusNotFound, performRequest(router, http.MethodGet, "/no/such/route"))
		assert.Equal(t, http.StatusNotFound, performRequest(router, http.MethodGet, "/another/miss"))

		output := scrape(t, provider)
		assertMetricLine(t, output,
			`test_app_http_requests_total`,
			`path="unmatched".*status_code="404"`,
			`2`,
		)
	})
}
