package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func resolvedStore(t *testing.T, route, target string, headers map[string]string) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var got string
	r.GET(route, TenantResolver("demo"), func(c *gin.Context) {
		got = StoreID(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(httptest.NewRecorder(), req)
	return got
}

func TestTenantResolver(t *testing.T) {
	tests := []struct {
		name    string
		route   string
		target  string
		headers map[string]string
		want    string
	}{
		{"path param wins", "/stats/:storeId", "/stats/path-store?storeId=q", map[string]string{"X-Store-ID": "h"}, "path-store"},
		{"header before query", "/track", "/track?storeId=q", map[string]string{"X-Store-ID": "h"}, "h"},
		{"query", "/track", "/track?storeId=q", nil, "q"},
		{"missing", "/track", "/track", nil, "demo"},
		{"placeholder", "/track", "/track?storeId=undefined", nil, "demo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolvedStore(t, tt.route, tt.target, tt.headers))
		})
	}
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORSMiddleware("http://dash.example"))
	r.OPTIONS("/x", func(c *gin.Context) { c.Status(http.StatusTeapot) })
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/x", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://dash.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBeaconCORS_AllowsAnyOrigin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(BeaconCORS())
	r.POST("/api/track", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/track", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
}
