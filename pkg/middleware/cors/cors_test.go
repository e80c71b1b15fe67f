package cors

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func serve(origins []string, method, origin string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(New(origins))
	r.GET("/rooms", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, "/rooms", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	r.ServeHTTP(rec, req)
	return rec
}

func TestAllowedOriginEchoed(t *testing.T) {
	rec := serve([]string{"https://dash.example.ac.id/"}, http.MethodGet, "https://dash.example.ac.id")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://dash.example.ac.id", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnknownOriginPreflightRefused(t *testing.T) {
	rec := serve([]string{"https://dash.example.ac.id"}, http.MethodOptions, "https://evil.example.com")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestPreflightWithoutRestrictions(t *testing.T) {
	rec := serve(nil, http.MethodOptions, "https://any.example.com")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, allowMethods, rec.Header().Get("Access-Control-Allow-Methods"))
}
