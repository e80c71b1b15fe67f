package requestid

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newRouter(t *testing.T, seen *string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/", func(c *gin.Context) {
		*seen = FromContext(c.Request.Context())
		assert.Equal(t, Value(c), *seen)
		c.Status(http.StatusOK)
	})
	return r
}

func TestMiddlewareKeepsWellFormedID(t *testing.T) {
	var seen string
	r := newRouter(t, &seen)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(headerKey, "req-12345678")
	r.ServeHTTP(rec, req)

	assert.Equal(t, "req-12345678", rec.Header().Get(headerKey))
	assert.Equal(t, "req-12345678", seen)
}

func TestMiddlewareReplacesMalformedID(t *testing.T) {
	var seen string
	r := newRouter(t, &seen)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(headerKey, "bad id\nwith newline")
	r.ServeHTTP(rec, req)

	got := rec.Header().Get(headerKey)
	assert.Len(t, got, 36)
	assert.Equal(t, got, seen)
}
