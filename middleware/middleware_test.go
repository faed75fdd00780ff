package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/sharedrop/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(path string, mw gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.GET(path, mw, func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"ok": true})
	})
	return r
}

func get(r http.Handler, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "203.0.113.7:5555"
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitMiddleware(t *testing.T) {
	// 4 per minute gives a burst of 2
	r := newEngine("/limited", RateLimitMiddleware(4))

	assert.Equal(t, http.StatusOK, get(r, "/limited", nil).Code)
	assert.Equal(t, http.StatusOK, get(r, "/limited", nil).Code)

	w := get(r, "/limited", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), `"code":42901`)
}

func TestRateLimitMiddleware_PerRoute(t *testing.T) {
	r := gin.New()
	mw := RateLimitMiddleware(2)
	r.GET("/one", mw, func(ctx *gin.Context) { ctx.Status(http.StatusOK) })
	r.GET("/two", mw, func(ctx *gin.Context) { ctx.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, get(r, "/one", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, "/one", nil).Code)
	assert.Equal(t, http.StatusOK, get(r, "/two", nil).Code)
}

func TestAdminSecretRequired(t *testing.T) {
	hash, err := utils.HashSecret("s3cret")
	require.NoError(t, err)
	r := newEngine("/admin", AdminSecretRequired(hash))

	assert.Equal(t, http.StatusUnauthorized, get(r, "/admin", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/admin", map[string]string{AdminSecretHeader: "wrong"}).Code)

	w := get(r, "/admin", map[string]string{AdminSecretHeader: "s3cret"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"code":0,"message":"success","data":{"ok":true}}`, w.Body.String())
}

func TestAdminSecretRequired_Disabled(t *testing.T) {
	r := newEngine("/admin", AdminSecretRequired(""))
	w := get(r, "/admin", map[string]string{AdminSecretHeader: "anything"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), `"code":40301`)
}
