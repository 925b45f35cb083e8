package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/waifuarena/cache"
	"github.com/stretchr/testify/assert"
)

func newNonceRouter(c cache.Cache) *gin.Engine {
	r := gin.New()
	r.Use(Auth(testSec, c))
	r.Use(Nonce(c, time.Minute))
	r.POST("/act", func(ctx *gin.Context) { ctx.Status(http.StatusOK) })
	return r
}

func postWithNonce(r *gin.Engine, token, nonce string) int {
	req := httptest.NewRequest(http.MethodPost, "/act", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	if nonce != "" {
		req.Header.Set(NonceHeader, nonce)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestNonce_FreshThenReplay(t *testing.T) {
	c := setupTestCache(t)
	r := newNonceRouter(c)
	token := login(t, c, alice)

	assert.Equal(t, http.StatusOK, postWithNonce(r, token, "n-1"))
	assert.Equal(t, http.StatusConflict, postWithNonce(r, token, "n-1"))
	assert.Equal(t, http.StatusOK, postWithNonce(r, token, "n-2"))
}

func TestNonce_ScopedPerCaller(t *testing.T) {
	c := setupTestCache(t)
	r := newNonceRouter(c)

	assert.Equal(t, http.StatusOK, postWithNonce(r, login(t, c, alice), "shared"))
	assert.Equal(t, http.StatusOK, postWithNonce(r, login(t, c, bob), "shared"))
}

func TestNonce_Missing(t *testing.T) {
	c := setupTestCache(t)
	r := newNonceRouter(c)
	assert.Equal(t, http.StatusBadRequest, postWithNonce(r, login(t, c, alice), ""))
}

func TestNonce_WithoutAuth(t *testing.T) {
	c := setupTestCache(t)
	r := gin.New()
	r.Use(Nonce(c, time.Minute))
	r.POST("/act", func(ctx *gin.Context) { ctx.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/act", nil)
	req.Header.Set(NonceHeader, "x")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
