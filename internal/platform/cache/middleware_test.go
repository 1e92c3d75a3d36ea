package cache_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libro-backend/internal/platform/cache"
)

func newCachedRouter(ttl time.Duration, hits *atomic.Int64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(cache.Middleware(cache.NewMemoryStore(), ttl))
	r.GET("/books", func(c *gin.Context) {
		hits.Add(1)
		c.JSON(http.StatusOK, gin.H{"n": hits.Load()})
	})
	r.GET("/missing", func(c *gin.Context) {
		hits.Add(1)
		c.JSON(http.StatusNotFound, gin.H{"error": "nope"})
	})
	r.POST("/books", func(c *gin.Context) {
		hits.Add(1)
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func do(r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestMiddleware_SecondGetServedFromCache(t *testing.T) {
	var hits atomic.Int64
	r := newCachedRouter(time.Minute, &hits)

	first := do(r, http.MethodGet, "/books")
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))

	second := do(r, http.MethodGet, "/books")
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))

	// 2回目はハンドラまで届かず、同じボディが返る
	assert.Equal(t, int64(1), hits.Load())
	assert.Equal(t, first.Body.String(), second.Body.String())
}

func TestMiddleware_QueryStringIsPartOfKey(t *testing.T) {
	var hits atomic.Int64
	r := newCachedRouter(time.Minute, &hits)

	do(r, http.MethodGet, "/books?limit=1")
	w := do(r, http.MethodGet, "/books?limit=2")

	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	assert.Equal(t, int64(2), hits.Load())
}

func TestMiddleware_ExpiredEntryIsRefetched(t *testing.T) {
	var hits atomic.Int64
	r := newCachedRouter(30*time.Millisecond, &hits)

	do(r, http.MethodGet, "/books")
	time.Sleep(50 * time.Millisecond)

	w := do(r, http.MethodGet, "/books")
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	assert.Equal(t, int64(2), hits.Load())
}

func TestMiddleware_NonOKNotCached(t *testing.T) {
	var hits atomic.Int64
	r := newCachedRouter(time.Minute, &hits)

	do(r, http.MethodGet, "/missing")
	w := do(r, http.MethodGet, "/missing")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, int64(2), hits.Load())
}

func TestMiddleware_PostBypassesCache(t *testing.T) {
	var hits atomic.Int64
	r := newCachedRouter(time.Minute, &hits)

	do(r, http.MethodPost, "/books")
	w := do(r, http.MethodPost, "/books")

	assert.Empty(t, w.Header().Get("X-Cache"))
	assert.Equal(t, int64(2), hits.Load())
}

func TestMemoryStore_SetGetExpiry(t *testing.T) {
	s := cache.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 30*time.Millisecond))

	val, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), val)

	time.Sleep(50 * time.Millisecond)
	_, ok, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
