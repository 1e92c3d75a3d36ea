package cache

import (
	"bytes"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const hitHeader = "X-Cache"

// bodyRecorder は下流が書いたレスポンスを横取りして保存用に貯める
type bodyRecorder struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Middleware はGETレスポンスをリクエストシグネチャ（メソッド+パス+クエリ）を
// キーにTTL付きで保存する。200のみ保存。デコレータ方式の置き換え。
func Middleware(store Store, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := c.Request.Method + " " + c.Request.URL.Path
		if q := c.Request.URL.RawQuery; q != "" {
			key += "?" + q
		}

		if val, ok, err := store.Get(c.Request.Context(), key); err == nil && ok {
			c.Header(hitHeader, "HIT")
			c.Data(http.StatusOK, "application/json; charset=utf-8", val)
			c.Abort()
			return
		} else if err != nil {
			// キャッシュ障害は素通し（リクエストは落とさない）
			log.Printf("[WARN] cache get failed: %v", err)
		}

		rec := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = rec
		c.Header(hitHeader, "MISS")
		c.Next()

		if rec.Status() == http.StatusOK {
			if err := store.Set(c.Request.Context(), key, rec.buf.Bytes(), ttl); err != nil {
				log.Printf("[WARN] cache set failed: %v", err)
			}
		}
	}
}
