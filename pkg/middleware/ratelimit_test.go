package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

// TestRateLimiter はRateLimiterの挙動を検証する。
func TestRateLimiter(t *testing.T) {
	t.Parallel()

	t.Run("上限までは許可し超過分を拒否すること", func(t *testing.T) {
		t.Parallel()

		rl := NewRateLimiter(time.Hour, 3)
		for i := range 3 {
			if !rl.Allow("10.0.0.1") {
				t.Fatalf("%d件目が拒否された", i+1)
			}
		}
		if rl.Allow("10.0.0.1") {
			t.Error("上限を超えたリクエストが許可された")
		}
	})

	t.Run("キーごとに独立して数えること", func(t *testing.T) {
		t.Parallel()

		rl := NewRateLimiter(time.Hour, 1)
		if !rl.Allow("a") {
			t.Fatal("aの1件目が拒否された")
		}
		if !rl.Allow("b") {
			t.Error("bの1件目が拒否された")
		}
		if rl.Allow("a") {
			t.Error("aの2件目が許可された")
		}
	})

	t.Run("ウィンドウ経過後は再び許可されること", func(t *testing.T) {
		t.Parallel()

		current := time.Now()
		rl := NewRateLimiter(time.Minute, 2)
		rl.now = func() time.Time { return current }

		rl.Allow("ip")
		rl.Allow("ip")
		if rl.Allow("ip") {
			t.Fatal("上限を超えたリクエストが許可された")
		}

		current = current.Add(time.Minute)
		if !rl.Allow("ip") {
			t.Error("ウィンドウ経過後も拒否された")
		}
	})

	t.Run("アクセスの無いエントリは回収されること", func(t *testing.T) {
		t.Parallel()

		current := time.Now()
		rl := NewRateLimiter(time.Minute, 5)
		rl.now = func() time.Time { return current }

		rl.Allow("old")
		current = current.Add(2 * time.Minute)
		rl.Allow("new")

		rl.mu.Lock()
		_, exists := rl.visitors["old"]
		n := len(rl.visitors)
		rl.mu.Unlock()

		if exists {
			t.Error("古いエントリが残っている")
		}
		if n != 1 {
			t.Errorf("エントリ数 = %d, want 1", n)
		}
	})
}

// TestRateLimiterMiddleware はミドルウェアとしての挙動を検証する。
func TestRateLimiterMiddleware(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(time.Hour, 2)
	router := gin.New()
	router.Use(rl.Middleware())
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.RemoteAddr = "192.0.2.10:1234"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	want := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}
	for i := range want {
		if codes[i] != want[i] {
			t.Errorf("%d件目のステータスコード = %d, want %d", i+1, codes[i], want[i])
		}
	}
}
