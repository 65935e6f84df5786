package auth

import (
	"context"
	"testing"
	"time"
)

// TestMemoryDenylist はMemoryDenylistの有効期限を検証する。
func TestMemoryDenylist(t *testing.T) {
	t.Parallel()

	t.Run("失効させたIDだけがrevokedになること", func(t *testing.T) {
		t.Parallel()
		d := NewMemoryDenylist()

		if err := d.Revoke(t.Context(), "jti-1", time.Hour); err != nil {
			t.Fatalf("Revoke() error = %v", err)
		}

		assertRevoked(t, d, "jti-1", true)
		assertRevoked(t, d, "jti-2", false)
	})

	t.Run("有効期限を過ぎると失効が解除されること", func(t *testing.T) {
		t.Parallel()
		d := NewMemoryDenylist()
		now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		d.now = func() time.Time { return now }

		if err := d.Revoke(t.Context(), "jti-1", time.Minute); err != nil {
			t.Fatalf("Revoke() error = %v", err)
		}
		assertRevoked(t, d, "jti-1", true)

		now = now.Add(time.Minute)
		assertRevoked(t, d, "jti-1", false)
	})

	t.Run("ttlが0以下なら登録しないこと", func(t *testing.T) {
		t.Parallel()
		d := NewMemoryDenylist()

		if err := d.Revoke(t.Context(), "jti-1", 0); err != nil {
			t.Fatalf("Revoke() error = %v", err)
		}
		assertRevoked(t, d, "jti-1", false)
	})
}

// TestNewRedisDenylist はRedis接続の失敗が呼び出し元に返ることを検証する。
func TestNewRedisDenylist(t *testing.T) {
	t.Parallel()

	t.Run("不正なURLはエラーになること", func(t *testing.T) {
		t.Parallel()

		if _, err := NewRedisDenylist(t.Context(), "http://not-redis"); err == nil {
			t.Error("エラーが返されるべき")
		}
	})

	t.Run("接続できなければエラーになること", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
		defer cancel()
		if _, err := NewRedisDenylist(ctx, "redis://127.0.0.1:1/0"); err == nil {
			t.Error("エラーが返されるべき")
		}
	})
}

func assertRevoked(t *testing.T, d Denylist, id string, want bool) {
	t.Helper()

	got, err := d.IsRevoked(context.Background(), id)
	if err != nil {
		t.Fatalf("IsRevoked(%q) error = %v", id, err)
	}
	if got != want {
		t.Errorf("IsRevoked(%q) = %v, want %v", id, got, want)
	}
}
