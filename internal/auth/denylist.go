package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Denylist はログアウト済みトークンのIDを有効期限まで保持する。
type Denylist interface {
	// Revoke はtokenIDをttlの間だけ失効済みにする。
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	// IsRevoked はtokenIDが失効済みかどうかを返す。
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

const revokedKeyPrefix = "revoked:"

// RedisDenylist はRedisのキー有効期限を使うDenylist。
// 複数のサーバープロセスで失効情報を共有できる。
type RedisDenylist struct {
	client *redis.Client
}

// NewRedisDenylist はredis://形式のURLで接続し、疎通を確認してから返す。
func NewRedisDenylist(ctx context.Context, url string) (*RedisDenylist, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("Redis URLの解析に失敗: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("Redisへの接続に失敗: %w", err)
	}
	return &RedisDenylist{client: client}, nil
}

// Revoke はtokenIDをキーとして有効期限付きで保存する。
func (d *RedisDenylist) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := d.client.Set(ctx, revokedKeyPrefix+tokenID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("トークンの失効登録に失敗: %w", err)
	}
	return nil
}

// IsRevoked はtokenIDのキーが残っているかどうかを返す。
func (d *RedisDenylist) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	_, err := d.client.Get(ctx, revokedKeyPrefix+tokenID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("トークンの失効確認に失敗: %w", err)
	}
	return true, nil
}

// Close はRedisクライアントを閉じる。
func (d *RedisDenylist) Close() error {
	return d.client.Close()
}

// MemoryDenylist はプロセス内のマップで保持するDenylist。
// Redisを使わない単一プロセス構成向け。
type MemoryDenylist struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

// NewMemoryDenylist は空のMemoryDenylistを生成する。
func NewMemoryDenylist() *MemoryDenylist {
	return &MemoryDenylist{expires: make(map[string]time.Time), now: time.Now}
}

// Revoke はtokenIDをttlの間だけ失効済みにする。期限切れのエントリもここで掃除する。
func (d *MemoryDenylist) Revoke(_ context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for id, exp := range d.expires {
		if !now.Before(exp) {
			delete(d.expires, id)
		}
	}
	d.expires[tokenID] = now.Add(ttl)
	return nil
}

// IsRevoked はtokenIDが有効期限内で失効済みかどうかを返す。
func (d *MemoryDenylist) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	exp, ok := d.expires[tokenID]
	if !ok {
		return false, nil
	}
	if !d.now().Before(exp) {
		delete(d.expires, tokenID)
		return false, nil
	}
	return true, nil
}
