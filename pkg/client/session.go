package client

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nao1215/taskhub/pkg/httpclient"
)

// DefaultSessionMaxAge は認証確認の結果を使い回す既定時間。
const DefaultSessionMaxAge = 30 * time.Second

// ErrUnauthenticated はトークンが無いか、サーバーに拒否されたことを表す。
var ErrUnauthenticated = errors.New("ログインしていません")

// UserFetcher は現在のユーザーをサーバーに問い合わせる。
type UserFetcher interface {
	Me(ctx context.Context) (*User, error)
}

// Session は認証済みユーザーを一定時間保持する。
// 期限切れ後の確認は同時に何回呼ばれても1回の問い合わせにまとめる。
type Session struct {
	fetcher UserFetcher
	maxAge  time.Duration
	group   singleflight.Group
	now     func() time.Time

	mu        sync.Mutex
	user      *User
	checkedAt time.Time
	// gen はClearのたびに増え、Clear前に始まった確認の結果を捨てる。
	gen uint64
}

// NewSession は新しいSessionを生成する。maxAgeが0以下なら既定値を使う。
func NewSession(fetcher UserFetcher, maxAge time.Duration) *Session {
	if maxAge <= 0 {
		maxAge = DefaultSessionMaxAge
	}
	return &Session{fetcher: fetcher, maxAge: maxAge, now: time.Now}
}

// User は認証済みユーザーを返す。保持している結果が古ければサーバーに確認する。
// サーバーが401を返した場合は保持している結果を消してErrUnauthenticatedを返す。
func (s *Session) User(ctx context.Context) (*User, error) {
	s.mu.Lock()
	if s.user != nil && s.now().Sub(s.checkedAt) < s.maxAge {
		u := s.user
		s.mu.Unlock()
		return u, nil
	}
	gen := s.gen
	s.mu.Unlock()

	v, err, _ := s.group.Do("me", func() (any, error) {
		return s.fetcher.Me(ctx)
	})
	if err != nil {
		if httpclient.IsStatus(err, http.StatusUnauthorized) {
			s.Clear()
			return nil, ErrUnauthenticated
		}
		return nil, err
	}

	u := v.(*User)
	s.mu.Lock()
	if s.gen == gen {
		s.user = u
		s.checkedAt = s.now()
	}
	s.mu.Unlock()
	return u, nil
}

// Clear は保持している結果を捨てる。ログアウト時に呼ぶ。
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.user = nil
	s.checkedAt = time.Time{}
	s.gen++
	s.group.Forget("me")
}
