package client

import (
	"context"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Fetcher はキーに対応する値をサーバーから取得する。
type Fetcher func(ctx context.Context) (any, error)

// RefreshFunc は再取得が終わるたびに呼ばれる。
type RefreshFunc func(key Key, value any, err error)

// Cache はキーごとに取得結果を保持する。
// Invalidateされたキーは古い値を残したままバックグラウンドで再取得する。
type Cache struct {
	// ctx はバックグラウンド再取得に使うコンテキスト。
	ctx       context.Context
	onRefresh RefreshFunc
	group     singleflight.Group
	wg        sync.WaitGroup

	mu      sync.Mutex
	entries map[Key]*entry
}

type entry struct {
	fetch  Fetcher
	value  any
	err    error
	loaded bool
	stale  bool
	// gen はInvalidateのたびに増える。古い世代の取得結果は捨てる。
	gen uint64
}

// NewCache は新しいCacheを生成する。ctxが終了するとバックグラウンド再取得も止まる。
// onRefreshはnilでもよい。
func NewCache(ctx context.Context, onRefresh RefreshFunc) *Cache {
	return &Cache{
		ctx:       ctx,
		onRefresh: onRefresh,
		entries:   make(map[Key]*entry),
	}
}

// Get はキャッシュ済みの新しい値があればそれを返し、なければfetchで取得する。
// 同じキーへの同時呼び出しは1回の取得にまとめる。
func (c *Cache) Get(ctx context.Context, key Key, fetch Fetcher) (any, error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		e = &entry{fetch: fetch}
		c.entries[key] = e
	}
	if fetch != nil {
		e.fetch = fetch
	}
	if e.loaded && !e.stale && e.err == nil {
		v := e.value
		c.mu.Unlock()
		return v, nil
	}
	gen, f := e.gen, e.fetch
	c.mu.Unlock()

	if f == nil {
		return nil, fmt.Errorf("キー %q の取得方法がありません", key)
	}

	ch := c.group.DoChan(string(key), func() (any, error) {
		v, err := f(ctx)
		c.store(key, gen, v, err)
		return v, err
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Load はGetの結果をTに変換して返す。
func Load[T any](ctx context.Context, c *Cache, key Key, fetch func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	v, err := c.Get(ctx, key, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("キー %q の値の型が一致しません: %T", key, v)
	}
	return t, nil
}

// Peek は再取得せずに現在の値を返す。staleは再検証待ちかどうか。
func (c *Cache) Peek(key Key) (value any, stale bool, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.entries[key]
	if !found || !e.loaded {
		return nil, false, false
	}
	return e.value, e.stale, true
}

// Keys は登録済みのキーを返す。
func (c *Cache) Keys() []Key {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]Key, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}

// Invalidate はmatchに一致するキーを古いものとし、バックグラウンドで再取得する。
// 一致したキーの数を返す。キャッシュが空なら何もしない。
func (c *Cache) Invalidate(match func(Key) bool) int {
	type job struct {
		key   Key
		gen   uint64
		fetch Fetcher
	}

	c.mu.Lock()
	var jobs []job
	for k, e := range c.entries {
		if !match(k) {
			continue
		}
		e.gen++
		e.stale = true
		// 無効化前に始まった取得に合流しないようにする
		c.group.Forget(string(k))
		if e.fetch != nil {
			jobs = append(jobs, job{key: k, gen: e.gen, fetch: e.fetch})
		}
	}
	c.mu.Unlock()

	for _, j := range jobs {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.refetch(j.key, j.gen, j.fetch)
		}()
	}
	return len(jobs)
}

func (c *Cache) refetch(key Key, gen uint64, fetch Fetcher) {
	if c.ctx.Err() != nil {
		return
	}
	v, err, _ := c.group.Do(string(key), func() (any, error) {
		v, err := fetch(c.ctx)
		c.store(key, gen, v, err)
		return v, err
	})
	if err != nil {
		log.Printf("[Client] %s の再取得に失敗: %v", key, err)
	}
	if c.onRefresh != nil && c.current(key, gen) {
		c.onRefresh(key, v, err)
	}
}

// store は取得を始めた世代がまだ最新のときだけ結果を保存する。
func (c *Cache) store(key Key, gen uint64, v any, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || e.gen != gen {
		return
	}
	if err != nil {
		// 取得に失敗しても直前の値は残す
		e.err = err
		return
	}
	e.value = v
	e.err = nil
	e.loaded = true
	e.stale = false
}

func (c *Cache) current(key Key, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return ok && e.gen == gen
}

// Wait は実行中のバックグラウンド再取得がすべて終わるまで待つ。
func (c *Cache) Wait() {
	c.wg.Wait()
}
