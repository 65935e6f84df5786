package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// counter は呼ばれた回数を返すFetcherを作る。
type counter struct {
	calls atomic.Int32
}

func (c *counter) fetch(value string) Fetcher {
	return func(context.Context) (any, error) {
		n := c.calls.Add(1)
		return value + "#" + string(rune('0'+n)), nil
	}
}

// TestKeys はキーの分類を検証する。
func TestKeys(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key      Key
		wantTask bool
	}{
		{KeyTasks, true},
		{FilteredTasksKey("TODO", "HIGH"), true},
		{KeyAssignedTasks, true},
		{KeyCreatedTasks, true},
		{KeyOverdueTasks, true},
		{TaskKey("t1"), true},
		{KeyNotifications, false},
		{KeyUnreadNotifications, false},
	}
	for _, tt := range tests {
		if got := IsTaskKey(tt.key); got != tt.wantTask {
			t.Errorf("IsTaskKey(%q) = %v, want %v", tt.key, got, tt.wantTask)
		}
	}

	if FilteredTasksKey("", "") != KeyTasks {
		t.Errorf("条件なしのFilteredTasksKey() = %q, want %q", FilteredTasksKey("", ""), KeyTasks)
	}
}

// TestCacheGet はGetのキャッシュ動作を検証する。
func TestCacheGet(t *testing.T) {
	t.Parallel()

	t.Run("2回目は取得せずキャッシュを返すこと", func(t *testing.T) {
		t.Parallel()
		c := NewCache(t.Context(), nil)
		var cnt counter

		for range 2 {
			v, err := c.Get(t.Context(), KeyTasks, cnt.fetch("tasks"))
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if v != "tasks#1" {
				t.Errorf("Get() = %v, want tasks#1", v)
			}
		}
		if n := cnt.calls.Load(); n != 1 {
			t.Errorf("取得回数 = %d, want 1", n)
		}
	})

	t.Run("同時呼び出しは1回の取得にまとまること", func(t *testing.T) {
		t.Parallel()
		c := NewCache(t.Context(), nil)
		release := make(chan struct{})
		var calls atomic.Int32
		fetch := func(context.Context) (any, error) {
			calls.Add(1)
			<-release
			return "v", nil
		}

		var wg sync.WaitGroup
		for range 5 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = c.Get(t.Context(), KeyTasks, fetch)
			}()
		}
		time.Sleep(50 * time.Millisecond)
		close(release)
		wg.Wait()

		if n := calls.Load(); n != 1 {
			t.Errorf("取得回数 = %d, want 1", n)
		}
	})

	t.Run("取得に失敗したら次のGetで取り直すこと", func(t *testing.T) {
		t.Parallel()
		c := NewCache(t.Context(), nil)
		fail := true
		fetch := func(context.Context) (any, error) {
			if fail {
				return nil, errors.New("boom")
			}
			return "ok", nil
		}

		if _, err := c.Get(t.Context(), KeyTasks, fetch); err == nil {
			t.Fatal("1回目はエラーになるべき")
		}
		fail = false
		v, err := c.Get(t.Context(), KeyTasks, fetch)
		if err != nil || v != "ok" {
			t.Errorf("Get() = %v, %v", v, err)
		}
	})

	t.Run("Loadは型付きで返すこと", func(t *testing.T) {
		t.Parallel()
		c := NewCache(t.Context(), nil)

		got, err := Load(t.Context(), c, KeyTasks, func(context.Context) ([]Task, error) {
			return []Task{{ID: "t1"}}, nil
		})
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if len(got) != 1 || got[0].ID != "t1" {
			t.Errorf("Load() = %+v", got)
		}
	})
}

// TestCacheInvalidate は無効化と再取得を検証する。
func TestCacheInvalidate(t *testing.T) {
	t.Parallel()

	t.Run("空のキャッシュでは何もしないこと", func(t *testing.T) {
		t.Parallel()
		c := NewCache(t.Context(), nil)

		if n := c.Invalidate(IsTaskKey); n != 0 {
			t.Errorf("Invalidate() = %d, want 0", n)
		}
		c.Wait()
		if len(c.Keys()) != 0 {
			t.Errorf("Keys() = %v, want empty", c.Keys())
		}
	})

	t.Run("一致したキーだけが再取得されること", func(t *testing.T) {
		t.Parallel()
		c := NewCache(t.Context(), nil)
		var tasks, notes counter

		if _, err := c.Get(t.Context(), KeyTasks, tasks.fetch("tasks")); err != nil {
			t.Fatal(err)
		}
		if _, err := c.Get(t.Context(), KeyNotifications, notes.fetch("notes")); err != nil {
			t.Fatal(err)
		}

		if n := c.Invalidate(IsTaskKey); n != 1 {
			t.Errorf("Invalidate() = %d, want 1", n)
		}
		c.Wait()

		v, stale, ok := c.Peek(KeyTasks)
		if !ok || stale || v != "tasks#2" {
			t.Errorf("Peek(tasks) = %v, %v, %v", v, stale, ok)
		}
		if n := notes.calls.Load(); n != 1 {
			t.Errorf("通知の取得回数 = %d, want 1", n)
		}
	})

	t.Run("再取得に失敗しても直前の値を残すこと", func(t *testing.T) {
		t.Parallel()
		var refreshed atomic.Int32
		c := NewCache(t.Context(), func(Key, any, error) { refreshed.Add(1) })
		fail := false
		fetch := func(context.Context) (any, error) {
			if fail {
				return nil, errors.New("boom")
			}
			return "old", nil
		}

		if _, err := c.Get(t.Context(), KeyTasks, fetch); err != nil {
			t.Fatal(err)
		}
		fail = true
		c.Invalidate(IsTaskKey)
		c.Wait()

		v, stale, ok := c.Peek(KeyTasks)
		if !ok || !stale || v != "old" {
			t.Errorf("Peek() = %v, %v, %v", v, stale, ok)
		}
		if refreshed.Load() != 1 {
			t.Errorf("onRefresh回数 = %d, want 1", refreshed.Load())
		}
	})

	t.Run("重複した無効化でも最終的な値は最新になること", func(t *testing.T) {
		t.Parallel()
		c := NewCache(t.Context(), nil)
		var cnt counter

		if _, err := c.Get(t.Context(), KeyTasks, cnt.fetch("tasks")); err != nil {
			t.Fatal(err)
		}
		c.Invalidate(IsTaskKey)
		c.Invalidate(IsTaskKey)
		c.Wait()

		v, stale, ok := c.Peek(KeyTasks)
		if !ok || stale {
			t.Fatalf("Peek() = %v, %v, %v", v, stale, ok)
		}
		if v == "tasks#1" {
			t.Errorf("無効化後も最初の値が残っている: %v", v)
		}
	})

	t.Run("無効化前に始まった取得の結果は保存しないこと", func(t *testing.T) {
		t.Parallel()
		c := NewCache(t.Context(), nil)
		started := make(chan struct{})
		release := make(chan struct{})
		var calls atomic.Int32
		fetch := func(context.Context) (any, error) {
			if calls.Add(1) == 1 {
				close(started)
				<-release
				return "before", nil
			}
			return "after", nil
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			_, _ = c.Get(t.Context(), KeyTasks, fetch)
		}()
		<-started
		c.Invalidate(IsTaskKey)
		c.Wait()
		close(release)
		<-done

		v, _, _ := c.Peek(KeyTasks)
		if v != "after" {
			t.Errorf("Peek() = %v, want after", v)
		}
	})
}
