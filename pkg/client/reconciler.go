package client

import (
	"fmt"
	"log"

	"github.com/nao1215/taskhub/pkg/event"
)

// Reconciler はサーバーから届いたイベントに応じてキャッシュを再検証する。
type Reconciler struct {
	cache   *Cache
	toaster *Toaster
}

// NewReconciler は新しいReconcilerを生成する。
func NewReconciler(cache *Cache, toaster *Toaster) *Reconciler {
	return &Reconciler{cache: cache, toaster: toaster}
}

// Handle は1件のイベントを処理する。
// ペイロードの中身ではキャッシュを書き換えず、関係するキーを無効化して取り直す。
func (r *Reconciler) Handle(env *event.Envelope) error {
	switch env.Event {
	case event.TypeTaskUpdated, event.TypeTaskDeleted:
		r.cache.Invalidate(IsTaskKey)
	case event.TypeTaskAssigned:
		n, err := event.DecodeData[event.Notification](env)
		if err != nil {
			return fmt.Errorf("task:assignedのデコードに失敗: %w", err)
		}
		r.cache.Invalidate(isAssignmentKey)
		r.toaster.Show(*n)
	default:
		log.Printf("[Client] 未対応のイベントを無視: %s", env.Event)
	}
	return nil
}

// Resync は再接続時など取りこぼしがあり得るときに全キーを取り直す。
func (r *Reconciler) Resync() {
	r.cache.Invalidate(func(Key) bool { return true })
}
