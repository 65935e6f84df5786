package client

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/taskhub/pkg/event"
)

// DefaultToastDuration はトーストが自動で消えるまでの既定時間。
const DefaultToastDuration = 5 * time.Second

// Toast は一時的に表示する通知。
type Toast struct {
	ID             string
	NotificationID string
	Message        string
	ShownAt        time.Time
}

// ToastFunc はトーストの表示・消去時に呼ばれる。
type ToastFunc func(Toast)

// Toaster は同時に複数表示できるトーストを管理する。
// トーストごとにタイマーを持ち、互いに影響しない。
type Toaster struct {
	duration  time.Duration
	onShow    ToastFunc
	onDismiss ToastFunc

	mu     sync.Mutex
	active map[string]*shownToast
	closed bool
}

type shownToast struct {
	toast Toast
	timer *time.Timer
}

// NewToaster は新しいToasterを生成する。durationが0以下なら既定値を使う。
// onShowとonDismissはnilでもよい。
func NewToaster(duration time.Duration, onShow, onDismiss ToastFunc) *Toaster {
	if duration <= 0 {
		duration = DefaultToastDuration
	}
	return &Toaster{
		duration:  duration,
		onShow:    onShow,
		onDismiss: onDismiss,
		active:    make(map[string]*shownToast),
	}
}

// Show は通知からトーストを作って表示し、duration後に自動で消す。
func (t *Toaster) Show(n event.Notification) Toast {
	toast := Toast{
		ID:             uuid.New().String(),
		NotificationID: n.ID,
		Message:        n.Message,
		ShownAt:        time.Now(),
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return toast
	}
	t.active[toast.ID] = &shownToast{
		toast: toast,
		timer: time.AfterFunc(t.duration, func() { t.Dismiss(toast.ID) }),
	}
	t.mu.Unlock()

	if t.onShow != nil {
		t.onShow(toast)
	}
	return toast
}

// Dismiss はトーストを消す。既に消えていればfalseを返す。
func (t *Toaster) Dismiss(id string) bool {
	t.mu.Lock()
	st, ok := t.active[id]
	if ok {
		st.timer.Stop()
		delete(t.active, id)
	}
	t.mu.Unlock()

	if ok && t.onDismiss != nil {
		t.onDismiss(st.toast)
	}
	return ok
}

// Active は表示中のトーストを表示順に返す。
func (t *Toaster) Active() []Toast {
	t.mu.Lock()
	defer t.mu.Unlock()

	list := make([]Toast, 0, len(t.active))
	for _, st := range t.active {
		list = append(list, st.toast)
	}
	slices.SortFunc(list, func(a, b Toast) int {
		return a.ShownAt.Compare(b.ShownAt)
	})
	return list
}

// Close はすべてのタイマーを止め、以降のShowを無視する。
func (t *Toaster) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, st := range t.active {
		st.timer.Stop()
		delete(t.active, id)
	}
	t.closed = true
}
