package task

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/nao1215/taskhub/internal/notification"
	"github.com/nao1215/taskhub/pkg/event"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// handlerFixture は実際のストアを使ったテスト用ルーター。
type handlerFixture struct {
	db            *sqlx.DB
	router        *gin.Engine
	publisher     *recordingPublisher
	notifications *notification.Store
}

// setupTestRouter はテスト用のルーターを構築する。
// JWTミドルウェアの代わりにX-User-IDヘッダーからユーザーIDを設定する。
func setupTestRouter(t *testing.T) *handlerFixture {
	t.Helper()

	db := setupTestDB(t)
	pub := &recordingPublisher{log: &callLog{}}
	notifications := notification.NewStore(db)
	svc := NewService(NewStore(db), notifications, NewAuditStore(db), pub)

	router := gin.New()
	api := router.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		if userID := c.GetHeader("X-User-ID"); userID != "" {
			c.Set("user_id", userID)
		}
		c.Next()
	})
	NewHandler(svc).RegisterRoutes(api)

	return &handlerFixture{db: db, router: router, publisher: pub, notifications: notifications}
}

// do はテスト用のHTTPリクエストを実行する。
func (f *handlerFixture) do(method, path, userID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

// decodeTask はレスポンスボディをTaskとしてパースする。
func decodeTask(t *testing.T, w *httptest.ResponseRecorder) Task {
	t.Helper()
	var got Task
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("レスポンスのパースに失敗: %v (body=%s)", err, w.Body.String())
	}
	return got
}

// createBody はタスク作成リクエストのJSONを返す。
func createBody(title, assignee string) string {
	body := map[string]any{
		"title":       title,
		"description": "details",
		"dueDate":     time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339),
		"priority":    "HIGH",
	}
	if assignee != "" {
		body["assignedToId"] = assignee
	}
	b, _ := json.Marshal(body)
	return string(b)
}

// TestHandleCreate はタスク作成ハンドラのテスト。
func TestHandleCreate(t *testing.T) {
	t.Parallel()

	t.Run("担当者付きで作成すると201と通知が作られる", func(t *testing.T) {
		t.Parallel()
		f := setupTestRouter(t)
		u1 := insertUser(t, f.db, "u1")
		u2 := insertUser(t, f.db, "u2")

		w := f.do(http.MethodPost, "/api/v1/tasks", u1, createBody("Ship release", u2))

		if w.Code != http.StatusCreated {
			t.Fatalf("ステータスコード: got %d, want %d (body=%s)", w.Code, http.StatusCreated, w.Body.String())
		}
		got := decodeTask(t, w)
		if got.CreatorID != u1 || got.AssignedToID == nil || *got.AssignedToID != u2 {
			t.Errorf("タスク: got %+v", got)
		}

		list, _ := f.notifications.ListByUser(t.Context(), u2)
		if len(list) != 1 || list[0].Message != "You have been assigned to task: Ship release" || list[0].Read {
			t.Errorf("通知: got %+v", list)
		}

		one := f.publisher.filter("one")
		if len(one) != 1 || one[0].userID != u2 || one[0].event != event.TypeTaskAssigned {
			t.Errorf("単一配信: got %+v", one)
		}
	})

	t.Run("タイトルが100文字を超えるとBadRequest", func(t *testing.T) {
		t.Parallel()
		f := setupTestRouter(t)
		u1 := insertUser(t, f.db, "u1")

		long := string(bytes.Repeat([]byte("a"), 101))
		w := f.do(http.MethodPost, "/api/v1/tasks", u1, createBody(long, ""))

		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("担当者がUUIDでなければBadRequest", func(t *testing.T) {
		t.Parallel()
		f := setupTestRouter(t)
		u1 := insertUser(t, f.db, "u1")

		w := f.do(http.MethodPost, "/api/v1/tasks", u1, createBody("x", "not-a-uuid"))

		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("存在しない担当者はBadRequest", func(t *testing.T) {
		t.Parallel()
		f := setupTestRouter(t)
		u1 := insertUser(t, f.db, "u1")

		w := f.do(http.MethodPost, "/api/v1/tasks", u1, createBody("x", "00000000-0000-4000-8000-000000000000"))

		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("ユーザーIDが未設定の場合はUnauthorized", func(t *testing.T) {
		t.Parallel()
		f := setupTestRouter(t)

		w := f.do(http.MethodPost, "/api/v1/tasks", "", createBody("x", ""))

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})
}

// TestHandleUpdate はタスク更新ハンドラのテスト。
func TestHandleUpdate(t *testing.T) {
	t.Parallel()

	t.Run("assignedToIdにnullを指定すると担当者が外れる", func(t *testing.T) {
		t.Parallel()
		f := setupTestRouter(t)
		u1 := insertUser(t, f.db, "u1")
		u2 := insertUser(t, f.db, "u2")
		created := decodeTask(t, f.do(http.MethodPost, "/api/v1/tasks", u1, createBody("x", u2)))

		w := f.do(http.MethodPut, "/api/v1/tasks/"+created.ID, u1, `{"assignedToId":null}`)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d (body=%s)", w.Code, http.StatusOK, w.Body.String())
		}
		if got := decodeTask(t, w); got.AssignedToID != nil {
			t.Errorf("担当者: got %v, want nil", *got.AssignedToID)
		}
		if one := f.publisher.filter("one"); len(one) != 1 {
			t.Errorf("単一配信: got %d回, want 作成時の1回のみ", len(one))
		}
	})

	t.Run("担当者を変えると新しい担当者にだけ通知される", func(t *testing.T) {
		t.Parallel()
		f := setupTestRouter(t)
		u1 := insertUser(t, f.db, "u1")
		a := insertUser(t, f.db, "a")
		b := insertUser(t, f.db, "b")
		created := decodeTask(t, f.do(http.MethodPost, "/api/v1/tasks", u1, createBody("x", a)))

		w := f.do(http.MethodPut, "/api/v1/tasks/"+created.ID, u1, `{"assignedToId":"`+b+`"}`)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		if list, _ := f.notifications.ListByUser(t.Context(), b); len(list) != 1 {
			t.Errorf("bの通知件数: got %d, want 1", len(list))
		}
		if list, _ := f.notifications.ListByUser(t.Context(), a); len(list) != 1 {
			t.Errorf("aの通知件数: got %d, want 作成時の1件", len(list))
		}
	})

	t.Run("不正なstatusはBadRequest", func(t *testing.T) {
		t.Parallel()
		f := setupTestRouter(t)
		u1 := insertUser(t, f.db, "u1")
		created := decodeTask(t, f.do(http.MethodPost, "/api/v1/tasks", u1, createBody("x", "")))

		w := f.do(http.MethodPut, "/api/v1/tasks/"+created.ID, u1, `{"status":"DONE"}`)

		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("無関係なユーザーはForbidden", func(t *testing.T) {
		t.Parallel()
		f := setupTestRouter(t)
		u1 := insertUser(t, f.db, "u1")
		other := insertUser(t, f.db, "other")
		created := decodeTask(t, f.do(http.MethodPost, "/api/v1/tasks", u1, createBody("x", "")))

		w := f.do(http.MethodPut, "/api/v1/tasks/"+created.ID, other, `{"title":"hijack"}`)

		if w.Code != http.StatusForbidden {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusForbidden)
		}
	})
}

// TestHandleDelete はタスク削除ハンドラのテスト。
func TestHandleDelete(t *testing.T) {
	t.Parallel()

	f := setupTestRouter(t)
	u1 := insertUser(t, f.db, "u1")
	u2 := insertUser(t, f.db, "u2")
	created := decodeTask(t, f.do(http.MethodPost, "/api/v1/tasks", u1, createBody("x", u2)))

	if w := f.do(http.MethodDelete, "/api/v1/tasks/"+created.ID, u2, ""); w.Code != http.StatusForbidden {
		t.Errorf("担当者による削除のステータスコード: got %d, want %d", w.Code, http.StatusForbidden)
	}
	if w := f.do(http.MethodDelete, "/api/v1/tasks/"+created.ID, u1, ""); w.Code != http.StatusOK {
		t.Errorf("作成者による削除のステータスコード: got %d, want %d", w.Code, http.StatusOK)
	}
	if w := f.do(http.MethodGet, "/api/v1/tasks/"+created.ID, u1, ""); w.Code != http.StatusNotFound {
		t.Errorf("削除後の取得のステータスコード: got %d, want %d", w.Code, http.StatusNotFound)
	}

	var deleted int
	for _, c := range f.publisher.filter("all") {
		if c.event == event.TypeTaskDeleted {
			deleted++
		}
	}
	if deleted != 1 {
		t.Errorf("task:deletedの配信回数: got %d, want 1", deleted)
	}
}

// TestHandleLists は一覧系ハンドラのテスト。
func TestHandleLists(t *testing.T) {
	t.Parallel()

	f := setupTestRouter(t)
	u1 := insertUser(t, f.db, "u1")
	u2 := insertUser(t, f.db, "u2")
	f.do(http.MethodPost, "/api/v1/tasks", u1, createBody("mine", ""))
	f.do(http.MethodPost, "/api/v1/tasks", u1, createBody("theirs", u2))

	tests := []struct {
		name string
		path string
		user string
		want int
	}{
		{"全タスク", "/api/v1/tasks", u2, 2},
		{"priorityで絞り込み", "/api/v1/tasks?priority=LOW", u1, 0},
		{"担当タスク", "/api/v1/tasks/assigned", u2, 1},
		{"作成タスク", "/api/v1/tasks/created", u1, 2},
		{"期限切れタスク", "/api/v1/tasks/overdue", u1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(http.MethodGet, tt.path, tt.user, "")
			if w.Code != http.StatusOK {
				t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
			}
			var got []Task
			if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
				t.Fatalf("レスポンスのパースに失敗: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("件数: got %d, want %d", len(got), tt.want)
			}
		})
	}

	t.Run("不正なstatusクエリはBadRequest", func(t *testing.T) {
		if w := f.do(http.MethodGet, "/api/v1/tasks?status=LATER", u1, ""); w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

// TestHandleAudit は監査ログ取得ハンドラのテスト。
func TestHandleAudit(t *testing.T) {
	t.Parallel()

	f := setupTestRouter(t)
	u1 := insertUser(t, f.db, "u1")
	other := insertUser(t, f.db, "other")
	created := decodeTask(t, f.do(http.MethodPost, "/api/v1/tasks", u1, createBody("x", "")))
	f.do(http.MethodPut, "/api/v1/tasks/"+created.ID, u1, `{"status":"IN_PROGRESS"}`)

	w := f.do(http.MethodGet, "/api/v1/tasks/"+created.ID+"/audit", u1, "")
	if w.Code != http.StatusOK {
		t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
	}
	var entries []AuditEntry
	if err := json.Unmarshal(w.Body.Bytes(), &entries); err != nil {
		t.Fatalf("レスポンスのパースに失敗: %v", err)
	}
	if len(entries) != 2 || entries[0].Action != ActionCreated || entries[1].Action != ActionUpdated {
		t.Errorf("監査ログ: got %+v", entries)
	}

	if w := f.do(http.MethodGet, "/api/v1/tasks/"+created.ID+"/audit", other, ""); w.Code != http.StatusForbidden {
		t.Errorf("無関係なユーザーのステータスコード: got %d, want %d", w.Code, http.StatusForbidden)
	}
}
