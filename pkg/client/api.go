package client

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/nao1215/taskhub/pkg/event"
	"github.com/nao1215/taskhub/pkg/httpclient"
)

const apiPrefix = "/api/v1"

// User はサーバーが返すユーザー情報。
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Task はサーバーが返すタスク。
type Task struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	DueDate      time.Time `json:"dueDate"`
	Priority     string    `json:"priority"`
	Status       string    `json:"status"`
	CreatorID    string    `json:"creatorId"`
	AssignedToID *string   `json:"assignedToId"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Notification はサーバーが返す通知。task:assignedのペイロードと同じ形。
type Notification = event.Notification

// AuthResult はログインと登録のレスポンス。
type AuthResult struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

// API はtaskhubのREST APIクライアント。
type API struct {
	http *httpclient.Client

	mu    sync.RWMutex
	token string
}

// NewAPI は新しいAPIクライアントを生成する。tokenは空でもよい。
func NewAPI(baseURL, token string) *API {
	return &API{http: httpclient.New(baseURL), token: token}
}

// BaseURL はサーバーのベースURLを返す。
func (a *API) BaseURL() string {
	return a.http.BaseURL()
}

// Token は現在のトークンを返す。
func (a *API) Token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}

// SetToken は以降のリクエストで使うトークンを設定する。
func (a *API) SetToken(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = token
}

func (a *API) authed(ctx context.Context) context.Context {
	return httpclient.WithToken(ctx, a.Token())
}

// Login はログインしてトークンを保持する。
func (a *API) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	var res AuthResult
	if err := a.http.PostJSON(ctx, apiPrefix+"/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &res); err != nil {
		return nil, err
	}
	a.SetToken(res.Token)
	return &res, nil
}

// Register はユーザーを登録してトークンを保持する。
func (a *API) Register(ctx context.Context, email, name, password string) (*AuthResult, error) {
	var res AuthResult
	if err := a.http.PostJSON(ctx, apiPrefix+"/auth/register", map[string]string{
		"email":    email,
		"name":     name,
		"password": password,
	}, &res); err != nil {
		return nil, err
	}
	a.SetToken(res.Token)
	return &res, nil
}

// Logout はサーバー側でトークンを失効させ、保持しているトークンを捨てる。
func (a *API) Logout(ctx context.Context) error {
	err := a.http.PostJSON(a.authed(ctx), apiPrefix+"/auth/logout", nil, nil)
	a.SetToken("")
	return err
}

// Me は現在のユーザーを返す。
func (a *API) Me(ctx context.Context) (*User, error) {
	var u User
	if err := a.http.GetJSON(a.authed(ctx), apiPrefix+"/auth/me", &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Tasks はタスク一覧を返す。statusとpriorityは空なら絞り込まない。
func (a *API) Tasks(ctx context.Context, status, priority string) ([]Task, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if priority != "" {
		q.Set("priority", priority)
	}
	path := apiPrefix + "/tasks"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	return a.taskList(ctx, path)
}

// AssignedTasks は自分が担当するタスク一覧を返す。
func (a *API) AssignedTasks(ctx context.Context) ([]Task, error) {
	return a.taskList(ctx, apiPrefix+"/tasks/assigned")
}

// CreatedTasks は自分が作成したタスク一覧を返す。
func (a *API) CreatedTasks(ctx context.Context) ([]Task, error) {
	return a.taskList(ctx, apiPrefix+"/tasks/created")
}

// OverdueTasks は期限切れのタスク一覧を返す。
func (a *API) OverdueTasks(ctx context.Context) ([]Task, error) {
	return a.taskList(ctx, apiPrefix+"/tasks/overdue")
}

func (a *API) taskList(ctx context.Context, path string) ([]Task, error) {
	var list []Task
	if err := a.http.GetJSON(a.authed(ctx), path, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Task は1件のタスクを返す。
func (a *API) Task(ctx context.Context, id string) (*Task, error) {
	var t Task
	if err := a.http.GetJSON(a.authed(ctx), apiPrefix+"/tasks/"+url.PathEscape(id), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Notifications は通知一覧を新しい順に返す。
func (a *API) Notifications(ctx context.Context) ([]Notification, error) {
	var list []Notification
	if err := a.http.GetJSON(a.authed(ctx), apiPrefix+"/notifications", &list); err != nil {
		return nil, err
	}
	return list, nil
}

// UnreadNotifications は未読通知一覧を返す。
func (a *API) UnreadNotifications(ctx context.Context) ([]Notification, error) {
	var list []Notification
	if err := a.http.GetJSON(a.authed(ctx), apiPrefix+"/notifications/unread", &list); err != nil {
		return nil, err
	}
	return list, nil
}

// MarkRead は通知を既読にする。
func (a *API) MarkRead(ctx context.Context, id string) (*Notification, error) {
	var n Notification
	if err := a.http.PutJSON(a.authed(ctx), apiPrefix+"/notifications/"+url.PathEscape(id)+"/read", nil, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// MarkAllRead はすべての通知を既読にする。
func (a *API) MarkAllRead(ctx context.Context) error {
	return a.http.PutJSON(a.authed(ctx), apiPrefix+"/notifications/read-all", nil, nil)
}
