package notification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nao1215/taskhub/pkg/event"
)

// ErrNotFound は通知が存在しないことを表す。
var ErrNotFound = errors.New("通知が見つかりません")

// Notification は1件の通知。
type Notification struct {
	// ID は通知の一意識別子（UUID）。
	ID string `db:"id" json:"id"`
	// UserID は通知先のユーザーID。
	UserID string `db:"user_id" json:"userId"`
	// Message は通知メッセージ。
	Message string `db:"message" json:"message"`
	// Read は既読状態。作成時はfalse。
	Read bool `db:"read" json:"read"`
	// CreatedAt は作成日時。
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Event はWebSocketで配信する形に変換する。
func (n *Notification) Event() event.Notification {
	return event.Notification{
		ID:        n.ID,
		UserID:    n.UserID,
		Message:   n.Message,
		Read:      n.Read,
		CreatedAt: n.CreatedAt,
	}
}

// Store は通知をSQLiteに保存する。
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewStore は新しいStoreを生成する。
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db, now: time.Now}
}

const selectColumns = `SELECT id, user_id, message, read, created_at FROM notifications`

// Create は未読の通知を作成して返す。
func (s *Store) Create(ctx context.Context, userID, message string) (*Notification, error) {
	n := &Notification{
		ID:        uuid.New().String(),
		UserID:    userID,
		Message:   message,
		CreatedAt: s.now().UTC(),
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (id, user_id, message, read, created_at) VALUES (?, ?, ?, 0, ?)`,
		n.ID, n.UserID, n.Message, n.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("通知の作成に失敗: %w", err)
	}
	return n, nil
}

// ListByUser はユーザーの通知を新しい順に返す。
func (s *Store) ListByUser(ctx context.Context, userID string) ([]Notification, error) {
	list := []Notification{}
	if err := s.db.SelectContext(ctx, &list,
		selectColumns+` WHERE user_id = ? ORDER BY created_at DESC, rowid DESC`, userID,
	); err != nil {
		return nil, fmt.Errorf("通知一覧の取得に失敗: %w", err)
	}
	return list, nil
}

// ListUnreadByUser はユーザーの未読通知を新しい順に返す。
func (s *Store) ListUnreadByUser(ctx context.Context, userID string) ([]Notification, error) {
	list := []Notification{}
	if err := s.db.SelectContext(ctx, &list,
		selectColumns+` WHERE user_id = ? AND read = 0 ORDER BY created_at DESC, rowid DESC`, userID,
	); err != nil {
		return nil, fmt.Errorf("未読通知一覧の取得に失敗: %w", err)
	}
	return list, nil
}

// Get はIDで通知を取得する。
func (s *Store) Get(ctx context.Context, id string) (*Notification, error) {
	var n Notification
	if err := s.db.GetContext(ctx, &n, selectColumns+` WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("通知 %s の取得に失敗: %w", id, err)
	}
	return &n, nil
}

// MarkRead は通知を既読にして更新後の通知を返す。既読の通知に対しても成功する。
func (s *Store) MarkRead(ctx context.Context, id string) (*Notification, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE notifications SET read = 1 WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("通知 %s の既読処理に失敗: %w", id, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, id)
}

// MarkAllRead はユーザーの未読通知をすべて既読にし、更新件数を返す。
func (s *Store) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE notifications SET read = 1 WHERE user_id = ? AND read = 0`, userID)
	if err != nil {
		return 0, fmt.Errorf("全通知の既読処理に失敗: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows, nil
}

// Delete は通知を削除する。
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("通知 %s の削除に失敗: %w", id, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}
