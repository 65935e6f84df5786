package task

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Action は監査ログに記録する操作の種類。
type Action string

const (
	ActionCreated Action = "CREATED"
	ActionUpdated Action = "UPDATED"
	ActionDeleted Action = "DELETED"
)

// AuditEntry は監査ログの1件。
type AuditEntry struct {
	ID        string          `json:"id"`
	Action    Action          `json:"action"`
	TaskID    string          `json:"taskId"`
	UserID    string          `json:"userId"`
	Changes   json.RawMessage `json:"changes"`
	CreatedAt time.Time       `json:"createdAt"`
}

// AuditStore は監査ログをSQLiteに追記する。
type AuditStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewAuditStore は新しいAuditStoreを生成する。
func NewAuditStore(db *sqlx.DB) *AuditStore {
	return &AuditStore{db: db, now: time.Now}
}

// Append は監査ログを1件追記する。changesはJSONとして保存する。
func (s *AuditStore) Append(ctx context.Context, action Action, taskID, userID string, changes any) error {
	data, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("変更内容のシリアライズに失敗: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, action, task_id, user_id, changes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), action, taskID, userID, string(data), s.now().UTC(),
	); err != nil {
		return fmt.Errorf("監査ログの追記に失敗: %w", err)
	}
	return nil
}

// ListByTask はタスクの監査ログを古い順に返す。
func (s *AuditStore) ListByTask(ctx context.Context, taskID string) ([]AuditEntry, error) {
	var rows []struct {
		ID        string    `db:"id"`
		Action    Action    `db:"action"`
		TaskID    string    `db:"task_id"`
		UserID    string    `db:"user_id"`
		Changes   string    `db:"changes"`
		CreatedAt time.Time `db:"created_at"`
	}
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT id, action, task_id, user_id, changes, created_at
		FROM audit_logs WHERE task_id = ? ORDER BY created_at ASC, rowid ASC`, taskID,
	); err != nil {
		return nil, fmt.Errorf("監査ログの取得に失敗: %w", err)
	}

	entries := make([]AuditEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, AuditEntry{
			ID:        r.ID,
			Action:    r.Action,
			TaskID:    r.TaskID,
			UserID:    r.UserID,
			Changes:   json.RawMessage(r.Changes),
			CreatedAt: r.CreatedAt.UTC(),
		})
	}
	return entries, nil
}
