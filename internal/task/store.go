package task

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Store はタスクをSQLiteに保存する。
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewStore は新しいStoreを生成する。
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// taskRow は作成者と担当者を結合した1行。
type taskRow struct {
	ID            string         `db:"id"`
	Title         string         `db:"title"`
	Description   string         `db:"description"`
	DueDate       time.Time      `db:"due_date"`
	Priority      Priority       `db:"priority"`
	Status        Status         `db:"status"`
	CreatorID     string         `db:"creator_id"`
	AssignedToID  sql.NullString `db:"assigned_to_id"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
	CreatorName   string         `db:"creator_name"`
	CreatorEmail  string         `db:"creator_email"`
	AssigneeName  sql.NullString `db:"assignee_name"`
	AssigneeEmail sql.NullString `db:"assignee_email"`
}

func (r *taskRow) toTask() Task {
	t := Task{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		DueDate:     r.DueDate.UTC(),
		Priority:    r.Priority,
		Status:      r.Status,
		CreatorID:   r.CreatorID,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
		Creator:     UserSummary{ID: r.CreatorID, Name: r.CreatorName, Email: r.CreatorEmail},
	}
	if r.AssignedToID.Valid {
		id := r.AssignedToID.String
		t.AssignedToID = &id
		t.AssignedTo = &UserSummary{ID: id, Name: r.AssigneeName.String, Email: r.AssigneeEmail.String}
	}
	return t
}

const selectTasks = `
SELECT t.id, t.title, t.description, t.due_date, t.priority, t.status,
       t.creator_id, t.assigned_to_id, t.created_at, t.updated_at,
       c.name AS creator_name, c.email AS creator_email,
       a.name AS assignee_name, a.email AS assignee_email
FROM tasks t
JOIN users c ON c.id = t.creator_id
LEFT JOIN users a ON a.id = t.assigned_to_id`

// Create はタスクを保存し、作成者と担当者を結合した状態で返す。
func (s *Store) Create(ctx context.Context, t *Task) (*Task, error) {
	now := s.now().UTC()
	id := uuid.New().String()
	status := t.Status
	if status == "" {
		status = StatusTodo
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (
			id, title, description, due_date, priority, status,
			creator_id, assigned_to_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, t.Title, t.Description, t.DueDate.UTC(), t.Priority, status,
		t.CreatorID, t.AssignedToID, now, now,
	); err != nil {
		return nil, fmt.Errorf("タスクの作成に失敗: %w", err)
	}
	return s.Get(ctx, id)
}

// Get はIDでタスクを取得する。
func (s *Store) Get(ctx context.Context, id string) (*Task, error) {
	var row taskRow
	if err := s.db.GetContext(ctx, &row, selectTasks+` WHERE t.id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("タスク %s の取得に失敗: %w", id, err)
	}
	t := row.toTask()
	return &t, nil
}

// Update はタスクの変更可能な項目を保存し、保存後のタスクを返す。
func (s *Store) Update(ctx context.Context, t *Task) (*Task, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET
			title = ?, description = ?, due_date = ?, priority = ?,
			status = ?, assigned_to_id = ?, updated_at = ?
		WHERE id = ?`,
		t.Title, t.Description, t.DueDate.UTC(), t.Priority,
		t.Status, t.AssignedToID, s.now().UTC(),
		t.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("タスク %s の更新に失敗: %w", t.ID, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, t.ID)
}

// Delete はタスクを削除する。
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("タスク %s の削除に失敗: %w", id, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

// List は条件に合うタスクを期限の早い順に返す。
func (s *Store) List(ctx context.Context, f Filter) ([]Task, error) {
	var (
		conds []string
		args  []any
	)
	if f.Status != "" {
		conds = append(conds, "t.status = ?")
		args = append(args, f.Status)
	}
	if f.Priority != "" {
		conds = append(conds, "t.priority = ?")
		args = append(args, f.Priority)
	}
	if f.CreatorID != "" {
		conds = append(conds, "t.creator_id = ?")
		args = append(args, f.CreatorID)
	}
	if f.AssignedToID != "" {
		conds = append(conds, "t.assigned_to_id = ?")
		args = append(args, f.AssignedToID)
	}
	if f.OverdueAt != nil {
		conds = append(conds, "t.due_date < ?", "t.status <> ?")
		args = append(args, f.OverdueAt.UTC(), StatusCompleted)
	}

	query := selectTasks
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY t.due_date ASC, t.created_at ASC"

	var rows []taskRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("タスク一覧の取得に失敗: %w", err)
	}

	tasks := make([]Task, 0, len(rows))
	for i := range rows {
		tasks = append(tasks, rows[i].toTask())
	}
	return tasks, nil
}

// UserExists はユーザーが存在するかを返す。
func (s *Store) UserExists(ctx context.Context, userID string) (bool, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM users WHERE id = ?`, userID); err != nil {
		return false, fmt.Errorf("ユーザー %s の確認に失敗: %w", userID, err)
	}
	return n > 0, nil
}
