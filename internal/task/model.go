package task

import (
	"encoding/json"
	"errors"
	"time"
)

// Priority はタスクの優先度。
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// Valid は定義済みの優先度かどうかを返す。
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Status はタスクの進捗状態。
type Status string

const (
	StatusTodo       Status = "TODO"
	StatusInProgress Status = "IN_PROGRESS"
	StatusReview     Status = "REVIEW"
	StatusCompleted  Status = "COMPLETED"
)

// Valid は定義済みの状態かどうかを返す。
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusReview, StatusCompleted:
		return true
	}
	return false
}

var (
	// ErrNotFound はタスクが存在しないことを表す。
	ErrNotFound = errors.New("task not found")
	// ErrForbidden は操作者にタスクへの権限が無いことを表す。
	ErrForbidden = errors.New("unauthorized access to task")
	// ErrAssigneeNotFound は担当者に指定したユーザーが存在しないことを表す。
	ErrAssigneeNotFound = errors.New("assignee not found")
	// ErrInvalid は入力値が不正であることを表す。
	ErrInvalid = errors.New("invalid task")
)

// UserSummary はタスクに埋め込むユーザーの概要。
type UserSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Task は1件のタスク。WebSocketのtask:updatedでもこの形のまま配信する。
type Task struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	DueDate      time.Time    `json:"dueDate"`
	Priority     Priority     `json:"priority"`
	Status       Status       `json:"status"`
	CreatorID    string       `json:"creatorId"`
	AssignedToID *string      `json:"assignedToId"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
	Creator      UserSummary  `json:"creator"`
	AssignedTo   *UserSummary `json:"assignedTo"`
}

// CanView は userID がタスクを閲覧・更新できるかを返す。作成者か担当者に限る。
func (t *Task) CanView(userID string) bool {
	return t.CreatorID == userID || (t.AssignedToID != nil && *t.AssignedToID == userID)
}

// Filter は一覧取得の絞り込み条件。ゼロ値の項目は条件に含めない。
type Filter struct {
	Status       Status
	Priority     Priority
	CreatorID    string
	AssignedToID string
	// OverdueAt を設定すると、期限がこの時刻より前で未完了のタスクだけを返す。
	OverdueAt *time.Time
}

// CreateInput はタスク作成の入力。
type CreateInput struct {
	Title        string    `json:"title" binding:"required,min=1,max=100"`
	Description  string    `json:"description" binding:"required,min=1"`
	DueDate      time.Time `json:"dueDate" binding:"required"`
	Priority     Priority  `json:"priority" binding:"required,oneof=LOW MEDIUM HIGH URGENT"`
	Status       Status    `json:"status" binding:"omitempty,oneof=TODO IN_PROGRESS REVIEW COMPLETED"`
	AssignedToID *string   `json:"assignedToId" binding:"omitempty,uuid"`
}

// UpdateInput はタスク更新の入力。nilの項目は変更しない。
type UpdateInput struct {
	Title        *string    `json:"title" binding:"omitempty,min=1,max=100"`
	Description  *string    `json:"description" binding:"omitempty,min=1"`
	DueDate      *time.Time `json:"dueDate"`
	Priority     *Priority  `json:"priority" binding:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`
	Status       *Status    `json:"status" binding:"omitempty,oneof=TODO IN_PROGRESS REVIEW COMPLETED"`
	AssignedToID OptionalID `json:"assignedToId"`
}

// OptionalID はJSONで「未指定」「null」「値あり」を区別するID。
type OptionalID struct {
	// Set はキーがJSONに含まれていたかどうか。
	Set bool
	// Value はnullのときnil。
	Value *string
}

// UnmarshalJSON はキーが存在したことを記録する。
func (o *OptionalID) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}

// Clear はassignedToIdにnullを指定したOptionalIDを返す。
func Clear() OptionalID {
	return OptionalID{Set: true}
}

// Assign はassignedToIdにidを指定したOptionalIDを返す。
func Assign(id string) OptionalID {
	return OptionalID{Set: true, Value: &id}
}

// assignmentMessage は担当者への通知本文。
func assignmentMessage(title string) string {
	return "You have been assigned to task: " + title
}

// sameAssignee は2つの担当者IDが等しいかを返す。
func sameAssignee(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
