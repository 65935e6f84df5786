package task

import (
	"context"
	"fmt"
	"log"
	"time"
	"unicode/utf8"

	"github.com/nao1215/taskhub/internal/notification"
	"github.com/nao1215/taskhub/pkg/event"
)

// Repository はタスクの永続化先。
type Repository interface {
	Create(ctx context.Context, t *Task) (*Task, error)
	Get(ctx context.Context, id string) (*Task, error)
	Update(ctx context.Context, t *Task) (*Task, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f Filter) ([]Task, error)
	UserExists(ctx context.Context, userID string) (bool, error)
}

// Notifier は担当者宛ての通知を作成する。
type Notifier interface {
	Create(ctx context.Context, userID, message string) (*notification.Notification, error)
}

// AuditLog は監査ログの追記と参照を行う。
type AuditLog interface {
	Append(ctx context.Context, action Action, taskID, userID string, changes any) error
	ListByTask(ctx context.Context, taskID string) ([]AuditEntry, error)
}

// Publisher は接続中のクライアントへイベントを配信する。
// どちらのメソッドも配信の完了を待たず、失敗を返さない。
type Publisher interface {
	BroadcastAll(eventType event.Type, payload any)
	Unicast(userID string, eventType event.Type, payload any)
}

// Service はタスクの変更フローを実行する。
type Service struct {
	tasks         Repository
	notifications Notifier
	audit         AuditLog
	publisher     Publisher
	now           func() time.Time
}

// NewService は新しいServiceを生成する。
func NewService(tasks Repository, notifications Notifier, audit AuditLog, publisher Publisher) *Service {
	return &Service{
		tasks:         tasks,
		notifications: notifications,
		audit:         audit,
		publisher:     publisher,
		now:           time.Now,
	}
}

// Create はタスクを作成する。
// 保存後にtask:updatedを全接続へ配信し、担当者がいれば通知を作成して
// その担当者にだけtask:assignedを配信する。最後にCREATEDの監査ログを残す。
func (s *Service) Create(ctx context.Context, actorID string, in CreateInput) (*Task, error) {
	if err := validateCreate(in); err != nil {
		return nil, err
	}
	if in.AssignedToID != nil {
		if err := s.ensureUser(ctx, *in.AssignedToID); err != nil {
			return nil, err
		}
	}

	created, err := s.tasks.Create(ctx, &Task{
		Title:        in.Title,
		Description:  in.Description,
		DueDate:      in.DueDate,
		Priority:     in.Priority,
		Status:       in.Status,
		CreatorID:    actorID,
		AssignedToID: in.AssignedToID,
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, created, created.AssignedToID != nil)

	if err := s.audit.Append(ctx, ActionCreated, created.ID, actorID, map[string]any{"task": created}); err != nil {
		log.Printf("[Task] 監査ログの記録に失敗 (task=%s, action=%s): %v", created.ID, ActionCreated, err)
	}
	return created, nil
}

// Update はタスクを部分更新する。作成者か担当者だけが更新できる。
// task:updatedは常に配信し、担当者が別の非nullの値に変わった場合だけ
// 新しい担当者へ通知する。
func (s *Service) Update(ctx context.Context, actorID, id string, in UpdateInput) (*Task, error) {
	prior, err := s.Get(ctx, actorID, id)
	if err != nil {
		return nil, err
	}

	next := *prior
	if in.Title != nil {
		next.Title = *in.Title
	}
	if in.Description != nil {
		next.Description = *in.Description
	}
	if in.DueDate != nil {
		next.DueDate = *in.DueDate
	}
	if in.Priority != nil {
		next.Priority = *in.Priority
	}
	if in.Status != nil {
		next.Status = *in.Status
	}
	if in.AssignedToID.Set {
		next.AssignedToID = in.AssignedToID.Value
	}
	if err := validateTask(&next); err != nil {
		return nil, err
	}

	reassigned := next.AssignedToID != nil && !sameAssignee(prior.AssignedToID, next.AssignedToID)
	if reassigned {
		if err := s.ensureUser(ctx, *next.AssignedToID); err != nil {
			return nil, err
		}
	}

	updated, err := s.tasks.Update(ctx, &next)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, updated, reassigned)

	if err := s.audit.Append(ctx, ActionUpdated, updated.ID, actorID, map[string]any{"old": prior, "new": updated}); err != nil {
		log.Printf("[Task] 監査ログの記録に失敗 (task=%s, action=%s): %v", updated.ID, ActionUpdated, err)
	}
	return updated, nil
}

// Delete はタスクを削除する。作成者だけが削除できる。
// 削除後にtask:deletedを全接続へ1回だけ配信する。
func (s *Service) Delete(ctx context.Context, actorID, id string) error {
	t, err := s.Get(ctx, actorID, id)
	if err != nil {
		return err
	}
	if t.CreatorID != actorID {
		return fmt.Errorf("only the creator can delete the task: %w", ErrForbidden)
	}

	if err := s.tasks.Delete(ctx, id); err != nil {
		return err
	}

	s.publisher.BroadcastAll(event.TypeTaskDeleted, event.TaskDeletedData{ID: id})

	if err := s.audit.Append(ctx, ActionDeleted, id, actorID, map[string]any{"task": t}); err != nil {
		log.Printf("[Task] 監査ログの記録に失敗 (task=%s, action=%s): %v", id, ActionDeleted, err)
	}
	return nil
}

// Get は閲覧権限を確認してタスクを返す。
func (s *Service) Get(ctx context.Context, actorID, id string) (*Task, error) {
	t, err := s.tasks.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !t.CanView(actorID) {
		return nil, ErrForbidden
	}
	return t, nil
}

// List は条件に合うタスクを期限の早い順に返す。
func (s *Service) List(ctx context.Context, f Filter) ([]Task, error) {
	return s.tasks.List(ctx, f)
}

// ListOverdue は期限切れで未完了のタスクを返す。
func (s *Service) ListOverdue(ctx context.Context) ([]Task, error) {
	now := s.now()
	return s.tasks.List(ctx, Filter{OverdueAt: &now})
}

// AuditTrail は閲覧権限を確認してタスクの監査ログを返す。
func (s *Service) AuditTrail(ctx context.Context, actorID, id string) ([]AuditEntry, error) {
	if _, err := s.Get(ctx, actorID, id); err != nil {
		return nil, err
	}
	return s.audit.ListByTask(ctx, id)
}

// publish は保存済みのタスクについて配信する。
// notifyがtrueなら担当者宛ての通知を作成し、作成できた場合だけunicastする。
func (s *Service) publish(ctx context.Context, t *Task, notify bool) {
	var n *notification.Notification
	if notify {
		var err error
		n, err = s.notifications.Create(ctx, *t.AssignedToID, assignmentMessage(t.Title))
		if err != nil {
			log.Printf("[Task] 通知の作成に失敗 (task=%s, user=%s): %v", t.ID, *t.AssignedToID, err)
		}
	}

	s.publisher.BroadcastAll(event.TypeTaskUpdated, t)
	if n != nil {
		s.publisher.Unicast(n.UserID, event.TypeTaskAssigned, n.Event())
	}
}

// ensureUser は担当者に指定されたユーザーが存在することを確認する。
func (s *Service) ensureUser(ctx context.Context, userID string) error {
	ok, err := s.tasks.UserExists(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAssigneeNotFound
	}
	return nil
}

func validateCreate(in CreateInput) error {
	t := Task{
		Title:       in.Title,
		Description: in.Description,
		DueDate:     in.DueDate,
		Priority:    in.Priority,
		Status:      in.Status,
	}
	if t.Status == "" {
		t.Status = StatusTodo
	}
	return validateTask(&t)
}

// validateTask はHTTP層を経由しない呼び出しに対しても不変条件を守る。
func validateTask(t *Task) error {
	switch {
	case t.Title == "" || utf8.RuneCountInString(t.Title) > 100:
		return fmt.Errorf("title must be 1 to 100 characters: %w", ErrInvalid)
	case t.Description == "":
		return fmt.Errorf("description is required: %w", ErrInvalid)
	case t.DueDate.IsZero():
		return fmt.Errorf("dueDate is required: %w", ErrInvalid)
	case !t.Priority.Valid():
		return fmt.Errorf("priority %q is not valid: %w", t.Priority, ErrInvalid)
	case !t.Status.Valid():
		return fmt.Errorf("status %q is not valid: %w", t.Status, ErrInvalid)
	}
	return nil
}
