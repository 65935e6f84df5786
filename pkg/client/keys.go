package client

import (
	"net/url"
	"strings"
)

// Key はキャッシュのキー。タスク関連のキーは名前に"task"を含む。
type Key string

const (
	// KeyTasks は全タスク一覧。
	KeyTasks Key = "tasks"
	// KeyAssignedTasks は自分が担当するタスク一覧。
	KeyAssignedTasks Key = "assigned-tasks"
	// KeyCreatedTasks は自分が作成したタスク一覧。
	KeyCreatedTasks Key = "created-tasks"
	// KeyOverdueTasks は期限切れタスク一覧。
	KeyOverdueTasks Key = "overdue-tasks"
	// KeyNotifications は通知一覧。
	KeyNotifications Key = "notifications"
	// KeyUnreadNotifications は未読通知一覧。
	KeyUnreadNotifications Key = "unread-notifications"
)

// TaskKey は単一タスク表示のキーを返す。
func TaskKey(id string) Key {
	return Key("task-" + id)
}

// FilteredTasksKey は絞り込み付きタスク一覧のキーを返す。
// 条件が空ならKeyTasksと同じになる。
func FilteredTasksKey(status, priority string) Key {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if priority != "" {
		q.Set("priority", priority)
	}
	if len(q) == 0 {
		return KeyTasks
	}
	return Key(string(KeyTasks) + "?" + q.Encode())
}

// IsTaskKey はタスク関連のキーかどうかを返す。
func IsTaskKey(k Key) bool {
	return strings.Contains(string(k), "task")
}

// isAssignmentKey はtask:assignedで再検証するキーかどうかを返す。
func isAssignmentKey(k Key) bool {
	switch k {
	case KeyNotifications, KeyUnreadNotifications, KeyAssignedTasks:
		return true
	}
	return false
}
