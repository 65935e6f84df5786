package event

import (
	"encoding/json"
	"time"
)

// Type はリアルタイムチャネルを流れるイベントの種類を表す。
type Type string

const (
	// TypeRegister はクライアントが接続直後に自分のユーザーIDを名乗るイベント。
	// クライアントからサーバー方向にのみ流れる。
	TypeRegister Type = "register"
	// TypeTaskUpdated はタスクが作成または更新されたことを全クライアントに知らせる。
	TypeTaskUpdated Type = "task:updated"
	// TypeTaskDeleted はタスクが削除されたことを全クライアントに知らせる。
	TypeTaskDeleted Type = "task:deleted"
	// TypeTaskAssigned はタスクの担当者に設定されたことを対象ユーザーにだけ知らせる。
	TypeTaskAssigned Type = "task:assigned"
)

// Envelope はWebSocket上で送受信される1メッセージの外形。
// Dataの中身はEventの種類によって異なる。
type Envelope struct {
	// Event はイベントの種類。
	Event Type `json:"event"`
	// Data はイベント固有のペイロード（JSON形式）。
	Data json.RawMessage `json:"data"`
}

// TaskDeletedData はtask:deletedイベントのデータ。
type TaskDeletedData struct {
	// ID は削除されたタスクのID。
	ID string `json:"id"`
}

// Notification はtask:assignedイベントで配信される通知レコード。
type Notification struct {
	// ID は通知の一意識別子。
	ID string `json:"id"`
	// UserID は通知の所有者（担当者）のID。
	UserID string `json:"userId"`
	// Message は通知メッセージ。
	Message string `json:"message"`
	// Read は既読フラグ。
	Read bool `json:"read"`
	// CreatedAt は通知の作成日時。
	CreatedAt time.Time `json:"createdAt"`
}
