package realtime

import (
	"log"

	"github.com/nao1215/taskhub/pkg/event"
)

// Transport はエンコード済みメッセージを接続へ書き込む下位層。
// Hubが実装する。
type Transport interface {
	// SendAll は現在接続しているすべてのクライアントにメッセージを送る。
	SendAll(msg []byte)
	// Send は指定した接続にだけメッセージを送る。
	Send(connID string, msg []byte) error
}

// Broadcaster はタスク変更イベントを全接続または特定ユーザーへ配信する。
// 配信は投げっぱなしで、確認応答は待たない。
type Broadcaster struct {
	// registry はユーザーIDから接続IDを解決するために使う。
	registry *Registry
	// transport は実際の書き込みを担う。
	transport Transport
}

// NewBroadcaster は新しいBroadcasterを生成する。
func NewBroadcaster(registry *Registry, transport Transport) *Broadcaster {
	return &Broadcaster{
		registry:  registry,
		transport: transport,
	}
}

// BroadcastAll は接続中のすべてのクライアントにイベントを送る。
// 未接続のクライアントには届かず、次回の取得で変更を知ることになる。
func (b *Broadcaster) BroadcastAll(eventType event.Type, payload any) {
	msg, err := event.Encode(eventType, payload)
	if err != nil {
		log.Printf("[Realtime] %s のエンコードに失敗: %v", eventType, err)
		return
	}
	b.transport.SendAll(msg)
}

// Unicast は指定ユーザーの接続にだけイベントを送る。
// ユーザーが未接続の場合は黙って破棄する。通知レコードが永続的な記録として残る。
func (b *Broadcaster) Unicast(userID string, eventType event.Type, payload any) {
	connID, ok := b.registry.Lookup(userID)
	if !ok {
		return
	}

	msg, err := event.Encode(eventType, payload)
	if err != nil {
		log.Printf("[Realtime] %s のエンコードに失敗: %v", eventType, err)
		return
	}

	// 直前に切断された接続を指している可能性があるが、取りこぼしとして扱う
	if err := b.transport.Send(connID, msg); err != nil {
		log.Printf("[Realtime] %s の配信に失敗 (user=%s, conn=%s): %v", eventType, userID, connID, err)
	}
}
