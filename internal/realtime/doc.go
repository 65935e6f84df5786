// Package realtime はタスク変更をWebSocket接続へ配信するリアルタイム層を提供する。
//
// 論理ユーザーIDと接続IDの対応を保持するRegistry、全接続への一斉配信と
// 特定ユーザーへの単一配信を行うBroadcaster、WebSocket接続のライフサイクルを
// 管理するHubから構成される。配信はベストエフォート（at-most-once）であり、
// 送信失敗は呼び出し元に返さずログに記録するだけにとどめる。
package realtime
