// Package client はtaskhubサーバーのクライアント側ライブラリ。
//
// REST APIの呼び出し（API）、取得結果のキャッシュ（Cache）、
// WebSocketで届くイベントによるキャッシュの再検証（Reconciler）、
// 割り当て通知のトースト表示（Toaster）、認証状態の保持（Session）を提供する。
//
// キャッシュはイベントの内容で書き換えず、該当キーを古いものとして再取得する。
package client
