// Package event はサーバーとクライアントの間でWebSocket越しにやり取りする
// イベントの種類とエンベロープ形式を定義する。
package event
