// Package httpclient はtaskhub APIを呼び出すJSON HTTPクライアントを提供する。
//
// 認証トークンはコンテキスト経由で渡し、Bearerヘッダーとして送信する。
// 2xx以外のレスポンスはStatusErrorとして返す。
package httpclient
