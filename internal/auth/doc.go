// Package auth はユーザー登録・ログイン・ログアウトとユーザー参照APIを提供する。
//
// ログイン時にJWTを発行し、レスポンスボディとhttpOnlyクッキーの両方で返す。
// ログアウトしたトークンはDenylistに有効期限まで登録され、
// middleware.JWTAuth が失効済みとして拒否する。
package auth
