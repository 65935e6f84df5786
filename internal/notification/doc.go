// Package notification はユーザー宛て通知の永続化とHTTP APIを提供する。
//
// 通知はタスクの担当者が決まったときに作成され、作成後に変更できるのは
// 既読状態だけである。一覧は作成日時の新しい順に返す。
package notification
