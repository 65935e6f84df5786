// Package task はタスクの永続化、変更フロー、HTTP APIを提供する。
//
// 作成・更新・削除は Service を通して行い、1回の変更は
// 保存、通知、監査ログ、応答の順に進む。保存が成功した後の
// 通知や監査ログの失敗はログに残すだけで、変更自体は成功として扱う。
package task
