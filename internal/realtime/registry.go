package realtime

import "sync"

// Registry は論理ユーザーIDから現在有効な接続IDへの対応を保持する。
// 1ユーザーにつき保持する接続は最大1つで、後から登録された接続が優先される。
// 複数タブや複数端末で接続している場合、最後に登録した接続にしか届かない。
type Registry struct {
	// mu はconnsへの並行アクセスを保護する。
	mu sync.RWMutex
	// conns はユーザーIDから接続IDへの対応。
	conns map[string]string
}

// NewRegistry は空のRegistryを生成する。
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]string),
	}
}

// Register はユーザーIDに接続IDを対応付ける。既存の対応は無条件に上書きする。
func (r *Registry) Register(userID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[userID] = connID
}

// Unregister は値がconnIDと一致するエントリを削除する。
// 一致するエントリがなければ何もしない。
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for userID, id := range r.conns {
		if id == connID {
			delete(r.conns, userID)
		}
	}
}

// Lookup はユーザーIDに対応する接続IDを返す。
// 見つからない場合は第2戻り値がfalseになる。これはエラーではなく「未接続」を意味する。
func (r *Registry) Lookup(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	connID, ok := r.conns[userID]
	return connID, ok
}

// Len は登録済みユーザー数を返す。
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
