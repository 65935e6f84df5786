package credential

import (
	"errors"
	"testing"

	"github.com/99designs/keyring"
)

// fileStore はテスト用にファイルバックエンドのStoreを開く。
func fileStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(keyring.Config{
		ServiceName:      "taskhub-test",
		AllowedBackends:  []keyring.BackendType{keyring.FileBackend},
		FileDir:          t.TempDir(),
		FilePasswordFunc: keyring.FixedStringPrompt("test"),
	})
	if err != nil {
		t.Fatalf("キーリングを開けません: %v", err)
	}
	return s
}

func TestStore(t *testing.T) {
	t.Parallel()

	backends := map[string]func(t *testing.T) *Store{
		"ファイル": fileStore,
		"メモリ":  func(*testing.T) *Store { return New(keyring.NewArrayKeyring(nil)) },
	}

	for name, open := range backends {
		t.Run(name+"に保存したトークンを取得できること", func(t *testing.T) {
			t.Parallel()
			s := open(t)

			if err := s.SetToken("http://localhost:5000", "tok-1"); err != nil {
				t.Fatalf("SetToken() error = %v", err)
			}
			got, err := s.Token("http://localhost:5000")
			if err != nil {
				t.Fatalf("Token() error = %v", err)
			}
			if got != "tok-1" {
				t.Errorf("Token() = %q, want tok-1", got)
			}

			if _, err := s.Token("http://other:5000"); !errors.Is(err, ErrNotFound) {
				t.Errorf("別サーバーのToken() error = %v, want %v", err, ErrNotFound)
			}
		})

		t.Run(name+"から削除するとErrNotFoundになること", func(t *testing.T) {
			t.Parallel()
			s := open(t)

			if err := s.SetToken("http://localhost:5000", "tok-1"); err != nil {
				t.Fatalf("SetToken() error = %v", err)
			}
			if err := s.DeleteToken("http://localhost:5000"); err != nil {
				t.Fatalf("DeleteToken() error = %v", err)
			}
			if _, err := s.Token("http://localhost:5000"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Token() error = %v, want %v", err, ErrNotFound)
			}
			// 2回目の削除もエラーにしない
			if err := s.DeleteToken("http://localhost:5000"); err != nil {
				t.Errorf("2回目のDeleteToken() error = %v", err)
			}
		})
	}
}
