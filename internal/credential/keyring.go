// Package credential はtaskwatchのログイントークンをOSのキーリングに保存する。
package credential

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/99designs/keyring"
)

const serviceName = "taskhub"

// ErrNotFound はトークンが保存されていないことを表す。
var ErrNotFound = errors.New("保存されたトークンがありません")

// DefaultConfig はOSのキーリングを優先し、使えなければファイルに保存する設定を返す。
func DefaultConfig() keyring.Config {
	dir := "~/.config/taskhub/credentials"
	if home, err := os.UserHomeDir(); err == nil {
		dir = filepath.Join(home, ".config", "taskhub", "credentials")
	}
	return keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  dir,
		FilePasswordFunc:         keyring.FixedStringPrompt("taskhub-file-key"),
		KeychainTrustApplication: true,
	}
}

// Store はサーバーURLごとにトークンを保存する。
type Store struct {
	ring keyring.Keyring
}

// Open は設定に従ってキーリングを開く。
func Open(cfg keyring.Config) (*Store, error) {
	ring, err := keyring.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("キーリングを開けません: %w", err)
	}
	return New(ring), nil
}

// New は開いたキーリングからStoreを生成する。
func New(ring keyring.Keyring) *Store {
	return &Store{ring: ring}
}

func tokenKey(serverURL string) string {
	return "token:" + serverURL
}

// Token はserverURL向けに保存されたトークンを返す。
func (s *Store) Token(serverURL string) (string, error) {
	item, err := s.ring.Get(tokenKey(serverURL))
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("トークンの取得に失敗 (%s): %w", serverURL, err)
	}
	return string(item.Data), nil
}

// SetToken はserverURL向けのトークンを保存する。既存のトークンは上書きする。
func (s *Store) SetToken(serverURL, token string) error {
	if err := s.ring.Set(keyring.Item{
		Key:   tokenKey(serverURL),
		Data:  []byte(token),
		Label: "taskhub token (" + serverURL + ")",
	}); err != nil {
		return fmt.Errorf("トークンの保存に失敗 (%s): %w", serverURL, err)
	}
	return nil
}

// DeleteToken はserverURL向けのトークンを削除する。保存されていなければ何もしない。
func (s *Store) DeleteToken(serverURL string) error {
	if err := s.ring.Remove(tokenKey(serverURL)); err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) || errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("トークンの削除に失敗 (%s): %w", serverURL, err)
	}
	return nil
}
