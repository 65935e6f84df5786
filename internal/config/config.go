// Package config はサーバーとCLIクライアントの設定を環境変数から読み込む。
//
// 値はviperで環境変数から取得し、カレントディレクトリに.envがあれば
// godotenvで先に読み込む。既に設定されている環境変数は上書きしない。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DevJWTSecret はJWT_SECRET未設定時に使う開発用シークレット。
const DevJWTSecret = "taskhub-dev-secret"

// Server はtaskhubサーバーの設定。
type Server struct {
	// Port は待ち受けポート。
	Port string
	// DatabasePath はSQLiteファイルのパス。":memory:"も指定できる。
	DatabasePath string
	// JWTSecret はトークン署名用のシークレット。
	JWTSecret string
	// JWTTTL はトークンの有効期間。
	JWTTTL time.Duration
	// CORSOrigins は許可するOriginの一覧。
	CORSOrigins []string
	// RedisURL はトークン失効リスト用のRedis URL。空ならメモリ上に保持する。
	RedisURL string
	// RateLimitWindow はレート制限の集計期間。
	RateLimitWindow time.Duration
	// RateLimitMax は集計期間あたりの最大リクエスト数。
	RateLimitMax int
	// WSSendBuffer はWebSocket接続ごとの送信キュー長。
	WSSendBuffer int
}

// Client はtaskwatch CLIの設定。
type Client struct {
	// URL はtaskhubサーバーのベースURL。
	URL string
	// ToastDuration はトーストを表示し続ける時間。
	ToastDuration time.Duration
	// AuthMaxAge は認証確認結果をキャッシュする時間。
	AuthMaxAge time.Duration
}

// LoadServer はサーバー設定を読み込む。
func LoadServer() (*Server, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("PORT", "5000")
	v.SetDefault("DATABASE_PATH", "taskhub.db")
	v.SetDefault("JWT_SECRET", DevJWTSecret)
	v.SetDefault("JWT_TTL", "168h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("RATE_LIMIT_WINDOW", "15m")
	v.SetDefault("RATE_LIMIT_MAX", 100)
	v.SetDefault("WS_SEND_BUFFER", 16)

	cfg := &Server{
		Port:            v.GetString("PORT"),
		DatabasePath:    v.GetString("DATABASE_PATH"),
		JWTSecret:       v.GetString("JWT_SECRET"),
		JWTTTL:          v.GetDuration("JWT_TTL"),
		CORSOrigins:     splitList(v.GetString("CORS_ORIGINS")),
		RedisURL:        v.GetString("REDIS_URL"),
		RateLimitWindow: v.GetDuration("RATE_LIMIT_WINDOW"),
		RateLimitMax:    v.GetInt("RATE_LIMIT_MAX"),
		WSSendBuffer:    v.GetInt("WS_SEND_BUFFER"),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Server) validate() error {
	switch {
	case c.Port == "":
		return errors.New("PORTが空です")
	case c.JWTSecret == "":
		return errors.New("JWT_SECRETが空です")
	case c.JWTTTL <= 0:
		return fmt.Errorf("JWT_TTLが不正です: %s", c.JWTTTL)
	case c.RateLimitWindow <= 0 || c.RateLimitMax <= 0:
		return fmt.Errorf("レート制限の設定が不正です: window=%s, max=%d", c.RateLimitWindow, c.RateLimitMax)
	}
	return nil
}

// LoadClient はtaskwatch CLIの設定を読み込む。
func LoadClient() (*Client, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("TASKHUB")
	v.AutomaticEnv()
	v.SetDefault("URL", "http://localhost:5000")
	v.SetDefault("TOAST_DURATION", "5s")
	v.SetDefault("AUTH_MAX_AGE", "30s")

	cfg := &Client{
		URL:           strings.TrimRight(v.GetString("URL"), "/"),
		ToastDuration: v.GetDuration("TOAST_DURATION"),
		AuthMaxAge:    v.GetDuration("AUTH_MAX_AGE"),
	}
	if cfg.ToastDuration <= 0 {
		return nil, fmt.Errorf("TASKHUB_TOAST_DURATIONが不正です: %s", cfg.ToastDuration)
	}
	return cfg, nil
}

// loadDotEnv はpathの.envを読み込む。ファイルが無ければ何もしない。
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf(".envの読み込みに失敗: %w", err)
	}
	return nil
}

// splitList はカンマ区切りの文字列を空要素を除いて分割する。
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
