// taskhubサーバーのエントリポイント。
// タスク管理のREST APIと、割り当て通知を配信するWebSocketを提供する。
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/taskhub/internal/config"
	"github.com/nao1215/taskhub/internal/server"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}
	if cfg.JWTSecret == config.DevJWTSecret {
		log.Printf("JWT_SECRETが未設定のため開発用シークレットを使用します")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.NewServer(ctx, cfg)
	if err != nil {
		log.Fatalf("サーバーの初期化に失敗: %v", err)
	}

	if err := srv.Run(ctx); err != nil {
		log.Fatalf("サーバーが異常終了しました: %v", err)
	}
	log.Printf("taskhubを停止しました")
}
