// taskwatchはtaskhubの割り当て通知を端末で受け取るCLI。
//
//	taskwatch login -email you@example.com -password ******
//	taskwatch watch
//	taskwatch logout
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/taskhub/internal/config"
	"github.com/nao1215/taskhub/internal/credential"
	"github.com/nao1215/taskhub/pkg/client"
)

const usage = `使い方: taskwatch <command> [flags]

commands:
  login   ログインしてトークンをキーリングに保存する
  logout  ログアウトして保存したトークンを削除する
  watch   割り当て通知を待ち受ける
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.LoadClient()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	creds, err := credential.Open(credential.DefaultConfig())
	if err != nil {
		log.Fatalf("%v", err)
	}

	switch os.Args[1] {
	case "login":
		err = runLogin(ctx, cfg, creds, os.Args[2:])
	case "logout":
		err = runLogout(ctx, cfg, creds)
	case "watch":
		err = runWatch(ctx, cfg, creds, os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", os.Args[1], err)
	}
}

func runLogin(ctx context.Context, cfg *config.Client, creds *credential.Store, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "メールアドレス")
	password := fs.String("password", "", "パスワード")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *password == "" {
		return errors.New("-email と -password を指定してください")
	}

	api := client.NewAPI(cfg.URL, "")
	res, err := api.Login(ctx, *email, *password)
	if err != nil {
		return fmt.Errorf("ログインに失敗: %w", err)
	}
	if err := creds.SetToken(cfg.URL, res.Token); err != nil {
		return err
	}
	fmt.Printf("%s としてログインしました\n", res.User.Name)
	return nil
}

func runLogout(ctx context.Context, cfg *config.Client, creds *credential.Store) error {
	token, err := creds.Token(cfg.URL)
	if errors.Is(err, credential.ErrNotFound) {
		fmt.Println("ログインしていません")
		return nil
	}
	if err != nil {
		return err
	}

	if err := client.NewAPI(cfg.URL, token).Logout(ctx); err != nil {
		log.Printf("[Client] サーバー側のログアウトに失敗: %v", err)
	}
	if err := creds.DeleteToken(cfg.URL); err != nil {
		return err
	}
	fmt.Println("ログアウトしました")
	return nil
}
