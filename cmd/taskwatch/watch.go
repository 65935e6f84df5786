package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/nao1215/taskhub/internal/config"
	"github.com/nao1215/taskhub/internal/credential"
	"github.com/nao1215/taskhub/pkg/client"
)

// reconnectDelay は切断後に再接続するまでの待ち時間。
const reconnectDelay = 3 * time.Second

func runWatch(ctx context.Context, cfg *config.Client, creds *credential.Store, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	toastDuration := fs.Duration("toast", cfg.ToastDuration, "トーストを表示し続ける時間")
	if err := fs.Parse(args); err != nil {
		return err
	}

	token, err := creds.Token(cfg.URL)
	if errors.Is(err, credential.ErrNotFound) {
		return errors.New("先に taskwatch login を実行してください")
	}
	if err != nil {
		return err
	}

	api := client.NewAPI(cfg.URL, token)
	session := client.NewSession(api, cfg.AuthMaxAge)
	user, err := session.User(ctx)
	if err != nil {
		return fmt.Errorf("認証の確認に失敗: %w", err)
	}
	fmt.Printf("%s (%s) の通知を待ち受けます\n", user.Name, user.Email)

	cache := client.NewCache(ctx, printRefresh)
	toaster := client.NewToaster(*toastDuration,
		func(t client.Toast) { fmt.Printf("🔔 %s\n", t.Message) },
		nil,
	)
	defer toaster.Close()
	reconciler := client.NewReconciler(cache, toaster)

	if err := warm(ctx, cache, api); err != nil {
		return err
	}

	for {
		err := watchOnce(ctx, api, user.ID, reconciler)
		if ctx.Err() != nil {
			cache.Wait()
			return nil
		}
		log.Printf("[Client] 接続が切れました: %v", err)

		// トークンが失効していたら再接続しても無駄なので終了する
		if _, err := session.User(ctx); errors.Is(err, client.ErrUnauthenticated) {
			return err
		}

		select {
		case <-ctx.Done():
			cache.Wait()
			return nil
		case <-time.After(reconnectDelay):
		}
	}
}

// watchOnce は1回分の接続を張り、切れるまでイベントを処理する。
func watchOnce(ctx context.Context, api *client.API, userID string, reconciler *client.Reconciler) error {
	sock, err := client.Dial(ctx, api.BaseURL(), api.Token(), userID)
	if err != nil {
		return err
	}
	defer sock.Close()

	// 切断中に届かなかったイベントの分を取り直す
	reconciler.Resync()
	return sock.Run(ctx, reconciler.Handle)
}

// warm は表示対象の一覧を取得してキャッシュに載せる。
func warm(ctx context.Context, cache *client.Cache, api *client.API) error {
	if _, err := client.Load(ctx, cache, client.KeyNotifications, api.Notifications); err != nil {
		return fmt.Errorf("通知一覧の取得に失敗: %w", err)
	}
	if _, err := client.Load(ctx, cache, client.KeyUnreadNotifications, api.UnreadNotifications); err != nil {
		return fmt.Errorf("未読通知の取得に失敗: %w", err)
	}
	if _, err := client.Load(ctx, cache, client.KeyAssignedTasks, api.AssignedTasks); err != nil {
		return fmt.Errorf("担当タスクの取得に失敗: %w", err)
	}
	if _, err := client.Load(ctx, cache, client.KeyCreatedTasks, api.CreatedTasks); err != nil {
		return fmt.Errorf("作成タスクの取得に失敗: %w", err)
	}
	if _, err := client.Load(ctx, cache, client.KeyOverdueTasks, api.OverdueTasks); err != nil {
		return fmt.Errorf("期限切れタスクの取得に失敗: %w", err)
	}
	_, err := client.Load(ctx, cache, client.KeyTasks, func(ctx context.Context) ([]client.Task, error) {
		return api.Tasks(ctx, "", "")
	})
	if err != nil {
		return fmt.Errorf("タスク一覧の取得に失敗: %w", err)
	}
	return nil
}

// printRefresh は再取得された一覧の件数を表示する。
func printRefresh(key client.Key, value any, err error) {
	if err != nil {
		return
	}
	switch v := value.(type) {
	case []client.Task:
		fmt.Printf("  %s: %d件\n", key, len(v))
	case []client.Notification:
		unread := 0
		for _, n := range v {
			if !n.Read {
				unread++
			}
		}
		fmt.Printf("  %s: %d件 (未読 %d件)\n", key, len(v), unread)
	}
}
