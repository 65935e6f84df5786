// Package database はtaskhubのSQLiteデータベースを開き、スキーマを最新にする。
package database

import (
	"context"
	"embed"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nao1215/taskhub/pkg/migration"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Open はpathのSQLiteデータベースを開き、未適用のマイグレーションを適用する。
// pathに":memory:"を指定した場合は接続を1本に制限する。
func Open(ctx context.Context, path string) (*sqlx.DB, error) {
	dsn := path
	if path != ":memory:" {
		// PRAGMAは接続ごとの設定なので、プールの全接続に効くようDSNで指定する
		dsn = path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベースのオープンに失敗: %w", err)
	}

	if path == ":memory:" {
		// インメモリDBは接続ごとに別のデータベースになる
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("外部キー制約の有効化に失敗: %w", err)
		}
	}

	if _, err := migration.Run(ctx, db, migrations, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("マイグレーションの適用に失敗: %w", err)
	}
	return db, nil
}
