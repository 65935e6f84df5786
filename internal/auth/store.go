package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var (
	// ErrUserNotFound はユーザーが存在しないことを表す。
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailTaken はメールアドレスが登録済みであることを表す。
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials はメールアドレスまたはパスワードが一致しないことを表す。
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// User は登録済みユーザー。パスワードハッシュはJSONに含めない。
type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	Name         string    `db:"name" json:"name"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// Summary はユーザー一覧で返す最小限の情報。
type Summary struct {
	ID    string `db:"id" json:"id"`
	Email string `db:"email" json:"email"`
	Name  string `db:"name" json:"name"`
}

// Store はユーザーをSQLiteに保存する。
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewStore は新しいStoreを生成する。
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db, now: time.Now}
}

const selectUser = `SELECT id, email, name, password_hash, created_at, updated_at FROM users`

// Create はユーザーを作成する。メールアドレスが登録済みならErrEmailTakenを返す。
func (s *Store) Create(ctx context.Context, email, name, passwordHash string) (*User, error) {
	now := s.now().UTC()
	u := &User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.CreatedAt, u.UpdatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("ユーザーの作成に失敗: %w", err)
	}
	return u, nil
}

// Get はIDでユーザーを取得する。
func (s *Store) Get(ctx context.Context, id string) (*User, error) {
	return s.getOne(ctx, selectUser+` WHERE id = ?`, id)
}

// GetByEmail はメールアドレスでユーザーを取得する。
func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.getOne(ctx, selectUser+` WHERE email = ?`, email)
}

func (s *Store) getOne(ctx context.Context, query string, arg any) (*User, error) {
	var u User
	if err := s.db.GetContext(ctx, &u, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("ユーザーの取得に失敗: %w", err)
	}
	return &u, nil
}

// List は全ユーザーを名前順に返す。
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	list := []Summary{}
	if err := s.db.SelectContext(ctx, &list, `SELECT id, email, name FROM users ORDER BY name ASC, email ASC`); err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗: %w", err)
	}
	return list, nil
}

// UpdateProfile は名前とメールアドレスを更新する。nilのフィールドは変更しない。
func (s *Store) UpdateProfile(ctx context.Context, id string, name, email *string) (*User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if name != nil {
		u.Name = *name
	}
	if email != nil {
		u.Email = *email
	}
	u.UpdatedAt = s.now().UTC()

	if _, err := s.db.ExecContext(ctx,
		`UPDATE users SET name = ?, email = ?, updated_at = ? WHERE id = ?`,
		u.Name, u.Email, u.UpdatedAt, u.ID,
	); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("プロフィールの更新に失敗: %w", err)
	}
	return u, nil
}

// isUniqueViolation はSQLiteの一意制約違反かどうかを判定する。
func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
