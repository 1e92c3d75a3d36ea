package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrAlreadyExists = errors.New("already exists")
	ErrAuthFailed    = errors.New("authentication failed")
)

// Service は司書アカウントの登録・ログインを担当する。
// 秘密鍵は設定から注入する（ハードコード禁止）。
type Service struct {
	store    AccountStore
	secret   []byte
	tokenTTL time.Duration
}

func NewService(conn *sql.DB, secret string, tokenTTL time.Duration) *Service {
	return NewServiceWithStore(NewStore(conn), secret, tokenTTL)
}

// NewServiceWithStore はテスト用にストアを差し替える。
func NewServiceWithStore(store AccountStore, secret string, tokenTTL time.Duration) *Service {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &Service{store: store, secret: []byte(secret), tokenTTL: tokenTTL}
}

func (s *Service) Secret() []byte { return s.secret }

func (s *Service) Login(ctx context.Context, id, password string) (string, error) {
	acct, err := s.store.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if acct == nil || acct.IsDisabled {
		return "", ErrAuthFailed
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return "", ErrAuthFailed
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  acct.ID,
		"role": acct.Role,
		"exp":  time.Now().Add(s.tokenTTL).Unix(),
	})

	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", err
	}
	return tokenString, nil
}

func (s *Service) Register(ctx context.Context, id, password, role string) error {
	exists, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if exists != nil {
		return ErrAlreadyExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	return s.store.Create(ctx, &Account{
		ID:           id,
		PasswordHash: string(hash),
		Role:         role,
		IsDisabled:   false,
	})
}
