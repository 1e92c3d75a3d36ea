package users

import "context"

type Store interface {
	// Insert は新規Userを登録し UserID を埋める。email重複は CONFLICT。
	Insert(ctx context.Context, u *User) error
	GetByID(ctx context.Context, userID int64) (*User, error)
	// List は登録順（user_id昇順）で返す。
	List(ctx context.Context, p Page) ([]User, error)
}
