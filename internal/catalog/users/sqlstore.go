package users

import (
	"context"
	"database/sql"
	"errors"

	mysql "github.com/go-sql-driver/mysql"

	"libro-backend/internal/platform/apperr"
)

type SQLStore struct{ conn *sql.DB }

func NewSQLStore(conn *sql.DB) *SQLStore { return &SQLStore{conn: conn} }

var _ Store = (*SQLStore)(nil)

func (s *SQLStore) Insert(ctx context.Context, u *User) error {
	const q = `INSERT INTO users (name, email) VALUES (?, ?)`
	res, err := s.conn.ExecContext(ctx, q, u.Name, u.Email)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1062 { // duplicate key
			return apperr.ErrConflict("email already exists")
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.UserID = id
	return nil
}

func (s *SQLStore) GetByID(ctx context.Context, userID int64) (*User, error) {
	const q = `SELECT user_id, name, email FROM users WHERE user_id = ?`
	var u User
	err := s.conn.QueryRowContext(ctx, q, userID).Scan(&u.UserID, &u.Name, &u.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound("user not found")
		}
		return nil, err
	}
	return &u, nil
}

func (s *SQLStore) List(ctx context.Context, p Page) ([]User, error) {
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	const q = `SELECT user_id, name, email FROM users ORDER BY user_id ASC LIMIT ? OFFSET ?`
	rows, err := s.conn.QueryContext(ctx, q, p.Limit, p.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.UserID, &u.Name, &u.Email); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
