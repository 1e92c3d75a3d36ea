package books

import (
	"context"
	"database/sql"
	"errors"

	mysql "github.com/go-sql-driver/mysql"

	"libro-backend/internal/platform/apperr"
	"libro-backend/internal/platform/db"
)

type SQLStore struct{ conn *sql.DB }

func NewSQLStore(conn *sql.DB) *SQLStore { return &SQLStore{conn: conn} }

var _ Store = (*SQLStore)(nil)

func (s *SQLStore) Insert(ctx context.Context, b *Book) error {
	const q = `
	INSERT INTO books
	(title, author, isbn, publication_year, total_copies, available_copies)
	VALUES (?, ?, ?, ?, ?, ?)`
	res, err := s.conn.ExecContext(ctx, q,
		b.Title, b.Author, b.ISBN, b.PublicationYear, b.TotalCopies, b.AvailableCopies)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1062 { // duplicate key
			return apperr.ErrConflict("isbn already exists")
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.BookID = id
	return nil
}

func (s *SQLStore) GetByID(ctx context.Context, bookID int64) (*Book, error) {
	return getBook(ctx, s.conn, bookID, false)
}

func getBook(ctx context.Context, q db.DBTX, bookID int64, forUpdate bool) (*Book, error) {
	query := `
	SELECT book_id, title, author, isbn, publication_year, total_copies, available_copies
	FROM books WHERE book_id = ?`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var b Book
	err := q.QueryRowContext(ctx, query, bookID).Scan(
		&b.BookID, &b.Title, &b.Author, &b.ISBN,
		&b.PublicationYear, &b.TotalCopies, &b.AvailableCopies,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound("book not found")
		}
		return nil, err
	}
	return &b, nil
}

func (s *SQLStore) List(ctx context.Context, p Page) ([]Book, error) {
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	const q = `
	SELECT book_id, title, author, isbn, publication_year, total_copies, available_copies
	FROM books ORDER BY book_id ASC LIMIT ? OFFSET ?`
	rows, err := s.conn.QueryContext(ctx, q, p.Limit, p.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Book
	for rows.Next() {
		var b Book
		if err := rows.Scan(
			&b.BookID, &b.Title, &b.Author, &b.ISBN,
			&b.PublicationYear, &b.TotalCopies, &b.AvailableCopies,
		); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *SQLStore) Update(ctx context.Context, bookID int64, in UpdateBookRequest) (*Book, error) {
	var updated *Book
	err := db.RunInTx(ctx, s.conn, nil, func(ctx context.Context, tx *sql.Tx) error {
		cur, err := getBook(ctx, tx, bookID, true)
		if err != nil {
			return err
		}

		if in.Title != nil {
			cur.Title = *in.Title
		}
		if in.Author != nil {
			cur.Author = *in.Author
		}
		if in.ISBN != nil {
			cur.ISBN = *in.ISBN
		}
		if in.PublicationYear != nil {
			cur.PublicationYear = *in.PublicationYear
		}
		if in.TotalCopies != nil {
			// total の増減分を available にも適用し、0..total に丸める
			delta := *in.TotalCopies - cur.TotalCopies
			cur.TotalCopies = *in.TotalCopies
			cur.AvailableCopies = clamp(cur.AvailableCopies+delta, 0, cur.TotalCopies)
		}

		const q = `
		UPDATE books
		SET title = ?, author = ?, isbn = ?, publication_year = ?, total_copies = ?, available_copies = ?
		WHERE book_id = ?`
		if _, err := tx.ExecContext(ctx, q,
			cur.Title, cur.Author, cur.ISBN, cur.PublicationYear,
			cur.TotalCopies, cur.AvailableCopies, cur.BookID,
		); err != nil {
			var me *mysql.MySQLError
			if errors.As(err, &me) && me.Number == 1062 {
				return apperr.ErrConflict("isbn already exists")
			}
			return err
		}

		updated = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *SQLStore) Delete(ctx context.Context, bookID int64) error {
	return db.RunInTx(ctx, s.conn, nil, func(ctx context.Context, tx *sql.Tx) error {
		var outstanding int64
		const cnt = `SELECT COUNT(*) FROM loans WHERE book_id = ? AND status = 'borrowed' FOR UPDATE`
		if err := tx.QueryRowContext(ctx, cnt, bookID).Scan(&outstanding); err != nil {
			return err
		}
		if outstanding > 0 {
			return apperr.ErrConflict("book has outstanding loans")
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM books WHERE book_id = ?`, bookID)
		if err != nil {
			return err
		}
		if aff, _ := res.RowsAffected(); aff == 0 {
			return apperr.ErrNotFound("book not found")
		}
		return nil
	})
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
