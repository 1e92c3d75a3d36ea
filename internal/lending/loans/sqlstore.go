package loans

import (
	"context"
	"database/sql"
	"errors"
	"time"

	mysql "github.com/go-sql-driver/mysql"

	"libro-backend/internal/platform/apperr"
	"libro-backend/internal/platform/db"
)

type SQLStore struct{ conn *sql.DB }

func NewSQLStore(conn *sql.DB) *SQLStore { return &SQLStore{conn: conn} }

var _ Store = (*SQLStore)(nil)

func (s *SQLStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return db.RunInTx(ctx, s.conn, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, &sqlTx{tx: tx})
	})
}

// sqlTx は1トランザクション内のハンドル。Book行ロックで同時borrowを直列化する。
type sqlTx struct{ tx *sql.Tx }

var _ Tx = (*sqlTx)(nil)

func (t *sqlTx) BookAvailableForUpdate(ctx context.Context, bookID int64) (int, error) {
	const q = `SELECT available_copies FROM books WHERE book_id = ? FOR UPDATE`
	var available int
	if err := t.tx.QueryRowContext(ctx, q, bookID).Scan(&available); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, apperr.ErrNotFound("book not found")
		}
		return 0, err
	}
	return available, nil
}

func (t *sqlTx) AddAvailable(ctx context.Context, bookID int64, delta int) (bool, error) {
	// total縮小クランプ後の返却で total を超えないよう LEAST で丸める
	const q = `UPDATE books SET available_copies = LEAST(available_copies + ?, total_copies) WHERE book_id = ?`
	res, err := t.tx.ExecContext(ctx, q, delta, bookID)
	if err != nil {
		return false, err
	}
	aff, _ := res.RowsAffected()
	return aff == 1, nil
}

func (t *sqlTx) InsertLoan(ctx context.Context, l *Loan) error {
	const q = `
	INSERT INTO loans
	(loan_ulid, user_id, book_id, borrow_date, return_date, status)
	VALUES (?, ?, ?, ?, NULL, ?)`
	res, err := t.tx.ExecContext(ctx, q, l.LoanULID, l.UserID, l.BookID, l.BorrowDate, string(l.Status))
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1452 { // foreign key constraint fails
			return apperr.ErrInvalid("user does not exist")
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	l.LoanID = id
	return nil
}

func (t *sqlTx) LoanForUpdate(ctx context.Context, loanID int64) (*Loan, error) {
	const q = `
	SELECT loan_id, loan_ulid, user_id, book_id, borrow_date, return_date, status
	FROM loans WHERE loan_id = ? FOR UPDATE`
	return scanLoan(t.tx.QueryRowContext(ctx, q, loanID))
}

func (t *sqlTx) MarkReturned(ctx context.Context, loanID int64, at time.Time) error {
	const q = `UPDATE loans SET status = ?, return_date = ? WHERE loan_id = ?`
	res, err := t.tx.ExecContext(ctx, q, string(StatusReturned), at, loanID)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff != 1 {
		return apperr.ErrInternal("failed to update loans.status")
	}
	return nil
}

// ---- Queries ----

func (s *SQLStore) GetByID(ctx context.Context, loanID int64) (*Loan, error) {
	const q = `
	SELECT loan_id, loan_ulid, user_id, book_id, borrow_date, return_date, status
	FROM loans WHERE loan_id = ?`
	return scanLoan(s.conn.QueryRowContext(ctx, q, loanID))
}

func (s *SQLStore) List(ctx context.Context, p Page) ([]Loan, error) {
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	const q = `
	SELECT loan_id, loan_ulid, user_id, book_id, borrow_date, return_date, status
	FROM loans ORDER BY loan_id ASC LIMIT ? OFFSET ?`
	rows, err := s.conn.QueryContext(ctx, q, p.Limit, p.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Loan
	for rows.Next() {
		var l Loan
		var status string
		if err := rows.Scan(
			&l.LoanID, &l.LoanULID, &l.UserID, &l.BookID,
			&l.BorrowDate, &l.ReturnDate, &status,
		); err != nil {
			return nil, err
		}
		l.Status = Status(status)
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanLoan(row *sql.Row) (*Loan, error) {
	var l Loan
	var status string
	err := row.Scan(
		&l.LoanID, &l.LoanULID, &l.UserID, &l.BookID,
		&l.BorrowDate, &l.ReturnDate, &status,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound("loan not found")
		}
		return nil, err
	}
	l.Status = Status(status)
	return &l, nil
}
