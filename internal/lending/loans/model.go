package loans

import (
	"database/sql"
	"time"
)

type Status string

const (
	StatusBorrowed Status = "borrowed"
	StatusReturned Status = "returned"
)

// Loan は loans テーブルの1行を表す。
// status は borrowed -> returned の一方向にのみ遷移し、行は削除しない。
type Loan struct {
	LoanID     int64
	LoanULID   string
	UserID     int64
	BookID     int64
	BorrowDate time.Time
	ReturnDate sql.NullTime
	Status     Status
}
