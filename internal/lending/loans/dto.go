package loans

import "time"

// 貸出リクエスト
type BorrowRequest struct {
	BookID int64 `json:"book_id" binding:"required"`
	UserID int64 `json:"user_id" binding:"required"`
}

// 返却リクエスト
type ReturnRequest struct {
	LoanID int64 `json:"loan_id" binding:"required"`
}

// 貸出レスポンス
type LoanResponse struct {
	LoanID     int64      `json:"loan_id"`
	LoanULID   string     `json:"loan_ulid"`
	UserID     int64      `json:"user_id"`
	BookID     int64      `json:"book_id"`
	BorrowDate time.Time  `json:"borrow_date"`
	ReturnDate *time.Time `json:"return_date,omitempty"`
	Status     Status     `json:"status"`
}

type Page struct {
	Limit  int
	Offset int
}

func buildLoanResponse(l *Loan) LoanResponse {
	resp := LoanResponse{
		LoanID:     l.LoanID,
		LoanULID:   l.LoanULID,
		UserID:     l.UserID,
		BookID:     l.BookID,
		BorrowDate: l.BorrowDate,
		Status:     l.Status,
	}
	if l.ReturnDate.Valid {
		val := l.ReturnDate.Time
		resp.ReturnDate = &val
	}
	return resp
}
