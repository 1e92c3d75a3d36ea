package loans

import (
	"context"
	"crypto/rand"
	"log"
	"time"

	"github.com/oklog/ulid/v2"

	"libro-backend/internal/platform/apperr"
)

// ===== インターフェース群 =====

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

type IDGen interface {
	New() (string, error)
}

type ulidGen struct{}

func (ulidGen) New() (string, error) {
	t := time.Now().UTC()
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(t), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// ===== Service本体 =====

// Service が Loan Engine。borrow/return だけが availability を動かす。
type Service struct {
	store Store
	clock Clock
	id    IDGen
}

func NewService(store Store) *Service {
	return &Service{
		store: store,
		clock: realClock{},
		id:    ulidGen{},
	}
}

// NewServiceWith はテスト用に Clock / IDGen を差し替える。
func NewServiceWith(store Store, clock Clock, id IDGen) *Service {
	return &Service{store: store, clock: clock, id: id}
}

// Borrow は在庫確認・カウンタ減算・Loan作成を1原子単位で行う。
// 在庫0なら UNAVAILABLE、Bookが無ければ NOT_FOUND。失敗時は部分効果を残さない。
func (s *Service) Borrow(ctx context.Context, req BorrowRequest) (*LoanResponse, error) {
	if req.BookID <= 0 {
		return nil, apperr.ErrInvalid("book_id must be > 0")
	}
	if req.UserID <= 0 {
		return nil, apperr.ErrInvalid("user_id must be > 0")
	}

	idStr, err := s.id.New()
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()

	loan := &Loan{
		LoanULID:   idStr,
		UserID:     req.UserID,
		BookID:     req.BookID,
		BorrowDate: now,
		Status:     StatusBorrowed,
	}

	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		available, err := tx.BookAvailableForUpdate(ctx, req.BookID)
		if err != nil {
			return err
		}
		if available <= 0 {
			return apperr.ErrUnavailable("no copies available")
		}
		if _, err := tx.AddAvailable(ctx, req.BookID, -1); err != nil {
			return err
		}
		return tx.InsertLoan(ctx, loan)
	})
	if err != nil {
		return nil, err
	}

	resp := buildLoanResponse(loan)
	return &resp, nil
}

// Return は status遷移・return_date記録・カウンタ加算を1原子単位で行う。
// 返却済みなら INVALID_STATE、Loanが無ければ NOT_FOUND。
// Bookが削除済みの場合は加算をスキップして返却自体は成立させる（ログのみ）。
func (s *Service) Return(ctx context.Context, req ReturnRequest) (*LoanResponse, error) {
	if req.LoanID <= 0 {
		return nil, apperr.ErrInvalid("loan_id must be > 0")
	}

	now := s.clock.Now()

	var returned *Loan
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		loan, err := tx.LoanForUpdate(ctx, req.LoanID)
		if err != nil {
			return err
		}
		if loan.Status != StatusBorrowed {
			return apperr.ErrInvalidState("loan already returned")
		}

		if err := tx.MarkReturned(ctx, loan.LoanID, now); err != nil {
			return err
		}

		ok, err := tx.AddAvailable(ctx, loan.BookID, +1)
		if err != nil {
			return err
		}
		if !ok {
			// Book削除済み。返却は成立させ、不整合は記録だけする。
			log.Printf("[WARN] return loan_id=%d: book_id=%d no longer exists, skipping availability increment",
				loan.LoanID, loan.BookID)
		}

		loan.Status = StatusReturned
		loan.ReturnDate.Time = now
		loan.ReturnDate.Valid = true
		returned = loan
		return nil
	})
	if err != nil {
		return nil, err
	}

	resp := buildLoanResponse(returned)
	return &resp, nil
}

// 貸出単一取得
func (s *Service) GetLoan(ctx context.Context, loanID int64) (*LoanResponse, error) {
	loan, err := s.store.GetByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	resp := buildLoanResponse(loan)
	return &resp, nil
}

// 貸出一覧
func (s *Service) ListLoans(ctx context.Context, p Page) ([]LoanResponse, error) {
	items, err := s.store.List(ctx, p)
	if err != nil {
		return nil, err
	}
	out := make([]LoanResponse, 0, len(items))
	for i := range items {
		out = append(out, buildLoanResponse(&items[i]))
	}
	return out, nil
}
