package loans_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libro-backend/internal/catalog/books"
	"libro-backend/internal/catalog/users"
	"libro-backend/internal/lending/loans"
	"libro-backend/internal/platform/apperr"
	"libro-backend/internal/platform/memstore"
)

// ===== test doubles =====

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type seqIDGen struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDGen) New() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("TESTULID%06d", g.n), nil
}

type fixture struct {
	mem   *memstore.Store
	books *books.Service
	users *users.Service
	svc   *loans.Service
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := memstore.New()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &fixture{
		mem:   mem,
		books: books.NewService(mem.Books()),
		users: users.NewService(mem.Users()),
		svc:   loans.NewServiceWith(mem.Loans(), fixedClock{t: now}, &seqIDGen{}),
		now:   now,
	}
}

func (f *fixture) addBook(t *testing.T, copies int) int64 {
	t.Helper()
	b, err := f.books.CreateBook(context.Background(), books.CreateBookRequest{
		Title:           "The Go Programming Language",
		Author:          "Donovan & Kernighan",
		ISBN:            fmt.Sprintf("978-0-13-419044-%d", copies),
		PublicationYear: 2015,
		TotalCopies:     copies,
	})
	require.NoError(t, err)
	return b.BookID
}

func (f *fixture) addUser(t *testing.T, email string) int64 {
	t.Helper()
	u, err := f.users.CreateUser(context.Background(), users.CreateUserRequest{
		Name:  "Reader",
		Email: email,
	})
	require.NoError(t, err)
	return u.UserID
}

func (f *fixture) available(t *testing.T, bookID int64) int {
	t.Helper()
	b, err := f.books.GetBook(context.Background(), bookID)
	require.NoError(t, err)
	return b.AvailableCopies
}

// ===== borrow =====

func TestBorrow_CreatesLoanAndDecrementsAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bookID := f.addBook(t, 1)
	userID := f.addUser(t, "reader@example.com")

	loan, err := f.svc.Borrow(ctx, loans.BorrowRequest{BookID: bookID, UserID: userID})
	require.NoError(t, err)

	assert.Equal(t, loans.StatusBorrowed, loan.Status)
	assert.Equal(t, bookID, loan.BookID)
	assert.Equal(t, userID, loan.UserID)
	assert.Equal(t, f.now, loan.BorrowDate)
	assert.Nil(t, loan.ReturnDate)
	assert.NotEmpty(t, loan.LoanULID)
	assert.Equal(t, 0, f.available(t, bookID))
}

func TestBorrow_BookNotFound(t *testing.T) {
	f := newFixture(t)
	userID := f.addUser(t, "reader@example.com")

	_, err := f.svc.Borrow(context.Background(), loans.BorrowRequest{BookID: 999, UserID: userID})
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))
}

func TestBorrow_NoCopiesAvailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bookID := f.addBook(t, 1)
	userID := f.addUser(t, "reader@example.com")

	_, err := f.svc.Borrow(ctx, loans.BorrowRequest{BookID: bookID, UserID: userID})
	require.NoError(t, err)

	_, err = f.svc.Borrow(ctx, loans.BorrowRequest{BookID: bookID, UserID: userID})
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeUnavailable))

	// 失敗したborrowは何も変えない
	assert.Equal(t, 0, f.available(t, bookID))
	list, err := f.svc.ListLoans(ctx, loans.Page{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestBorrow_UnknownUserRollsBackDecrement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bookID := f.addBook(t, 2)

	_, err := f.svc.Borrow(ctx, loans.BorrowRequest{BookID: bookID, UserID: 42})
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidArgument))

	// カウンタ減算もLoan作成も残っていないこと
	assert.Equal(t, 2, f.available(t, bookID))
	list, err := f.svc.ListLoans(ctx, loans.Page{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestBorrow_TwoCopiesTwoUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bookID := f.addBook(t, 2)
	alice := f.addUser(t, "alice@example.com")
	bob := f.addUser(t, "bob@example.com")

	_, err := f.svc.Borrow(ctx, loans.BorrowRequest{BookID: bookID, UserID: alice})
	require.NoError(t, err)
	_, err = f.svc.Borrow(ctx, loans.BorrowRequest{BookID: bookID, UserID: bob})
	require.NoError(t, err)
	assert.Equal(t, 0, f.available(t, bookID))

	_, err = f.svc.Borrow(ctx, loans.BorrowRequest{BookID: bookID, UserID: alice})
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeUnavailable))
}

// ===== return =====

func TestReturn_RestoresAvailabilityAndStampsDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bookID := f.addBook(t, 1)
	userID := f.addUser(t, "reader@example.com")

	borrowed, err := f.svc.Borrow(ctx, loans.BorrowRequest{BookID: bookID, UserID: userID})
	require.NoError(t, err)
	assert.Equal(t, 0, f.available(t, bookID))

	returned, err := f.svc.Return(ctx, loans.ReturnRequest{LoanID: borrowed.LoanID})
	require.NoError(t, err)

	assert.Equal(t, loans.StatusReturned, returned.Status)
	require.NotNil(t, returned.ReturnDate)
	assert.Equal(t, f.now, *returned.ReturnDate)
	assert.Equal(t, 1, f.available(t, bookID))
}

func TestReturn_TwiceFailsAndLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bookID := f.addBook(t, 1)
	userID := f.addUser(t, "reader@example.com")

	borrowed, err := f.svc.Borrow(ctx, loans.BorrowRequest{BookID: bookID, UserID: userID})
	require.NoError(t, err)
	first, err := f.svc.Return(ctx, loans.ReturnRequest{LoanID: borrowed.LoanID})
	require.NoError(t, err)

	_, err = f.svc.Return(ctx, loans.ReturnRequest{LoanID: borrowed.LoanID})
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidState))

	// 2回目の失敗で1回目の結果が変わらないこと
	assert.Equal(t, 1, f.available(t, bookID))
	got, err := f.svc.GetLoan(ctx, borrowed.LoanID)
	require.NoError(t, err)
	assert.Equal(t, first, got)
}

func TestReturn_LoanNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Return(context.Background(), loans.ReturnRequest{LoanID: 12345})
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))
}

func TestBorrowThenReturn_RestoresPreBorrowAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bookID := f.addBook(t, 3)
	userID := f.addUser(t, "reader@example.com")
	before := f.available(t, bookID)

	borrowed, err := f.svc.Borrow(ctx, loans.BorrowRequest{BookID: bookID, UserID: userID})
	require.NoError(t, err)
	assert.Equal(t, before-1, f.available(t, bookID))

	_, err = f.svc.Return(ctx, loans.ReturnRequest{LoanID: borrowed.LoanID})
	require.NoError(t, err)
	assert.Equal(t, before, f.available(t, bookID))
}

// 貸出後に total_copies を縮小しても、返却で available が total を超えないこと
func TestReturn_AfterTotalShrinkStaysWithinTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bookID := f.addBook(t, 1)
	userID := f.addUser(t, "reader@example.com")

	borrowed, err := f.svc.Borrow(ctx, loans.BorrowRequest{BookID: bookID, UserID: userID})
	require.NoError(t, err)

	// total 1→0: available は 0 に張り付く
	zero := 0
	shrunk, err := f.books.UpdateBook(ctx, bookID, books.UpdateBookRequest{TotalCopies: &zero})
	require.NoError(t, err)
	require.Equal(t, 0, shrunk.AvailableCopies)

	_, err = f.svc.Return(ctx, loans.ReturnRequest{LoanID: borrowed.LoanID})
	require.NoError(t, err)

	got, err := f.books.GetBook(ctx, bookID)
	require.NoError(t, err)
	assert.LessOrEqual(t, got.AvailableCopies, got.TotalCopies)
	assert.Equal(t, 0, got.AvailableCopies)
}

// Bookが消えていても返却は成立する（加算はスキップされ、ログに残すだけ）
func TestReturn_BookGoneSkipsIncrement(t *testing.T) {
	st := &vanishedBookStore{
		loan: loans.Loan{
			LoanID:     1,
			LoanULID:   "TESTULID000001",
			UserID:     1,
			BookID:     99,
			BorrowDate: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
			Status:     loans.StatusBorrowed,
		},
	}
	svc := loans.NewServiceWith(st, fixedClock{t: time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)}, &seqIDGen{})

	returned, err := svc.Return(context.Background(), loans.ReturnRequest{LoanID: 1})
	require.NoError(t, err)
	assert.Equal(t, loans.StatusReturned, returned.Status)
	require.NotNil(t, returned.ReturnDate)
}

// vanishedBookStore はLoanだけ存在しBookが消えた状態を再現する
type vanishedBookStore struct {
	loan loans.Loan
}

func (s *vanishedBookStore) InTx(ctx context.Context, fn func(ctx context.Context, tx loans.Tx) error) error {
	return fn(ctx, s)
}

func (s *vanishedBookStore) GetByID(_ context.Context, loanID int64) (*loans.Loan, error) {
	if loanID != s.loan.LoanID {
		return nil, apperr.ErrNotFound("loan not found")
	}
	l := s.loan
	return &l, nil
}

func (s *vanishedBookStore) List(context.Context, loans.Page) ([]loans.Loan, error) {
	return []loans.Loan{s.loan}, nil
}

func (s *vanishedBookStore) BookAvailableForUpdate(context.Context, int64) (int, error) {
	return 0, apperr.ErrNotFound("book not found")
}

func (s *vanishedBookStore) AddAvailable(context.Context, int64, int) (bool, error) {
	return false, nil
}

func (s *vanishedBookStore) InsertLoan(context.Context, *loans.Loan) error {
	return apperr.ErrInternal("not supported")
}

func (s *vanishedBookStore) LoanForUpdate(_ context.Context, loanID int64) (*loans.Loan, error) {
	return s.GetByID(context.Background(), loanID)
}

func (s *vanishedBookStore) MarkReturned(_ context.Context, loanID int64, at time.Time) error {
	if loanID != s.loan.LoanID {
		return apperr.ErrInternal("failed to update loans.status")
	}
	s.loan.Status = loans.StatusReturned
	s.loan.ReturnDate.Time = at
	s.loan.ReturnDate.Valid = true
	return nil
}

// ===== concurrency =====

func TestBorrow_ConcurrentSingleCopy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bookID := f.addBook(t, 1)
	userID := f.addUser(t, "reader@example.com")

	const n = 20
	var wg sync.WaitGroup
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Borrow(ctx, loans.BorrowRequest{BookID: bookID, UserID: userID})
		}(i)
	}
	wg.Wait()

	var ok, unavailable int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case apperr.IsCode(err, apperr.CodeUnavailable):
			unavailable++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, unavailable)
	assert.Equal(t, 0, f.available(t, bookID))

	list, err := f.svc.ListLoans(ctx, loans.Page{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
