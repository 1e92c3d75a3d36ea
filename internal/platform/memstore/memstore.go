// Package memstore は books/users/loans の各Store契約をミューテックス保護の
// マップで実装する。テストと database.driver: memory での起動に使う。
// トランザクションはストア全体のロックで直列化し、失敗時はスナップショットへ
// 巻き戻す。
package memstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"libro-backend/internal/catalog/books"
	"libro-backend/internal/catalog/users"
	"libro-backend/internal/lending/loans"
	"libro-backend/internal/platform/apperr"
)

type Store struct {
	mu sync.Mutex

	booksByID map[int64]books.Book
	bookOrder []int64
	usersByID map[int64]users.User
	userOrder []int64
	loansByID map[int64]loans.Loan
	loanOrder []int64

	nextBookID int64
	nextUserID int64
	nextLoanID int64
}

func New() *Store {
	return &Store{
		booksByID:  map[int64]books.Book{},
		usersByID:  map[int64]users.User{},
		loansByID:  map[int64]loans.Loan{},
		nextBookID: 1,
		nextUserID: 1,
		nextLoanID: 1,
	}
}

// 各契約へのアダプタ。メソッド名が衝突するので型を分ける。

func (s *Store) Books() books.Store { return &bookStore{s} }
func (s *Store) Users() users.Store { return &userStore{s} }
func (s *Store) Loans() loans.Store { return &loanStore{s} }

// ===== books.Store =====

type bookStore struct{ s *Store }

var _ books.Store = (*bookStore)(nil)

func (bs *bookStore) Insert(_ context.Context, b *books.Book) error {
	s := bs.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.bookOrder {
		if strings.EqualFold(s.booksByID[id].ISBN, b.ISBN) {
			return apperr.ErrConflict("isbn already exists")
		}
	}

	b.BookID = s.nextBookID
	s.nextBookID++
	s.booksByID[b.BookID] = *b
	s.bookOrder = append(s.bookOrder, b.BookID)
	return nil
}

func (bs *bookStore) GetByID(_ context.Context, bookID int64) (*books.Book, error) {
	s := bs.s
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.booksByID[bookID]
	if !ok {
		return nil, apperr.ErrNotFound("book not found")
	}
	return &b, nil
}

func (bs *bookStore) List(_ context.Context, p Page) ([]books.Book, error) {
	s := bs.s
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]books.Book, 0, len(s.bookOrder))
	for _, id := range paged(s.bookOrder, p.Limit, p.Offset) {
		out = append(out, s.booksByID[id])
	}
	return out, nil
}

func (bs *bookStore) Update(_ context.Context, bookID int64, in books.UpdateBookRequest) (*books.Book, error) {
	s := bs.s
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.booksByID[bookID]
	if !ok {
		return nil, apperr.ErrNotFound("book not found")
	}

	if in.ISBN != nil {
		for _, id := range s.bookOrder {
			if id != bookID && strings.EqualFold(s.booksByID[id].ISBN, *in.ISBN) {
				return nil, apperr.ErrConflict("isbn already exists")
			}
		}
		cur.ISBN = *in.ISBN
	}
	if in.Title != nil {
		cur.Title = *in.Title
	}
	if in.Author != nil {
		cur.Author = *in.Author
	}
	if in.PublicationYear != nil {
		cur.PublicationYear = *in.PublicationYear
	}
	if in.TotalCopies != nil {
		delta := *in.TotalCopies - cur.TotalCopies
		cur.TotalCopies = *in.TotalCopies
		cur.AvailableCopies = clamp(cur.AvailableCopies+delta, 0, cur.TotalCopies)
	}

	s.booksByID[bookID] = cur
	return &cur, nil
}

func (bs *bookStore) Delete(_ context.Context, bookID int64) error {
	s := bs.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.booksByID[bookID]; !ok {
		return apperr.ErrNotFound("book not found")
	}
	for _, id := range s.loanOrder {
		l := s.loansByID[id]
		if l.BookID == bookID && l.Status == loans.StatusBorrowed {
			return apperr.ErrConflict("book has outstanding loans")
		}
	}

	delete(s.booksByID, bookID)
	for i, id := range s.bookOrder {
		if id == bookID {
			s.bookOrder = append(s.bookOrder[:i], s.bookOrder[i+1:]...)
			break
		}
	}
	return nil
}

// ===== users.Store =====

type userStore struct{ s *Store }

var _ users.Store = (*userStore)(nil)

func (us *userStore) Insert(_ context.Context, u *users.User) error {
	s := us.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.userOrder {
		if strings.EqualFold(s.usersByID[id].Email, u.Email) {
			return apperr.ErrConflict("email already exists")
		}
	}

	u.UserID = s.nextUserID
	s.nextUserID++
	s.usersByID[u.UserID] = *u
	s.userOrder = append(s.userOrder, u.UserID)
	return nil
}

func (us *userStore) GetByID(_ context.Context, userID int64) (*users.User, error) {
	s := us.s
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.usersByID[userID]
	if !ok {
		return nil, apperr.ErrNotFound("user not found")
	}
	return &u, nil
}

func (us *userStore) List(_ context.Context, p users.Page) ([]users.User, error) {
	s := us.s
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]users.User, 0, len(s.userOrder))
	for _, id := range paged(s.userOrder, p.Limit, p.Offset) {
		out = append(out, s.usersByID[id])
	}
	return out, nil
}

// ===== loans.Store =====

type loanStore struct{ s *Store }

var _ loans.Store = (*loanStore)(nil)

// InTx はストア全体のロックで borrow/return を直列化する。
// fn がエラーを返したらスナップショットへ巻き戻す。
func (ls *loanStore) InTx(ctx context.Context, fn func(ctx context.Context, tx loans.Tx) error) error {
	s := ls.s
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(ctx, &memTx{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (ls *loanStore) GetByID(_ context.Context, loanID int64) (*loans.Loan, error) {
	s := ls.s
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.loansByID[loanID]
	if !ok {
		return nil, apperr.ErrNotFound("loan not found")
	}
	return &l, nil
}

func (ls *loanStore) List(_ context.Context, p loans.Page) ([]loans.Loan, error) {
	s := ls.s
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]loans.Loan, 0, len(s.loanOrder))
	for _, id := range paged(s.loanOrder, p.Limit, p.Offset) {
		out = append(out, s.loansByID[id])
	}
	return out, nil
}

// memTx は InTx 中だけ有効なハンドル。呼び出し側でロック取得済み。
type memTx struct{ s *Store }

var _ loans.Tx = (*memTx)(nil)

func (t *memTx) BookAvailableForUpdate(_ context.Context, bookID int64) (int, error) {
	b, ok := t.s.booksByID[bookID]
	if !ok {
		return 0, apperr.ErrNotFound("book not found")
	}
	return b.AvailableCopies, nil
}

func (t *memTx) AddAvailable(_ context.Context, bookID int64, delta int) (bool, error) {
	b, ok := t.s.booksByID[bookID]
	if !ok {
		return false, nil
	}
	// total縮小クランプ後の返却で total を超えないよう丸める
	b.AvailableCopies = clamp(b.AvailableCopies+delta, 0, b.TotalCopies)
	t.s.booksByID[bookID] = b
	return true, nil
}

func (t *memTx) InsertLoan(_ context.Context, l *loans.Loan) error {
	if _, ok := t.s.usersByID[l.UserID]; !ok {
		return apperr.ErrInvalid("user does not exist")
	}
	l.LoanID = t.s.nextLoanID
	t.s.nextLoanID++
	t.s.loansByID[l.LoanID] = *l
	t.s.loanOrder = append(t.s.loanOrder, l.LoanID)
	return nil
}

func (t *memTx) LoanForUpdate(_ context.Context, loanID int64) (*loans.Loan, error) {
	l, ok := t.s.loansByID[loanID]
	if !ok {
		return nil, apperr.ErrNotFound("loan not found")
	}
	return &l, nil
}

func (t *memTx) MarkReturned(_ context.Context, loanID int64, at time.Time) error {
	l, ok := t.s.loansByID[loanID]
	if !ok {
		return apperr.ErrInternal("failed to update loans.status")
	}
	l.Status = loans.StatusReturned
	l.ReturnDate.Time = at
	l.ReturnDate.Valid = true
	t.s.loansByID[loanID] = l
	return nil
}

// ===== snapshot / restore =====

type snapshot struct {
	books      map[int64]books.Book
	bookOrder  []int64
	loans      map[int64]loans.Loan
	loanOrder  []int64
	nextLoanID int64
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		books:      make(map[int64]books.Book, len(s.booksByID)),
		bookOrder:  append([]int64(nil), s.bookOrder...),
		loans:      make(map[int64]loans.Loan, len(s.loansByID)),
		loanOrder:  append([]int64(nil), s.loanOrder...),
		nextLoanID: s.nextLoanID,
	}
	for k, v := range s.booksByID {
		snap.books[k] = v
	}
	for k, v := range s.loansByID {
		snap.loans[k] = v
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.booksByID = snap.books
	s.bookOrder = snap.bookOrder
	s.loansByID = snap.loans
	s.loanOrder = snap.loanOrder
	s.nextLoanID = snap.nextLoanID
}

// ===== helpers =====

// Page は books.Page と同形。List系の共通引数。
type Page = books.Page

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func paged(order []int64, limit, offset int) []int64 {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(order) {
		return nil
	}
	end := offset + limit
	if end > len(order) {
		end = len(order)
	}
	return order[offset:end]
}
