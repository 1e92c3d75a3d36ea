package loans

import (
	"context"
	"time"
)

// Tx は borrow/return が1原子単位の中で使うトランザクションスコープのハンドル。
// SQL実装では対象Book/Loan行をロックして返す（SELECT ... FOR UPDATE）。
// メモリ実装ではストア全体のミューテックスで直列化する。
type Tx interface {
	// BookAvailableForUpdate は対象Bookの available_copies をロック付きで返す。
	// Bookが無ければ NOT_FOUND。
	BookAvailableForUpdate(ctx context.Context, bookID int64) (int, error)

	// AddAvailable は available_copies に delta を加算する。
	// 加算後の値は total_copies を超えない（0..total に収める）。
	// Book行が既に無い場合は false を返す（エラーにしない）。
	AddAvailable(ctx context.Context, bookID int64, delta int) (bool, error)

	// InsertLoan は新規Loanを登録し LoanID を埋める。
	// user参照が無効なら INVALID_ARGUMENT。
	InsertLoan(ctx context.Context, l *Loan) error

	// LoanForUpdate は対象Loanをロック付きで返す。無ければ NOT_FOUND。
	LoanForUpdate(ctx context.Context, loanID int64) (*Loan, error)

	// MarkReturned は status=returned, return_date=at を書き込む。
	MarkReturned(ctx context.Context, loanID int64, at time.Time) error
}

type Store interface {
	// InTx は fn を1トランザクションで実行する。fn がエラーを返せば全て巻き戻す。
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetByID(ctx context.Context, loanID int64) (*Loan, error)
	// List は登録順（loan_id昇順）で返す。
	List(ctx context.Context, p Page) ([]Loan, error)
}
