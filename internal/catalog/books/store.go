package books

import "context"

// Store は books テーブルへのアクセス契約。
// SQL実装は sqlstore.go、テスト/開発用のメモリ実装は platform/memstore。
type Store interface {
	// Insert は新規Bookを登録し BookID を埋める。
	// isbn重複は CONFLICT を返す。
	Insert(ctx context.Context, b *Book) error

	// GetByID は存在しなければ NOT_FOUND を返す。
	GetByID(ctx context.Context, bookID int64) (*Book, error)

	// List は登録順（book_id昇順）で返す。
	List(ctx context.Context, p Page) ([]Book, error)

	// Update は部分更新を適用する。total_copies が delta 変わる場合、
	// available_copies にも同じ delta を適用し 0..total に丸める。
	// 一連の読み書きは1トランザクションで行うこと。
	Update(ctx context.Context, bookID int64, in UpdateBookRequest) (*Book, error)

	// Delete は貸出中(BORROWED)のLoanが参照している間は CONFLICT を返す。
	Delete(ctx context.Context, bookID int64) error
}
