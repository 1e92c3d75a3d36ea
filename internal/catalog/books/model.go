package books

// Book は books テーブルの1行を表す。
// AvailableCopies は Loan Engine の borrow/return か、
// total_copies 更新時の差分適用でのみ動く。
type Book struct {
	BookID          int64
	Title           string
	Author          string
	ISBN            string
	PublicationYear int
	TotalCopies     int
	AvailableCopies int
}
