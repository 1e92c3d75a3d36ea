package users

// User は users テーブルの1行を表す。登録後は読み取り専用。
type User struct {
	UserID int64
	Name   string
	Email  string
}
