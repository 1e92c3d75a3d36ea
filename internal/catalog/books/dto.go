package books

// ===== Requests =====

type CreateBookRequest struct {
	Title           string `json:"title" binding:"required"`
	Author          string `json:"author" binding:"required"`
	ISBN            string `json:"isbn" binding:"required"`
	PublicationYear int    `json:"publication_year" binding:"required"`
	TotalCopies     int    `json:"total_copies"`
}

type UpdateBookRequest struct {
	Title           *string `json:"title,omitempty"`
	Author          *string `json:"author,omitempty"`
	ISBN            *string `json:"isbn,omitempty"`
	PublicationYear *int    `json:"publication_year,omitempty"`
	TotalCopies     *int    `json:"total_copies,omitempty"`
}

// ===== Responses =====

type BookResponse struct {
	BookID          int64  `json:"book_id"`
	Title           string `json:"title"`
	Author          string `json:"author"`
	ISBN            string `json:"isbn"`
	PublicationYear int    `json:"publication_year"`
	TotalCopies     int    `json:"total_copies"`
	AvailableCopies int    `json:"available_copies"`
}

// ===== Listing helpers =====

type Page struct {
	Limit  int
	Offset int
}

func buildBookResponse(b *Book) BookResponse {
	return BookResponse{
		BookID:          b.BookID,
		Title:           b.Title,
		Author:          b.Author,
		ISBN:            b.ISBN,
		PublicationYear: b.PublicationYear,
		TotalCopies:     b.TotalCopies,
		AvailableCopies: b.AvailableCopies,
	}
}
