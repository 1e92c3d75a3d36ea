package books

import (
	"context"
	"strings"

	"libro-backend/internal/platform/apperr"
)

type Service struct {
	store Store
}

func NewService(store Store) *Service { return &Service{store: store} }

func (s *Service) CreateBook(ctx context.Context, in CreateBookRequest) (BookResponse, error) {
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Author) == "" ||
		strings.TrimSpace(in.ISBN) == "" {
		return BookResponse{}, apperr.ErrInvalid("title, author, isbn are required")
	}
	if in.TotalCopies < 0 {
		return BookResponse{}, apperr.ErrInvalid("total_copies must be >= 0")
	}

	b := &Book{
		Title:           in.Title,
		Author:          in.Author,
		ISBN:            in.ISBN,
		PublicationYear: in.PublicationYear,
		TotalCopies:     in.TotalCopies,
		// 登録時は全冊貸出可能
		AvailableCopies: in.TotalCopies,
	}
	if err := s.store.Insert(ctx, b); err != nil {
		return BookResponse{}, err
	}
	return buildBookResponse(b), nil
}

func (s *Service) GetBook(ctx context.Context, bookID int64) (BookResponse, error) {
	b, err := s.store.GetByID(ctx, bookID)
	if err != nil {
		return BookResponse{}, err
	}
	return buildBookResponse(b), nil
}

func (s *Service) ListBooks(ctx context.Context, p Page) ([]BookResponse, error) {
	items, err := s.store.List(ctx, p)
	if err != nil {
		return nil, err
	}
	out := make([]BookResponse, 0, len(items))
	for i := range items {
		out = append(out, buildBookResponse(&items[i]))
	}
	return out, nil
}

func (s *Service) UpdateBook(ctx context.Context, bookID int64, in UpdateBookRequest) (BookResponse, error) {
	if in.TotalCopies != nil && *in.TotalCopies < 0 {
		return BookResponse{}, apperr.ErrInvalid("total_copies must be >= 0")
	}
	if in.ISBN != nil && strings.TrimSpace(*in.ISBN) == "" {
		return BookResponse{}, apperr.ErrInvalid("isbn must not be empty")
	}

	b, err := s.store.Update(ctx, bookID, in)
	if err != nil {
		return BookResponse{}, err
	}
	return buildBookResponse(b), nil
}

func (s *Service) DeleteBook(ctx context.Context, bookID int64) error {
	return s.store.Delete(ctx, bookID)
}
