package users

import (
	"context"
	"strings"

	"libro-backend/internal/platform/apperr"
)

type Service struct {
	store Store
}

func NewService(store Store) *Service { return &Service{store: store} }

func (s *Service) CreateUser(ctx context.Context, in CreateUserRequest) (UserResponse, error) {
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Email) == "" {
		return UserResponse{}, apperr.ErrInvalid("name and email are required")
	}
	if !strings.Contains(in.Email, "@") {
		return UserResponse{}, apperr.ErrInvalid("invalid email")
	}

	u := &User{Name: in.Name, Email: in.Email}
	if err := s.store.Insert(ctx, u); err != nil {
		return UserResponse{}, err
	}
	return UserResponse{UserID: u.UserID, Name: u.Name, Email: u.Email}, nil
}

func (s *Service) GetUser(ctx context.Context, userID int64) (UserResponse, error) {
	u, err := s.store.GetByID(ctx, userID)
	if err != nil {
		return UserResponse{}, err
	}
	return UserResponse{UserID: u.UserID, Name: u.Name, Email: u.Email}, nil
}

func (s *Service) ListUsers(ctx context.Context, p Page) ([]UserResponse, error) {
	items, err := s.store.List(ctx, p)
	if err != nil {
		return nil, err
	}
	out := make([]UserResponse, 0, len(items))
	for _, u := range items {
		out = append(out, UserResponse{UserID: u.UserID, Name: u.Name, Email: u.Email})
	}
	return out, nil
}
