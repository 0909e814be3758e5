package outlet

import (
	"context"
	"errors"
	"strings"

	"github.com/blastline/blastline/internal/pkg/phone"
	"github.com/blastline/blastline/internal/storage"
	"github.com/blastline/blastline/internal/storage/model"
)

var (
	ErrInvalidName   = errors.New("invalid outlet name")
	ErrInvalidNumber = errors.New("invalid phone number")
)

type Service struct {
	repo storage.OutletRepository
}

func NewService(repo storage.OutletRepository) *Service {
	return &Service{repo: repo}
}

type CreateInput struct {
	Name             string
	RegisteredNumber string
}

func (s *Service) Create(ctx context.Context, input CreateInput) (model.Outlet, error) {
	if strings.TrimSpace(input.Name) == "" {
		return model.Outlet{}, ErrInvalidName
	}
	number := strings.TrimSpace(input.RegisteredNumber)
	if number != "" {
		if !phone.IsValidFormat(number) {
			return model.Outlet{}, ErrInvalidNumber
		}
		number = phone.Normalize(number)
	}
	return s.repo.Create(ctx, model.Outlet{
		Name:             strings.TrimSpace(input.Name),
		RegisteredNumber: number,
	})
}

func (s *Service) Get(ctx context.Context, id string) (model.Outlet, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]model.Outlet, error) {
	return s.repo.List(ctx)
}

type UpdateInput struct {
	Name             string
	RegisteredNumber string
}

func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (model.Outlet, error) {
	outlet, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return model.Outlet{}, err
	}
	if name := strings.TrimSpace(input.Name); name != "" {
		outlet.Name = name
	}
	if number := strings.TrimSpace(input.RegisteredNumber); number != "" {
		if !phone.IsValidFormat(number) {
			return model.Outlet{}, ErrInvalidNumber
		}
		outlet.RegisteredNumber = phone.Normalize(number)
	}
	return s.repo.Update(ctx, outlet)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}
