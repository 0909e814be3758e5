package customer

import (
	"context"
	"errors"
	"strings"

	"github.com/blastline/blastline/internal/pkg/phone"
	"github.com/blastline/blastline/internal/storage"
	"github.com/blastline/blastline/internal/storage/model"
)

var (
	ErrInvalidName   = errors.New("invalid customer name")
	ErrInvalidNumber = errors.New("invalid phone number")
)

type Service struct {
	repo storage.CustomerRepository
}

func NewService(repo storage.CustomerRepository) *Service {
	return &Service{repo: repo}
}

type Input struct {
	Name        string
	PhoneNumber string
}

func (s *Service) Create(ctx context.Context, outletID string, input Input) (model.Customer, error) {
	if strings.TrimSpace(input.Name) == "" {
		return model.Customer{}, ErrInvalidName
	}
	if !phone.IsValidFormat(input.PhoneNumber) {
		return model.Customer{}, ErrInvalidNumber
	}
	return s.repo.Create(ctx, model.Customer{
		OutletID:    outletID,
		Name:        strings.TrimSpace(input.Name),
		PhoneNumber: phone.Normalize(input.PhoneNumber),
	})
}

func (s *Service) Get(ctx context.Context, id string) (model.Customer, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByOutlet(ctx context.Context, outletID string) ([]model.Customer, error) {
	return s.repo.ListByOutlet(ctx, outletID)
}

func (s *Service) Update(ctx context.Context, id string, input Input) (model.Customer, error) {
	customer, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return model.Customer{}, err
	}
	if name := strings.TrimSpace(input.Name); name != "" {
		customer.Name = name
	}
	if input.PhoneNumber != "" {
		if !phone.IsValidFormat(input.PhoneNumber) {
			return model.Customer{}, ErrInvalidNumber
		}
		customer.PhoneNumber = phone.Normalize(input.PhoneNumber)
	}
	return s.repo.Update(ctx, customer)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}
