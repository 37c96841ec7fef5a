package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

type CreateCustomerRequest struct {
	Name    string
	Email   string
	Address string
	Phone   string
}

type GetCustomerRequest struct {
	ID string
}

type Service interface {
	Create(context.Context, CreateCustomerRequest) (Customer, error)
	List(context.Context) ([]Customer, error)
	GetByID(context.Context, GetCustomerRequest) (Customer, error)

	// GetOrCreateByName resolves a customer by exact name inside the
	// caller's transaction, creating one with only the name populated
	// when absent. Resubmitting the same name yields the same record.
	GetOrCreateByName(ctx context.Context, tx *gorm.DB, name string) (Customer, error)
}

var (
	ErrInvalidName = errors.New("invalid_name")
	ErrInvalidID   = errors.New("invalid_id")
	ErrNotFound    = errors.New("not_found")
)
