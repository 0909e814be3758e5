package storage

import (
	"context"

	"github.com/blastline/blastline/internal/storage/model"
)

// ErrNotFound mirrors the drivers' sentinel so callers can depend on the
// facade alone.
var ErrNotFound = model.ErrNotFound

type OutletRepository interface {
	Create(ctx context.Context, outlet model.Outlet) (model.Outlet, error)
	GetByID(ctx context.Context, id string) (model.Outlet, error)
	List(ctx context.Context) ([]model.Outlet, error)
	Update(ctx context.Context, outlet model.Outlet) (model.Outlet, error)
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
}

// SessionRepository stores the per-outlet session record. Upsert writes the
// whole row keyed by outlet id; there is never more than one row per outlet.
type SessionRepository interface {
	Get(ctx context.Context, outletID string) (model.OutletSession, error)
	Upsert(ctx context.Context, session model.OutletSession) error
}

type CustomerRepository interface {
	Create(ctx context.Context, customer model.Customer) (model.Customer, error)
	GetByID(ctx context.Context, id string) (model.Customer, error)
	ListByOutlet(ctx context.Context, outletID string) ([]model.Customer, error)
	ListByIDs(ctx context.Context, outletID string, ids []string) ([]model.Customer, error)
	Update(ctx context.Context, customer model.Customer) (model.Customer, error)
	Delete(ctx context.Context, id string) error
}

type BlastRepository interface {
	Create(ctx context.Context, blast model.Blast) (model.Blast, error)
	GetByID(ctx context.Context, id string) (model.Blast, error)
	ListByOutlet(ctx context.Context, outletID string) ([]model.Blast, error)
	Update(ctx context.Context, blast model.Blast) (model.Blast, error)
	SaveReports(ctx context.Context, reports []model.BlastReport) error
	ListReports(ctx context.Context, blastID string) ([]model.BlastReport, error)
}

type UserRepository interface {
	Create(ctx context.Context, user model.User) (model.User, error)
	GetByID(ctx context.Context, id string) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
}
