package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/blastline/blastline/internal/storage/model"
)

type outletRepo struct {
	db *DB
}

func NewOutletRepository(db *DB) *outletRepo {
	return &outletRepo{db: db}
}

func (r *outletRepo) Create(ctx context.Context, outlet model.Outlet) (model.Outlet, error) {
	if outlet.ID == "" {
		outlet.ID = uuid.New().String()
	}
	now := time.Now()
	outlet.CreatedAt = now
	outlet.UpdatedAt = now

	query := `
		INSERT INTO outlets (id, name, registered_number, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		outlet.ID, outlet.Name, nullIfEmpty(outlet.RegisteredNumber), outlet.IsActive, outlet.CreatedAt, outlet.UpdatedAt,
	)
	if err != nil {
		return model.Outlet{}, err
	}
	return outlet, nil
}

func (r *outletRepo) GetByID(ctx context.Context, id string) (model.Outlet, error) {
	query := `
		SELECT id, name, COALESCE(registered_number, ''), is_active, created_at, updated_at
		FROM outlets
		WHERE id = $1
	`
	var outlet model.Outlet
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&outlet.ID, &outlet.Name, &outlet.RegisteredNumber, &outlet.IsActive, &outlet.CreatedAt, &outlet.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return model.Outlet{}, ErrNotFound
	}
	if err != nil {
		return model.Outlet{}, err
	}
	return outlet, nil
}

func (r *outletRepo) List(ctx context.Context) ([]model.Outlet, error) {
	query := `
		SELECT id, name, COALESCE(registered_number, ''), is_active, created_at, updated_at
		FROM outlets
		ORDER BY created_at
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outlets []model.Outlet
	for rows.Next() {
		var outlet model.Outlet
		if err := rows.Scan(&outlet.ID, &outlet.Name, &outlet.RegisteredNumber, &outlet.IsActive, &outlet.CreatedAt, &outlet.UpdatedAt); err != nil {
			return nil, err
		}
		outlets = append(outlets, outlet)
	}
	return outlets, rows.Err()
}

func (r *outletRepo) Update(ctx context.Context, outlet model.Outlet) (model.Outlet, error) {
	outlet.UpdatedAt = time.Now()
	query := `
		UPDATE outlets
		SET name = $2, registered_number = $3, is_active = $4, updated_at = $5
		WHERE id = $1
	`
	tag, err := r.db.Pool.Exec(ctx, query,
		outlet.ID, outlet.Name, nullIfEmpty(outlet.RegisteredNumber), outlet.IsActive, outlet.UpdatedAt,
	)
	if err != nil {
		return model.Outlet{}, err
	}
	if tag.RowsAffected() == 0 {
		return model.Outlet{}, ErrNotFound
	}
	return outlet, nil
}

func (r *outletRepo) SetActive(ctx context.Context, id string, active bool) error {
	query := `UPDATE outlets SET is_active = $2, updated_at = $3 WHERE id = $1`
	tag, err := r.db.Pool.Exec(ctx, query, id, active, time.Now())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *outletRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM outlets WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
