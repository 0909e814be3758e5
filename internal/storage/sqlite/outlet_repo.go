package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

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
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Conn.ExecContext(ctx, query,
		outlet.ID, outlet.Name, nullIfEmpty(outlet.RegisteredNumber), outlet.IsActive,
		outlet.CreatedAt.Format(time.RFC3339), outlet.UpdatedAt.Format(time.RFC3339),
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
		WHERE id = ?
	`
	var outlet model.Outlet
	var createdAt, updatedAt string
	err := r.db.Conn.QueryRowContext(ctx, query, id).Scan(
		&outlet.ID, &outlet.Name, &outlet.RegisteredNumber, &outlet.IsActive, &createdAt, &updatedAt,
	)
	if err != nil {
		return model.Outlet{}, mapError(err)
	}
	outlet.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	outlet.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return outlet, nil
}

func (r *outletRepo) List(ctx context.Context) ([]model.Outlet, error) {
	query := `
		SELECT id, name, COALESCE(registered_number, ''), is_active, created_at, updated_at
		FROM outlets
		ORDER BY created_at
	`
	rows, err := r.db.Conn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outlets []model.Outlet
	for rows.Next() {
		var outlet model.Outlet
		var createdAt, updatedAt string
		if err := rows.Scan(&outlet.ID, &outlet.Name, &outlet.RegisteredNumber, &outlet.IsActive, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		outlet.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		outlet.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		outlets = append(outlets, outlet)
	}
	return outlets, rows.Err()
}

func (r *outletRepo) Update(ctx context.Context, outlet model.Outlet) (model.Outlet, error) {
	outlet.UpdatedAt = time.Now()
	query := `
		UPDATE outlets
		SET name = ?, registered_number = ?, is_active = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := r.db.Conn.ExecContext(ctx, query,
		outlet.Name, nullIfEmpty(outlet.RegisteredNumber), outlet.IsActive,
		outlet.UpdatedAt.Format(time.RFC3339), outlet.ID,
	)
	if err != nil {
		return model.Outlet{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return model.Outlet{}, mapError(sql.ErrNoRows)
	}
	return outlet, nil
}

func (r *outletRepo) SetActive(ctx context.Context, id string, active bool) error {
	query := `UPDATE outlets SET is_active = ?, updated_at = ? WHERE id = ?`
	result, err := r.db.Conn.ExecContext(ctx, query, active, time.Now().Format(time.RFC3339), id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return mapError(sql.ErrNoRows)
	}
	return nil
}

func (r *outletRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.Conn.ExecContext(ctx, `DELETE FROM outlets WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return mapError(sql.ErrNoRows)
	}
	return nil
}
