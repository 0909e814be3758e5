package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/blastline/blastline/internal/storage/model"
)

type customerRepo struct {
	db *DB
}

func NewCustomerRepository(db *DB) *customerRepo {
	return &customerRepo{db: db}
}

func (r *customerRepo) Create(ctx context.Context, customer model.Customer) (model.Customer, error) {
	if customer.ID == "" {
		customer.ID = uuid.New().String()
	}
	now := time.Now()
	customer.CreatedAt = now
	customer.UpdatedAt = now

	query := `
		INSERT INTO customers (id, outlet_id, name, phone_number, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		customer.ID, customer.OutletID, customer.Name, customer.PhoneNumber, customer.CreatedAt, customer.UpdatedAt,
	)
	if err != nil {
		return model.Customer{}, err
	}
	return customer, nil
}

func (r *customerRepo) GetByID(ctx context.Context, id string) (model.Customer, error) {
	query := `
		SELECT id, outlet_id, name, phone_number, created_at, updated_at
		FROM customers
		WHERE id = $1
	`
	var customer model.Customer
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&customer.ID, &customer.OutletID, &customer.Name, &customer.PhoneNumber, &customer.CreatedAt, &customer.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return model.Customer{}, ErrNotFound
	}
	if err != nil {
		return model.Customer{}, err
	}
	return customer, nil
}

func (r *customerRepo) ListByOutlet(ctx context.Context, outletID string) ([]model.Customer, error) {
	query := `
		SELECT id, outlet_id, name, phone_number, created_at, updated_at
		FROM customers
		WHERE outlet_id = $1
		ORDER BY name
	`
	rows, err := r.db.Pool.Query(ctx, query, outletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCustomers(rows)
}

func (r *customerRepo) ListByIDs(ctx context.Context, outletID string, ids []string) ([]model.Customer, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `
		SELECT id, outlet_id, name, phone_number, created_at, updated_at
		FROM customers
		WHERE outlet_id = $1 AND id = ANY($2)
		ORDER BY array_position($2, id)
	`
	rows, err := r.db.Pool.Query(ctx, query, outletID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCustomers(rows)
}

func (r *customerRepo) Update(ctx context.Context, customer model.Customer) (model.Customer, error) {
	customer.UpdatedAt = time.Now()
	query := `
		UPDATE customers
		SET name = $2, phone_number = $3, updated_at = $4
		WHERE id = $1
	`
	tag, err := r.db.Pool.Exec(ctx, query, customer.ID, customer.Name, customer.PhoneNumber, customer.UpdatedAt)
	if err != nil {
		return model.Customer{}, err
	}
	if tag.RowsAffected() == 0 {
		return model.Customer{}, ErrNotFound
	}
	return customer, nil
}

func (r *customerRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanCustomers(rows pgx.Rows) ([]model.Customer, error) {
	var customers []model.Customer
	for rows.Next() {
		var customer model.Customer
		if err := rows.Scan(&customer.ID, &customer.OutletID, &customer.Name, &customer.PhoneNumber, &customer.CreatedAt, &customer.UpdatedAt); err != nil {
			return nil, err
		}
		customers = append(customers, customer)
	}
	return customers, rows.Err()
}
