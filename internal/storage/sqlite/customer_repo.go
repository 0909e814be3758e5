package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

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
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Conn.ExecContext(ctx, query,
		customer.ID, customer.OutletID, customer.Name, customer.PhoneNumber,
		customer.CreatedAt.Format(time.RFC3339), customer.UpdatedAt.Format(time.RFC3339),
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
		WHERE id = ?
	`
	var customer model.Customer
	var createdAt, updatedAt string
	err := r.db.Conn.QueryRowContext(ctx, query, id).Scan(
		&customer.ID, &customer.OutletID, &customer.Name, &customer.PhoneNumber, &createdAt, &updatedAt,
	)
	if err != nil {
		return model.Customer{}, mapError(err)
	}
	customer.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	customer.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return customer, nil
}

func (r *customerRepo) ListByOutlet(ctx context.Context, outletID string) ([]model.Customer, error) {
	query := `
		SELECT id, outlet_id, name, phone_number, created_at, updated_at
		FROM customers
		WHERE outlet_id = ?
		ORDER BY name
	`
	rows, err := r.db.Conn.QueryContext(ctx, query, outletID)
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
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	query := `
		SELECT id, outlet_id, name, phone_number, created_at, updated_at
		FROM customers
		WHERE outlet_id = ? AND id IN (` + placeholders + `)
	`
	args := make([]any, 0, len(ids)+1)
	args = append(args, outletID)
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := r.db.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers, err := scanCustomers(rows)
	if err != nil {
		return nil, err
	}

	// Preserve the caller's ordering.
	byID := make(map[string]model.Customer, len(customers))
	for _, c := range customers {
		byID[c.ID] = c
	}
	ordered := make([]model.Customer, 0, len(customers))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			ordered = append(ordered, c)
		}
	}
	return ordered, nil
}

func (r *customerRepo) Update(ctx context.Context, customer model.Customer) (model.Customer, error) {
	customer.UpdatedAt = time.Now()
	query := `
		UPDATE customers
		SET name = ?, phone_number = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := r.db.Conn.ExecContext(ctx, query,
		customer.Name, customer.PhoneNumber, customer.UpdatedAt.Format(time.RFC3339), customer.ID,
	)
	if err != nil {
		return model.Customer{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return model.Customer{}, mapError(sql.ErrNoRows)
	}
	return customer, nil
}

func (r *customerRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.Conn.ExecContext(ctx, `DELETE FROM customers WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return mapError(sql.ErrNoRows)
	}
	return nil
}

func scanCustomers(rows *sql.Rows) ([]model.Customer, error) {
	var customers []model.Customer
	for rows.Next() {
		var customer model.Customer
		var createdAt, updatedAt string
		if err := rows.Scan(&customer.ID, &customer.OutletID, &customer.Name, &customer.PhoneNumber, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		customer.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		customer.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		customers = append(customers, customer)
	}
	return customers, rows.Err()
}
