package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/blastline/blastline/internal/storage/model"
)

type blastRepo struct {
	db *DB
}

func NewBlastRepository(db *DB) *blastRepo {
	return &blastRepo{db: db}
}

func (r *blastRepo) Create(ctx context.Context, blast model.Blast) (model.Blast, error) {
	if blast.ID == "" {
		blast.ID = uuid.New().String()
	}
	blast.CreatedAt = time.Now()

	query := `
		INSERT INTO blasts (id, outlet_id, message, send_mode, status, attachments, targets,
		                    target_count, sent_count, failed_count, created_at, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		blast.ID, blast.OutletID, blast.Message, string(blast.SendMode), string(blast.Status),
		nullIfEmpty(blast.Attachments), nullIfEmpty(blast.Targets),
		blast.TargetCount, blast.SentCount, blast.FailedCount,
		blast.CreatedAt, blast.StartedAt, blast.CompletedAt,
	)
	if err != nil {
		return model.Blast{}, err
	}
	return blast, nil
}

func (r *blastRepo) GetByID(ctx context.Context, id string) (model.Blast, error) {
	query := `
		SELECT id, outlet_id, message, send_mode, status, COALESCE(attachments, ''), COALESCE(targets, ''),
		       target_count, sent_count, failed_count, created_at, started_at, completed_at
		FROM blasts
		WHERE id = $1
	`
	var blast model.Blast
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&blast.ID, &blast.OutletID, &blast.Message, &blast.SendMode, &blast.Status,
		&blast.Attachments, &blast.Targets,
		&blast.TargetCount, &blast.SentCount, &blast.FailedCount,
		&blast.CreatedAt, &blast.StartedAt, &blast.CompletedAt,
	)
	if err == pgx.ErrNoRows {
		return model.Blast{}, ErrNotFound
	}
	if err != nil {
		return model.Blast{}, err
	}
	return blast, nil
}

func (r *blastRepo) ListByOutlet(ctx context.Context, outletID string) ([]model.Blast, error) {
	query := `
		SELECT id, outlet_id, message, send_mode, status, COALESCE(attachments, ''), COALESCE(targets, ''),
		       target_count, sent_count, failed_count, created_at, started_at, completed_at
		FROM blasts
		WHERE outlet_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Pool.Query(ctx, query, outletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blasts []model.Blast
	for rows.Next() {
		var blast model.Blast
		if err := rows.Scan(
			&blast.ID, &blast.OutletID, &blast.Message, &blast.SendMode, &blast.Status,
			&blast.Attachments, &blast.Targets,
			&blast.TargetCount, &blast.SentCount, &blast.FailedCount,
			&blast.CreatedAt, &blast.StartedAt, &blast.CompletedAt,
		); err != nil {
			return nil, err
		}
		blasts = append(blasts, blast)
	}
	return blasts, rows.Err()
}

func (r *blastRepo) Update(ctx context.Context, blast model.Blast) (model.Blast, error) {
	query := `
		UPDATE blasts
		SET status = $2, sent_count = $3, failed_count = $4, started_at = $5, completed_at = $6
		WHERE id = $1
	`
	tag, err := r.db.Pool.Exec(ctx, query,
		blast.ID, string(blast.Status), blast.SentCount, blast.FailedCount, blast.StartedAt, blast.CompletedAt,
	)
	if err != nil {
		return model.Blast{}, err
	}
	if tag.RowsAffected() == 0 {
		return model.Blast{}, ErrNotFound
	}
	return blast, nil
}

func (r *blastRepo) SaveReports(ctx context.Context, reports []model.BlastReport) error {
	if len(reports) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	query := `
		INSERT INTO blast_reports (id, blast_id, customer_id, customer_name, phone_number, success, message, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	for _, rep := range reports {
		if rep.ID == "" {
			rep.ID = uuid.New().String()
		}
		batch.Queue(query, rep.ID, rep.BlastID, rep.CustomerID, rep.CustomerName, rep.PhoneNumber, rep.Success, rep.Message, rep.Timestamp)
	}
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for range reports {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func (r *blastRepo) ListReports(ctx context.Context, blastID string) ([]model.BlastReport, error) {
	query := `
		SELECT id, blast_id, customer_id, customer_name, phone_number, success, message, timestamp
		FROM blast_reports
		WHERE blast_id = $1
		ORDER BY timestamp
	`
	rows, err := r.db.Pool.Query(ctx, query, blastID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []model.BlastReport
	for rows.Next() {
		var rep model.BlastReport
		if err := rows.Scan(&rep.ID, &rep.BlastID, &rep.CustomerID, &rep.CustomerName, &rep.PhoneNumber, &rep.Success, &rep.Message, &rep.Timestamp); err != nil {
			return nil, err
		}
		reports = append(reports, rep)
	}
	return reports, rows.Err()
}
