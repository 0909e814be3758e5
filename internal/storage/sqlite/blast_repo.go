package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Conn.ExecContext(ctx, query,
		blast.ID, blast.OutletID, blast.Message, string(blast.SendMode), string(blast.Status),
		nullIfEmpty(blast.Attachments), nullIfEmpty(blast.Targets),
		blast.TargetCount, blast.SentCount, blast.FailedCount,
		blast.CreatedAt.Format(time.RFC3339), formatTimePtr(blast.StartedAt), formatTimePtr(blast.CompletedAt),
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
		WHERE id = ?
	`
	var blast model.Blast
	var createdAt string
	var startedAt, completedAt sql.NullString
	err := r.db.Conn.QueryRowContext(ctx, query, id).Scan(
		&blast.ID, &blast.OutletID, &blast.Message, &blast.SendMode, &blast.Status,
		&blast.Attachments, &blast.Targets,
		&blast.TargetCount, &blast.SentCount, &blast.FailedCount,
		&createdAt, &startedAt, &completedAt,
	)
	if err != nil {
		return model.Blast{}, mapError(err)
	}
	blast.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if startedAt.Valid {
		blast.StartedAt = parseTimePtr(startedAt.String)
	}
	if completedAt.Valid {
		blast.CompletedAt = parseTimePtr(completedAt.String)
	}
	return blast, nil
}

func (r *blastRepo) ListByOutlet(ctx context.Context, outletID string) ([]model.Blast, error) {
	query := `
		SELECT id, outlet_id, message, send_mode, status, COALESCE(attachments, ''), COALESCE(targets, ''),
		       target_count, sent_count, failed_count, created_at, started_at, completed_at
		FROM blasts
		WHERE outlet_id = ?
		ORDER BY created_at DESC
	`
	rows, err := r.db.Conn.QueryContext(ctx, query, outletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blasts []model.Blast
	for rows.Next() {
		var blast model.Blast
		var createdAt string
		var startedAt, completedAt sql.NullString
		if err := rows.Scan(
			&blast.ID, &blast.OutletID, &blast.Message, &blast.SendMode, &blast.Status,
			&blast.Attachments, &blast.Targets,
			&blast.TargetCount, &blast.SentCount, &blast.FailedCount,
			&createdAt, &startedAt, &completedAt,
		); err != nil {
			return nil, err
		}
		blast.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		if startedAt.Valid {
			blast.StartedAt = parseTimePtr(startedAt.String)
		}
		if completedAt.Valid {
			blast.CompletedAt = parseTimePtr(completedAt.String)
		}
		blasts = append(blasts, blast)
	}
	return blasts, rows.Err()
}

func (r *blastRepo) Update(ctx context.Context, blast model.Blast) (model.Blast, error) {
	query := `
		UPDATE blasts
		SET status = ?, sent_count = ?, failed_count = ?, started_at = ?, completed_at = ?
		WHERE id = ?
	`
	result, err := r.db.Conn.ExecContext(ctx, query,
		string(blast.Status), blast.SentCount, blast.FailedCount,
		formatTimePtr(blast.StartedAt), formatTimePtr(blast.CompletedAt), blast.ID,
	)
	if err != nil {
		return model.Blast{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return model.Blast{}, mapError(sql.ErrNoRows)
	}
	return blast, nil
}

func (r *blastRepo) SaveReports(ctx context.Context, reports []model.BlastReport) error {
	if len(reports) == 0 {
		return nil
	}
	tx, err := r.db.Conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO blast_reports (id, blast_id, customer_id, customer_name, phone_number, success, message, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, rep := range reports {
		if rep.ID == "" {
			rep.ID = uuid.New().String()
		}
		if _, err := tx.ExecContext(ctx, query,
			rep.ID, rep.BlastID, rep.CustomerID, rep.CustomerName, rep.PhoneNumber,
			rep.Success, rep.Message, rep.Timestamp.Format(time.RFC3339),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *blastRepo) ListReports(ctx context.Context, blastID string) ([]model.BlastReport, error) {
	query := `
		SELECT id, blast_id, customer_id, customer_name, phone_number, success, message, timestamp
		FROM blast_reports
		WHERE blast_id = ?
		ORDER BY timestamp
	`
	rows, err := r.db.Conn.QueryContext(ctx, query, blastID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []model.BlastReport
	for rows.Next() {
		var rep model.BlastReport
		var ts string
		if err := rows.Scan(&rep.ID, &rep.BlastID, &rep.CustomerID, &rep.CustomerName, &rep.PhoneNumber, &rep.Success, &rep.Message, &ts); err != nil {
			return nil, err
		}
		rep.Timestamp, _ = time.Parse(time.RFC3339, ts)
		reports = append(reports, rep)
	}
	return reports, rows.Err()
}
