package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/blastline/blastline/internal/storage/model"
)

type sessionRepo struct {
	db *DB
}

func NewSessionRepository(db *DB) *sessionRepo {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) Get(ctx context.Context, outletID string) (model.OutletSession, error) {
	query := `
		SELECT outlet_id, status, qr_code, connected_at, last_seen,
		       COALESCE(session_name, ''), COALESCE(device_info, ''), auto_reconnect,
		       retry_count, COALESCE(phone_number, ''), COALESCE(jid, ''), updated_at
		FROM outlet_sessions
		WHERE outlet_id = $1
	`
	var sess model.OutletSession
	err := r.db.Pool.QueryRow(ctx, query, outletID).Scan(
		&sess.OutletID, &sess.Status, &sess.QRCode, &sess.ConnectedAt, &sess.LastSeen,
		&sess.SessionName, &sess.DeviceInfo, &sess.AutoReconnect,
		&sess.RetryCount, &sess.PhoneNumber, &sess.JID, &sess.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return model.OutletSession{}, ErrNotFound
	}
	if err != nil {
		return model.OutletSession{}, err
	}
	return sess, nil
}

func (r *sessionRepo) Upsert(ctx context.Context, sess model.OutletSession) error {
	if sess.UpdatedAt.IsZero() {
		sess.UpdatedAt = time.Now()
	}
	query := `
		INSERT INTO outlet_sessions (outlet_id, status, qr_code, connected_at, last_seen,
		                             session_name, device_info, auto_reconnect, retry_count,
		                             phone_number, jid, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (outlet_id) DO UPDATE SET
			status = EXCLUDED.status,
			qr_code = EXCLUDED.qr_code,
			connected_at = EXCLUDED.connected_at,
			last_seen = EXCLUDED.last_seen,
			session_name = EXCLUDED.session_name,
			device_info = EXCLUDED.device_info,
			auto_reconnect = EXCLUDED.auto_reconnect,
			retry_count = EXCLUDED.retry_count,
			phone_number = EXCLUDED.phone_number,
			jid = EXCLUDED.jid,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.Pool.Exec(ctx, query,
		sess.OutletID, string(sess.Status), sess.QRCode, sess.ConnectedAt, sess.LastSeen,
		nullIfEmpty(sess.SessionName), nullIfEmpty(sess.DeviceInfo), sess.AutoReconnect, sess.RetryCount,
		nullIfEmpty(sess.PhoneNumber), nullIfEmpty(sess.JID), sess.UpdatedAt,
	)
	return err
}
