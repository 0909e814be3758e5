package sqlite

import (
	"context"
	"database/sql"
	"time"

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
		WHERE outlet_id = ?
	`
	var sess model.OutletSession
	var connectedAt, lastSeen sql.NullString
	var updatedAt string
	err := r.db.Conn.QueryRowContext(ctx, query, outletID).Scan(
		&sess.OutletID, &sess.Status, &sess.QRCode, &connectedAt, &lastSeen,
		&sess.SessionName, &sess.DeviceInfo, &sess.AutoReconnect,
		&sess.RetryCount, &sess.PhoneNumber, &sess.JID, &updatedAt,
	)
	if err != nil {
		return model.OutletSession{}, mapError(err)
	}
	if connectedAt.Valid {
		sess.ConnectedAt = parseTimePtr(connectedAt.String)
	}
	if lastSeen.Valid {
		sess.LastSeen = parseTimePtr(lastSeen.String)
	}
	sess.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(outlet_id) DO UPDATE SET
			status = excluded.status,
			qr_code = excluded.qr_code,
			connected_at = excluded.connected_at,
			last_seen = excluded.last_seen,
			session_name = excluded.session_name,
			device_info = excluded.device_info,
			auto_reconnect = excluded.auto_reconnect,
			retry_count = excluded.retry_count,
			phone_number = excluded.phone_number,
			jid = excluded.jid,
			updated_at = excluded.updated_at
	`
	_, err := r.db.Conn.ExecContext(ctx, query,
		sess.OutletID, string(sess.Status), sess.QRCode,
		formatTimePtr(sess.ConnectedAt), formatTimePtr(sess.LastSeen),
		nullIfEmpty(sess.SessionName), nullIfEmpty(sess.DeviceInfo), sess.AutoReconnect, sess.RetryCount,
		nullIfEmpty(sess.PhoneNumber), nullIfEmpty(sess.JID), sess.UpdatedAt.Format(time.RFC3339),
	)
	return err
}
