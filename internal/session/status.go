package session

import (
	"time"

	"github.com/blastline/blastline/internal/storage/model"
)

// Status is the API-facing view of an outlet's session.
type Status struct {
	OutletID    string              `json:"outlet_id"`
	Status      model.SessionStatus `json:"status"`
	Connecting  bool                `json:"connecting"`
	Blocked     bool                `json:"blocked"`
	QRCode      *string             `json:"qr_code,omitempty"`
	PhoneNumber string              `json:"phone_number,omitempty"`
	JID         string              `json:"jid,omitempty"`
	DeviceInfo  string              `json:"device_info,omitempty"`
	ConnectedAt *time.Time          `json:"connected_at,omitempty"`
	LastSeen    *time.Time          `json:"last_seen,omitempty"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

func statusFrom(sess model.OutletSession, connecting, blocked bool) *Status {
	return &Status{
		OutletID:    sess.OutletID,
		Status:      sess.Status,
		Connecting:  connecting,
		Blocked:     blocked,
		QRCode:      sess.QRCode,
		PhoneNumber: sess.PhoneNumber,
		JID:         sess.JID,
		DeviceInfo:  sess.DeviceInfo,
		ConnectedAt: sess.ConnectedAt,
		LastSeen:    sess.LastSeen,
		UpdatedAt:   sess.UpdatedAt,
	}
}
