package session

import "context"

// CloseReason classifies why a protocol connection dropped. The manager's
// reconnect policy branches on it: logged-out tears the session down for
// good, conflict backs off longer than an ordinary transient drop.
type CloseReason int

const (
	CloseTransient CloseReason = iota
	CloseConflict
	CloseLoggedOut
)

func (r CloseReason) String() string {
	switch r {
	case CloseConflict:
		return "conflict"
	case CloseLoggedOut:
		return "logged_out"
	default:
		return "transient"
	}
}

// EventSink receives lifecycle events from a live protocol connection.
// Implementations swallow their own errors; the protocol layer must never
// see a panic come back through these.
type EventSink interface {
	OnQR(outletID, code string)
	OnConnected(outletID string)
	OnClosed(outletID string, reason CloseReason)
}

// Conn is the slice of the protocol client that the connection manager and
// the delivery pipeline drive. The real implementation wraps a whatsmeow
// client; tests substitute fakes.
type Conn interface {
	Connect() error
	Disconnect()
	Logout(ctx context.Context) error
	IsConnected() bool
	IsLoggedIn() bool

	// ConnectedNumber returns the digits of the paired account's number, or
	// "" before the handshake completes.
	ConnectedNumber() string
	// DeviceName returns the human-readable device label learned from the
	// handshake, or "" before pairing.
	DeviceName() string

	SendText(ctx context.Context, number, text string) error
	SendImage(ctx context.Context, number string, data []byte, mimeType, caption string) error
	SendDocument(ctx context.Context, number string, data []byte, mimeType, fileName string) error
	IsRegistered(ctx context.Context, number string) (bool, error)
}

// Dialer opens a protocol connection backed by the outlet's persisted
// credentials. Dial returns once the transport is up; pairing progress and
// later lifecycle changes arrive through the sink.
type Dialer interface {
	Dial(ctx context.Context, outletID string, sink EventSink) (Conn, error)
}

// CredentialStore is the slice of the credential store the manager needs:
// whether persisted auth material exists for an outlet, and destroying it on
// session reset.
type CredentialStore interface {
	Exists(outletID string) bool
	Delete(outletID string) error
}
