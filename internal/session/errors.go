package session

import (
	"errors"
	"strings"
)

var (
	// ErrNotConnected indicates no live connection exists for the outlet.
	ErrNotConnected = errors.New("session not connected")
	// ErrConflict indicates the account was taken over by another client.
	// Never retried by the delivery pipeline.
	ErrConflict = errors.New("session conflict: logged in elsewhere")
	// ErrBlocked indicates automatic reconnection is suppressed for the
	// outlet, usually after a phone number mismatch.
	ErrBlocked = errors.New("session blocked")
	// ErrConnecting indicates a connection attempt is already in flight.
	// Transient: the attempt may finish any moment.
	ErrConnecting = errors.New("session connecting")
)

// transientMarkers match error text from the protocol client for failures
// worth retrying. The client does not export sentinels for these.
var transientMarkers = []string{
	"websocket not connected",
	"websocket disconnected",
	"timed out",
	"timeout",
	"connection closed",
	"connection reset",
	"server disconnect",
}

// IsTransient reports whether err is a temporary delivery failure that a
// retry may recover from. Conflicts are never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConflict) || errors.Is(err, ErrBlocked) {
		return false
	}
	if errors.Is(err, ErrNotConnected) || errors.Is(err, ErrConnecting) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
