package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/blastline/blastline/internal/pkg/phone"
	"github.com/blastline/blastline/internal/storage"
	"github.com/blastline/blastline/internal/storage/model"
)

// Config tunes the manager's reconnect and pairing behaviour.
type Config struct {
	// ReconnectCooldown is the minimum gap between automatic reconnect
	// attempts after a transient drop.
	ReconnectCooldown time.Duration
	// ConflictCooldown replaces ReconnectCooldown after a takeover by
	// another client.
	ConflictCooldown time.Duration
	// MaxReconnectAttempts caps consecutive automatic reconnects. Explicit
	// user action resets the counter.
	MaxReconnectAttempts int
	// PhoneCheckTimeout bounds registration lookups against the network.
	PhoneCheckTimeout time.Duration
	// QRWaitTimeout bounds how long StartAndGetQR waits for a pairing code.
	QRWaitTimeout time.Duration
	// PollInterval is how often waiting loops re-check state. Kept short in
	// tests.
	PollInterval time.Duration
}

func (c *Config) defaults() {
	if c.ReconnectCooldown <= 0 {
		c.ReconnectCooldown = 30 * time.Second
	}
	if c.ConflictCooldown <= 0 {
		c.ConflictCooldown = 60 * time.Second
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 10
	}
	if c.PhoneCheckTimeout <= 0 {
		c.PhoneCheckTimeout = 12 * time.Second
	}
	if c.QRWaitTimeout <= 0 {
		c.QRWaitTimeout = 30 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 250 * time.Millisecond
	}
}

// Manager owns every outlet's protocol connection: it dials, pairs, watches
// for drops, reconciles persisted state against live state and decides when
// to reconnect. All mutation of in-memory connection state goes through its
// registry; persisted state lives in the session and outlet repositories.
type Manager struct {
	log      *zap.Logger
	cfg      Config
	dialer   Dialer
	creds    CredentialStore
	outlets  storage.OutletRepository
	sessions storage.SessionRepository
	reg      *registry
}

func NewManager(log *zap.Logger, cfg Config, dialer Dialer, creds CredentialStore, outlets storage.OutletRepository, sessions storage.SessionRepository) *Manager {
	cfg.defaults()
	return &Manager{
		log:      log,
		cfg:      cfg,
		dialer:   dialer,
		creds:    creds,
		outlets:  outlets,
		sessions: sessions,
		reg:      newRegistry(),
	}
}

// EnsureConnection returns the outlet's live connection, dialing one if
// needed. Concurrent callers share a single in-flight attempt. An explicit
// call clears any mismatch block; the caller is asking for a fresh chance.
func (m *Manager) EnsureConnection(ctx context.Context, outletID string) (Conn, error) {
	if c := m.reg.Live(outletID); c != nil && c.IsConnected() {
		return c, nil
	}
	m.reg.ClearBlock(outletID)

	att, owner := m.reg.Begin(outletID)
	if !owner {
		if att == nil {
			// Lost the race to a finished dial.
			if c := m.reg.Live(outletID); c != nil {
				return c, nil
			}
			return nil, ErrNotConnected
		}
		select {
		case <-att.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if att.err != nil {
			return nil, att.err
		}
		if c := m.reg.Live(outletID); c != nil {
			return c, nil
		}
		return nil, ErrNotConnected
	}

	conn, err := m.dial(ctx, outletID)
	m.reg.Finish(outletID, conn, err)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (m *Manager) dial(ctx context.Context, outletID string) (Conn, error) {
	m.log.Info("dialing session", zap.String("outlet_id", outletID))
	m.persistStatus(ctx, outletID, model.SessionStatusConnecting, nil, "")

	conn, err := m.dialer.Dial(ctx, outletID, m)
	if err != nil {
		m.persistStatus(ctx, outletID, model.SessionStatusError, nil, errInfo(err))
		return nil, fmt.Errorf("dial outlet %s: %w", outletID, err)
	}
	if err := conn.Connect(); err != nil {
		conn.Disconnect()
		m.persistStatus(ctx, outletID, model.SessionStatusError, nil, errInfo(err))
		return nil, fmt.Errorf("connect outlet %s: %w", outletID, err)
	}
	return conn, nil
}

// LiveConn returns the outlet's live, usable connection or an error the
// delivery pipeline can classify.
func (m *Manager) LiveConn(outletID string) (Conn, error) {
	c := m.reg.Live(outletID)
	if c != nil && c.IsConnected() {
		return c, nil
	}
	if m.reg.Blocked(outletID) {
		return nil, ErrBlocked
	}
	if m.reg.Connecting(outletID) {
		return nil, ErrConnecting
	}
	return nil, ErrNotConnected
}

// OnQR implements EventSink. Pairing codes are kept in memory and mirrored
// into the persisted session row so the API can serve them.
func (m *Manager) OnQR(outletID, code string) {
	m.reg.SetQR(outletID, code)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess := m.loadOrNewSession(ctx, outletID)
	sess.Status = model.SessionStatusConnecting
	sess.QRCode = &code
	sess.UpdatedAt = time.Now()
	if err := m.sessions.Upsert(ctx, sess); err != nil {
		m.log.Warn("failed to persist qr code", zap.String("outlet_id", outletID), zap.Error(err))
	}
}

// OnConnected implements EventSink. The handshake just finished: verify the
// paired number against the outlet's registered number before marking the
// session usable. A mismatch logs the foreign account out and blocks
// automatic reconnection so we never blast from the wrong number.
func (m *Manager) OnConnected(outletID string) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.PhoneCheckTimeout)
	defer cancel()

	conn := m.reg.Live(outletID)
	if conn == nil {
		// Connected event raced the dial finishing; the handle is still
		// parked in the attempt. Give it a beat.
		deadline := time.Now().Add(2 * time.Second)
		for conn == nil && time.Now().Before(deadline) {
			time.Sleep(m.cfg.PollInterval)
			conn = m.reg.Live(outletID)
		}
		if conn == nil {
			m.log.Warn("connected event without live handle", zap.String("outlet_id", outletID))
			return
		}
	}

	got := phone.Digits(conn.ConnectedNumber())
	outlet, err := m.outlets.GetByID(ctx, outletID)
	if err != nil {
		m.log.Error("failed to load outlet after connect", zap.String("outlet_id", outletID), zap.Error(err))
		return
	}
	want := phone.Digits(outlet.RegisteredNumber)

	if want == "" && got != "" {
		// First pairing for this outlet: adopt the connected number.
		outlet.RegisteredNumber = got
		if outlet, err = m.outlets.Update(ctx, outlet); err != nil {
			m.log.Warn("failed to adopt connected number", zap.String("outlet_id", outletID), zap.Error(err))
		}
		want = got
	}

	if want != "" && got != "" && phone.Normalize(want) != phone.Normalize(got) {
		m.handleMismatch(ctx, outletID, conn, want, got)
		return
	}

	m.reg.SetQR(outletID, "")
	now := time.Now()
	sess := m.loadOrNewSession(ctx, outletID)
	sess.Status = model.SessionStatusConnected
	sess.QRCode = nil
	sess.ConnectedAt = &now
	sess.LastSeen = &now
	sess.PhoneNumber = got
	sess.SessionName = conn.DeviceName()
	sess.RetryCount = 0
	sess.DeviceInfo = deviceInfo(map[string]string{
		"device": conn.DeviceName(),
		"number": got,
	})
	sess.UpdatedAt = now
	if err := m.sessions.Upsert(ctx, sess); err != nil {
		m.log.Warn("failed to persist connected status", zap.String("outlet_id", outletID), zap.Error(err))
	}
	if err := m.outlets.SetActive(ctx, outletID, true); err != nil {
		m.log.Warn("failed to activate outlet", zap.String("outlet_id", outletID), zap.Error(err))
	}
	m.log.Info("session connected",
		zap.String("outlet_id", outletID),
		zap.String("number", got))
}

func (m *Manager) handleMismatch(ctx context.Context, outletID string, conn Conn, want, got string) {
	m.log.Warn("phone number mismatch, logging session out",
		zap.String("outlet_id", outletID),
		zap.String("registered", want),
		zap.String("connected", got))

	// Block first so the close handler triggered by the logout below does
	// not wipe credentials or schedule a reconnect.
	m.reg.Block(outletID)

	sess := m.loadOrNewSession(ctx, outletID)
	sess.Status = model.SessionStatusDisconnected
	sess.QRCode = nil
	sess.DeviceInfo = deviceInfo(map[string]string{
		"error":      "Phone number mismatch",
		"registered": want,
		"connected":  got,
	})
	sess.UpdatedAt = time.Now()
	if err := m.sessions.Upsert(ctx, sess); err != nil {
		m.log.Warn("failed to persist mismatch status", zap.String("outlet_id", outletID), zap.Error(err))
	}
	if err := m.outlets.SetActive(ctx, outletID, false); err != nil {
		m.log.Warn("failed to deactivate outlet", zap.String("outlet_id", outletID), zap.Error(err))
	}

	if err := conn.Logout(ctx); err != nil {
		m.log.Warn("logout after mismatch failed", zap.String("outlet_id", outletID), zap.Error(err))
	}
	conn.Disconnect()
	m.reg.DropConn(outletID)
}

// OnClosed implements EventSink. Ordering matters: the mismatch block is
// honoured before the logged-out branch so a forced logout after a mismatch
// does not destroy the outlet's credentials.
func (m *Manager) OnClosed(outletID string, reason CloseReason) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	m.reg.DropConn(outletID)
	m.persistStatus(ctx, outletID, model.SessionStatusDisconnected, nil, "")
	if err := m.outlets.SetActive(ctx, outletID, false); err != nil {
		m.log.Warn("failed to deactivate outlet", zap.String("outlet_id", outletID), zap.Error(err))
	}

	m.log.Info("session closed",
		zap.String("outlet_id", outletID),
		zap.String("reason", reason.String()))

	if m.reg.Blocked(outletID) {
		return
	}

	if reason == CloseLoggedOut {
		// Remote side revoked the session: credentials are dead weight and
		// the row goes back to a blank slate.
		m.reg.Purge(outletID)
		if err := m.creds.Delete(outletID); err != nil {
			m.log.Warn("failed to delete credentials", zap.String("outlet_id", outletID), zap.Error(err))
		}
		sess := m.loadOrNewSession(ctx, outletID)
		sess.Status = model.SessionStatusDisconnected
		sess.QRCode = nil
		sess.ConnectedAt = nil
		sess.JID = ""
		sess.PhoneNumber = ""
		sess.SessionName = ""
		sess.DeviceInfo = ""
		sess.RetryCount = 0
		sess.AutoReconnect = false
		sess.UpdatedAt = time.Now()
		if err := m.sessions.Upsert(ctx, sess); err != nil {
			m.log.Warn("failed to clear session row after logout", zap.String("outlet_id", outletID), zap.Error(err))
		}
		return
	}

	sess, err := m.sessions.Get(ctx, outletID)
	if err != nil || !sess.AutoReconnect {
		return
	}

	retries := m.reg.BumpRetries(outletID)
	if retries > m.cfg.MaxReconnectAttempts {
		m.log.Warn("reconnect attempts exhausted", zap.String("outlet_id", outletID), zap.Int("attempts", retries))
		return
	}

	cooldown := m.cfg.ReconnectCooldown
	if reason == CloseConflict {
		cooldown = m.cfg.ConflictCooldown
	}
	if since := time.Since(m.reg.LastAttempt(outletID)); since < cooldown {
		cooldown -= since
	}

	time.AfterFunc(cooldown, func() {
		if m.reg.Blocked(outletID) || m.reg.Live(outletID) != nil {
			return
		}
		rctx, rcancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer rcancel()
		if _, err := m.EnsureConnection(rctx, outletID); err != nil {
			m.log.Warn("automatic reconnect failed",
				zap.String("outlet_id", outletID),
				zap.Int("attempt", retries),
				zap.Error(err))
		}
	})
}

// ResetSession tears the outlet's session down completely: live handle,
// in-memory state, persisted credentials and status. The next connect starts
// from a blank pairing.
func (m *Manager) ResetSession(ctx context.Context, outletID string) error {
	if conn := m.reg.Purge(outletID); conn != nil {
		lctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := conn.Logout(lctx); err != nil {
			m.log.Warn("logout during reset failed", zap.String("outlet_id", outletID), zap.Error(err))
		}
		cancel()
		conn.Disconnect()
	}
	if err := m.creds.Delete(outletID); err != nil {
		return fmt.Errorf("delete credentials for outlet %s: %w", outletID, err)
	}

	sess := m.loadOrNewSession(ctx, outletID)
	sess.Status = model.SessionStatusDisconnected
	sess.QRCode = nil
	sess.ConnectedAt = nil
	sess.JID = ""
	sess.PhoneNumber = ""
	sess.SessionName = ""
	sess.DeviceInfo = ""
	sess.RetryCount = 0
	sess.UpdatedAt = time.Now()
	if err := m.sessions.Upsert(ctx, sess); err != nil {
		return fmt.Errorf("persist reset status: %w", err)
	}
	if err := m.outlets.SetActive(ctx, outletID, false); err != nil {
		m.log.Warn("failed to deactivate outlet", zap.String("outlet_id", outletID), zap.Error(err))
	}
	m.log.Info("session reset", zap.String("outlet_id", outletID))
	return nil
}

// DisconnectSession stops the outlet's session and suppresses automatic
// reconnection, but keeps credentials so a later connect skips pairing.
func (m *Manager) DisconnectSession(ctx context.Context, outletID string) error {
	m.reg.Block(outletID)
	if conn := m.reg.DropConn(outletID); conn != nil {
		conn.Disconnect()
	}
	sess := m.loadOrNewSession(ctx, outletID)
	sess.Status = model.SessionStatusDisconnected
	sess.QRCode = nil
	sess.AutoReconnect = false
	sess.UpdatedAt = time.Now()
	if err := m.sessions.Upsert(ctx, sess); err != nil {
		return fmt.Errorf("persist disconnect status: %w", err)
	}
	if err := m.outlets.SetActive(ctx, outletID, false); err != nil {
		m.log.Warn("failed to deactivate outlet", zap.String("outlet_id", outletID), zap.Error(err))
	}
	m.log.Info("session disconnected", zap.String("outlet_id", outletID))
	return nil
}

// VerifyLiveConnection checks that the outlet's handle is genuinely usable.
// A stale handle is dropped and a reconnect is attempted before giving up.
func (m *Manager) VerifyLiveConnection(ctx context.Context, outletID string) bool {
	conn := m.reg.Live(outletID)
	if conn != nil && conn.IsConnected() && conn.IsLoggedIn() {
		return true
	}
	if conn != nil {
		conn.Disconnect()
		m.reg.DropConn(outletID)
	}
	if !m.creds.Exists(outletID) {
		return false
	}
	c, err := m.EnsureConnection(ctx, outletID)
	if err != nil {
		return false
	}
	return c.IsConnected() && c.IsLoggedIn()
}

// StartAndGetQR kicks the outlet's session and waits for either a pairing
// code or a completed login. Returns the code, a flag for already-connected,
// or an error when neither arrives in time.
func (m *Manager) StartAndGetQR(ctx context.Context, outletID string) (code string, connected bool, err error) {
	if c := m.reg.Live(outletID); c != nil && c.IsConnected() && c.IsLoggedIn() {
		return "", true, nil
	}

	go func() {
		dctx, cancel := context.WithTimeout(context.Background(), m.cfg.QRWaitTimeout)
		defer cancel()
		if _, err := m.EnsureConnection(dctx, outletID); err != nil {
			m.log.Warn("connection for pairing failed", zap.String("outlet_id", outletID), zap.Error(err))
		}
	}()

	deadline := time.NewTimer(m.cfg.QRWaitTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(m.cfg.PollInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", false, ctx.Err()
		case <-deadline.C:
			return "", false, fmt.Errorf("timed out waiting for pairing code")
		case <-tick.C:
			if c := m.reg.Live(outletID); c != nil && c.IsLoggedIn() {
				return "", true, nil
			}
			if qr := m.reg.QR(outletID); qr != "" {
				return qr, false, nil
			}
		}
	}
}

// GetStatus returns the outlet's session status. With live set it first
// reconciles the persisted row against the actual connection, in both
// directions: a dead row under a live handle and a live row over a dead
// handle are each rewritten.
func (m *Manager) GetStatus(ctx context.Context, outletID string, live bool) (*Status, error) {
	sess := m.loadOrNewSession(ctx, outletID)

	if live {
		alive := m.VerifyLiveConnection(ctx, outletID)
		conn := m.reg.Live(outletID)
		switch {
		case alive && sess.Status != model.SessionStatusConnected:
			now := time.Now()
			sess.Status = model.SessionStatusConnected
			sess.QRCode = nil
			sess.LastSeen = &now
			if sess.ConnectedAt == nil {
				sess.ConnectedAt = &now
			}
			if conn != nil {
				sess.PhoneNumber = phone.Digits(conn.ConnectedNumber())
				sess.DeviceInfo = deviceInfo(map[string]string{
					"device": conn.DeviceName(),
					"number": sess.PhoneNumber,
				})
			}
			sess.UpdatedAt = now
			if err := m.sessions.Upsert(ctx, sess); err != nil {
				m.log.Warn("failed to reconcile status up", zap.String("outlet_id", outletID), zap.Error(err))
			}
			if err := m.outlets.SetActive(ctx, outletID, true); err != nil {
				m.log.Warn("failed to activate outlet", zap.String("outlet_id", outletID), zap.Error(err))
			}
		case !alive && sess.Status == model.SessionStatusConnected && !m.reg.Connecting(outletID):
			sess.Status = model.SessionStatusDisconnected
			sess.QRCode = nil
			sess.UpdatedAt = time.Now()
			if err := m.sessions.Upsert(ctx, sess); err != nil {
				m.log.Warn("failed to reconcile status down", zap.String("outlet_id", outletID), zap.Error(err))
			}
			if err := m.outlets.SetActive(ctx, outletID, false); err != nil {
				m.log.Warn("failed to deactivate outlet", zap.String("outlet_id", outletID), zap.Error(err))
			}
		case alive:
			now := time.Now()
			sess.LastSeen = &now
			sess.UpdatedAt = now
			if err := m.sessions.Upsert(ctx, sess); err != nil {
				m.log.Warn("failed to persist last seen", zap.String("outlet_id", outletID), zap.Error(err))
			}
		}
	}

	return statusFrom(sess, m.reg.Connecting(outletID), m.reg.Blocked(outletID)), nil
}

// ForceRefreshStatus is the heavy manual sync: verify liveness with a few
// short retries (sockets may still be mid-handshake), then rewrite the
// persisted row. When the session is not live it falls back to on-disk
// credentials plus the auto-reconnect flag to decide what to report.
func (m *Manager) ForceRefreshStatus(ctx context.Context, outletID string) (*Status, error) {
	alive := false
	for i := 0; i < 3; i++ {
		if m.VerifyLiveConnection(ctx, outletID) {
			alive = true
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.cfg.PollInterval):
		}
	}

	sess := m.loadOrNewSession(ctx, outletID)
	now := time.Now()

	conn := m.reg.Live(outletID)
	if alive && conn != nil {
		sess.Status = model.SessionStatusConnected
		sess.QRCode = nil
		sess.LastSeen = &now
		if sess.ConnectedAt == nil {
			sess.ConnectedAt = &now
		}
		sess.PhoneNumber = phone.Digits(conn.ConnectedNumber())
		sess.DeviceInfo = deviceInfo(map[string]string{
			"device": conn.DeviceName(),
			"number": sess.PhoneNumber,
		})
	} else {
		if conn != nil {
			conn.Disconnect()
			m.reg.DropConn(outletID)
		}
		switch {
		case m.reg.QR(outletID) != "":
			// Pairing is underway; the row keeps its QR payload.
			sess.Status = model.SessionStatusConnecting
		case m.creds.Exists(outletID) && sess.AutoReconnect && !m.reg.Blocked(outletID):
			sess.Status = model.SessionStatusConnecting
			go func() {
				bctx, cancel := context.WithTimeout(context.Background(), m.cfg.QRWaitTimeout)
				defer cancel()
				if _, err := m.EnsureConnection(bctx, outletID); err != nil {
					m.log.Warn("background reconnect during refresh failed",
						zap.String("outlet_id", outletID), zap.Error(err))
				}
			}()
		default:
			sess.Status = model.SessionStatusDisconnected
			sess.QRCode = nil
			if err := m.outlets.SetActive(ctx, outletID, false); err != nil {
				m.log.Warn("failed to deactivate outlet", zap.String("outlet_id", outletID), zap.Error(err))
			}
		}
	}
	sess.UpdatedAt = now
	if err := m.sessions.Upsert(ctx, sess); err != nil {
		return nil, fmt.Errorf("persist refreshed status: %w", err)
	}
	return statusFrom(sess, m.reg.Connecting(outletID), m.reg.Blocked(outletID)), nil
}

// PhoneCheck is the outcome of a number lookup. Verified reports whether
// the network was actually consulted; without a live session the format
// check has to stand on its own.
type PhoneCheck struct {
	Valid      bool `json:"valid"`
	Registered bool `json:"registered"`
	Verified   bool `json:"verified"`
}

// CheckPhoneNumber validates number format and, when a live connection
// exists, asks the network whether the number is registered. A missing
// connection or a failed lookup degrades to format-only; only a malformed
// number errors.
func (m *Manager) CheckPhoneNumber(ctx context.Context, outletID, number string) (PhoneCheck, error) {
	if !phone.IsValidFormat(number) {
		return PhoneCheck{}, fmt.Errorf("invalid phone number format: %s", number)
	}
	res := PhoneCheck{Valid: true}
	conn, err := m.LiveConn(outletID)
	if err != nil {
		return res, nil
	}
	cctx, cancel := context.WithTimeout(ctx, m.cfg.PhoneCheckTimeout)
	defer cancel()
	registered, err := conn.IsRegistered(cctx, phone.Normalize(number))
	if err != nil {
		m.log.Warn("number lookup failed, reporting format check only",
			zap.String("outlet_id", outletID), zap.Error(err))
		return res, nil
	}
	res.Registered = registered
	res.Verified = true
	return res, nil
}

// RestoreAll reconnects every outlet that has credentials on disk and auto
// reconnect enabled. Called once at boot.
func (m *Manager) RestoreAll(ctx context.Context) {
	outlets, err := m.outlets.List(ctx)
	if err != nil {
		m.log.Error("failed to list outlets for restore", zap.Error(err))
		return
	}
	for _, o := range outlets {
		if !m.creds.Exists(o.ID) {
			continue
		}
		sess, err := m.sessions.Get(ctx, o.ID)
		if err == nil && !sess.AutoReconnect {
			continue
		}
		id := o.ID
		go func() {
			rctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()
			if _, err := m.EnsureConnection(rctx, id); err != nil {
				m.log.Warn("restore failed", zap.String("outlet_id", id), zap.Error(err))
			}
		}()
	}
}

// Shutdown disconnects every live session without logging out.
func (m *Manager) Shutdown() {
	for _, id := range m.reg.OutletIDs() {
		if conn := m.reg.DropConn(id); conn != nil {
			conn.Disconnect()
		}
	}
}

func (m *Manager) loadOrNewSession(ctx context.Context, outletID string) model.OutletSession {
	sess, err := m.sessions.Get(ctx, outletID)
	if err != nil {
		sess = model.OutletSession{
			OutletID:      outletID,
			Status:        model.SessionStatusDisconnected,
			AutoReconnect: true,
		}
	}
	return sess
}

func (m *Manager) persistStatus(ctx context.Context, outletID string, status model.SessionStatus, qr *string, info string) {
	sess := m.loadOrNewSession(ctx, outletID)
	sess.Status = status
	sess.QRCode = qr
	if info != "" {
		sess.DeviceInfo = info
	}
	sess.UpdatedAt = time.Now()
	if err := m.sessions.Upsert(ctx, sess); err != nil {
		m.log.Warn("failed to persist session status",
			zap.String("outlet_id", outletID),
			zap.String("status", string(status)),
			zap.Error(err))
	}
}

func deviceInfo(fields map[string]string) string {
	b, err := json.Marshal(fields)
	if err != nil {
		return ""
	}
	return string(b)
}

func errInfo(err error) string {
	return deviceInfo(map[string]string{"error": err.Error()})
}
