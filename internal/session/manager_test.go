package session

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/blastline/blastline/internal/storage"
	"github.com/blastline/blastline/internal/storage/model"
)

type fakeConn struct {
	mu        sync.Mutex
	connected bool
	loggedIn  bool
	number    string
	device    string
	loggedOut bool
	regErr    error
}

func (f *fakeConn) Connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *fakeConn) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

func (f *fakeConn) Logout(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loggedOut = true
	f.loggedIn = false
	return nil
}

func (f *fakeConn) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeConn) IsLoggedIn() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loggedIn
}

func (f *fakeConn) ConnectedNumber() string { return f.number }
func (f *fakeConn) DeviceName() string      { return f.device }

func (f *fakeConn) SendText(context.Context, string, string) error { return nil }
func (f *fakeConn) SendImage(context.Context, string, []byte, string, string) error {
	return nil
}
func (f *fakeConn) SendDocument(context.Context, string, []byte, string, string) error {
	return nil
}
func (f *fakeConn) IsRegistered(context.Context, string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.regErr != nil {
		return false, f.regErr
	}
	return true, nil
}

func (f *fakeConn) wasLoggedOut() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loggedOut
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	delay time.Duration
	next  func() *fakeConn
}

func (d *fakeDialer) Dial(_ context.Context, _ string, _ EventSink) (Conn, error) {
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	var c *fakeConn
	if d.next != nil {
		c = d.next()
	} else {
		c = &fakeConn{loggedIn: true, number: "628123456789", device: "test device"}
	}
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

type fakeOutletRepo struct {
	mu      sync.Mutex
	outlets map[string]model.Outlet
}

func newFakeOutletRepo(outlets ...model.Outlet) *fakeOutletRepo {
	r := &fakeOutletRepo{outlets: make(map[string]model.Outlet)}
	for _, o := range outlets {
		r.outlets[o.ID] = o
	}
	return r
}

func (r *fakeOutletRepo) Create(_ context.Context, o model.Outlet) (model.Outlet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outlets[o.ID] = o
	return o, nil
}

func (r *fakeOutletRepo) GetByID(_ context.Context, id string) (model.Outlet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.outlets[id]
	if !ok {
		return model.Outlet{}, storage.ErrNotFound
	}
	return o, nil
}

func (r *fakeOutletRepo) List(context.Context) ([]model.Outlet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Outlet, 0, len(r.outlets))
	for _, o := range r.outlets {
		out = append(out, o)
	}
	return out, nil
}

func (r *fakeOutletRepo) Update(_ context.Context, o model.Outlet) (model.Outlet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outlets[o.ID] = o
	return o, nil
}

func (r *fakeOutletRepo) SetActive(_ context.Context, id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.outlets[id]
	if !ok {
		return storage.ErrNotFound
	}
	o.IsActive = active
	r.outlets[id] = o
	return nil
}

func (r *fakeOutletRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.outlets, id)
	return nil
}

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]model.OutletSession
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[string]model.OutletSession)}
}

func (r *fakeSessionRepo) Get(_ context.Context, outletID string) (model.OutletSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[outletID]
	if !ok {
		return model.OutletSession{}, storage.ErrNotFound
	}
	return s, nil
}

func (r *fakeSessionRepo) Upsert(_ context.Context, s model.OutletSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.OutletID] = s
	return nil
}

type fakeCredStore struct {
	mu      sync.Mutex
	present map[string]bool
}

func newFakeCredStore(ids ...string) *fakeCredStore {
	s := &fakeCredStore{present: make(map[string]bool)}
	for _, id := range ids {
		s.present[id] = true
	}
	return s
}

func (s *fakeCredStore) Exists(outletID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.present[outletID]
}

func (s *fakeCredStore) Delete(outletID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.present, outletID)
	return nil
}

func testConfig() Config {
	return Config{
		ReconnectCooldown:    10 * time.Millisecond,
		ConflictCooldown:     20 * time.Millisecond,
		MaxReconnectAttempts: 3,
		PhoneCheckTimeout:    time.Second,
		QRWaitTimeout:        2 * time.Second,
		PollInterval:         5 * time.Millisecond,
	}
}

func newTestManager(t *testing.T, dialer Dialer, outlets *fakeOutletRepo, sessions *fakeSessionRepo, creds *fakeCredStore) *Manager {
	t.Helper()
	return NewManager(zap.NewNop(), testConfig(), dialer, creds, outlets, sessions)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}

func TestEnsureConnectionSingleFlight(t *testing.T) {
	dialer := &fakeDialer{delay: 50 * time.Millisecond}
	outlets := newFakeOutletRepo(model.Outlet{ID: "o1", RegisteredNumber: "628123456789"})
	m := newTestManager(t, dialer, outlets, newFakeSessionRepo(), newFakeCredStore())

	const callers = 10
	conns := make([]Conn, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conns[i], errs[i] = m.EnsureConnection(context.Background(), "o1")
		}(i)
	}
	wg.Wait()

	if got := dialer.dials(); got != 1 {
		t.Fatalf("expected exactly one dial, got %d", got)
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: unexpected error: %v", i, errs[i])
		}
		if conns[i] != conns[0] {
			t.Errorf("caller %d got a different connection handle", i)
		}
	}
}

func TestEnsureConnectionReusesLiveHandle(t *testing.T) {
	dialer := &fakeDialer{}
	outlets := newFakeOutletRepo(model.Outlet{ID: "o1", RegisteredNumber: "628123456789"})
	m := newTestManager(t, dialer, outlets, newFakeSessionRepo(), newFakeCredStore())

	first, err := m.EnsureConnection(context.Background(), "o1")
	if err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	second, err := m.EnsureConnection(context.Background(), "o1")
	if err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if first != second {
		t.Error("expected the live handle to be reused")
	}
	if got := dialer.dials(); got != 1 {
		t.Errorf("expected one dial, got %d", got)
	}
}

func TestPhoneMismatchBlocksAndLogsOut(t *testing.T) {
	conn := &fakeConn{loggedIn: true, number: "628999999123", device: "intruder"}
	dialer := &fakeDialer{next: func() *fakeConn { return conn }}
	outlets := newFakeOutletRepo(model.Outlet{ID: "o1", RegisteredNumber: "628123456789", IsActive: true})
	sessions := newFakeSessionRepo()
	creds := newFakeCredStore("o1")
	m := newTestManager(t, dialer, outlets, sessions, creds)

	if _, err := m.EnsureConnection(context.Background(), "o1"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	m.OnConnected("o1")

	if !conn.wasLoggedOut() {
		t.Error("expected the mismatched session to be logged out")
	}
	if !m.reg.Blocked("o1") {
		t.Error("expected automatic reconnection to be blocked")
	}
	if c := m.reg.Live("o1"); c != nil {
		t.Error("expected the live handle to be dropped")
	}
	sess, err := sessions.Get(context.Background(), "o1")
	if err != nil {
		t.Fatalf("session row missing: %v", err)
	}
	if sess.Status != model.SessionStatusDisconnected {
		t.Errorf("status = %q, want %q", sess.Status, model.SessionStatusDisconnected)
	}
	if !strings.Contains(sess.DeviceInfo, "Phone number mismatch") {
		t.Errorf("device info %q does not record the mismatch", sess.DeviceInfo)
	}
	o, _ := outlets.GetByID(context.Background(), "o1")
	if o.IsActive {
		t.Error("expected the outlet to be deactivated")
	}

	// The logout above surfaces as a logged-out close. The block must win:
	// credentials survive so the rightful owner can reconnect later.
	m.OnClosed("o1", CloseLoggedOut)
	if !creds.Exists("o1") {
		t.Error("mismatch close must not destroy credentials")
	}
}

func TestAdoptsNumberOnFirstPairing(t *testing.T) {
	conn := &fakeConn{loggedIn: true, number: "628555000111", device: "fresh phone"}
	dialer := &fakeDialer{next: func() *fakeConn { return conn }}
	outlets := newFakeOutletRepo(model.Outlet{ID: "o1"})
	sessions := newFakeSessionRepo()
	m := newTestManager(t, dialer, outlets, sessions, newFakeCredStore())

	if _, err := m.EnsureConnection(context.Background(), "o1"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	m.OnConnected("o1")

	o, _ := outlets.GetByID(context.Background(), "o1")
	if o.RegisteredNumber != "628555000111" {
		t.Errorf("registered number = %q, want adopted %q", o.RegisteredNumber, "628555000111")
	}
	if m.reg.Blocked("o1") {
		t.Error("first pairing must not block the session")
	}
	sess, _ := sessions.Get(context.Background(), "o1")
	if sess.Status != model.SessionStatusConnected {
		t.Errorf("status = %q, want %q", sess.Status, model.SessionStatusConnected)
	}
	if sess.SessionName != "fresh phone" {
		t.Errorf("session name = %q, want the device label", sess.SessionName)
	}
	if !o.IsActive {
		t.Error("expected the outlet to be activated")
	}
}

func TestLoggedOutCloseDestroysCredentials(t *testing.T) {
	dialer := &fakeDialer{}
	outlets := newFakeOutletRepo(model.Outlet{ID: "o1", RegisteredNumber: "628123456789"})
	sessions := newFakeSessionRepo()
	creds := newFakeCredStore("o1")
	m := newTestManager(t, dialer, outlets, sessions, creds)

	if _, err := m.EnsureConnection(context.Background(), "o1"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	m.OnClosed("o1", CloseLoggedOut)

	if creds.Exists("o1") {
		t.Error("expected credentials to be deleted after remote logout")
	}
	sess, _ := sessions.Get(context.Background(), "o1")
	if sess.Status != model.SessionStatusDisconnected {
		t.Errorf("status = %q, want %q", sess.Status, model.SessionStatusDisconnected)
	}
	if sess.QRCode != nil {
		t.Error("expected QR code to be cleared after remote logout")
	}
	if sess.AutoReconnect {
		t.Error("expected auto reconnect disabled after remote logout")
	}
	if sess.RetryCount != 0 {
		t.Errorf("retry count = %d, want 0", sess.RetryCount)
	}
	if sess.SessionName != "" || sess.PhoneNumber != "" {
		t.Error("expected identity fields cleared after remote logout")
	}
}

func TestTransientCloseReconnectsAfterCooldown(t *testing.T) {
	dialer := &fakeDialer{}
	outlets := newFakeOutletRepo(model.Outlet{ID: "o1", RegisteredNumber: "628123456789"})
	sessions := newFakeSessionRepo()
	m := newTestManager(t, dialer, outlets, sessions, newFakeCredStore("o1"))

	if _, err := m.EnsureConnection(context.Background(), "o1"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	m.OnClosed("o1", CloseTransient)

	if !waitFor(t, time.Second, func() bool { return dialer.dials() >= 2 }) {
		t.Fatal("expected an automatic reconnect after a transient close")
	}
}

func TestDisconnectSuppressesReconnect(t *testing.T) {
	dialer := &fakeDialer{}
	outlets := newFakeOutletRepo(model.Outlet{ID: "o1", RegisteredNumber: "628123456789"})
	sessions := newFakeSessionRepo()
	m := newTestManager(t, dialer, outlets, sessions, newFakeCredStore("o1"))

	if _, err := m.EnsureConnection(context.Background(), "o1"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if err := m.DisconnectSession(context.Background(), "o1"); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	m.OnClosed("o1", CloseTransient)

	time.Sleep(60 * time.Millisecond)
	if got := dialer.dials(); got != 1 {
		t.Errorf("expected no reconnect after explicit disconnect, dials = %d", got)
	}
	sess, _ := sessions.Get(context.Background(), "o1")
	if sess.AutoReconnect {
		t.Error("expected auto reconnect to be disabled in the session row")
	}
}

func TestResetSessionWipesEverything(t *testing.T) {
	conn := &fakeConn{loggedIn: true, number: "628123456789"}
	dialer := &fakeDialer{next: func() *fakeConn { return conn }}
	outlets := newFakeOutletRepo(model.Outlet{ID: "o1", RegisteredNumber: "628123456789"})
	sessions := newFakeSessionRepo()
	creds := newFakeCredStore("o1")
	m := newTestManager(t, dialer, outlets, sessions, creds)

	if _, err := m.EnsureConnection(context.Background(), "o1"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	m.OnConnected("o1")
	if err := m.ResetSession(context.Background(), "o1"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	if !conn.wasLoggedOut() {
		t.Error("expected the live session to be logged out")
	}
	if creds.Exists("o1") {
		t.Error("expected credentials to be deleted")
	}
	if c := m.reg.Live("o1"); c != nil {
		t.Error("expected in-memory state to be purged")
	}
	sess, _ := sessions.Get(context.Background(), "o1")
	if sess.Status != model.SessionStatusDisconnected || sess.PhoneNumber != "" || sess.JID != "" {
		t.Errorf("session row not cleared: %+v", sess)
	}
}

func TestGetStatusReconcilesBothDirections(t *testing.T) {
	conn := &fakeConn{loggedIn: true, number: "628123456789"}
	dialer := &fakeDialer{next: func() *fakeConn { return conn }}
	outlets := newFakeOutletRepo(model.Outlet{ID: "o1", RegisteredNumber: "628123456789", IsActive: true})
	sessions := newFakeSessionRepo()
	m := newTestManager(t, dialer, outlets, sessions, newFakeCredStore())

	// Live handle up, persisted row stale at disconnected.
	if _, err := m.EnsureConnection(context.Background(), "o1"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	sessions.Upsert(context.Background(), model.OutletSession{
		OutletID: "o1",
		Status:   model.SessionStatusDisconnected,
	})
	st, err := m.GetStatus(context.Background(), "o1", true)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Status != model.SessionStatusConnected {
		t.Errorf("status = %q, want reconciled %q", st.Status, model.SessionStatusConnected)
	}

	// Handle dies underneath, persisted row still claims connected.
	conn.Disconnect()
	m.reg.DropConn("o1")
	st, err = m.GetStatus(context.Background(), "o1", true)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Status != model.SessionStatusDisconnected {
		t.Errorf("status = %q, want reconciled %q", st.Status, model.SessionStatusDisconnected)
	}
	o, _ := outlets.GetByID(context.Background(), "o1")
	if o.IsActive {
		t.Error("expected the outlet deactivated when the session is found dead")
	}
}

func TestGetStatusWithoutLiveSkipsReconcile(t *testing.T) {
	sessions := newFakeSessionRepo()
	sessions.Upsert(context.Background(), model.OutletSession{
		OutletID: "o1",
		Status:   model.SessionStatusConnected,
	})
	m := newTestManager(t, &fakeDialer{}, newFakeOutletRepo(), sessions, newFakeCredStore())

	st, err := m.GetStatus(context.Background(), "o1", false)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Status != model.SessionStatusConnected {
		t.Errorf("cached read must not touch the row, got %q", st.Status)
	}
}

func TestStartAndGetQRReturnsPairingCode(t *testing.T) {
	dialer := &fakeDialer{next: func() *fakeConn {
		return &fakeConn{number: "628123456789"}
	}}
	outlets := newFakeOutletRepo(model.Outlet{ID: "o1"})
	m := newTestManager(t, dialer, outlets, newFakeSessionRepo(), newFakeCredStore())

	go func() {
		waitFor(t, time.Second, func() bool { return m.reg.Live("o1") != nil })
		m.OnQR("o1", "pairing-code-1")
	}()

	code, connected, err := m.StartAndGetQR(context.Background(), "o1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if connected {
		t.Fatal("expected a pairing flow, not an existing login")
	}
	if code != "pairing-code-1" {
		t.Errorf("code = %q, want %q", code, "pairing-code-1")
	}
}

func TestStartAndGetQRAlreadyConnected(t *testing.T) {
	dialer := &fakeDialer{}
	outlets := newFakeOutletRepo(model.Outlet{ID: "o1", RegisteredNumber: "628123456789"})
	m := newTestManager(t, dialer, outlets, newFakeSessionRepo(), newFakeCredStore())

	if _, err := m.EnsureConnection(context.Background(), "o1"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	_, connected, err := m.StartAndGetQR(context.Background(), "o1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !connected {
		t.Error("expected already-connected to be reported")
	}
}

func TestVerifyLiveConnectionRedialsStaleHandle(t *testing.T) {
	stale := &fakeConn{loggedIn: false, number: "628123456789"}
	fresh := &fakeConn{loggedIn: true, number: "628123456789"}
	first := true
	dialer := &fakeDialer{next: func() *fakeConn {
		if first {
			first = false
			return stale
		}
		return fresh
	}}
	outlets := newFakeOutletRepo(model.Outlet{ID: "o1", RegisteredNumber: "628123456789"})
	m := newTestManager(t, dialer, outlets, newFakeSessionRepo(), newFakeCredStore("o1"))

	if _, err := m.EnsureConnection(context.Background(), "o1"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	stale.mu.Lock()
	stale.connected = false
	stale.mu.Unlock()

	if !m.VerifyLiveConnection(context.Background(), "o1") {
		t.Fatal("expected verification to succeed after redial")
	}
	if got := dialer.dials(); got != 2 {
		t.Errorf("expected a redial, dials = %d", got)
	}
}

func TestForceRefreshFallsBackOnStoredCredentials(t *testing.T) {
	// Dials succeed but never finish pairing, so liveness checks keep failing.
	dialer := &fakeDialer{next: func() *fakeConn {
		return &fakeConn{number: "628123456789"}
	}}
	outlets := newFakeOutletRepo(model.Outlet{ID: "o1", RegisteredNumber: "628123456789"})
	m := newTestManager(t, dialer, outlets, newFakeSessionRepo(), newFakeCredStore("o1"))

	st, err := m.ForceRefreshStatus(context.Background(), "o1")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if st.Status != model.SessionStatusConnecting {
		t.Errorf("status = %q, want %q while credentials are on disk", st.Status, model.SessionStatusConnecting)
	}
}

func TestForceRefreshReportsDisconnectedWithoutCredentials(t *testing.T) {
	outlets := newFakeOutletRepo(model.Outlet{ID: "o1", IsActive: true})
	m := newTestManager(t, &fakeDialer{}, outlets, newFakeSessionRepo(), newFakeCredStore())

	st, err := m.ForceRefreshStatus(context.Background(), "o1")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if st.Status != model.SessionStatusDisconnected {
		t.Errorf("status = %q, want %q", st.Status, model.SessionStatusDisconnected)
	}
	o, _ := outlets.GetByID(context.Background(), "o1")
	if o.IsActive {
		t.Error("expected the outlet deactivated when nothing can reconnect it")
	}
}

func TestCheckPhoneNumberRejectsBadFormat(t *testing.T) {
	m := newTestManager(t, &fakeDialer{}, newFakeOutletRepo(), newFakeSessionRepo(), newFakeCredStore())
	if _, err := m.CheckPhoneNumber(context.Background(), "o1", "12345"); err == nil {
		t.Error("expected a format error for a short number")
	}
}

func TestCheckPhoneNumberDegradesWithoutLiveConnection(t *testing.T) {
	m := newTestManager(t, &fakeDialer{}, newFakeOutletRepo(), newFakeSessionRepo(), newFakeCredStore())

	res, err := m.CheckPhoneNumber(context.Background(), "o1", "08123456789")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !res.Valid {
		t.Error("expected a well-formed number to be reported valid")
	}
	if res.Verified {
		t.Error("existence must not be reported verified without a live session")
	}
}

func TestCheckPhoneNumberDegradesOnLookupFailure(t *testing.T) {
	conn := &fakeConn{loggedIn: true, number: "628123456789", regErr: context.DeadlineExceeded}
	dialer := &fakeDialer{next: func() *fakeConn { return conn }}
	outlets := newFakeOutletRepo(model.Outlet{ID: "o1", RegisteredNumber: "628123456789"})
	m := newTestManager(t, dialer, outlets, newFakeSessionRepo(), newFakeCredStore())

	if _, err := m.EnsureConnection(context.Background(), "o1"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	res, err := m.CheckPhoneNumber(context.Background(), "o1", "08123456789")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !res.Valid || res.Verified {
		t.Errorf("want valid and unverified after a lookup failure, got %+v", res)
	}
}
