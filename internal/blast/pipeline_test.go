package blast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/blastline/blastline/internal/session"
	"github.com/blastline/blastline/internal/storage"
	"github.com/blastline/blastline/internal/storage/model"
)

type sentItem struct {
	kind    string // "text", "image", "document"
	number  string
	caption string
}

// fakeSender is a scriptable session.Conn: failures keyed by send index.
type fakeSender struct {
	mu    sync.Mutex
	sent  []sentItem
	calls int
	// failAt maps call index (1-based, counting every attempt) to the
	// error to return.
	failAt map[int]error
}

func (f *fakeSender) attempt(item sentItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err, ok := f.failAt[f.calls]; ok {
		return err
	}
	f.sent = append(f.sent, item)
	return nil
}

func (f *fakeSender) SendText(_ context.Context, number, text string) error {
	return f.attempt(sentItem{kind: "text", number: number})
}

func (f *fakeSender) SendImage(_ context.Context, number string, _ []byte, _ string, caption string) error {
	return f.attempt(sentItem{kind: "image", number: number, caption: caption})
}

func (f *fakeSender) SendDocument(_ context.Context, number string, _ []byte, _, _ string) error {
	return f.attempt(sentItem{kind: "document", number: number})
}

func (f *fakeSender) Connect() error                   { return nil }
func (f *fakeSender) Disconnect()                      {}
func (f *fakeSender) Logout(context.Context) error     { return nil }
func (f *fakeSender) IsConnected() bool                { return true }
func (f *fakeSender) IsLoggedIn() bool                 { return true }
func (f *fakeSender) ConnectedNumber() string          { return "628123456789" }
func (f *fakeSender) DeviceName() string               { return "test" }
func (f *fakeSender) IsRegistered(context.Context, string) (bool, error) {
	return true, nil
}

func (f *fakeSender) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, s := range f.sent {
		out[i] = s.kind
	}
	return out
}

type fakeTransport struct {
	mu      sync.Mutex
	conn    session.Conn
	err     error
	ensures int
	// ensureErr keeps dials failing; when nil a dial clears err, the way a
	// successful reconnect brings the live handle back.
	ensureErr error
}

func (t *fakeTransport) LiveConn(string) (session.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return nil, t.err
	}
	return t.conn, nil
}

func (t *fakeTransport) EnsureConnection(context.Context, string) (session.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ensures++
	if t.ensureErr != nil {
		return nil, t.ensureErr
	}
	t.err = nil
	return t.conn, nil
}

func (t *fakeTransport) dials() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ensures
}

type fakeMedia struct{}

func (fakeMedia) Get(_ context.Context, _, mediaID string) ([]byte, error) {
	return []byte("bytes-" + mediaID), nil
}

type fakeBlastRepo struct {
	mu      sync.Mutex
	blasts  map[string]model.Blast
	reports []model.BlastReport
}

func newFakeBlastRepo(blasts ...model.Blast) *fakeBlastRepo {
	r := &fakeBlastRepo{blasts: make(map[string]model.Blast)}
	for _, b := range blasts {
		r.blasts[b.ID] = b
	}
	return r
}

func (r *fakeBlastRepo) Create(_ context.Context, b model.Blast) (model.Blast, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blasts[b.ID] = b
	return b, nil
}

func (r *fakeBlastRepo) GetByID(_ context.Context, id string) (model.Blast, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.blasts[id]
	if !ok {
		return model.Blast{}, storage.ErrNotFound
	}
	return b, nil
}

func (r *fakeBlastRepo) ListByOutlet(_ context.Context, outletID string) ([]model.Blast, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Blast
	for _, b := range r.blasts {
		if b.OutletID == outletID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *fakeBlastRepo) Update(_ context.Context, b model.Blast) (model.Blast, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blasts[b.ID] = b
	return b, nil
}

func (r *fakeBlastRepo) SaveReports(_ context.Context, reports []model.BlastReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, reports...)
	return nil
}

func (r *fakeBlastRepo) ListReports(_ context.Context, blastID string) ([]model.BlastReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.BlastReport
	for _, rep := range r.reports {
		if rep.BlastID == blastID {
			out = append(out, rep)
		}
	}
	return out, nil
}

type fakeCustomerRepo struct {
	customers map[string]model.Customer
}

func newFakeCustomerRepo(customers ...model.Customer) *fakeCustomerRepo {
	r := &fakeCustomerRepo{customers: make(map[string]model.Customer)}
	for _, c := range customers {
		r.customers[c.ID] = c
	}
	return r
}

func (r *fakeCustomerRepo) Create(_ context.Context, c model.Customer) (model.Customer, error) {
	r.customers[c.ID] = c
	return c, nil
}

func (r *fakeCustomerRepo) GetByID(_ context.Context, id string) (model.Customer, error) {
	c, ok := r.customers[id]
	if !ok {
		return model.Customer{}, storage.ErrNotFound
	}
	return c, nil
}

func (r *fakeCustomerRepo) ListByOutlet(_ context.Context, outletID string) ([]model.Customer, error) {
	var out []model.Customer
	for _, c := range r.customers {
		if c.OutletID == outletID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeCustomerRepo) ListByIDs(_ context.Context, _ string, ids []string) ([]model.Customer, error) {
	out := make([]model.Customer, 0, len(ids))
	for _, id := range ids {
		if c, ok := r.customers[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeCustomerRepo) Update(_ context.Context, c model.Customer) (model.Customer, error) {
	r.customers[c.ID] = c
	return c, nil
}

func (r *fakeCustomerRepo) Delete(_ context.Context, id string) error {
	delete(r.customers, id)
	return nil
}

func testPipelineConfig() Config {
	return Config{
		MaxRetries:           2,
		RetryBackoff:         time.Millisecond,
		TextDelay:            time.Millisecond,
		MediaDelay:           time.Millisecond,
		FirstAttachmentDelay: time.Millisecond,
		ImageDelay:           time.Millisecond,
		DocumentDelay:        time.Millisecond,
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func testBlast(t *testing.T, mode model.SendMode, targets []string, attachments []model.BlastAttachment) model.Blast {
	t.Helper()
	return model.Blast{
		ID:          "b1",
		OutletID:    "o1",
		Message:     "promo of the week",
		SendMode:    mode,
		Status:      model.BlastStatusQueued,
		Targets:     mustJSON(t, targets),
		Attachments: mustJSON(t, attachments),
		TargetCount: len(targets),
	}
}

func imageAndDocument() []model.BlastAttachment {
	return []model.BlastAttachment{
		{MediaID: "m1", Kind: "image", MimeType: "image/jpeg"},
		{MediaID: "m2", Kind: "document", MimeType: "application/pdf", FileName: "pricelist.pdf"},
	}
}

func TestCaptionModeFoldsMessageIntoFirstImage(t *testing.T) {
	sender := &fakeSender{}
	blasts := newFakeBlastRepo(testBlast(t, model.SendModeCaption, []string{"c1"}, imageAndDocument()))
	customers := newFakeCustomerRepo(model.Customer{ID: "c1", OutletID: "o1", Name: "Ana", PhoneNumber: "08123456789"})
	p := NewPipeline(zap.NewNop(), testPipelineConfig(), &fakeTransport{conn: sender}, fakeMedia{}, blasts, customers)

	if err := p.Run(context.Background(), "o1", "b1"); err != nil {
		t.Fatalf("run: %v", err)
	}

	kinds := sender.kinds()
	if len(kinds) != 2 || kinds[0] != "image" || kinds[1] != "document" {
		t.Fatalf("sends = %v, want [image document]", kinds)
	}
	if sender.sent[0].caption != "promo of the week" {
		t.Errorf("caption = %q, want the blast message", sender.sent[0].caption)
	}
	if !strings.HasPrefix(sender.sent[0].number, "628") {
		t.Errorf("number %q not normalized to international form", sender.sent[0].number)
	}

	b, _ := blasts.GetByID(context.Background(), "b1")
	if b.Status != model.BlastStatusCompleted || b.SentCount != 1 || b.FailedCount != 0 {
		t.Errorf("blast row = status %q sent %d failed %d", b.Status, b.SentCount, b.FailedCount)
	}
}

func TestSeparateModeSendsTextThenAttachments(t *testing.T) {
	sender := &fakeSender{}
	blasts := newFakeBlastRepo(testBlast(t, model.SendModeSeparate, []string{"c1"}, imageAndDocument()))
	customers := newFakeCustomerRepo(model.Customer{ID: "c1", OutletID: "o1", Name: "Ana", PhoneNumber: "08123456789"})
	p := NewPipeline(zap.NewNop(), testPipelineConfig(), &fakeTransport{conn: sender}, fakeMedia{}, blasts, customers)

	if err := p.Run(context.Background(), "o1", "b1"); err != nil {
		t.Fatalf("run: %v", err)
	}

	kinds := sender.kinds()
	want := []string{"text", "image", "document"}
	if len(kinds) != len(want) {
		t.Fatalf("sends = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("sends = %v, want %v", kinds, want)
		}
	}
	if sender.sent[1].caption != "" {
		t.Errorf("separate mode must not caption the image, got %q", sender.sent[1].caption)
	}
}

func TestFailedCustomerDoesNotStopBatch(t *testing.T) {
	sender := &fakeSender{failAt: map[int]error{
		// Second customer's text send fails on every attempt
		// (1 original + 2 retries with MaxRetries=2).
		2: errors.New("websocket not connected"),
		3: errors.New("websocket not connected"),
		4: errors.New("websocket not connected"),
	}}
	blasts := newFakeBlastRepo(testBlast(t, model.SendModeSeparate, []string{"c1", "c2", "c3"}, nil))
	customers := newFakeCustomerRepo(
		model.Customer{ID: "c1", OutletID: "o1", Name: "Ana", PhoneNumber: "08123456789"},
		model.Customer{ID: "c2", OutletID: "o1", Name: "Budi", PhoneNumber: "08129876543"},
		model.Customer{ID: "c3", OutletID: "o1", Name: "Citra", PhoneNumber: "6281234500011"},
	)
	p := NewPipeline(zap.NewNop(), testPipelineConfig(), &fakeTransport{conn: sender}, fakeMedia{}, blasts, customers)

	if err := p.Run(context.Background(), "o1", "b1"); err != nil {
		t.Fatalf("run: %v", err)
	}

	b, _ := blasts.GetByID(context.Background(), "b1")
	if b.SentCount != 2 || b.FailedCount != 1 {
		t.Errorf("sent %d failed %d, want 2/1", b.SentCount, b.FailedCount)
	}
	if b.Status != model.BlastStatusCompleted {
		t.Errorf("status = %q, a single failed customer must not fail the blast", b.Status)
	}

	reports, _ := blasts.ListReports(context.Background(), "b1")
	if len(reports) != 3 {
		t.Fatalf("reports = %d, want 3", len(reports))
	}
	for _, rep := range reports {
		if rep.CustomerID == "c2" && rep.Success {
			t.Error("c2 should be reported as failed")
		}
		if rep.CustomerID != "c2" && !rep.Success {
			t.Errorf("%s should be reported as delivered", rep.CustomerID)
		}
	}
}

func TestTransientErrorIsRetried(t *testing.T) {
	sender := &fakeSender{failAt: map[int]error{
		1: errors.New("timed out"),
	}}
	blasts := newFakeBlastRepo(testBlast(t, model.SendModeSeparate, []string{"c1"}, nil))
	customers := newFakeCustomerRepo(model.Customer{ID: "c1", OutletID: "o1", Name: "Ana", PhoneNumber: "08123456789"})
	p := NewPipeline(zap.NewNop(), testPipelineConfig(), &fakeTransport{conn: sender}, fakeMedia{}, blasts, customers)

	if err := p.Run(context.Background(), "o1", "b1"); err != nil {
		t.Fatalf("run: %v", err)
	}

	b, _ := blasts.GetByID(context.Background(), "b1")
	if b.SentCount != 1 {
		t.Errorf("sent = %d, want the retried send to succeed", b.SentCount)
	}
	if sender.calls != 2 {
		t.Errorf("calls = %d, want 2 (one failure, one retry)", sender.calls)
	}
}

func TestConflictAbortsRemainingTargets(t *testing.T) {
	sender := &fakeSender{failAt: map[int]error{
		1: fmt.Errorf("send: %w", session.ErrConflict),
	}}
	blasts := newFakeBlastRepo(testBlast(t, model.SendModeSeparate, []string{"c1", "c2", "c3"}, nil))
	customers := newFakeCustomerRepo(
		model.Customer{ID: "c1", OutletID: "o1", Name: "Ana", PhoneNumber: "08123456789"},
		model.Customer{ID: "c2", OutletID: "o1", Name: "Budi", PhoneNumber: "08129876543"},
		model.Customer{ID: "c3", OutletID: "o1", Name: "Citra", PhoneNumber: "6281234500011"},
	)
	p := NewPipeline(zap.NewNop(), testPipelineConfig(), &fakeTransport{conn: sender}, fakeMedia{}, blasts, customers)

	err := p.Run(context.Background(), "o1", "b1")
	if !errors.Is(err, session.ErrConflict) {
		t.Fatalf("run error = %v, want conflict", err)
	}

	if sender.calls != 1 {
		t.Errorf("calls = %d, conflicts must not be retried", sender.calls)
	}
	b, _ := blasts.GetByID(context.Background(), "b1")
	if b.Status != model.BlastStatusFailed {
		t.Errorf("status = %q, want %q", b.Status, model.BlastStatusFailed)
	}
	if b.FailedCount != 3 {
		t.Errorf("failed = %d, want all targets accounted for", b.FailedCount)
	}
	reports, _ := blasts.ListReports(context.Background(), "b1")
	if len(reports) != 3 {
		t.Fatalf("reports = %d, want one per target", len(reports))
	}
	aborted := 0
	for _, rep := range reports {
		if strings.Contains(rep.Message, "aborted") {
			aborted++
		}
	}
	if aborted != 2 {
		t.Errorf("aborted reports = %d, want 2", aborted)
	}
}

func TestSendDialsWhenNoHandleIsLive(t *testing.T) {
	sender := &fakeSender{}
	transport := &fakeTransport{conn: sender, err: session.ErrNotConnected}
	blasts := newFakeBlastRepo(testBlast(t, model.SendModeSeparate, []string{"c1"}, nil))
	customers := newFakeCustomerRepo(model.Customer{ID: "c1", OutletID: "o1", Name: "Ana", PhoneNumber: "08123456789"})
	p := NewPipeline(zap.NewNop(), testPipelineConfig(), transport, fakeMedia{}, blasts, customers)

	if err := p.Run(context.Background(), "o1", "b1"); err != nil {
		t.Fatalf("run: %v", err)
	}

	if transport.dials() == 0 {
		t.Error("expected a dial attempt when no handle was live")
	}
	b, _ := blasts.GetByID(context.Background(), "b1")
	if b.SentCount != 1 || b.FailedCount != 0 {
		t.Errorf("sent %d failed %d, want the target delivered after reconnect", b.SentCount, b.FailedCount)
	}
}

func TestCaptionModeAppliesWarmupDelay(t *testing.T) {
	cfg := testPipelineConfig()
	cfg.FirstAttachmentDelay = 120 * time.Millisecond
	sender := &fakeSender{}
	blasts := newFakeBlastRepo(testBlast(t, model.SendModeCaption, []string{"c1"}, imageAndDocument()))
	customers := newFakeCustomerRepo(model.Customer{ID: "c1", OutletID: "o1", Name: "Ana", PhoneNumber: "08123456789"})
	p := NewPipeline(zap.NewNop(), cfg, &fakeTransport{conn: sender}, fakeMedia{}, blasts, customers)

	start := time.Now()
	if err := p.Run(context.Background(), "o1", "b1"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if elapsed := time.Since(start); elapsed < cfg.FirstAttachmentDelay {
		t.Errorf("blast finished in %v, want at least the %v warmup before the first attachment", elapsed, cfg.FirstAttachmentDelay)
	}
}

func TestDocumentsAlwaysFollowImages(t *testing.T) {
	// Staged document-first; the wire order must still lead with the
	// captioned image.
	attachments := []model.BlastAttachment{
		{MediaID: "m2", Kind: "document", MimeType: "application/pdf", FileName: "pricelist.pdf"},
		{MediaID: "m1", Kind: "image", MimeType: "image/jpeg"},
	}
	sender := &fakeSender{}
	blasts := newFakeBlastRepo(testBlast(t, model.SendModeCaption, []string{"c1"}, attachments))
	customers := newFakeCustomerRepo(model.Customer{ID: "c1", OutletID: "o1", Name: "Ana", PhoneNumber: "08123456789"})
	p := NewPipeline(zap.NewNop(), testPipelineConfig(), &fakeTransport{conn: sender}, fakeMedia{}, blasts, customers)

	if err := p.Run(context.Background(), "o1", "b1"); err != nil {
		t.Fatalf("run: %v", err)
	}

	kinds := sender.kinds()
	if len(kinds) != 2 || kinds[0] != "image" || kinds[1] != "document" {
		t.Fatalf("sends = %v, want [image document]", kinds)
	}
	if sender.sent[0].caption != "promo of the week" {
		t.Errorf("caption = %q, want it on the leading image", sender.sent[0].caption)
	}
}

func TestInvalidPhoneNumberFailsWithoutSending(t *testing.T) {
	sender := &fakeSender{}
	blasts := newFakeBlastRepo(testBlast(t, model.SendModeSeparate, []string{"c1", "c2"}, nil))
	customers := newFakeCustomerRepo(
		model.Customer{ID: "c1", OutletID: "o1", Name: "Ana", PhoneNumber: "12345"},
		model.Customer{ID: "c2", OutletID: "o1", Name: "Budi", PhoneNumber: "08129876543"},
	)
	p := NewPipeline(zap.NewNop(), testPipelineConfig(), &fakeTransport{conn: sender}, fakeMedia{}, blasts, customers)

	if err := p.Run(context.Background(), "o1", "b1"); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(sender.kinds()) != 1 {
		t.Errorf("sends = %v, the invalid number must not reach the wire", sender.kinds())
	}
	b, _ := blasts.GetByID(context.Background(), "b1")
	if b.SentCount != 1 || b.FailedCount != 1 {
		t.Errorf("sent %d failed %d, want 1/1", b.SentCount, b.FailedCount)
	}
}

func TestRunSkipsNonQueuedBlast(t *testing.T) {
	b := testBlast(t, model.SendModeSeparate, []string{"c1"}, nil)
	b.Status = model.BlastStatusCompleted
	blasts := newFakeBlastRepo(b)
	sender := &fakeSender{}
	p := NewPipeline(zap.NewNop(), testPipelineConfig(), &fakeTransport{conn: sender}, fakeMedia{}, blasts, newFakeCustomerRepo())

	if err := p.Run(context.Background(), "o1", "b1"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(sender.kinds()) != 0 {
		t.Error("a finished blast must not be re-run")
	}
}
