// Package blast runs broadcast deliveries: one queued job per blast, one
// sequential pass over its target customers, throttled between sends so the
// account does not look like a spam cannon.
package blast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/blastline/blastline/internal/pkg/phone"
	"github.com/blastline/blastline/internal/session"
	"github.com/blastline/blastline/internal/storage"
	"github.com/blastline/blastline/internal/storage/model"
)

// Transport hands out live protocol connections. Satisfied by the session
// manager.
type Transport interface {
	EnsureConnection(ctx context.Context, outletID string) (session.Conn, error)
	LiveConn(outletID string) (session.Conn, error)
}

// MediaStore reads staged attachment bytes.
type MediaStore interface {
	Get(ctx context.Context, outletID, mediaID string) ([]byte, error)
}

// Config throttles and retries deliveries. Media-bearing sends always wait
// at least as long as plain text sends; the first attachment of each target
// gets a longer warmup than the between-attachment gaps.
type Config struct {
	MaxRetries           int
	RetryBackoff         time.Duration
	TextDelay            time.Duration
	MediaDelay           time.Duration
	FirstAttachmentDelay time.Duration
	ImageDelay           time.Duration
	DocumentDelay        time.Duration
}

func (c *Config) defaults() {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 2 * time.Second
	}
	if c.TextDelay <= 0 {
		c.TextDelay = 3 * time.Second
	}
	if c.MediaDelay < c.TextDelay {
		c.MediaDelay = c.TextDelay
	}
	if c.ImageDelay <= 0 {
		c.ImageDelay = time.Second
	}
	if c.DocumentDelay < c.ImageDelay {
		c.DocumentDelay = c.ImageDelay
	}
	if c.FirstAttachmentDelay < c.DocumentDelay {
		c.FirstAttachmentDelay = c.DocumentDelay
	}
}

type Pipeline struct {
	log       *zap.Logger
	cfg       Config
	transport Transport
	media     MediaStore
	blasts    storage.BlastRepository
	customers storage.CustomerRepository
}

func NewPipeline(log *zap.Logger, cfg Config, transport Transport, media MediaStore, blasts storage.BlastRepository, customers storage.CustomerRepository) *Pipeline {
	cfg.defaults()
	return &Pipeline{
		log:       log,
		cfg:       cfg,
		transport: transport,
		media:     media,
		blasts:    blasts,
		customers: customers,
	}
}

// Run executes one blast end to end: loads it, walks its targets in order,
// records a per-customer report and finishes the blast row. A failed
// customer never stops the batch; a session conflict does, since the
// connection is gone for good.
func (p *Pipeline) Run(ctx context.Context, outletID, blastID string) error {
	blast, err := p.blasts.GetByID(ctx, blastID)
	if err != nil {
		return fmt.Errorf("load blast %s: %w", blastID, err)
	}
	if blast.Status != model.BlastStatusQueued {
		p.log.Warn("skipping blast in unexpected state",
			zap.String("blast_id", blastID),
			zap.String("status", string(blast.Status)))
		return nil
	}

	now := time.Now()
	blast.Status = model.BlastStatusProcessing
	blast.StartedAt = &now
	if blast, err = p.blasts.Update(ctx, blast); err != nil {
		return fmt.Errorf("mark blast processing: %w", err)
	}

	targets, attachments, err := p.loadPlan(ctx, blast)
	if err != nil {
		return p.finish(ctx, blast, nil, err)
	}
	attachments = orderAttachments(attachments)

	mediaData, err := p.loadMedia(ctx, outletID, attachments)
	if err != nil {
		return p.finish(ctx, blast, nil, err)
	}

	p.log.Info("blast started",
		zap.String("blast_id", blastID),
		zap.String("outlet_id", outletID),
		zap.Int("targets", len(targets)),
		zap.Int("attachments", len(attachments)))

	reports := make([]model.BlastReport, 0, len(targets))
	var aborted error
	for i, customer := range targets {
		report := model.BlastReport{
			ID:           uuid.NewString(),
			BlastID:      blast.ID,
			CustomerID:   customer.ID,
			CustomerName: customer.Name,
			PhoneNumber:  customer.PhoneNumber,
			Timestamp:    time.Now(),
		}

		err := p.sendToCustomer(ctx, outletID, customer, blast, attachments, mediaData)
		if err == nil {
			report.Success = true
			report.Message = "delivered"
			blast.SentCount++
		} else {
			report.Success = false
			report.Message = err.Error()
			blast.FailedCount++
			p.log.Warn("delivery failed",
				zap.String("blast_id", blast.ID),
				zap.String("customer_id", customer.ID),
				zap.Error(err))
		}
		reports = append(reports, report)

		if errors.Is(err, session.ErrConflict) {
			// Another client took the session over. Everything after this
			// point would fail the same way.
			aborted = err
			for _, left := range targets[i+1:] {
				reports = append(reports, model.BlastReport{
					ID:           uuid.NewString(),
					BlastID:      blast.ID,
					CustomerID:   left.ID,
					CustomerName: left.Name,
					PhoneNumber:  left.PhoneNumber,
					Success:      false,
					Message:      "aborted: session conflict",
					Timestamp:    time.Now(),
				})
				blast.FailedCount++
			}
			break
		}

		if i < len(targets)-1 {
			if err := p.pause(ctx, p.betweenTargets(attachments)); err != nil {
				aborted = err
				break
			}
		}
	}

	return p.finish(ctx, blast, reports, aborted)
}

func (p *Pipeline) loadPlan(ctx context.Context, blast model.Blast) ([]model.Customer, []model.BlastAttachment, error) {
	var targetIDs []string
	if blast.Targets != "" {
		if err := json.Unmarshal([]byte(blast.Targets), &targetIDs); err != nil {
			return nil, nil, fmt.Errorf("decode blast targets: %w", err)
		}
	}
	var targets []model.Customer
	var err error
	if len(targetIDs) > 0 {
		targets, err = p.customers.ListByIDs(ctx, blast.OutletID, targetIDs)
	} else {
		targets, err = p.customers.ListByOutlet(ctx, blast.OutletID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load blast targets: %w", err)
	}

	var attachments []model.BlastAttachment
	if blast.Attachments != "" {
		if err := json.Unmarshal([]byte(blast.Attachments), &attachments); err != nil {
			return nil, nil, fmt.Errorf("decode blast attachments: %w", err)
		}
	}
	return targets, attachments, nil
}

// orderAttachments sends all images before any document, regardless of the
// order they were staged in. The captioned image therefore always leads.
func orderAttachments(attachments []model.BlastAttachment) []model.BlastAttachment {
	if len(attachments) < 2 {
		return attachments
	}
	ordered := make([]model.BlastAttachment, 0, len(attachments))
	for _, a := range attachments {
		if a.Kind != "document" {
			ordered = append(ordered, a)
		}
	}
	for _, a := range attachments {
		if a.Kind == "document" {
			ordered = append(ordered, a)
		}
	}
	return ordered
}

func (p *Pipeline) loadMedia(ctx context.Context, outletID string, attachments []model.BlastAttachment) (map[string][]byte, error) {
	if len(attachments) == 0 {
		return nil, nil
	}
	data := make(map[string][]byte, len(attachments))
	for _, a := range attachments {
		b, err := p.media.Get(ctx, outletID, a.MediaID)
		if err != nil {
			return nil, fmt.Errorf("load attachment %s: %w", a.MediaID, err)
		}
		data[a.MediaID] = b
	}
	return data, nil
}

// sendToCustomer delivers the blast's content to one customer. In caption
// mode the message rides as the caption of the first image; every other
// attachment follows on its own. In separate mode the text goes first and
// each attachment after it.
func (p *Pipeline) sendToCustomer(ctx context.Context, outletID string, customer model.Customer, blast model.Blast, attachments []model.BlastAttachment, mediaData map[string][]byte) error {
	if !phone.IsValidFormat(customer.PhoneNumber) {
		return fmt.Errorf("invalid phone number format: %s", customer.PhoneNumber)
	}
	number := phone.Normalize(customer.PhoneNumber)

	captionIdx := -1
	if blast.SendMode == model.SendModeCaption && blast.Message != "" {
		for i, a := range attachments {
			if a.Kind == "image" {
				captionIdx = i
				break
			}
		}
	}

	if blast.Message != "" && captionIdx < 0 {
		if err := p.withRetry(ctx, func() error {
			conn, err := p.acquire(ctx, outletID)
			if err != nil {
				return err
			}
			return conn.SendText(ctx, number, blast.Message)
		}); err != nil {
			return fmt.Errorf("send text: %w", err)
		}
	}

	for i, a := range attachments {
		switch {
		case i == 0:
			// First attachment of a target always gets the long warmup,
			// captioned or not.
			if err := p.pause(ctx, p.cfg.FirstAttachmentDelay); err != nil {
				return err
			}
		case a.Kind == "document":
			if err := p.pause(ctx, p.cfg.DocumentDelay); err != nil {
				return err
			}
		default:
			if err := p.pause(ctx, p.cfg.ImageDelay); err != nil {
				return err
			}
		}

		data := mediaData[a.MediaID]
		caption := ""
		if i == captionIdx {
			caption = blast.Message
		}
		att := a
		err := p.withRetry(ctx, func() error {
			conn, err := p.acquire(ctx, outletID)
			if err != nil {
				return err
			}
			if att.Kind == "document" {
				return conn.SendDocument(ctx, number, data, att.MimeType, att.FileName)
			}
			return conn.SendImage(ctx, number, data, att.MimeType, caption)
		})
		if err != nil {
			return fmt.Errorf("send %s: %w", a.Kind, err)
		}
	}
	return nil
}

// acquire hands back a live connection, dialing one when none is up. After a
// dial it settles briefly and re-fetches, since the event handlers finish the
// registry bookkeeping just after the connect returns.
func (p *Pipeline) acquire(ctx context.Context, outletID string) (session.Conn, error) {
	conn, err := p.transport.LiveConn(outletID)
	if err == nil {
		return conn, nil
	}
	if errors.Is(err, session.ErrBlocked) || errors.Is(err, session.ErrConflict) {
		return nil, err
	}
	if _, err := p.transport.EnsureConnection(ctx, outletID); err != nil {
		return nil, err
	}
	if err := p.pause(ctx, handleSettleDelay); err != nil {
		return nil, err
	}
	return p.transport.LiveConn(outletID)
}

const handleSettleDelay = 250 * time.Millisecond

// withRetry runs fn with a fixed backoff for transient errors. Conflicts
// are final on the first occurrence.
func (p *Pipeline) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if perr := p.pause(ctx, p.cfg.RetryBackoff); perr != nil {
				return perr
			}
		}
		err = fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, session.ErrConflict) || !session.IsTransient(err) {
			return err
		}
	}
	return err
}

func (p *Pipeline) betweenTargets(attachments []model.BlastAttachment) time.Duration {
	if len(attachments) > 0 {
		return p.cfg.MediaDelay
	}
	return p.cfg.TextDelay
}

func (p *Pipeline) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (p *Pipeline) finish(ctx context.Context, blast model.Blast, reports []model.BlastReport, cause error) error {
	if len(reports) > 0 {
		if err := p.blasts.SaveReports(ctx, reports); err != nil {
			p.log.Error("failed to save blast reports", zap.String("blast_id", blast.ID), zap.Error(err))
		}
	}

	now := time.Now()
	blast.CompletedAt = &now
	if cause != nil {
		blast.Status = model.BlastStatusFailed
	} else {
		blast.Status = model.BlastStatusCompleted
	}
	if _, err := p.blasts.Update(ctx, blast); err != nil {
		return fmt.Errorf("finish blast %s: %w", blast.ID, err)
	}

	p.log.Info("blast finished",
		zap.String("blast_id", blast.ID),
		zap.String("status", string(blast.Status)),
		zap.Int("sent", blast.SentCount),
		zap.Int("failed", blast.FailedCount))
	return cause
}
