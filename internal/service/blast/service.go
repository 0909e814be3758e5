package blast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/blastline/blastline/internal/pkg/queue"
	"github.com/blastline/blastline/internal/storage"
	"github.com/blastline/blastline/internal/storage/model"
	storage_redis "github.com/blastline/blastline/internal/storage/redis"
)

var (
	ErrEmptyBlast      = errors.New("blast needs a message or at least one attachment")
	ErrNoTargets       = errors.New("blast needs at least one target customer")
	ErrInvalidSendMode = errors.New("send mode must be caption or separate")
	ErrOutletBusy      = errors.New("another blast is being prepared for this outlet")
)

// MediaSaver stages uploaded attachment bytes and returns their media ids.
type MediaSaver interface {
	Save(ctx context.Context, outletID string, data []byte, mimetype string) (string, error)
}

type Service struct {
	log       *zap.Logger
	blasts    storage.BlastRepository
	customers storage.CustomerRepository
	media     MediaSaver
	queue     queue.Queue
	redis     *storage_redis.Client // optional, guards concurrent creation per outlet
}

func NewService(log *zap.Logger, blasts storage.BlastRepository, customers storage.CustomerRepository, media MediaSaver, q queue.Queue, redis *storage_redis.Client) *Service {
	return &Service{
		log:       log,
		blasts:    blasts,
		customers: customers,
		media:     media,
		queue:     q,
		redis:     redis,
	}
}

type AttachmentInput struct {
	Kind     string
	MimeType string
	FileName string
	Data     []byte
}

type CreateInput struct {
	Message     string
	SendMode    model.SendMode
	TargetIDs   []string
	Attachments []AttachmentInput
}

// Create validates the request, stages the attachments, persists the blast
// as queued and puts a job on the queue. Delivery happens in the worker
// pool.
func (s *Service) Create(ctx context.Context, outletID string, input CreateInput) (model.Blast, error) {
	if input.Message == "" && len(input.Attachments) == 0 {
		return model.Blast{}, ErrEmptyBlast
	}
	if len(input.TargetIDs) == 0 {
		return model.Blast{}, ErrNoTargets
	}
	switch input.SendMode {
	case model.SendModeCaption, model.SendModeSeparate:
	case "":
		input.SendMode = model.SendModeSeparate
	default:
		return model.Blast{}, ErrInvalidSendMode
	}
	for _, a := range input.Attachments {
		if a.Kind != "image" && a.Kind != "document" {
			return model.Blast{}, fmt.Errorf("unsupported attachment kind %q", a.Kind)
		}
		if len(a.Data) == 0 {
			return model.Blast{}, errors.New("empty attachment")
		}
	}

	if s.redis != nil {
		lock := storage_redis.NewLock(s.redis, "blast:create:"+outletID, 30*time.Second)
		ok, err := lock.Acquire(ctx)
		if err != nil {
			return model.Blast{}, err
		}
		if !ok {
			return model.Blast{}, ErrOutletBusy
		}
		defer func() {
			if err := lock.Release(context.Background()); err != nil {
				s.log.Warn("failed to release blast lock", zap.String("outlet_id", outletID), zap.Error(err))
			}
		}()
	}

	targets, err := s.customers.ListByIDs(ctx, outletID, input.TargetIDs)
	if err != nil {
		return model.Blast{}, fmt.Errorf("load target customers: %w", err)
	}
	if len(targets) == 0 {
		return model.Blast{}, ErrNoTargets
	}

	attachments := make([]model.BlastAttachment, 0, len(input.Attachments))
	for _, a := range input.Attachments {
		mediaID, err := s.media.Save(ctx, outletID, a.Data, a.MimeType)
		if err != nil {
			return model.Blast{}, fmt.Errorf("stage attachment: %w", err)
		}
		attachments = append(attachments, model.BlastAttachment{
			MediaID:  mediaID,
			Kind:     a.Kind,
			MimeType: a.MimeType,
			FileName: a.FileName,
		})
	}

	targetIDs := make([]string, len(targets))
	for i, t := range targets {
		targetIDs[i] = t.ID
	}
	targetsJSON, err := json.Marshal(targetIDs)
	if err != nil {
		return model.Blast{}, err
	}
	attachmentsJSON, err := json.Marshal(attachments)
	if err != nil {
		return model.Blast{}, err
	}

	blast, err := s.blasts.Create(ctx, model.Blast{
		OutletID:    outletID,
		Message:     input.Message,
		SendMode:    input.SendMode,
		Status:      model.BlastStatusQueued,
		Attachments: string(attachmentsJSON),
		Targets:     string(targetsJSON),
		TargetCount: len(targetIDs),
	})
	if err != nil {
		return model.Blast{}, err
	}

	job := queue.Job{
		ID:         uuid.NewString(),
		OutletID:   outletID,
		BlastID:    blast.ID,
		EnqueuedAt: time.Now(),
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		blast.Status = model.BlastStatusFailed
		if _, uerr := s.blasts.Update(ctx, blast); uerr != nil {
			s.log.Error("failed to mark unqueued blast", zap.String("blast_id", blast.ID), zap.Error(uerr))
		}
		return model.Blast{}, fmt.Errorf("enqueue blast: %w", err)
	}

	s.log.Info("blast queued",
		zap.String("blast_id", blast.ID),
		zap.String("outlet_id", outletID),
		zap.Int("targets", blast.TargetCount),
		zap.Int("attachments", len(attachments)))
	return blast, nil
}

func (s *Service) Get(ctx context.Context, id string) (model.Blast, error) {
	return s.blasts.GetByID(ctx, id)
}

func (s *Service) ListByOutlet(ctx context.Context, outletID string) ([]model.Blast, error) {
	return s.blasts.ListByOutlet(ctx, outletID)
}

func (s *Service) Reports(ctx context.Context, blastID string) ([]model.BlastReport, error) {
	return s.blasts.ListReports(ctx, blastID)
}
