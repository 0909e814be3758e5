// Package media stages blast attachments on disk. Files are keyed by outlet
// and a content-derived id, and expire after a TTL so abandoned uploads do
// not pile up.
package media

import (
	"context"
	"crypto/md5"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Storage struct {
	baseDir string
	ttl     time.Duration
	log     *zap.Logger
	mu      sync.RWMutex
}

func NewStorage(baseDir string, ttl time.Duration, log *zap.Logger) (*Storage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}

	s := &Storage{
		baseDir: baseDir,
		ttl:     ttl,
		log:     log,
	}

	go s.startCleanupJob()

	return s, nil
}

// Save stages an attachment and returns its media id.
func (s *Storage) Save(ctx context.Context, outletID string, data []byte, mimetype string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	outletDir := filepath.Join(s.baseDir, outletID)
	if err := os.MkdirAll(outletDir, 0755); err != nil {
		return "", fmt.Errorf("create outlet media dir: %w", err)
	}

	hash := md5.Sum(data)
	ext := getExtensionFromMimetype(mimetype)
	mediaID := fmt.Sprintf("%s_%x%s", uuid.NewString()[:8], hash[:4], ext)

	filePath := filepath.Join(outletDir, mediaID)
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return "", fmt.Errorf("write media file: %w", err)
	}

	s.log.Info("media staged",
		zap.String("outlet_id", outletID),
		zap.String("media_id", mediaID),
		zap.Int("size", len(data)),
		zap.String("mimetype", mimetype),
	)

	return mediaID, nil
}

func (s *Storage) Get(ctx context.Context, outletID, mediaID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	filePath := filepath.Join(s.baseDir, outletID, mediaID)
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("media %s not found", mediaID)
		}
		return nil, fmt.Errorf("read media file: %w", err)
	}
	return data, nil
}

func (s *Storage) Exists(outletID, mediaID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := os.Stat(filepath.Join(s.baseDir, outletID, mediaID))
	return err == nil
}

func (s *Storage) startCleanupJob() {
	ticker := time.NewTicker(30 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		s.cleanup()
	}
}

// cleanup removes staged files older than the TTL.
func (s *Storage) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted, checked int
	cutoff := time.Now().Add(-s.ttl)

	err := filepath.WalkDir(s.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		checked++

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err != nil {
				s.log.Warn("failed to delete expired media", zap.String("path", path), zap.Error(err))
			} else {
				deleted++
			}
		}
		return nil
	})
	if err != nil {
		s.log.Error("media cleanup failed", zap.Error(err))
	}

	s.log.Info("media cleanup done",
		zap.Int("checked", checked),
		zap.Int("deleted", deleted),
	)
}

func getExtensionFromMimetype(mimetype string) string {
	switch mimetype {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "application/pdf":
		return ".pdf"
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return ".xlsx"
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return ".docx"
	case "text/csv":
		return ".csv"
	default:
		return ""
	}
}
