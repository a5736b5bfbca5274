package photo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/junsooki/AirRover/internal/encoder"
)

// ErrNoFrame is returned when there is no frame to save yet.
var ErrNoFrame = errors.New("no frame captured yet")

// nameLayout has microsecond precision so photos sort by capture time.
const nameLayout = "2006-01-02 15:04:05.000000"

// Store writes photos into a directory, named by UTC save time.
type Store struct {
	dir    string
	now    func() time.Time
	logger *zap.Logger
}

// NewStore creates a store writing into dir.
func NewStore(dir string, logger *zap.Logger) *Store {
	return &Store{
		dir:    dir,
		now:    time.Now,
		logger: logger.Named("photo"),
	}
}

// Save writes frame to a new timestamped file and returns its path.
func (s *Store) Save(frame *encoder.Frame) (string, error) {
	if frame == nil || len(frame.Data) == 0 {
		return "", ErrNoFrame
	}

	name := filepath.Join(s.dir, fmt.Sprintf("Photo %s.jpg", s.now().UTC().Format(nameLayout)))
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create photo: %w", err)
	}
	if _, err := f.Write(frame.Data); err != nil {
		f.Close()
		os.Remove(name)
		return "", fmt.Errorf("write photo: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close photo: %w", err)
	}

	s.logger.Info("photo saved",
		zap.String("path", name),
		zap.String("size", humanize.Bytes(uint64(len(frame.Data)))),
	)
	return name, nil
}
