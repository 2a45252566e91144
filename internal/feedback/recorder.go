package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/webrag/internal/model"
)

// Recorder appends feedback entries to a JSON-lines file, one entry per
// line. The file is never read by the serving path; it exists for offline
// review.
type Recorder struct {
	mu   sync.Mutex
	path string
}

func NewRecorder(path string) (*Recorder, error) {
	if path == "" {
		return nil, fmt.Errorf("feedback path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create feedback dir: %w", err)
		}
	}
	return &Recorder{path: path}, nil
}

// Record persists one entry, filling in the timestamp when the caller left
// it zero.
func (r *Recorder) Record(ctx context.Context, fb model.Feedback) error {
	if fb.Timestamp == 0 {
		fb.Timestamp = time.Now().UnixMilli()
	}
	line, err := json.Marshal(fb)
	if err != nil {
		return fmt.Errorf("encode feedback: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	file, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open feedback file: %w", err)
	}
	defer file.Close()
	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append feedback: %w", err)
	}
	logutil.GetLogger(ctx).Info("feedback received",
		zap.Int("rating", fb.Rating),
		zap.Bool("helpful", fb.Helpful),
	)
	return nil
}
