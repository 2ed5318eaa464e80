package convert

import (
	"fmt"
	"sync"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// ProgressSink receives percentage updates during a conversion. Errors are
// logged by the caller and never abort the conversion.
type ProgressSink interface {
	Progress(step string, percent int) error
}

// FileProgress overwrites a file with the latest progress message. It is
// safe for concurrent use by the workers of BuildAll.
type FileProgress struct {
	mu   sync.Mutex
	fs   afero.Fs
	path string
}

// NewFileProgress creates a sink writing to path on fs.
func NewFileProgress(fs afero.Fs, path string) *FileProgress {
	return &FileProgress{fs: fs, path: path}
}

// Progress replaces the file content with the formatted message.
func (p *FileProgress) Progress(step string, percent int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return afero.WriteFile(p.fs, p.path, []byte(FormatProgress(step, percent)), 0644)
}

// LogProgress reports progress at debug level.
type LogProgress struct {
	logger *zap.Logger
}

// NewLogProgress creates a sink logging to l.
func NewLogProgress(l *zap.Logger) *LogProgress {
	return &LogProgress{logger: l}
}

// Progress logs the formatted message at debug level.
func (p *LogProgress) Progress(step string, percent int) error {
	p.logger.Debug(FormatProgress(step, percent))
	return nil
}

// MultiProgress forwards to every sink and returns the first error.
type MultiProgress []ProgressSink

// Progress forwards the update to every sink.
func (m MultiProgress) Progress(step string, percent int) error {
	var first error
	for _, s := range m {
		if err := s.Progress(step, percent); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// FormatProgress renders the human-readable progress message.
func FormatProgress(step string, percent int) string {
	return fmt.Sprintf("%s... %d%%", step, percent)
}

// minProgressLines is the line count at or below which no progress is emitted.
const minProgressLines = 10

// progressTracker emits strictly increasing integer percentages.
type progressTracker struct {
	sink     ProgressSink
	step     string
	total    int
	consumed int
	last     int
	logger   *zap.Logger
}

func (t *progressTracker) lineConsumed() {
	t.consumed++
	if t.sink == nil || t.total <= minProgressLines {
		return
	}
	pct := t.consumed * 100 / t.total
	if pct > 100 {
		pct = 100
	}
	if pct <= t.last {
		return
	}
	t.last = pct
	if err := t.sink.Progress(t.step, pct); err != nil {
		t.logger.Warn("could not report progress", zap.Int("percent", pct), zap.Error(err))
	}
}
