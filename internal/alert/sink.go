package alert

import (
	"io"
	"sync"

	"go.uber.org/zap"
)

// Sink receives synthesized clips for playback. Real audio output belongs to
// the host platform; the built-in sinks log or persist the clips instead.
type Sink interface {
	Play(clip Clip) error
}

// LogSink records each playback in the log.
type LogSink struct {
	logger *zap.SugaredLogger
}

func NewLogSink(logger *zap.SugaredLogger) *LogSink {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Play(clip Clip) error {
	s.logger.Infow("alert tone",
		"category", clip.Category,
		"kind", clip.Kind,
		"duration", clip.Duration,
		"bytes", len(clip.WAV),
	)
	return nil
}

// WriterSink appends each played clip's WAV bytes to a writer, typically a
// pipe into an external player process.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Play(clip Clip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.w.Write(clip.WAV)
	return err
}
