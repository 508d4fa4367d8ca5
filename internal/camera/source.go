package camera

import (
	"bytes"
	"context"
	"errors"
	"image/jpeg"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nfnt/resize"
	"go.uber.org/zap"

	"github.com/roadcare/vigil/internal/models"
)

// Permission is the device-access state.
type Permission string

const (
	PermissionUnknown Permission = "unknown"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// Status is the observable camera state. A fresh snapshot goes to every
// registered listener after each mutation.
type Status struct {
	Permission Permission `json:"permission"`
	Active     bool       `json:"active"`
	Driver     string     `json:"driver"`
	LastError  string     `json:"lastError,omitempty"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// Config bounds the capture pipeline.
type Config struct {
	Width          int
	Height         int
	JPEGQuality    int
	CaptureTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Width <= 0 {
		c.Width = 640
	}
	if c.Height <= 0 {
		c.Height = 480
	}
	if c.JPEGQuality <= 0 {
		c.JPEGQuality = 80
	}
	if c.CaptureTimeout <= 0 {
		c.CaptureTimeout = 5 * time.Second
	}
	return c
}

type statusListener struct {
	id int
	fn func(Status)
}

// Source owns a capture driver and runs the frame pipeline: claim device,
// grab, scale to the configured dimensions, encode JPEG. Pre-encoded driver
// payloads bypass scaling and re-encoding entirely.
type Source struct {
	cfg    Config
	logger *zap.SugaredLogger
	driver Driver

	// opMu serializes driver open/grab/close so a slow grab never races a
	// release. Status reads stay lock-cheap under mu.
	opMu sync.Mutex

	mu        sync.Mutex
	status    Status
	nextSub   int
	listeners []statusListener
}

func NewSource(driver Driver, cfg Config, logger *zap.SugaredLogger) *Source {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Source{
		cfg:    cfg.withDefaults(),
		logger: logger,
		driver: driver,
		status: Status{
			Permission: PermissionUnknown,
			Driver:     driver.Name(),
			UpdatedAt:  time.Now(),
		},
	}
}

// Status returns the current snapshot.
func (s *Source) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// OnStatus registers a listener for status mutations and returns its
// disposer. Listeners run on the mutating goroutine and must not block.
func (s *Source) OnStatus(fn func(Status)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSub++
	id := s.nextSub
	s.listeners = append(s.listeners, statusListener{id: id, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, l := range s.listeners {
			if l.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// RequestPermission claims the device, releasing any previous claim first so
// repeated requests always negotiate a fresh stream. A *PermissionError
// flips the permission state to denied; hardware and conflict failures leave
// it unchanged but record the error.
func (s *Source) RequestPermission(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.Status().Active {
		if err := s.driver.Close(); err != nil {
			s.logger.Warnw("release before reacquire failed", "driver", s.driver.Name(), "error", err)
		}
		s.update(func(st *Status) { st.Active = false })
	}
	return s.acquire(ctx)
}

func (s *Source) acquire(ctx context.Context) error {
	if err := s.driver.Open(ctx); err != nil {
		var perm *PermissionError
		denied := errors.As(err, &perm)
		s.update(func(st *Status) {
			if denied {
				st.Permission = PermissionDenied
			}
			st.Active = false
			st.LastError = err.Error()
		})
		s.logger.Warnw("camera claim failed", "driver", s.driver.Name(), "error", err)
		return err
	}
	s.update(func(st *Status) {
		st.Permission = PermissionGranted
		st.Active = true
		st.LastError = ""
	})
	s.logger.Infow("camera claimed", "driver", s.driver.Name())
	return nil
}

// CaptureFrame grabs one frame within the configured timeout and returns it
// encoded. Permission is requested automatically when the device is not yet
// claimed.
func (s *Source) CaptureFrame(ctx context.Context) (*models.DetectionFrame, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if !s.Status().Active {
		if err := s.acquire(ctx); err != nil {
			return nil, err
		}
	}

	gctx, cancel := context.WithTimeout(ctx, s.cfg.CaptureTimeout)
	defer cancel()

	raw, err := s.driver.Grab(gctx)
	if err != nil {
		var ce *CaptureError
		if !errors.As(err, &ce) {
			err = &CaptureError{Stage: "grab", Err: err}
		}
		s.update(func(st *Status) { st.LastError = err.Error() })
		return nil, err
	}

	frame, err := s.encode(raw)
	if err != nil {
		s.update(func(st *Status) { st.LastError = err.Error() })
		return nil, err
	}
	return frame, nil
}

// Release closes the driver claim. Safe to call when nothing is claimed.
func (s *Source) Release() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if !s.Status().Active {
		return nil
	}
	err := s.driver.Close()
	s.update(func(st *Status) { st.Active = false })
	if err != nil {
		return err
	}
	s.logger.Infow("camera released", "driver", s.driver.Name())
	return nil
}

func (s *Source) encode(raw RawFrame) (*models.DetectionFrame, error) {
	now := time.Now()

	if len(raw.Encoded) > 0 {
		cfg, err := jpeg.DecodeConfig(bytes.NewReader(raw.Encoded))
		if err != nil {
			return nil, &CaptureError{Stage: "decode", Err: err}
		}
		return &models.DetectionFrame{
			ID:         uuid.NewString(),
			CapturedAt: now,
			Payload:    raw.Encoded,
			Width:      cfg.Width,
			Height:     cfg.Height,
			Size:       len(raw.Encoded),
		}, nil
	}

	if raw.Image == nil {
		return nil, &CaptureError{Stage: "encode", Err: errors.New("driver returned empty frame")}
	}

	img := raw.Image
	bounds := img.Bounds()
	if bounds.Dx() != s.cfg.Width || bounds.Dy() != s.cfg.Height {
		img = resize.Resize(uint(s.cfg.Width), uint(s.cfg.Height), img, resize.Lanczos3)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: s.cfg.JPEGQuality}); err != nil {
		return nil, &CaptureError{Stage: "encode", Err: err}
	}
	payload := buf.Bytes()
	return &models.DetectionFrame{
		ID:         uuid.NewString(),
		CapturedAt: now,
		Payload:    payload,
		Width:      s.cfg.Width,
		Height:     s.cfg.Height,
		Size:       len(payload),
	}, nil
}

func (s *Source) update(mutate func(*Status)) {
	s.mu.Lock()
	mutate(&s.status)
	s.status.UpdatedAt = time.Now()
	snap := s.status
	ls := make([]statusListener, len(s.listeners))
	copy(ls, s.listeners)
	s.mu.Unlock()

	for _, l := range ls {
		l.fn(snap)
	}
}
