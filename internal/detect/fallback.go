package detect

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/roadcare/vigil/internal/models"
)

// Confidence ranges per category for synthesized results.
var fallbackRanges = map[models.Status][2]float64{
	models.StatusSafe:            {0.70, 1.00},
	models.StatusDrowsy:          {0.60, 0.95},
	models.StatusDistracted:      {0.60, 0.90},
	models.StatusSafetyViolation: {0.65, 0.95},
	models.StatusUnknown:         {0.30, 0.60},
}

// Category draw weights. Safe dominates so a dead collaborator does not turn
// every drive into an alert storm.
var fallbackWeights = []struct {
	status models.Status
	weight int
}{
	{models.StatusSafe, 55},
	{models.StatusDrowsy, 15},
	{models.StatusDistracted, 12},
	{models.StatusSafetyViolation, 10},
	{models.StatusUnknown, 8},
}

// Fallback synthesizes plausible detection results for use when the
// collaborator is unreachable. Safe for concurrent use.
type Fallback struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewFallback builds a generator. Seed 0 seeds from the clock; a fixed seed
// makes the draw sequence deterministic.
func NewFallback(seed int64) *Fallback {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Fallback{rng: rand.New(rand.NewSource(seed))}
}

// Result draws one synthetic detection. Frame dimensions bound the bounding
// box when known; zero dims leave the box unclamped.
func (f *Fallback) Result(model models.Model, sessionID string, frameW, frameH int) models.DetectionResult {
	f.mu.Lock()
	defer f.mu.Unlock()

	status := f.drawStatus()
	lo, hi := fallbackRanges[status][0], fallbackRanges[status][1]
	confidence := models.Round3(lo + f.rng.Float64()*(hi-lo))

	var bbox *models.BoundingBox
	if status.Alertable() {
		bbox = f.drawBbox(frameW, frameH)
	}

	now := time.Now()
	return models.DetectionResult{
		ID:             fmt.Sprintf("%s_%d", model, now.UnixMilli()),
		Timestamp:      now,
		Status:         status,
		Confidence:     confidence,
		ModelUsed:      model,
		InferenceTime:  time.Duration(50+f.rng.Intn(200)) * time.Millisecond,
		Bbox:           bbox,
		AlertTriggered: models.DeriveAlertTriggered(status, confidence),
		SessionID:      sessionID,
		IsSynthetic:    true,
	}
}

func (f *Fallback) drawStatus() models.Status {
	total := 0
	for _, w := range fallbackWeights {
		total += w.weight
	}
	n := f.rng.Intn(total)
	for _, w := range fallbackWeights {
		if n < w.weight {
			return w.status
		}
		n -= w.weight
	}
	return models.StatusUnknown
}

func (f *Fallback) drawBbox(frameW, frameH int) *models.BoundingBox {
	b := &models.BoundingBox{
		X:      40 + f.rng.Intn(111),
		Y:      40 + f.rng.Intn(111),
		Width:  100 + f.rng.Intn(121),
		Height: 120 + f.rng.Intn(161),
	}
	if frameW > 0 {
		if b.X >= frameW {
			b.X = 0
		}
		if b.X+b.Width > frameW {
			b.Width = frameW - b.X
		}
	}
	if frameH > 0 {
		if b.Y >= frameH {
			b.Y = 0
		}
		if b.Y+b.Height > frameH {
			b.Height = frameH - b.Y
		}
	}
	return b
}
