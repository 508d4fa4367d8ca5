package server

import (
	"math/rand"
	"sync"
	"time"

	"github.com/roadcare/vigil/internal/models"
)

// profile describes how one mock model behaves: how often it flags the
// driver, how confident it is and where it places the face box.
type profile struct {
	info models.ModelInfo

	// flagChance is the probability of a non-safe classification.
	flagChance float64
	flagConf   [2]float64
	safeConf   [2]float64
	inferMS    [2]int

	hasBbox bool

	bboxX, bboxY, bboxW, bboxH [2]int
}

// unknownConf is shared by every model: inconclusive frames carry low
// confidence regardless of the architecture.
var unknownConf = [2]float64{0.30, 0.60}

// Non-safe classifications split into the alert categories with fixed
// weights; drowsiness dominates because that is what the models were
// trained for.
var flagWeights = []struct {
	status models.Status
	weight int
}{
	{models.StatusDrowsy, 50},
	{models.StatusDistracted, 20},
	{models.StatusSafetyViolation, 15},
	{models.StatusUnknown, 15},
}

// Registry simulates the inference models, one behavior profile per
// architecture. Safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	rng      *rand.Rand
	profiles map[models.Model]*profile
	order    []models.Model
}

// NewRegistry builds the mock model set. Seed 0 seeds from the clock; a
// fixed seed makes inference draws deterministic.
func NewRegistry(seed int64) *Registry {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	r := &Registry{
		rng:      rand.New(rand.NewSource(seed)),
		profiles: make(map[models.Model]*profile),
		order:    models.Models(),
	}
	r.profiles[models.ModelYOLO] = &profile{
		info: models.ModelInfo{
			Name:        models.ModelYOLO,
			DisplayName: "YOLOv8 Object Detection",
			Description: "Fast real-time object detection optimized for mobile devices",
			Accuracy:    0.87,
			Speed:       "fast",
			MemoryUsage: "medium",
			IsAvailable: true,
		},
		flagChance: 0.30,
		flagConf:   [2]float64{0.60, 0.95},
		safeConf:   [2]float64{0.10, 0.50},
		inferMS:    [2]int{100, 300},
		hasBbox:    true,
		bboxX:      [2]int{50, 150},
		bboxY:      [2]int{50, 150},
		bboxW:      [2]int{100, 200},
		bboxH:      [2]int{120, 250},
	}
	r.profiles[models.ModelFasterRCNN] = &profile{
		info: models.ModelInfo{
			Name:        models.ModelFasterRCNN,
			DisplayName: "Faster R-CNN",
			Description: "High accuracy object detection with region proposals",
			Accuracy:    0.91,
			Speed:       "slow",
			MemoryUsage: "high",
			IsAvailable: true,
		},
		flagChance: 0.25,
		flagConf:   [2]float64{0.75, 0.98},
		safeConf:   [2]float64{0.05, 0.30},
		inferMS:    [2]int{500, 1200},
		hasBbox:    true,
		bboxX:      [2]int{40, 120},
		bboxY:      [2]int{40, 120},
		bboxW:      [2]int{120, 220},
		bboxH:      [2]int{140, 280},
	}
	r.profiles[models.ModelVGG16] = &profile{
		info: models.ModelInfo{
			Name:        models.ModelVGG16,
			DisplayName: "VGG16 Classifier",
			Description: "Deep CNN for drowsiness state classification",
			Accuracy:    0.83,
			Speed:       "medium",
			MemoryUsage: "low",
			IsAvailable: true,
		},
		flagChance: 0.35,
		flagConf:   [2]float64{0.50, 0.90},
		safeConf:   [2]float64{0.10, 0.60},
		inferMS:    [2]int{200, 600},
	}
	return r
}

// IsLoaded reports whether the named model is served.
func (r *Registry) IsLoaded(m models.Model) bool {
	_, ok := r.profiles[m]
	return ok
}

// Loaded lists loaded model names for the health endpoint.
func (r *Registry) Loaded() []string {
	names := make([]string, 0, len(r.order))
	for _, m := range r.order {
		if r.IsLoaded(m) {
			names = append(names, string(m))
		}
	}
	return names
}

// Infos lists the model catalog for the models endpoint.
func (r *Registry) Infos() []models.ModelInfo {
	infos := make([]models.ModelInfo, 0, len(r.order))
	for _, m := range r.order {
		if p, ok := r.profiles[m]; ok {
			infos = append(infos, p.info)
		}
	}
	return infos
}

// Infer draws one mock classification for the given model.
func (r *Registry) Infer(m models.Model) (models.Status, float64, *models.BoundingBox, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.profiles[m]
	status := models.StatusSafe
	if r.rng.Float64() < p.flagChance {
		status = r.drawFlagged()
	}

	conf := p.safeConf
	switch {
	case status == models.StatusUnknown:
		conf = unknownConf
	case status.Alertable():
		conf = p.flagConf
	}
	confidence := models.Round3(conf[0] + r.rng.Float64()*(conf[1]-conf[0]))

	var bbox *models.BoundingBox
	if p.hasBbox && status.Alertable() {
		bbox = &models.BoundingBox{
			X:      r.drawRange(p.bboxX),
			Y:      r.drawRange(p.bboxY),
			Width:  r.drawRange(p.bboxW),
			Height: r.drawRange(p.bboxH),
		}
	}

	elapsed := time.Duration(r.drawRange(p.inferMS)) * time.Millisecond
	return status, confidence, bbox, elapsed
}

func (r *Registry) drawFlagged() models.Status {
	total := 0
	for _, w := range flagWeights {
		total += w.weight
	}
	n := r.rng.Intn(total)
	for _, w := range flagWeights {
		if n < w.weight {
			return w.status
		}
		n -= w.weight
	}
	return models.StatusUnknown
}

func (r *Registry) drawRange(bounds [2]int) int {
	if bounds[1] <= bounds[0] {
		return bounds[0]
	}
	return bounds[0] + r.rng.Intn(bounds[1]-bounds[0]+1)
}
