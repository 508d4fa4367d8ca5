package alert

import (
	"io"
	"math"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/transforms"
	"github.com/go-audio/wav"
	"github.com/pkg/errors"

	"github.com/roadcare/vigil/internal/models"
)

const (
	sampleRate = 44100
	bitDepth   = 16
	segment    = 250 * time.Millisecond
	// onceGain softens single-shot tones relative to continuous alerts.
	onceGain = 0.4
)

// tonePatterns maps each alert category to its frequency sequence.
var tonePatterns = map[models.Status][]float64{
	models.StatusDrowsy:          {800, 400, 800},
	models.StatusUnknown:         {700, 300, 700},
	models.StatusDistracted:      {650},
	models.StatusSafetyViolation: {550},
}

// Clip is one synthesized, WAV-encoded tone ready for a sink.
type Clip struct {
	Category models.Status
	Kind     string
	WAV      []byte
	Duration time.Duration
}

const (
	KindContinuous = "continuous"
	KindOnce       = "once"
)

// synthesize renders a frequency sequence as normalized mono PCM with a short
// attack/release ramp so segment edges do not click.
func synthesize(freqs []float64, gain float64) (*audio.IntBuffer, time.Duration) {
	perSegment := int(float64(sampleRate) * segment.Seconds())
	data := make([]float64, 0, perSegment*len(freqs))
	for _, f := range freqs {
		for i := 0; i < perSegment; i++ {
			data = append(data, math.Sin(2*math.Pi*f*float64(i)/sampleRate))
		}
	}

	fbuf := &audio.FloatBuffer{
		Format: &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:   data,
	}
	transforms.NormalizeMax(fbuf)

	ramp := sampleRate / 100
	for i := 0; i < ramp && i < len(fbuf.Data); i++ {
		k := float64(i) / float64(ramp)
		fbuf.Data[i] *= k
		fbuf.Data[len(fbuf.Data)-1-i] *= k
	}

	ibuf := &audio.IntBuffer{
		Format:         fbuf.Format,
		SourceBitDepth: bitDepth,
		Data:           make([]int, len(fbuf.Data)),
	}
	for i, s := range fbuf.Data {
		ibuf.Data[i] = int(s * gain * math.MaxInt16)
	}

	dur := time.Duration(float64(len(data)) / sampleRate * float64(time.Second))
	return ibuf, dur
}

func encodeWAV(buf *audio.IntBuffer) ([]byte, error) {
	var mem memWriter
	enc := wav.NewEncoder(&mem, buf.Format.SampleRate, bitDepth, buf.Format.NumChannels, 1)
	if err := enc.Write(buf); err != nil {
		return nil, errors.Wrap(err, "encoding wav")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, "finalizing wav")
	}
	return mem.buf, nil
}

// renderClip builds one ready-to-play clip for a category.
func renderClip(category models.Status, kind string, gain float64) (Clip, error) {
	freqs, ok := tonePatterns[category]
	if !ok {
		return Clip{}, errors.Errorf("no tone pattern for category %q", category)
	}
	buf, dur := synthesize(freqs, gain)
	raw, err := encodeWAV(buf)
	if err != nil {
		return Clip{}, err
	}
	return Clip{Category: category, Kind: kind, WAV: raw, Duration: dur}, nil
}

// memWriter is an in-memory io.WriteSeeker. The wav encoder seeks back over
// the header to patch chunk sizes on Close, which rules out a plain buffer.
type memWriter struct {
	buf []byte
	pos int
}

func (m *memWriter) Write(p []byte) (int, error) {
	if need := m.pos + len(p); need > len(m.buf) {
		grown := make([]byte, need)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[m.pos:], p)
	m.pos += len(p)
	return len(p), nil
}

func (m *memWriter) Seek(offset int64, whence int) (int64, error) {
	var abs int
	switch whence {
	case io.SeekStart:
		abs = int(offset)
	case io.SeekCurrent:
		abs = m.pos + int(offset)
	case io.SeekEnd:
		abs = len(m.buf) + int(offset)
	default:
		return 0, errors.New("invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("negative seek position")
	}
	m.pos = abs
	return int64(abs), nil
}
