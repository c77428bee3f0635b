package speech

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"dubflow/internal/config"
	"dubflow/internal/fileutil"
	"dubflow/internal/logging"
)

const (
	secondsPerChar     = 0.1
	minClipSeconds     = 3.0
	artifactFilePrefix = "tts_"
)

// Request describes one synthesis call.
type Request struct {
	WorkflowID string
	Text       string
	Voice      string
}

// Artifact references a synthesized file under the artifact directory.
type Artifact struct {
	Name     string  `json:"name"`
	Path     string  `json:"path"`
	Voice    string  `json:"voice"`
	Duration float64 `json:"duration"`
	Bytes    int64   `json:"bytes"`
	Format   Format  `json:"format"`
}

// Synthesizer renders speech artifacts.
type Synthesizer struct {
	dir     string
	limiter *rate.Limiter
	format  Format
	now     func() time.Time
	logger  *slog.Logger
}

// NewSynthesizer builds a synthesizer writing into the configured artifact
// directory and throttled to speech.requests_per_second.
func NewSynthesizer(cfg *config.Config, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Synthesizer{
		dir:     cfg.Paths.ArtifactDir,
		limiter: rate.NewLimiter(rate.Limit(cfg.Speech.RequestsPerSecond), cfg.Speech.Burst),
		format:  CDQuality,
		now:     time.Now,
		logger:  logger.With(logging.String(logging.FieldComponent, "speech")),
	}
}

// ClipSeconds is the rendered length for text.
func ClipSeconds(text string) float64 {
	return math.Max(float64(utf8.RuneCountInString(text))*secondsPerChar, minClipSeconds)
}

// Synthesize waits for the rate limiter and writes a WAV artifact.
func (s *Synthesizer) Synthesize(ctx context.Context, req Request) (Artifact, error) {
	voice, err := LookupVoice(req.Voice)
	if err != nil {
		return Artifact{}, err
	}
	if strings.TrimSpace(req.Text) == "" {
		return Artifact{}, fmt.Errorf("synthesize: text is empty")
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return Artifact{}, fmt.Errorf("synthesis throttle: %w", err)
	}

	seconds := ClipSeconds(req.Text)
	dataSize := s.format.DataSize(seconds)
	name := fmt.Sprintf("%s%s_%d.wav", artifactFilePrefix, sanitizeID(req.WorkflowID), s.now().UnixMilli())
	path := filepath.Join(s.dir, name)

	written, err := fileutil.WriteAtomic(path, 0o644, func(w io.Writer) error {
		if err := WriteWAVHeader(w, s.format, dataSize); err != nil {
			return err
		}
		return WriteSilence(w, int64(dataSize))
	})
	if err != nil {
		return Artifact{}, fmt.Errorf("write %s: %w", name, err)
	}

	s.logger.Debug("speech synthesized",
		logging.String(logging.FieldWorkflowID, req.WorkflowID),
		logging.String("voice", voice.ID),
		logging.String("artifact", name),
		logging.Float64("seconds", seconds),
	)
	return Artifact{
		Name:     name,
		Path:     path,
		Voice:    voice.ID,
		Duration: s.format.Seconds(dataSize),
		Bytes:    written,
		Format:   s.format,
	}, nil
}

// sanitizeID keeps artifact names to a safe character set.
func sanitizeID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return "anonymous"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '_'
		}
	}, id)
}
