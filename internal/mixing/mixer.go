package mixing

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dubflow/internal/config"
	"dubflow/internal/fileutil"
	"dubflow/internal/logging"
	"dubflow/internal/speech"
)

const (
	artifactFilePrefix = "mix_"
	progressChunk      = 64 * 1024
)

// Mixer applies gain to a synthesized WAV and writes the final artifact.
type Mixer struct {
	dir    string
	gain   float64
	now    func() time.Time
	logger *slog.Logger
}

// NewMixer builds a mixer for the configured artifact directory and gain.
func NewMixer(cfg *config.Config, logger *slog.Logger) *Mixer {
	m := &Mixer{
		dir:  cfg.Paths.ArtifactDir,
		gain: cfg.Mixing.Gain,
		now:  time.Now,
	}
	m.SetLogger(logger)
	return m
}

// SetLogger swaps the logger used for diagnostics.
func (m *Mixer) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = logging.NewNop()
	}
	m.logger = logger.With(logging.String(logging.FieldComponent, "mix"))
}

// Output describes a written mix artifact.
type Output struct {
	Name  string
	Path  string
	Bytes int64
}

// Mix reads the named speech artifact and writes mix_<workflow>_<millis>.wav.
// progress receives the share of PCM data processed.
func (m *Mixer) Mix(ctx context.Context, workflowID, source string, progress func(int)) (Output, error) {
	srcPath, err := fileutil.SafeJoin(m.dir, source)
	if err != nil {
		return Output{}, err
	}
	name := fmt.Sprintf("%s%s_%d.wav", artifactFilePrefix, safeID(workflowID), m.now().UnixMilli())
	dstPath := filepath.Join(m.dir, name)

	in, err := os.Open(srcPath)
	if err != nil {
		return Output{}, fmt.Errorf("open speech artifact: %w", err)
	}
	defer in.Close()

	format, dataSize, err := speech.ReadWAVHeader(in)
	if err != nil {
		return Output{}, err
	}

	var written int64
	if m.gain == 1 {
		_ = in.Close()
		written, err = fileutil.CopyFileVerified(srcPath, dstPath)
	} else {
		written, err = fileutil.WriteAtomic(dstPath, 0o644, func(w io.Writer) error {
			if err := speech.WriteWAVHeader(w, format, dataSize); err != nil {
				return err
			}
			return m.applyGain(ctx, w, io.LimitReader(in, int64(dataSize)), int64(dataSize), progress)
		})
	}
	if err != nil {
		return Output{}, fmt.Errorf("write %s: %w", name, err)
	}
	m.logger.Debug("mix written",
		logging.String(logging.FieldWorkflowID, workflowID),
		logging.String("artifact", name),
		logging.Float64("gain", m.gain),
		logging.Int64("bytes", written),
	)
	return Output{Name: name, Path: dstPath, Bytes: written}, nil
}

// applyGain scales 16-bit little-endian samples, clipping at full scale.
func (m *Mixer) applyGain(ctx context.Context, w io.Writer, r io.Reader, total int64, progress func(int)) error {
	reader := bufio.NewReaderSize(r, progressChunk)
	writer := bufio.NewWriterSize(w, progressChunk)
	buf := make([]byte, progressChunk)
	var done int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := io.ReadFull(reader, buf)
		if n > 0 {
			chunk := buf[:n-n%2]
			for i := 0; i+1 < len(chunk); i += 2 {
				sample := float64(int16(binary.LittleEndian.Uint16(chunk[i:])))
				scaled := math.Max(math.MinInt16, math.Min(math.MaxInt16, math.Round(sample*m.gain)))
				binary.LittleEndian.PutUint16(chunk[i:], uint16(int16(scaled)))
			}
			if _, werr := writer.Write(chunk); werr != nil {
				return werr
			}
			done += int64(len(chunk))
			if progress != nil && total > 0 {
				progress(int(done * 100 / total))
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return err
		}
	}
	return writer.Flush()
}

func safeID(id string) string {
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
