package speech

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrInvalidWAV is returned when a file is not a canonical PCM WAV.
var ErrInvalidWAV = errors.New("invalid wav")

const wavHeaderSize = 44

// Format describes PCM audio layout.
type Format struct {
	SampleRate    uint32 `json:"sample_rate"`
	Channels      uint16 `json:"channels"`
	BitsPerSample uint16 `json:"bits_per_sample"`
}

// CDQuality is the layout produced by the synthesizer.
var CDQuality = Format{SampleRate: 44100, Channels: 2, BitsPerSample: 16}

// BlockAlign is the byte size of one frame.
func (f Format) BlockAlign() uint16 {
	return f.Channels * (f.BitsPerSample / 8)
}

// ByteRate is the number of PCM bytes per second.
func (f Format) ByteRate() uint32 {
	return f.SampleRate * uint32(f.BlockAlign())
}

// DataSize returns the frame-aligned PCM size for seconds of audio.
func (f Format) DataSize(seconds float64) uint32 {
	frames := uint32(seconds * float64(f.SampleRate))
	return frames * uint32(f.BlockAlign())
}

// Seconds converts a PCM byte count back into a duration.
func (f Format) Seconds(dataSize uint32) float64 {
	if f.ByteRate() == 0 {
		return 0
	}
	return float64(dataSize) / float64(f.ByteRate())
}

type wavHeader struct {
	RIFF          [4]byte
	ChunkSize     uint32
	WAVE          [4]byte
	FmtID         [4]byte
	FmtSize       uint32
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	DataID        [4]byte
	DataSize      uint32
}

// WriteWAVHeader writes a 44-byte PCM header for dataSize bytes of samples.
func WriteWAVHeader(w io.Writer, f Format, dataSize uint32) error {
	header := wavHeader{
		RIFF:          [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		WAVE:          [4]byte{'W', 'A', 'V', 'E'},
		FmtID:         [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		AudioFormat:   1,
		Channels:      f.Channels,
		SampleRate:    f.SampleRate,
		ByteRate:      f.ByteRate(),
		BlockAlign:    f.BlockAlign(),
		BitsPerSample: f.BitsPerSample,
		DataID:        [4]byte{'d', 'a', 't', 'a'},
		DataSize:      dataSize,
	}
	return binary.Write(w, binary.LittleEndian, &header)
}

// ReadWAVHeader parses and checks a canonical PCM header.
func ReadWAVHeader(r io.Reader) (Format, uint32, error) {
	var header wavHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return Format{}, 0, fmt.Errorf("%w: read header: %w", ErrInvalidWAV, err)
	}
	switch {
	case string(header.RIFF[:]) != "RIFF" || string(header.WAVE[:]) != "WAVE":
		return Format{}, 0, fmt.Errorf("%w: missing RIFF/WAVE markers", ErrInvalidWAV)
	case string(header.FmtID[:]) != "fmt " || header.FmtSize != 16 || header.AudioFormat != 1:
		return Format{}, 0, fmt.Errorf("%w: not linear PCM", ErrInvalidWAV)
	case string(header.DataID[:]) != "data":
		return Format{}, 0, fmt.Errorf("%w: missing data chunk", ErrInvalidWAV)
	}
	f := Format{SampleRate: header.SampleRate, Channels: header.Channels, BitsPerSample: header.BitsPerSample}
	if f.BitsPerSample != 16 || f.Channels == 0 || f.ByteRate() != header.ByteRate {
		return Format{}, 0, fmt.Errorf("%w: unsupported layout %d ch %d bit", ErrInvalidWAV, f.Channels, f.BitsPerSample)
	}
	return f, header.DataSize, nil
}

// WriteSilence streams n zero bytes.
func WriteSilence(w io.Writer, n int64) error {
	var zero [32 * 1024]byte
	for n > 0 {
		chunk := int64(len(zero))
		if n < chunk {
			chunk = n
		}
		if _, err := w.Write(zero[:chunk]); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}
