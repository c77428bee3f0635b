package mixing_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dubflow/internal/config"
	"dubflow/internal/mixing"
	"dubflow/internal/services"
	"dubflow/internal/speech"
	"dubflow/internal/stage"
	"dubflow/internal/subtitles"
	"dubflow/internal/testsupport"
)

func writeSpeech(t *testing.T, cfg *config.Config, name string, samples []int16) {
	t.Helper()
	var buf bytes.Buffer
	format := speech.Format{SampleRate: 8000, Channels: 1, BitsPerSample: 16}
	if err := speech.WriteWAVHeader(&buf, format, uint32(len(samples)*2)); err != nil {
		t.Fatalf("header: %v", err)
	}
	for _, s := range samples {
		_ = binary.Write(&buf, binary.LittleEndian, s)
	}
	if err := os.WriteFile(filepath.Join(cfg.Paths.ArtifactDir, name), buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write speech: %v", err)
	}
}

func generatePayload(t *testing.T, audio string) []byte {
	t.Helper()
	payload, err := json.Marshal(speech.Result{
		Result:    subtitles.Result{WorkflowID: "wf-mix", Text: "Hello World"},
		AudioPath: audio,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return payload
}

func readSamples(t *testing.T, path string) []int16 {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open mix: %v", err)
	}
	defer file.Close()
	_, size, err := speech.ReadWAVHeader(file)
	if err != nil {
		t.Fatalf("mix header: %v", err)
	}
	samples := make([]int16, size/2)
	if err := binary.Read(io.LimitReader(file, int64(size)), binary.LittleEndian, samples); err != nil {
		t.Fatalf("read samples: %v", err)
	}
	return samples
}

func TestMixAppliesGainWithClipping(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Mixing.Gain = 2
	writeSpeech(t, cfg, "tts_wf-mix_1.wav", []int16{100, -100, 20000, -20000, 0})

	mixer := mixing.NewMixer(cfg, nil)
	raw, err := stage.Execute(context.Background(), mixer, generatePayload(t, "tts_wf-mix_1.wav"), nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var result mixing.Result
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(result.MixedAudio, "mix_wf-mix_") || result.MixedBytes != 44+10 {
		t.Fatalf("unexpected mix result: %#v", result)
	}
	if result.Text != "Hello World" || result.AudioPath != "tts_wf-mix_1.wav" {
		t.Fatalf("upstream fields not carried through: %#v", result)
	}

	got := readSamples(t, filepath.Join(cfg.Paths.ArtifactDir, result.MixedAudio))
	want := []int16{200, -200, 32767, -32768, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestMixUnityGainCopies(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	writeSpeech(t, cfg, "tts_unity.wav", []int16{1, 2, 3})
	out, err := mixing.NewMixer(cfg, nil).Mix(context.Background(), "wf", "tts_unity.wav", nil)
	if err != nil {
		t.Fatalf("Mix: %v", err)
	}
	src, _ := os.ReadFile(filepath.Join(cfg.Paths.ArtifactDir, "tts_unity.wav"))
	dst, _ := os.ReadFile(out.Path)
	if !bytes.Equal(src, dst) {
		t.Fatal("unity gain should copy the artifact verbatim")
	}
}

func TestMixFailureClassification(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	mixer := mixing.NewMixer(cfg, nil)
	ctx := context.Background()

	if _, err := stage.Execute(ctx, mixer, generatePayload(t, "missing.wav"), nil); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := stage.Execute(ctx, mixer, generatePayload(t, "../escape.wav"), nil); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for traversal, got %v", err)
	}
	if err := os.WriteFile(filepath.Join(cfg.Paths.ArtifactDir, "fake.wav"), []byte("FAKE_MIX_AUDIO"), 0o644); err != nil {
		t.Fatalf("write fake: %v", err)
	}
	if _, err := stage.Execute(ctx, mixer, generatePayload(t, "fake.wav"), nil); !errors.Is(err, speech.ErrInvalidWAV) {
		t.Fatalf("expected invalid wav, got %v", err)
	}
	if _, err := stage.Execute(ctx, mixer, generatePayload(t, ""), nil); !errors.Is(err, stage.ErrTransformFailure) {
		t.Fatalf("expected failure for missing artifact reference, got %v", err)
	}
}
