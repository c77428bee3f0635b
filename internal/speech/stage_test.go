package speech_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dubflow/internal/services"
	"dubflow/internal/speech"
	"dubflow/internal/stage"
	"dubflow/internal/subtitles"
	"dubflow/internal/testsupport"
)

func extractPayload(t *testing.T, voice string) []byte {
	t.Helper()
	payload, err := json.Marshal(subtitles.Result{
		WorkflowID:    "wf-speech",
		Voice:         voice,
		Entries:       []subtitles.Entry{{ID: "1", Text: "Hello World", StartSeconds: 1, EndSeconds: 3, Duration: 2}},
		Text:          "Hello World",
		TotalDuration: 3,
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return payload
}

func TestGeneratorWritesArtifact(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	gen := speech.NewGenerator(speech.NewSynthesizer(cfg, nil), cfg.Speech.DefaultVoice, nil)

	raw, err := stage.Execute(context.Background(), gen, extractPayload(t, ""), nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var result speech.Result
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Text != "Hello World" || len(result.Entries) != 1 || result.Voice != "default" {
		t.Fatalf("extract fields not carried through: %#v", result)
	}
	if !strings.HasPrefix(result.AudioPath, "tts_wf-speech_") || !strings.HasSuffix(result.AudioPath, ".wav") {
		t.Fatalf("unexpected artifact name %q", result.AudioPath)
	}
	if result.AudioDuration != 3 || result.EstimatedDuration != 1 {
		t.Fatalf("unexpected durations: %#v", result)
	}

	file, err := os.Open(filepath.Join(cfg.Paths.ArtifactDir, result.AudioPath))
	if err != nil {
		t.Fatalf("open artifact: %v", err)
	}
	defer file.Close()
	format, size, err := speech.ReadWAVHeader(file)
	if err != nil {
		t.Fatalf("artifact header: %v", err)
	}
	if format != speech.CDQuality || size != speech.CDQuality.DataSize(3) {
		t.Fatalf("unexpected artifact layout %#v %d", format, size)
	}
}

func TestGeneratorRejectsUnknownVoice(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	gen := speech.NewGenerator(speech.NewSynthesizer(cfg, nil), "default", nil)
	_, err := stage.Execute(context.Background(), gen, extractPayload(t, "robot"), nil)
	if !errors.Is(err, services.ErrValidation) || !errors.Is(err, speech.ErrUnknownVoice) {
		t.Fatalf("expected voice validation failure, got %v", err)
	}
}

func TestGeneratorHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	gen := speech.NewGenerator(speech.NewSynthesizer(cfg, nil), "default", nil)
	if health := gen.HealthCheck(context.Background()); !health.Ready {
		t.Fatalf("expected healthy generator, got %#v", health)
	}
}
