package subtitles_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"dubflow/internal/services"
	"dubflow/internal/stage"
	"dubflow/internal/subtitles"
)

func TestExtractorSingleBlock(t *testing.T) {
	extractor := subtitles.NewExtractor(nil)
	payload, _ := json.Marshal(subtitles.Request{
		WorkflowID: "wf-1",
		Input:      "1\n00:00:01,000 --> 00:00:03,000\nHello World",
		Voice:      "female",
	})

	var seen []int
	raw, err := stage.Execute(context.Background(), extractor, payload, func(p int) { seen = append(seen, p) })
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var result subtitles.Result
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(result.Entries) != 1 || result.Entries[0].Duration != 2 {
		t.Fatalf("expected one entry with duration 2, got %#v", result.Entries)
	}
	if result.Text != "Hello World" || result.TotalDuration != 3 || result.Voice != "female" || result.WorkflowID != "wf-1" {
		t.Fatalf("unexpected result: %#v", result)
	}
	if len(seen) == 0 {
		t.Fatal("expected progress reports")
	}
}

func TestExtractorRejectsGarbage(t *testing.T) {
	extractor := subtitles.NewExtractor(nil)
	payload, _ := json.Marshal(subtitles.Request{WorkflowID: "wf-2", Input: "Invalid SRT content"})
	_, err := stage.Execute(context.Background(), extractor, payload, nil)
	if !errors.Is(err, stage.ErrTransformFailure) {
		t.Fatalf("expected ErrTransformFailure, got %v", err)
	}
	if !errors.Is(err, services.ErrValidation) || !errors.Is(err, subtitles.ErrInvalidSRT) {
		t.Fatalf("expected validation classification, got %v", err)
	}
	if _, err := stage.Execute(context.Background(), extractor, []byte("{"), nil); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected decode failure to be a validation error, got %v", err)
	}
}
