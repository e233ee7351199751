package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/Lllllllleong/earningscallsummarizer/internal/llm"
	"github.com/Lllllllleong/earningscallsummarizer/internal/models"
	"github.com/Lllllllleong/earningscallsummarizer/internal/pipeline"
	"github.com/Lllllllleong/earningscallsummarizer/internal/store"
)

type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemBlobs() *memBlobs { return &memBlobs{objects: map[string][]byte{}} }

func (b *memBlobs) Save(ctx context.Context, objectName string, content []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	uri := "gs://artifacts/" + objectName
	if _, ok := b.objects[uri]; !ok {
		b.objects[uri] = content
	}
	return uri, nil
}

func (b *memBlobs) Read(ctx context.Context, uri string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[uri]
	if !ok {
		return nil, fmt.Errorf("object %s not found", uri)
	}
	return data, nil
}

func openMemStore(t *testing.T) store.Store {
	t.Helper()
	runs, err := store.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { runs.Close() })
	return runs
}

func newTestIntake(t *testing.T, uploads map[string][]byte) (*IntakeFunction, *memBlobs, *[]models.WorkflowArgument) {
	t.Helper()
	blobs := newMemBlobs()
	var started []models.WorkflowArgument
	f := &IntakeFunction{
		runs:      openMemStore(t),
		artifacts: blobs,
		config:    IntakeConfig{ProjectID: "p", Preset: "agents"},
		readObject: func(ctx context.Context, bucket, name string) ([]byte, error) {
			data, ok := uploads[name]
			if !ok {
				return nil, errors.New("no such object")
			}
			return data, nil
		},
		startWorkflow: func(ctx context.Context, arg models.WorkflowArgument) (string, error) {
			started = append(started, arg)
			return "executions/1", nil
		},
		readTranscript: fakeTranscript,
	}
	return f, blobs, &started
}

func TestIntakeQueuesTranscript(t *testing.T) {
	ctx := context.Background()
	f, blobs, started := newTestIntake(t, map[string][]byte{"acme-q3.pdf": []byte("acme")})

	if err := f.Process(ctx, GCSEvent{Bucket: "uploads", Name: "acme-q3.pdf"}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(*started) != 1 {
		t.Fatalf("expected one workflow execution, got %d", len(*started))
	}
	arg := (*started)[0]
	if arg.Preset != "agents" || arg.StageCount != 3 || !strings.HasSuffix(arg.TranscriptGCSUri, "/transcript.txt") {
		t.Fatalf("unexpected workflow argument %#v", arg)
	}
	text, err := blobs.Read(ctx, arg.TranscriptGCSUri)
	if err != nil || string(text) != "Good afternoon. Questions?" {
		t.Fatalf("unexpected transcript artifact %q %v", text, err)
	}

	run, err := f.runs.Get(ctx, arg.RunID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.Status != models.StatusQueued || run.PageCount != 2 || run.OriginalFilename != "acme-q3.pdf" {
		t.Fatalf("unexpected run %#v", run)
	}

	// Re-uploading the same bytes is a no-op.
	if err := f.Process(ctx, GCSEvent{Bucket: "uploads", Name: "acme-q3.pdf"}); err != nil {
		t.Fatalf("duplicate: %v", err)
	}
	if len(*started) != 1 {
		t.Fatalf("duplicate upload started a workflow")
	}
}

func TestIntakeSkipsNonPDF(t *testing.T) {
	f, _, started := newTestIntake(t, nil)
	if err := f.Process(context.Background(), GCSEvent{Bucket: "uploads", Name: "notes.txt"}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(*started) != 0 {
		t.Fatalf("non-PDF object started a workflow")
	}
}

func TestIntakeUnreadablePDFMarksFailed(t *testing.T) {
	ctx := context.Background()
	f, _, started := newTestIntake(t, map[string][]byte{"bad.pdf": []byte("broken")})

	if err := f.Process(ctx, GCSEvent{Bucket: "uploads", Name: "bad.pdf"}); err == nil {
		t.Fatalf("expected error")
	}
	if len(*started) != 0 {
		t.Fatalf("unreadable PDF started a workflow")
	}
	runs, _ := f.runs.Recent(ctx, 1)
	if len(runs) != 1 || runs[0].Status != models.StatusFailed {
		t.Fatalf("expected one failed run, got %#v", runs)
	}
}

func TestStageRunnerRunsPresetToCompletion(t *testing.T) {
	ctx := context.Background()
	runs := openMemStore(t)
	blobs := newMemBlobs()
	m := &echoModels{}
	runner := NewStageRunnerWith(m, llm.NewCaller(1, 0), runs, blobs)

	runID, err := runs.Create(ctx, &models.Run{FileHash: "h", Preset: "agents", Status: models.StatusQueued})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	transcriptURI, _ := blobs.Save(ctx, runID+"/transcript.txt", []byte("Good afternoon."))

	previous := ""
	var last *models.StageRunnerResponse
	for i := 0; i < 3; i++ {
		res, err := runner.Process(ctx, &models.StageRunnerRequest{
			RunID:            runID,
			Preset:           "agents",
			StageIndex:       i,
			TranscriptGCSUri: transcriptURI,
			PreviousGCSUri:   previous,
		})
		if err != nil {
			t.Fatalf("stage %d: %v", i, err)
		}
		if res.Final != (i == 2) {
			t.Fatalf("stage %d final=%v", i, res.Final)
		}
		previous = res.OutputGCSUri
		last = res
	}

	if !strings.HasSuffix(last.OutputGCSUri, "/03-synthesizer.md") {
		t.Fatalf("unexpected report object %s", last.OutputGCSUri)
	}
	run, _ := runs.Get(ctx, runID)
	if run.Status != models.StatusCompleted || run.ReportFormat != "markdown" || run.ReportGCSUri != last.OutputGCSUri {
		t.Fatalf("unexpected run %#v", run)
	}
}

func TestStageRunnerFailureMarksRun(t *testing.T) {
	ctx := context.Background()
	runs := openMemStore(t)
	blobs := newMemBlobs()
	runner := NewStageRunnerWith(&echoModels{fail: errors.New("quota exceeded")}, llm.NewCaller(2, 0), runs, blobs)

	runID, _ := runs.Create(ctx, &models.Run{FileHash: "h", Preset: "brief", Status: models.StatusQueued})
	transcriptURI, _ := blobs.Save(ctx, runID+"/transcript.txt", []byte("text"))

	_, err := runner.Process(ctx, &models.StageRunnerRequest{RunID: runID, Preset: "brief", TranscriptGCSUri: transcriptURI})
	if !errors.Is(err, llm.ErrQuotaExceeded) {
		t.Fatalf("expected quota error, got %v", err)
	}
	run, _ := runs.Get(ctx, runID)
	if run.Status != models.StatusFailed || !strings.Contains(run.ErrorDetails, "extractor") {
		t.Fatalf("unexpected run %#v", run)
	}
}

func TestStageRunnerRejectsBadRequests(t *testing.T) {
	ctx := context.Background()
	runner := NewStageRunnerWith(&echoModels{}, llm.NewCaller(1, 0), openMemStore(t), newMemBlobs())

	if _, err := runner.Process(ctx, &models.StageRunnerRequest{Preset: "agents", StageIndex: 3}); err == nil {
		t.Fatalf("expected out of range error")
	}
	if _, err := runner.Process(ctx, &models.StageRunnerRequest{Preset: "nope"}); err == nil {
		t.Fatalf("expected unknown preset error")
	}
}

func TestStageInputURI(t *testing.T) {
	preset, _ := pipeline.LookupPreset("agents")
	req := &models.StageRunnerRequest{StageIndex: 1, TranscriptGCSUri: "gs://a/t.txt", PreviousGCSUri: "gs://a/01-chunker.json"}

	// The analyzer reads the transcript, not the chunks.
	if uri, err := stageInputURI(preset.Stages[1], req); err != nil || uri != "gs://a/t.txt" {
		t.Fatalf("analyzer input: %s %v", uri, err)
	}
	req.StageIndex = 2
	if uri, err := stageInputURI(preset.Stages[2], req); err != nil || uri != "gs://a/01-chunker.json" {
		t.Fatalf("synthesizer input: %s %v", uri, err)
	}
	req.PreviousGCSUri = ""
	if _, err := stageInputURI(preset.Stages[2], req); err == nil {
		t.Fatalf("expected error without previous output")
	}
}

func TestStageObjectName(t *testing.T) {
	preset, _ := pipeline.LookupPreset("structured")
	if got := StageObjectName("run1", 0, preset.Stages[0]); got != "run1/01-cleaner.txt" {
		t.Fatalf("got %s", got)
	}
	if got := StageObjectName("run1", 2, preset.Stages[2]); got != "run1/03-reporter.json" {
		t.Fatalf("got %s", got)
	}
}
