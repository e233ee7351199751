package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
	"github.com/Lllllllleong/earningscallsummarizer/internal/gcp"
	"github.com/Lllllllleong/earningscallsummarizer/internal/models"
	"github.com/Lllllllleong/earningscallsummarizer/internal/pipeline"
	"github.com/Lllllllleong/earningscallsummarizer/internal/store"
	"github.com/Lllllllleong/earningscallsummarizer/internal/transcript"
)

// blobStore is the artifact storage used by the asynchronous path.
type blobStore interface {
	Save(ctx context.Context, objectName string, content []byte) (string, error)
	Read(ctx context.Context, uri string) ([]byte, error)
}

type IntakeConfig struct {
	ProjectID        string
	ArtifactsBucket  string
	Preset           string
	WorkflowID       string
	WorkflowLocation string
	Store            store.Config
}

// IntakeFunction validates uploaded transcripts and hands them to the workflow.
type IntakeFunction struct {
	runs      store.Store
	artifacts blobStore
	config    IntakeConfig

	readObject     func(ctx context.Context, bucket, name string) ([]byte, error)
	startWorkflow  func(ctx context.Context, arg models.WorkflowArgument) (string, error)
	readTranscript func([]byte) (*transcript.Transcript, error)
}

// GCSEvent is the payload of a GCS object-finalized event.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

func NewIntake(ctx context.Context) (*IntakeFunction, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}

	config := IntakeConfig{
		ProjectID:        projectID,
		ArtifactsBucket:  gcp.GetEnv("ARTIFACTS_BUCKET", ""),
		Preset:           gcp.GetEnv("PIPELINE_PRESET", pipeline.DefaultPreset),
		WorkflowLocation: gcp.GetEnv("WORKFLOW_LOCATION", "us-central1"),
		WorkflowID:       gcp.GetEnv("WORKFLOW_ID", "earnings-summary-orchestrator"),
		Store: store.Config{
			Backend:        store.BackendFirestore,
			ProjectID:      projectID,
			CollectionName: gcp.GetEnv("FIRESTORE_COLLECTION", "summaries"),
		},
	}
	if config.ArtifactsBucket == "" {
		return nil, fmt.Errorf("ARTIFACTS_BUCKET environment variable must be set")
	}
	if _, err := pipeline.LookupPreset(config.Preset); err != nil {
		return nil, fmt.Errorf("PIPELINE_PRESET: %w", err)
	}

	runs, err := store.Open(ctx, config.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	executionsClient, err := executions.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
	}

	f := &IntakeFunction{
		runs:      runs,
		artifacts: gcp.NewArtifacts(storageClient, config.ArtifactsBucket),
		config:    config,
		readObject: func(ctx context.Context, bucket, name string) ([]byte, error) {
			return gcp.ReadGCSObject(ctx, storageClient.Bucket(bucket), name)
		},
		readTranscript: transcript.Read,
	}
	f.startWorkflow = func(ctx context.Context, arg models.WorkflowArgument) (string, error) {
		return f.createExecution(ctx, executionsClient, arg)
	}
	slog.Info("Intake logic initialized.", "workflowId", config.WorkflowID, "preset", config.Preset)
	return f, nil
}

// Process handles one uploaded object. Duplicates and non-PDF objects are skipped.
func (f *IntakeFunction) Process(ctx context.Context, e GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	if !strings.EqualFold(path.Ext(e.Name), ".pdf") {
		logCtx.Info("Object is not a PDF. Skipping.")
		return nil
	}
	logCtx.Info("Processing new transcript upload.")

	data, err := f.readObject(ctx, e.Bucket, e.Name)
	if err != nil {
		logCtx.Error("Failed to download source PDF", "error", err)
		return err
	}

	fileHash := transcript.Hash(data)
	logCtx = logCtx.With("fileHash", fileHash)

	existing, err := f.runs.FindByHash(ctx, fileHash, f.config.Preset)
	if err != nil {
		logCtx.Error("Failed to check for duplicate", "error", err)
		return err
	}
	if existing != nil && existing.Status != models.StatusFailed {
		logCtx.Info("Duplicate file detected. Skipping.", "existingRunId", existing.ID, "status", existing.Status)
		return nil
	}

	run := &models.Run{
		FileHash:         fileHash,
		OriginalFilename: e.Name,
		Preset:           f.config.Preset,
		Status:           models.StatusReceived,
	}
	runID, err := f.runs.Create(ctx, run)
	if err != nil {
		logCtx.Error("Failed to create run record", "error", err)
		return err
	}
	logCtx = logCtx.With("runId", runID)
	logCtx.Info("Created run record.")

	transcriptURI, stageCount, err := f.extract(ctx, logCtx, runID, data)
	if err != nil {
		return err
	}

	if err := f.runs.MarkStatus(ctx, runID, models.StatusQueued); err != nil {
		return f.handleError(ctx, logCtx, runID, "failed to update status to QUEUED", err)
	}

	executionName, err := f.startWorkflow(ctx, models.WorkflowArgument{
		RunID:            runID,
		Preset:           f.config.Preset,
		TranscriptGCSUri: transcriptURI,
		StageCount:       stageCount,
	})
	if err != nil {
		return f.handleError(ctx, logCtx, runID, "failed to trigger workflow execution", err)
	}

	logCtx.Info("Hand-off to workflow complete.", "execution", executionName)
	return nil
}

func (f *IntakeFunction) extract(ctx context.Context, logCtx *slog.Logger, runID string, data []byte) (string, int, error) {
	if err := f.runs.MarkStatus(ctx, runID, models.StatusExtracting); err != nil {
		return "", 0, f.handleError(ctx, logCtx, runID, "failed to update status to EXTRACTING", err)
	}
	tr, err := f.readTranscript(data)
	if err != nil {
		return "", 0, f.handleError(ctx, logCtx, runID, "failed to read transcript", err)
	}
	if err := f.runs.SetPageCount(ctx, runID, tr.PageCount); err != nil {
		return "", 0, f.handleError(ctx, logCtx, runID, "failed to record page count", err)
	}

	uri, err := f.artifacts.Save(ctx, path.Join(runID, "transcript.txt"), []byte(tr.Text()))
	if err != nil {
		return "", 0, f.handleError(ctx, logCtx, runID, "failed to save transcript text", err)
	}

	preset, _ := pipeline.LookupPreset(f.config.Preset)
	logCtx.Info("Transcript extracted.", "pageCount", tr.PageCount, "transcriptGcsUri", uri)
	return uri, len(preset.Stages), nil
}

func (f *IntakeFunction) createExecution(ctx context.Context, client *executions.Client, arg models.WorkflowArgument) (string, error) {
	payload, err := json.Marshal(arg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal workflow payload: %w", err)
	}
	req := &executionspb.CreateExecutionRequest{
		Parent: fmt.Sprintf("projects/%s/locations/%s/workflows/%s", f.config.ProjectID, f.config.WorkflowLocation, f.config.WorkflowID),
		Execution: &executionspb.Execution{
			Argument: string(payload),
		},
	}
	exec, err := client.CreateExecution(ctx, req)
	if err != nil {
		return "", err
	}
	return exec.GetName(), nil
}

func (f *IntakeFunction) handleError(ctx context.Context, logCtx *slog.Logger, runID, message string, originalErr error) error {
	fullError := fmt.Sprintf("%s: %v", message, originalErr)
	logCtx.Error(message, "error", originalErr)
	if err := f.runs.MarkFailed(ctx, runID, fullError); err != nil {
		logCtx.Error("CRITICAL: Failed to update run status to FAILED after a processing error.", "updateError", err)
	}
	return fmt.Errorf("%s: %w", message, originalErr)
}
