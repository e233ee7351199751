package services

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/earningscallsummarizer/internal/gcp"
	"github.com/Lllllllleong/earningscallsummarizer/internal/llm"
	"github.com/Lllllllleong/earningscallsummarizer/internal/models"
	"github.com/Lllllllleong/earningscallsummarizer/internal/pipeline"
	"github.com/Lllllllleong/earningscallsummarizer/internal/store"
)

// StageRunnerFunction runs one pipeline stage per workflow step.
type StageRunnerFunction struct {
	models    pipeline.Models
	caller    *llm.Caller
	runs      store.Store
	artifacts blobStore
}

func NewStageRunner(ctx context.Context) (*StageRunnerFunction, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	bucket := gcp.GetEnv("ARTIFACTS_BUCKET", "")
	if bucket == "" {
		return nil, fmt.Errorf("ARTIFACTS_BUCKET environment variable must be set")
	}

	vertexClient, err := gcp.NewVertexClient(ctx, projectID, gcp.GetEnv("VERTEX_AI_REGION", "us-central1"), gcp.GetEnv("GEMINI_MODEL", gcp.DefaultModel))
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex client: %w", err)
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	runs, err := store.Open(ctx, store.Config{
		Backend:        store.BackendFirestore,
		ProjectID:      projectID,
		CollectionName: gcp.GetEnv("FIRESTORE_COLLECTION", "summaries"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}

	caller := llm.NewCaller(
		gcp.GetEnvInt("LLM_RETRY_ATTEMPTS", llm.DefaultAttempts),
		gcp.GetEnvDuration("LLM_RETRY_DELAY", llm.DefaultDelay),
	)
	return NewStageRunnerWith(vertexClient, caller, runs, gcp.NewArtifacts(storageClient, bucket)), nil
}

// NewStageRunnerWith assembles a StageRunnerFunction from already-built dependencies.
func NewStageRunnerWith(gens pipeline.Models, caller *llm.Caller, runs store.Store, artifacts blobStore) *StageRunnerFunction {
	return &StageRunnerFunction{models: gens, caller: caller, runs: runs, artifacts: artifacts}
}

// Process runs the stage named by req.StageIndex and saves its output.
// The last stage of the preset completes the run.
func (f *StageRunnerFunction) Process(ctx context.Context, req *models.StageRunnerRequest) (*models.StageRunnerResponse, error) {
	logCtx := slog.With("runId", req.RunID, "preset", req.Preset, "stageIndex", req.StageIndex, "executionId", req.ExecutionID)

	p, err := pipeline.New(req.Preset, f.models, f.caller)
	if err != nil {
		logCtx.Error("Invalid preset", "error", err)
		return nil, err
	}
	stages := p.Preset().Stages
	if req.StageIndex < 0 || req.StageIndex >= len(stages) {
		err := fmt.Errorf("stage index %d out of range for preset %q (%d stages)", req.StageIndex, req.Preset, len(stages))
		logCtx.Error("Invalid stage index", "error", err)
		return nil, err
	}
	stage := stages[req.StageIndex]
	final := req.StageIndex == len(stages)-1
	logCtx = logCtx.With("stage", stage.Name)

	inputURI, err := stageInputURI(stage, req)
	if err != nil {
		return nil, f.handleError(ctx, logCtx, req.RunID, "invalid stage input", err)
	}
	input, err := f.artifacts.Read(ctx, inputURI)
	if err != nil {
		return nil, f.handleError(ctx, logCtx, req.RunID, "failed to read stage input", err)
	}

	if req.StageIndex == 0 {
		if err := f.runs.MarkStatus(ctx, req.RunID, models.StatusSummarizing); err != nil {
			logCtx.Warn("Failed to update status to SUMMARIZING", "error", err)
		}
	}

	logCtx.Info("Running stage.", "inputGcsUri", inputURI)
	sr, err := p.RunStage(ctx, stage, string(input))
	if err != nil {
		return nil, f.handleError(ctx, logCtx, req.RunID, "stage failed", err)
	}
	if sr.ParseError != "" {
		logCtx.Warn("Stage output is not valid JSON. Passing raw text through.", "error", sr.ParseError)
	}

	uri, err := f.artifacts.Save(ctx, StageObjectName(req.RunID, req.StageIndex, stage), []byte(sr.Output))
	if err != nil {
		return nil, f.handleError(ctx, logCtx, req.RunID, "failed to save stage output", err)
	}

	if final {
		report := models.Report{Text: sr.Output, Format: string(sr.Format), GCSUri: uri}
		if err := f.runs.Complete(ctx, req.RunID, report); err != nil {
			return nil, f.handleError(ctx, logCtx, req.RunID, "failed to complete run", err)
		}
		logCtx.Info("Run complete.", "reportGcsUri", uri)
	} else {
		logCtx.Info("Stage complete.", "outputGcsUri", uri)
	}

	return &models.StageRunnerResponse{
		Status:       "success",
		Stage:        stage.Name,
		OutputGCSUri: uri,
		Final:        final,
	}, nil
}

// StageObjectName is the artifact name of a stage output, e.g. "<run>/02-analyzer.json".
func StageObjectName(runID string, index int, stage pipeline.Stage) string {
	return fmt.Sprintf("%s/%02d-%s.%s", runID, index+1, stage.Name, pipeline.Extension(stage.Format))
}

func stageInputURI(stage pipeline.Stage, req *models.StageRunnerRequest) (string, error) {
	if stage.Input == pipeline.InputPrevious && req.StageIndex > 0 {
		if req.PreviousGCSUri == "" {
			return "", fmt.Errorf("stage %q needs the previous stage output but previousGcsUri is empty", stage.Name)
		}
		return req.PreviousGCSUri, nil
	}
	if req.TranscriptGCSUri == "" {
		return "", fmt.Errorf("transcriptGcsUri is empty")
	}
	return req.TranscriptGCSUri, nil
}

func (f *StageRunnerFunction) handleError(ctx context.Context, logCtx *slog.Logger, runID, message string, originalErr error) error {
	logCtx.Error(message, "error", originalErr)
	if err := f.runs.MarkFailed(ctx, runID, fmt.Sprintf("%s: %v", message, originalErr)); err != nil {
		logCtx.Error("CRITICAL: Failed to update run status to FAILED after a processing error.", "updateError", err)
	}
	return fmt.Errorf("%s: %w", message, originalErr)
}
