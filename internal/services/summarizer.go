package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/earningscallsummarizer/internal/gcp"
	"github.com/Lllllllleong/earningscallsummarizer/internal/llm"
	"github.com/Lllllllleong/earningscallsummarizer/internal/models"
	"github.com/Lllllllleong/earningscallsummarizer/internal/pipeline"
	"github.com/Lllllllleong/earningscallsummarizer/internal/store"
	"github.com/Lllllllleong/earningscallsummarizer/internal/transcript"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// SummarizerConfig holds configuration for the synchronous summarizer.
type SummarizerConfig struct {
	ProjectID       string
	VertexAIRegion  string
	ModelName       string
	DefaultPreset   string
	RetryAttempts   int
	RetryDelay      time.Duration
	ArtifactsBucket string
	Store           store.Config
}

// LoadSummarizerConfig loads and validates the environment for the summarizer.
func LoadSummarizerConfig() (*SummarizerConfig, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	preset := gcp.GetEnv("PIPELINE_PRESET", pipeline.DefaultPreset)
	if _, err := pipeline.LookupPreset(preset); err != nil {
		return nil, fmt.Errorf("PIPELINE_PRESET: %w", err)
	}

	return &SummarizerConfig{
		ProjectID:       projectID,
		VertexAIRegion:  gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
		ModelName:       gcp.GetEnv("GEMINI_MODEL", gcp.DefaultModel),
		DefaultPreset:   preset,
		RetryAttempts:   gcp.GetEnvInt("LLM_RETRY_ATTEMPTS", llm.DefaultAttempts),
		RetryDelay:      gcp.GetEnvDuration("LLM_RETRY_DELAY", llm.DefaultDelay),
		ArtifactsBucket: gcp.GetEnv("ARTIFACTS_BUCKET", ""),
		Store: store.Config{
			Backend:        gcp.GetEnv("STORE_BACKEND", store.BackendFirestore),
			ProjectID:      projectID,
			CollectionName: gcp.GetEnv("FIRESTORE_COLLECTION", "summaries"),
			SQLitePath:     gcp.GetEnv("SQLITE_PATH", ""),
		},
	}, nil
}

// SummarizeInput is one uploaded transcript.
type SummarizeInput struct {
	Filename string
	Data     []byte
	Preset   string
}

// SummarizeOutput is what the display layer renders. Result holds any completed stages,
// also when err is non-nil.
type SummarizeOutput struct {
	RunID     string           `json:"runId,omitempty"`
	Filename  string           `json:"filename"`
	Preset    string           `json:"preset"`
	PageCount int              `json:"pageCount,omitempty"`
	Cached    bool             `json:"cached"`
	Result    *pipeline.Result `json:"result,omitempty"`
	Report    string           `json:"report"`
	Format    llm.Format       `json:"format"`
	ReportURI string           `json:"reportGcsUri,omitempty"`
}

// Summarizer runs the whole pipeline for one upload within a single request.
type Summarizer struct {
	models    pipeline.Models
	caller    *llm.Caller
	store     store.Store
	artifacts *gcp.Artifacts
	preset    string

	readTranscript func([]byte) (*transcript.Transcript, error)
	closers        []func() error
}

// NewSummarizer creates a Summarizer configured from the environment.
func NewSummarizer(ctx context.Context) (*Summarizer, error) {
	config, err := LoadSummarizerConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return NewSummarizerFromConfig(ctx, config)
}

// NewSummarizerFromConfig creates all clients named by config.
func NewSummarizerFromConfig(ctx context.Context, config *SummarizerConfig) (*Summarizer, error) {
	vertexClient, err := gcp.NewVertexClient(ctx, config.ProjectID, config.VertexAIRegion, config.ModelName)
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex client: %w", err)
	}
	closers := []func() error{vertexClient.Close}

	runs, err := store.Open(ctx, config.Store)
	if err != nil {
		vertexClient.Close()
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}
	if runs != nil {
		closers = append(closers, runs.Close)
	}

	var artifacts *gcp.Artifacts
	if config.ArtifactsBucket != "" {
		storageClient, err := storage.NewClient(ctx)
		if err != nil {
			for _, c := range closers {
				_ = c()
			}
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		closers = append(closers, storageClient.Close)
		artifacts = gcp.NewArtifacts(storageClient, config.ArtifactsBucket)
	}

	s := NewSummarizerWith(vertexClient, llm.NewCaller(config.RetryAttempts, config.RetryDelay), runs, artifacts, config.DefaultPreset)
	s.closers = closers
	slog.Info("Summarizer initialized.", "preset", config.DefaultPreset, "model", config.ModelName, "store", config.Store.Backend)
	return s, nil
}

// NewSummarizerWith assembles a Summarizer from already-built dependencies.
// store and artifacts may be nil.
func NewSummarizerWith(gens pipeline.Models, caller *llm.Caller, runs store.Store, artifacts *gcp.Artifacts, defaultPreset string) *Summarizer {
	if defaultPreset == "" {
		defaultPreset = pipeline.DefaultPreset
	}
	return &Summarizer{
		models:         gens,
		caller:         caller,
		store:          runs,
		artifacts:      artifacts,
		preset:         defaultPreset,
		readTranscript: transcript.Read,
	}
}

// DefaultPreset is the preset used when a request names none.
func (s *Summarizer) DefaultPreset() string { return s.preset }

// Close releases the clients the Summarizer owns.
func (s *Summarizer) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// Summarize reads the PDF, runs every stage and records the run.
func (s *Summarizer) Summarize(ctx context.Context, in SummarizeInput) (*SummarizeOutput, error) {
	presetName := in.Preset
	if presetName == "" {
		presetName = s.preset
	}
	p, err := pipeline.New(presetName, s.models, s.caller)
	if err != nil {
		return nil, err
	}
	presetName = p.Preset().Name

	out := &SummarizeOutput{Filename: in.Filename, Preset: presetName}
	fileHash := transcript.Hash(in.Data)
	logCtx := slog.With("filename", in.Filename, "preset", presetName, "fileHash", fileHash)

	if s.store != nil {
		existing, err := s.store.FindCompleted(ctx, fileHash, presetName)
		if err != nil {
			logCtx.Warn("Duplicate lookup failed. Continuing without cache.", "error", err)
		} else if existing != nil {
			logCtx.Info("Duplicate upload. Returning cached report.", "runId", existing.ID)
			out.RunID = existing.ID
			out.Cached = true
			out.PageCount = existing.PageCount
			out.Report = existing.Report
			out.Format = llm.Format(existing.ReportFormat)
			out.ReportURI = existing.ReportGCSUri
			return out, nil
		}
	}

	run := &models.Run{
		FileHash:         fileHash,
		OriginalFilename: in.Filename,
		Preset:           presetName,
		Status:           models.StatusReceived,
		ExecutionID:      uuid.NewString(),
	}
	if s.store != nil {
		if _, err := s.store.Create(ctx, run); err != nil {
			return nil, fmt.Errorf("failed to create run record: %w", err)
		}
	} else {
		run.ID = run.ExecutionID
	}
	out.RunID = run.ID
	logCtx = logCtx.With("runId", run.ID)
	logCtx.Info("Created run.")

	s.markStatus(ctx, logCtx, run.ID, models.StatusExtracting)
	tr, err := s.readTranscript(in.Data)
	if err != nil {
		return out, s.handleError(ctx, logCtx, run.ID, "failed to read transcript", err)
	}
	out.PageCount = tr.PageCount
	if s.store != nil {
		if err := s.store.SetPageCount(ctx, run.ID, tr.PageCount); err != nil {
			logCtx.Warn("Failed to record page count.", "error", err)
		}
	}
	logCtx.Info("PDF read successfully.", "pageCount", tr.PageCount, "pagesWithText", len(tr.Pages))

	s.markStatus(ctx, logCtx, run.ID, models.StatusSummarizing)
	text := tr.Text()
	res, err := p.Run(ctx, text)
	out.Result = res
	if err != nil {
		return out, s.handleError(ctx, logCtx, run.ID, "summarization halted", err)
	}

	final := res.Final()
	out.Report = final.Output
	out.Format = final.Format

	reportURI, err := s.saveArtifacts(ctx, run.ID, in.Data, text, final)
	if err != nil {
		// The report is still returned to the caller.
		logCtx.Error("Failed to save artifacts", "error", err)
	}
	out.ReportURI = reportURI

	if s.store != nil {
		report := models.Report{Text: out.Report, Format: string(out.Format), GCSUri: reportURI}
		if err := s.store.Complete(ctx, run.ID, report); err != nil {
			logCtx.Error("Failed to mark run completed", "error", err)
		}
	}
	logCtx.Info("Run complete.", "stages", len(res.Stages))
	return out, nil
}

// RecentRuns lists the newest run records. Without a store it returns nothing.
func (s *Summarizer) RecentRuns(ctx context.Context, limit int) ([]models.Run, error) {
	if s.store == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	return s.store.Recent(ctx, limit)
}

// saveArtifacts writes the source PDF, the extracted text and the report concurrently.
func (s *Summarizer) saveArtifacts(ctx context.Context, runID string, pdf []byte, text string, final *pipeline.StageResult) (string, error) {
	if s.artifacts == nil {
		return "", nil
	}
	reportObject := path.Join(runID, "report."+pipeline.Extension(final.Format))

	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		_, err := s.artifacts.Save(gctx, path.Join(runID, "source.pdf"), pdf)
		return err
	})
	eg.Go(func() error {
		_, err := s.artifacts.Save(gctx, path.Join(runID, "transcript.txt"), []byte(text))
		return err
	})
	eg.Go(func() error {
		_, err := s.artifacts.Save(gctx, reportObject, []byte(final.Output))
		return err
	})
	if err := eg.Wait(); err != nil {
		return "", err
	}
	return s.artifacts.URI(reportObject), nil
}

func (s *Summarizer) markStatus(ctx context.Context, logCtx *slog.Logger, runID, status string) {
	if s.store == nil {
		return
	}
	if err := s.store.MarkStatus(ctx, runID, status); err != nil {
		logCtx.Warn("Failed to update run status.", "status", status, "error", err)
	}
}

func (s *Summarizer) handleError(ctx context.Context, logCtx *slog.Logger, runID, message string, originalErr error) error {
	logCtx.Error(message, "error", originalErr)
	if s.store != nil {
		if err := s.store.MarkFailed(ctx, runID, fmt.Sprintf("%s: %v", message, originalErr)); err != nil {
			logCtx.Error("CRITICAL: Failed to update run status to FAILED after a processing error.", "updateError", err)
		}
	}
	return fmt.Errorf("%s: %w", message, originalErr)
}
