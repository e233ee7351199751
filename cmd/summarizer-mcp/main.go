// Command summarizer-mcp exposes the summarizer as MCP tools over stdio.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Lllllllleong/earningscallsummarizer/internal/pipeline"
	"github.com/Lllllllleong/earningscallsummarizer/internal/services"
	"github.com/Lllllllleong/earningscallsummarizer/internal/store"
	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const version = "0.1.0"

func main() {
	// stdout carries the protocol.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	if err := run(); err != nil {
		slog.Error("summarizer-mcp exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// A local .env is optional.
	_ = godotenv.Load()

	config, err := services.LoadSummarizerConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if _, ok := os.LookupEnv("STORE_BACKEND"); !ok {
		config.Store.Backend = store.BackendSQLite
	}

	summarizer, err := services.NewSummarizerFromConfig(ctx, config)
	if err != nil {
		return err
	}
	defer summarizer.Close()

	s := server.NewMCPServer("earnings-call-summarizer", version, server.WithToolCapabilities(false))
	t := &tools{summarizer: summarizer}

	var presetNames []string
	for _, p := range pipeline.Presets() {
		presetNames = append(presetNames, p.Name)
	}

	s.AddTool(mcp.NewTool("summarize_transcript",
		mcp.WithDescription("Summarize an earnings call transcript PDF into an executive summary."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path to the transcript PDF on the local filesystem")),
		mcp.WithString("preset", mcp.Description("Pipeline preset: "+strings.Join(presetNames, ", ")), mcp.Enum(presetNames...)),
	), t.summarizeTranscript)

	s.AddTool(mcp.NewTool("list_runs",
		mcp.WithDescription("List recent summarization runs, newest first."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of runs to return (default 20)")),
	), t.listRuns)

	slog.Info("Serving MCP over stdio.", "preset", summarizer.DefaultPreset(), "store", config.Store.Backend)
	return server.ServeStdio(s)
}

type tools struct {
	summarizer *services.Summarizer
}

func (t *tools) summarizeTranscript(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("could not read %s: %v", path, err)), nil
	}

	out, err := t.summarizer.Summarize(ctx, services.SummarizeInput{
		Filename: filepath.Base(path),
		Data:     data,
		Preset:   request.GetString("preset", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Run %s (%s, %d pages", out.RunID, out.Preset, out.PageCount)
	if out.Cached {
		b.WriteString(", cached")
	}
	b.WriteString(")\n\n")
	b.WriteString(out.Report)
	return mcp.NewToolResultText(b.String()), nil
}

func (t *tools) listRuns(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runs, err := t.summarizer.RecentRuns(ctx, request.GetInt("limit", 20))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	type runSummary struct {
		ID        string `json:"id"`
		Filename  string `json:"filename"`
		Preset    string `json:"preset"`
		Status    string `json:"status"`
		PageCount int    `json:"pageCount"`
		Error     string `json:"error,omitempty"`
		CreatedAt string `json:"createdAt"`
	}
	summaries := make([]runSummary, 0, len(runs))
	for _, r := range runs {
		summaries = append(summaries, runSummary{
			ID:        r.ID,
			Filename:  r.OriginalFilename,
			Preset:    r.Preset,
			Status:    r.Status,
			PageCount: r.PageCount,
			Error:     r.ErrorDetails,
			CreatedAt: r.CreatedAt.Format(time.RFC3339),
		})
	}
	payload, err := json.MarshalIndent(summaries, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(payload)), nil
}
