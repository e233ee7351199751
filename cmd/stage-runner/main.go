package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/earningscallsummarizer/internal/models"
	"github.com/Lllllllleong/earningscallsummarizer/internal/services"
)

var (
	runnerInstance *services.StageRunnerFunction
	once           sync.Once
	initErr        error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("HandleRunStage", handleRunStage)
}

// main is required by the Go Functions Framework.
func main() {}

// handleRunStage is called by the workflow once per stage.
func handleRunStage(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		runnerInstance, initErr = services.NewStageRunner(context.Background())
	})
	if initErr != nil {
		slog.Error("CRITICAL: Stage runner initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	var req models.StageRunnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Could not decode request body", "error", err)
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return
	}

	res, err := runnerInstance.Process(r.Context(), &req)
	if err != nil {
		http.Error(w, "Internal Server Error: processing failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}
