package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/earningscallsummarizer/internal/services"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

var (
	intakeInstance *services.IntakeFunction
	once           sync.Once
	initErr        error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Triggered by object finalize events on the uploads bucket.
	functions.CloudEvent("IntakeTranscript", intakeTranscript)
}

// main is required by the Go Functions Framework.
func main() {}

func intakeTranscript(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		intakeInstance, initErr = services.NewIntake(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent services.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "eventId", e.ID())
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	// Errors are logged with run context inside Process.
	return intakeInstance.Process(ctx, gcsEvent)
}
