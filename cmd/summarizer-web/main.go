package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/earningscallsummarizer/internal/gcp"
	"github.com/Lllllllleong/earningscallsummarizer/internal/services"
	"github.com/Lllllllleong/earningscallsummarizer/internal/web"
)

var (
	handler *web.Handler
	once    sync.Once
	initErr error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("HandleSummarizer", handleSummarizer)
}

// main is required by the Go Functions Framework.
func main() {}

func handleSummarizer(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		var summarizer *services.Summarizer
		summarizer, initErr = services.NewSummarizer(context.Background())
		if initErr != nil {
			return
		}
		maxUploadBytes := int64(gcp.GetEnvInt("MAX_UPLOAD_MB", web.DefaultMaxUploadBytes>>20)) << 20
		handler = web.NewHandler(summarizer, maxUploadBytes)
	})
	if initErr != nil {
		slog.Error("CRITICAL: Summarizer initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	handler.ServeHTTP(w, r)
}
