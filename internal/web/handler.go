// Package web serves the upload form and renders summarization results.
package web

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/Lllllllleong/earningscallsummarizer/internal/llm"
	"github.com/Lllllllleong/earningscallsummarizer/internal/models"
	"github.com/Lllllllleong/earningscallsummarizer/internal/pipeline"
	"github.com/Lllllllleong/earningscallsummarizer/internal/services"
	"github.com/Lllllllleong/earningscallsummarizer/internal/transcript"
)

// DefaultMaxUploadBytes applies when NewHandler is given a non-positive limit.
const DefaultMaxUploadBytes = 20 << 20

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("").ParseFS(templateFS, "templates/*.html"))

// Summarizer is the service behind the handler.
type Summarizer interface {
	Summarize(ctx context.Context, in services.SummarizeInput) (*services.SummarizeOutput, error)
	RecentRuns(ctx context.Context, limit int) ([]models.Run, error)
	DefaultPreset() string
}

// Handler serves GET /, POST /summarize and GET /runs.
type Handler struct {
	svc            Summarizer
	maxUploadBytes int64
	mux            *http.ServeMux
}

func NewHandler(svc Summarizer, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	h := &Handler{svc: svc, maxUploadBytes: maxUploadBytes, mux: http.NewServeMux()}
	h.mux.HandleFunc("GET /{$}", h.handleIndex)
	h.mux.HandleFunc("POST /summarize", h.handleSummarize)
	h.mux.HandleFunc("GET /runs", h.handleRuns)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type stepView struct {
	Number int
	Title  string
	Body   template.HTML
}

type pageData struct {
	Presets     []pipeline.Preset
	Selected    string
	MaxUploadMB int64

	Filename  string
	PDFRead   bool
	PageCount int
	Cached    bool
	Steps     []stepView
	Summary   template.HTML
	ReportURI string
	Error     string
}

// summarizeResponse is the JSON form of a summarize result.
type summarizeResponse struct {
	*services.SummarizeOutput
	Error string `json:"error,omitempty"`
}

func (h *Handler) newPage(selected string) pageData {
	if selected == "" {
		selected = h.svc.DefaultPreset()
	}
	return pageData{
		Presets:     pipeline.Presets(),
		Selected:    selected,
		MaxUploadMB: h.maxUploadBytes >> 20,
	}
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "page", h.newPage(""))
}

func (h *Handler) handleSummarize(w http.ResponseWriter, r *http.Request) {
	asJSON := wantsJSON(r)
	page := h.newPage("")

	fail := func(status int, message string) {
		if asJSON {
			writeJSON(w, status, summarizeResponse{Error: message})
			return
		}
		page.Error = message
		h.render(w, status, "page", page)
	}

	// Leave room for the multipart framing around the file.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+1<<20)
	file, header, err := r.FormFile("transcript")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(http.StatusRequestEntityTooLarge, "The uploaded file is too large.")
			return
		}
		fail(http.StatusBadRequest, "Please choose a PDF file to upload.")
		return
	}
	defer file.Close()
	if preset := r.FormValue("preset"); preset != "" {
		page.Selected = preset
	}

	if header.Size > h.maxUploadBytes {
		fail(http.StatusRequestEntityTooLarge, "The uploaded file is too large.")
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		fail(http.StatusBadRequest, "Could not read the uploaded file.")
		return
	}
	if !isPDF(header.Filename, data) {
		fail(http.StatusBadRequest, "Only PDF files are supported.")
		return
	}
	if _, err := pipeline.LookupPreset(page.Selected); err != nil {
		fail(http.StatusBadRequest, err.Error())
		return
	}

	logCtx := slog.With("filename", header.Filename, "preset", page.Selected, "bytes", len(data))
	logCtx.Info("Summarize request received.")

	out, err := h.svc.Summarize(r.Context(), services.SummarizeInput{
		Filename: header.Filename,
		Data:     data,
		Preset:   page.Selected,
	})
	status := statusFor(err)
	if err != nil {
		logCtx.Error("Summarize failed", "error", err, "status", status)
	}

	if asJSON {
		res := summarizeResponse{SummarizeOutput: out}
		if err != nil {
			res.Error = err.Error()
		}
		writeJSON(w, status, res)
		return
	}

	page.Filename = header.Filename
	fillPage(&page, out, err)
	h.render(w, status, "page", page)
}

func fillPage(page *pageData, out *services.SummarizeOutput, err error) {
	if err != nil {
		page.Error = err.Error()
	}
	if out == nil {
		return
	}
	page.PageCount = out.PageCount
	page.Cached = out.Cached
	page.PDFRead = out.PageCount > 0
	if out.Result != nil {
		for i, sr := range out.Result.Stages {
			page.Steps = append(page.Steps, stepView{
				Number: i + 1,
				Title:  sr.Title,
				Body:   renderBody(sr.Output, sr.Format),
			})
		}
	}
	if err == nil && out.Report != "" {
		page.Summary = renderBody(out.Report, out.Format)
		page.ReportURI = out.ReportURI
	}
}

func (h *Handler) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 200 {
			http.Error(w, "Bad Request: limit must be between 1 and 200", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := h.svc.RecentRuns(r.Context(), limit)
	if err != nil {
		slog.Error("Failed to list runs", "error", err)
		http.Error(w, "Internal Server Error: failed to list runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []models.Run{}
	}

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, runs)
		return
	}
	h.render(w, http.StatusOK, "runs", struct{ Runs []models.Run }{runs})
}

// statusFor maps a summarize error to an HTTP status.
func statusFor(err error) int {
	var stageErr *pipeline.StageError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, transcript.ErrUnreadablePDF), errors.Is(err, transcript.ErrNoText):
		return http.StatusUnprocessableEntity
	case errors.As(err, &stageErr),
		errors.Is(err, llm.ErrQuotaExceeded),
		errors.Is(err, llm.ErrRetriesExhausted),
		errors.Is(err, llm.ErrModelNotConfigured):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func isPDF(filename string, data []byte) bool {
	if strings.EqualFold(path.Ext(filename), ".pdf") {
		return true
	}
	return bytes.HasPrefix(data, []byte("%PDF-"))
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}

func (h *Handler) render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		slog.Error("Failed to render template", "template", name, "error", err)
		http.Error(w, "Internal Server Error: failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
