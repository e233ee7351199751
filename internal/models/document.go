package models

import "time"

// Run statuses, in the order a successful run passes through them.
const (
	StatusReceived    = "RECEIVED"
	StatusExtracting  = "EXTRACTING"
	StatusQueued      = "QUEUED"
	StatusSummarizing = "SUMMARIZING"
	StatusCompleted   = "COMPLETED"
	StatusFailed      = "FAILED"
)

// Run is the record of one summarization of one uploaded transcript.
type Run struct {
	ID               string    `firestore:"-" json:"id"`
	FileHash         string    `firestore:"fileHash,omitempty" json:"fileHash"`
	OriginalFilename string    `firestore:"originalFilename,omitempty" json:"originalFilename"`
	Preset           string    `firestore:"preset,omitempty" json:"preset"`
	Status           string    `firestore:"status,omitempty" json:"status"`
	ErrorDetails     string    `firestore:"errorDetails,omitempty" json:"errorDetails,omitempty"`
	PageCount        int       `firestore:"pageCount,omitempty" json:"pageCount,omitempty"`
	Report           string    `firestore:"report,omitempty" json:"report,omitempty"`
	ReportFormat     string    `firestore:"reportFormat,omitempty" json:"reportFormat,omitempty"`
	ReportGCSUri     string    `firestore:"reportGcsUri,omitempty" json:"reportGcsUri,omitempty"`
	ExecutionID      string    `firestore:"executionId,omitempty" json:"executionId,omitempty"` // For traceability
	CreatedAt        time.Time `firestore:"createdAt,omitempty" json:"createdAt"`
	UpdatedAt        time.Time `firestore:"updatedAt,omitempty" json:"updatedAt"`
}

// Report is the final output of a completed run.
type Report struct {
	Text   string
	Format string
	GCSUri string
}
