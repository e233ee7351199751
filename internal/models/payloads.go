package models

// These structs define the JSON payloads exchanged between the Cloud Workflow
// and the stage-runner function.

// WorkflowArgument is the argument passed to a new workflow execution.
type WorkflowArgument struct {
	RunID            string `json:"runId"`
	Preset           string `json:"preset"`
	TranscriptGCSUri string `json:"transcriptGcsUri"`
	StageCount       int    `json:"stageCount"`
}

// StageRunnerRequest is the input for the stage-runner function.
type StageRunnerRequest struct {
	RunID            string `json:"runId"`
	Preset           string `json:"preset"`
	StageIndex       int    `json:"stageIndex"`
	TranscriptGCSUri string `json:"transcriptGcsUri"`
	PreviousGCSUri   string `json:"previousGcsUri,omitempty"`
	ExecutionID      string `json:"executionId"`
}

// StageRunnerResponse is the output of the stage-runner function.
type StageRunnerResponse struct {
	Status       string `json:"status"`
	Stage        string `json:"stage"`
	OutputGCSUri string `json:"outputGcsUri"`
	Final        bool   `json:"final"`
}
