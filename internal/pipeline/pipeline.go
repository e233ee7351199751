// Package pipeline runs a transcript through a fixed sequence of model stages.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Lllllllleong/earningscallsummarizer/internal/llm"
)

// Models hands out a generator configured for the requested output format.
type Models interface {
	Model(format llm.Format) llm.Generator
}

// StageResult is the output of one stage.
type StageResult struct {
	Name   string     `json:"name"`
	Title  string     `json:"title"`
	Format llm.Format `json:"format"`
	// Raw is the model's text; Output is what the next stage receives.
	Raw        string         `json:"raw"`
	Output     string         `json:"output"`
	Parsed     map[string]any `json:"parsed,omitempty"`
	ParseError string         `json:"parseError,omitempty"`
}

// Result collects the stage outputs of a run. On failure it holds the completed stages.
type Result struct {
	Preset string        `json:"preset"`
	Stages []StageResult `json:"stages"`
}

// Final returns the last completed stage, or nil.
func (r *Result) Final() *StageResult {
	if r == nil || len(r.Stages) == 0 {
		return nil
	}
	return &r.Stages[len(r.Stages)-1]
}

// StageError reports which stage halted a run.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

// Pipeline executes the stages of a preset.
type Pipeline struct {
	preset Preset
	models Models
	caller *llm.Caller
}

// New builds a pipeline for the named preset.
func New(presetName string, models Models, caller *llm.Caller) (*Pipeline, error) {
	preset, err := LookupPreset(presetName)
	if err != nil {
		return nil, err
	}
	if caller == nil {
		caller = llm.NewCaller(llm.DefaultAttempts, llm.DefaultDelay)
	}
	return &Pipeline{preset: preset, models: models, caller: caller}, nil
}

// Preset returns the preset this pipeline runs.
func (p *Pipeline) Preset() Preset { return p.preset }

// Run feeds the transcript through every stage in order and stops at the first failure.
func (p *Pipeline) Run(ctx context.Context, transcript string) (*Result, error) {
	res := &Result{Preset: p.preset.Name}
	previous := transcript

	for i, stage := range p.preset.Stages {
		logCtx := slog.With("preset", p.preset.Name, "stage", stage.Name, "step", i+1)
		logCtx.Info("Running stage.")

		input := previous
		if stage.Input == InputTranscript {
			input = transcript
		}
		sr, err := p.RunStage(ctx, stage, input)
		if err != nil {
			logCtx.Error("Stage failed. Halting run.", "error", err)
			return res, err
		}
		if sr.ParseError != "" {
			logCtx.Warn("Stage output is not valid JSON. Passing raw text through.", "error", sr.ParseError)
		}
		res.Stages = append(res.Stages, sr)
		previous = sr.Output
	}
	return res, nil
}

// RunStage calls the model for a single stage on the given input.
func (p *Pipeline) RunStage(ctx context.Context, stage Stage, input string) (StageResult, error) {
	var gen llm.Generator
	if p.models != nil {
		gen = p.models.Model(stage.Format)
	}

	raw, err := p.caller.Call(ctx, gen, stage.Instruction, input)
	if err != nil {
		return StageResult{}, &StageError{Stage: stage.Name, Err: err}
	}
	if stage.CheckRefusal && llm.IsRefusal(raw) {
		return StageResult{}, &StageError{Stage: stage.Name, Err: llm.ErrRefusal}
	}

	sr := StageResult{
		Name:   stage.Name,
		Title:  stage.Title,
		Format: stage.Format,
		Raw:    raw,
		Output: raw,
	}
	if stage.Format == llm.FormatJSON {
		sr.Output = llm.CleanJSONResponse(raw)
		var parsed map[string]any
		if err := json.Unmarshal([]byte(sr.Output), &parsed); err != nil {
			sr.ParseError = err.Error()
		} else {
			sr.Parsed = parsed
		}
	}
	return sr, nil
}
