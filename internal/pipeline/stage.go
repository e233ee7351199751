package pipeline

import (
	"fmt"
	"sort"

	"github.com/Lllllllleong/earningscallsummarizer/internal/llm"
)

// Input selects which text a stage receives as its data.
type Input string

const (
	InputTranscript Input = "transcript"
	InputPrevious   Input = "previous"
)

// Stage is one call to the model with a fixed instruction.
type Stage struct {
	Name         string
	Title        string
	Instruction  string
	Format       llm.Format
	Input        Input
	CheckRefusal bool
}

// Preset is a named, fixed sequence of stages.
type Preset struct {
	Name   string
	Label  string
	Stages []Stage
}

const DefaultPreset = "agents"

var presets = map[string]Preset{
	"agents": {
		Name:  "agents",
		Label: "Chunk, analyze, synthesize (Markdown)",
		Stages: []Stage{
			{Name: "chunker", Title: "Chunking Transcript", Instruction: ChunkerPrompt, Format: llm.FormatJSON, Input: InputTranscript},
			// The analyzer reads the whole transcript; the chunks are shown for inspection only.
			{Name: "analyzer", Title: "Analyzing Text", Instruction: AnalyzerPrompt, Format: llm.FormatJSON, Input: InputTranscript},
			{Name: "synthesizer", Title: "Synthesizing Final Report", Instruction: SynthesizerPrompt, Format: llm.FormatMarkdown, Input: InputPrevious, CheckRefusal: true},
		},
	},
	"structured": {
		Name:  "structured",
		Label: "Clean, extract, report (JSON)",
		Stages: []Stage{
			{Name: "cleaner", Title: "Cleaning Transcript", Instruction: CleanerPrompt, Format: llm.FormatText, Input: InputTranscript},
			{Name: "extractor", Title: "Extracting Key Facts", Instruction: AnalyzerPrompt, Format: llm.FormatJSON, Input: InputPrevious},
			{Name: "reporter", Title: "Building Final Report", Instruction: ReporterPrompt, Format: llm.FormatJSON, Input: InputPrevious, CheckRefusal: true},
		},
	},
	"brief": {
		Name:  "brief",
		Label: "Extract, summarize (plain text)",
		Stages: []Stage{
			{Name: "extractor", Title: "Extracting Key Facts", Instruction: AnalyzerPrompt, Format: llm.FormatJSON, Input: InputTranscript},
			{Name: "summarizer", Title: "Writing Summary", Instruction: SummarizerPrompt, Format: llm.FormatText, Input: InputPrevious, CheckRefusal: true},
		},
	},
}

// LookupPreset returns the named preset. An empty name selects DefaultPreset.
func LookupPreset(name string) (Preset, error) {
	if name == "" {
		name = DefaultPreset
	}
	p, ok := presets[name]
	if !ok {
		return Preset{}, fmt.Errorf("unknown pipeline preset %q", name)
	}
	return p, nil
}

// Presets lists all presets sorted by name.
func Presets() []Preset {
	out := make([]Preset, 0, len(presets))
	for _, p := range presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Extension is the file extension used when a stage's output is saved.
func Extension(f llm.Format) string {
	switch f {
	case llm.FormatJSON:
		return "json"
	case llm.FormatMarkdown:
		return "md"
	default:
		return "txt"
	}
}
