// Package llm wraps calls to the hosted Gemini model: prompt assembly, a small
// retry loop, and helpers that pull usable text out of free-form responses.
package llm

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

var (
	ErrModelNotConfigured = errors.New("model is not configured")
	ErrQuotaExceeded      = errors.New("quota exceeded")
	ErrEmptyResponse      = errors.New("model returned an empty response")
	ErrRetriesExhausted   = errors.New("failed to get a response from the model after multiple attempts")
	ErrRefusal            = errors.New("model response indicates a refusal")
)

// Format is the shape a stage expects back from the model.
type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
)

// Generator is the subset of *genai.GenerativeModel the pipeline needs.
type Generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// BuildPrompt joins a stage instruction and the data it operates on into a single prompt.
func BuildPrompt(instruction, data string) string {
	return instruction + "\n\nHere is the text to process:\n\n" + data
}

// ResponseText concatenates the text parts of the first candidate and strips code fences.
func ResponseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return ""
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return stripFences(b.String())
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	for _, fence := range []string{"```json", "```markdown", "```text", "```"} {
		if strings.HasPrefix(s, fence) {
			s = strings.TrimPrefix(s, fence)
			break
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// CleanJSONResponse returns the substring from the first '{' through the last '}'.
// If either brace is missing, or they are out of order, s is returned unchanged.
func CleanJSONResponse(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return s
	}
	return s[start : end+1]
}

var refusalPhrases = []string{
	"i am unable to",
	"i cannot fulfill",
	"i cannot answer",
	"i cannot provide",
	"as a large language model",
}

// IsRefusal reports whether the response opens with a canned refusal. Reports routinely
// quote evasive answers from the call, so a phrase later in the text does not count.
func IsRefusal(s string) bool {
	lower := strings.ToLower(strings.TrimSpace(s))
	for _, phrase := range refusalPhrases {
		if strings.HasPrefix(lower, phrase) {
			return true
		}
	}
	return false
}
