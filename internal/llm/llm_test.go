package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/vertexai/genai"
)

type fakeGenerator struct {
	calls   int
	prompts []string
	replies []string
	errs    []error
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	i := f.calls
	f.calls++
	if len(parts) > 0 {
		if txt, ok := parts[0].(genai.Text); ok {
			f.prompts = append(f.prompts, string(txt))
		}
	}
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	reply := ""
	if i < len(f.replies) {
		reply = f.replies[i]
	}
	return textResponse(reply), nil
}

func textResponse(parts ...string) *genai.GenerateContentResponse {
	content := &genai.Content{Role: "model"}
	for _, p := range parts {
		content.Parts = append(content.Parts, genai.Text(p))
	}
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: content}}}
}

func TestCleanJSONResponse(t *testing.T) {
	cases := map[string]string{
		`Sure! {"a": 1} hope this helps`:      `{"a": 1}`,
		`{"a": {"b": [1, 2]}}`:                 `{"a": {"b": [1, 2]}}`,
		"```json\n{\"x\": \"}\"}\n```":         `{"x": "}"}`,
		`no braces here`:                       `no braces here`,
		`only an opening { brace`:              `only an opening { brace`,
		`only a closing } brace`:               `only a closing } brace`,
		`} reversed {`:                         `} reversed {`,
		``:                                     ``,
		`{"first": 1} and {"second": 2} trail`: `{"first": 1} and {"second": 2}`,
	}
	for in, want := range cases {
		if got := CleanJSONResponse(in); got != want {
			t.Fatalf("CleanJSONResponse(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestResponseText(t *testing.T) {
	if got := ResponseText(nil); got != "" {
		t.Fatalf("nil response: got %q", got)
	}
	if got := ResponseText(&genai.GenerateContentResponse{}); got != "" {
		t.Fatalf("no candidates: got %q", got)
	}
	got := ResponseText(textResponse("```markdown\n# Title", "\nbody\n```"))
	if got != "# Title\nbody" {
		t.Fatalf("unexpected text %q", got)
	}
	got = ResponseText(textResponse("```json\n{\"a\":1}\n```"))
	if got != `{"a":1}` {
		t.Fatalf("unexpected json text %q", got)
	}
}

func TestBuildPrompt(t *testing.T) {
	got := BuildPrompt("Summarize.", "DATA")
	if got != "Summarize.\n\nHere is the text to process:\n\nDATA" {
		t.Fatalf("unexpected prompt %q", got)
	}
}

func TestIsRefusal(t *testing.T) {
	if !IsRefusal("As a large language model, I can't do that.") {
		t.Fatalf("expected refusal")
	}
	if !IsRefusal("  I cannot provide a summary of this document.") {
		t.Fatalf("expected refusal after leading whitespace")
	}
	if IsRefusal("Revenue increased 15% to $10M") {
		t.Fatalf("unexpected refusal")
	}
	quoted := "Risks & Red Flags\n- Asked about Q4, the CFO said \"I cannot provide guidance at this time.\""
	if IsRefusal(quoted) {
		t.Fatalf("a quoted phrase inside a report is not a refusal")
	}
}

func TestNewCallerDefaults(t *testing.T) {
	c := NewCaller(0, -time.Second)
	if c.Attempts != DefaultAttempts || c.Delay != DefaultDelay {
		t.Fatalf("expected defaults, got %d attempts and %s delay", c.Attempts, c.Delay)
	}
	c = NewCaller(3, 0)
	if c.Attempts != 3 || c.Delay != 0 {
		t.Fatalf("expected explicit values kept, got %d attempts and %s delay", c.Attempts, c.Delay)
	}
}

func TestCallSucceedsFirstAttempt(t *testing.T) {
	gen := &fakeGenerator{replies: []string{"report"}}
	c := NewCaller(2, 0)
	got, err := c.Call(context.Background(), gen, "instr", "data")
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if got != "report" || gen.calls != 1 {
		t.Fatalf("got %q after %d calls", got, gen.calls)
	}
	if !strings.HasSuffix(gen.prompts[0], "Here is the text to process:\n\ndata") {
		t.Fatalf("unexpected prompt %q", gen.prompts[0])
	}
}

func TestCallRetriesThenSucceeds(t *testing.T) {
	gen := &fakeGenerator{errs: []error{errors.New("503 unavailable")}, replies: []string{"", "ok"}}
	got, err := NewCaller(2, 0).Call(context.Background(), gen, "i", "d")
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if got != "ok" || gen.calls != 2 {
		t.Fatalf("got %q after %d calls", got, gen.calls)
	}
}

func TestCallStopsAfterAttempts(t *testing.T) {
	boom := errors.New("internal error")
	gen := &fakeGenerator{errs: []error{boom, boom, boom, boom}}
	_, err := NewCaller(3, 0).Call(context.Background(), gen, "i", "d")
	if !errors.Is(err, ErrRetriesExhausted) || !errors.Is(err, boom) {
		t.Fatalf("unexpected error %v", err)
	}
	if gen.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", gen.calls)
	}
}

func TestCallStopsOnQuota(t *testing.T) {
	gen := &fakeGenerator{errs: []error{errors.New("rpc error: code = ResourceExhausted desc = Quota exceeded for aiplatform")}}
	_, err := NewCaller(5, 0).Call(context.Background(), gen, "i", "d")
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected quota error, got %v", err)
	}
	if gen.calls != 1 {
		t.Fatalf("expected a single call, got %d", gen.calls)
	}
}

func TestCallEmptyResponseIsRetried(t *testing.T) {
	gen := &fakeGenerator{replies: []string{"", "  "}}
	_, err := NewCaller(2, 0).Call(context.Background(), gen, "i", "d")
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected empty response error, got %v", err)
	}
	if gen.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", gen.calls)
	}
}

func TestCallNilGenerator(t *testing.T) {
	_, err := NewCaller(2, 0).Call(context.Background(), nil, "i", "d")
	if !errors.Is(err, ErrModelNotConfigured) {
		t.Fatalf("expected ErrModelNotConfigured, got %v", err)
	}
}

func TestCallHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gen := &fakeGenerator{errs: []error{context.Canceled}}
	_, err := NewCaller(3, 0).Call(ctx, gen, "i", "d")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if gen.calls != 1 {
		t.Fatalf("expected 1 call, got %d", gen.calls)
	}
}
