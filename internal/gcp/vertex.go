package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/vertexai/genai"
	"github.com/Lllllllleong/earningscallsummarizer/internal/llm"
)

// DefaultModel is the Gemini model used when GEMINI_MODEL is unset.
const DefaultModel = "gemini-2.0-flash"

// VertexClient holds one pre-configured generative model per output format.
type VertexClient struct {
	JSONModel  *genai.GenerativeModel
	ProseModel *genai.GenerativeModel
	baseClient *genai.Client
}

// NewVertexClient creates a new client holding all necessary models.
func NewVertexClient(ctx context.Context, projectID, region, modelName string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}
	if modelName == "" {
		modelName = DefaultModel
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	// --- Configure the prose model (Markdown and plain-text stages) ---
	proseModel := baseClient.GenerativeModel(modelName)
	proseModel.SetTemperature(0.2)

	// --- Configure the JSON model ---
	jsonModel := baseClient.GenerativeModel(modelName)
	jsonModel.GenerationConfig = genai.GenerationConfig{
		// Ask for JSON; responses are still sliced with llm.CleanJSONResponse.
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0),
	}

	// Transcripts routinely discuss layoffs, litigation and fraud risk; do not block them.
	safety := []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockOnlyHigh},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockOnlyHigh},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockOnlyHigh},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockOnlyHigh},
	}
	jsonModel.SafetySettings = safety
	proseModel.SafetySettings = safety

	return &VertexClient{
		JSONModel:  jsonModel,
		ProseModel: proseModel,
		baseClient: baseClient,
	}, nil
}

// Model returns the model configured for the given output format.
func (c *VertexClient) Model(format llm.Format) llm.Generator {
	if c == nil {
		return nil
	}
	if format == llm.FormatJSON {
		if c.JSONModel == nil {
			return nil
		}
		return c.JSONModel
	}
	if c.ProseModel == nil {
		return nil
	}
	return c.ProseModel
}

func (c *VertexClient) Close() error {
	if c != nil && c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
