package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"
)

const (
	DefaultAttempts = 2
	DefaultDelay    = 2 * time.Second
)

// Caller sends prompts to a Generator with a fixed number of attempts.
type Caller struct {
	Attempts int
	Delay    time.Duration
	Logger   *slog.Logger
}

// NewCaller returns a Caller. Non-positive attempts become DefaultAttempts and a negative
// delay becomes DefaultDelay; a zero delay retries immediately.
func NewCaller(attempts int, delay time.Duration) *Caller {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	if delay < 0 {
		delay = DefaultDelay
	}
	return &Caller{Attempts: attempts, Delay: delay, Logger: slog.Default()}
}

// Call builds the prompt from instruction and data and returns the model's text.
// A quota error stops retrying immediately.
func (c *Caller) Call(ctx context.Context, gen Generator, instruction, data string) (string, error) {
	if gen == nil {
		return "", ErrModelNotConfigured
	}
	attempts := c.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	prompt := genai.Text(BuildPrompt(instruction, data))
	var lastErr error
	for i := 0; i < attempts; i++ {
		resp, err := gen.GenerateContent(ctx, prompt)
		if err == nil {
			if text := ResponseText(resp); text != "" {
				return text, nil
			}
			err = ErrEmptyResponse
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		logger.Warn("Model call failed.", "attempt", i+1, "maxAttempts", attempts, "error", err)
		if isQuotaError(err) {
			logger.Error("Quota exceeded. Check the project's Vertex AI billing.", "error", err)
			return "", fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
		}
		if i == attempts-1 {
			break
		}

		select {
		case <-time.After(c.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", fmt.Errorf("%w: %w", ErrRetriesExhausted, lastErr)
}

func isQuotaError(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "quota")
}
