package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/iris-network/iris/internal/domain"
	"github.com/iris-network/iris/internal/log"
)

// llmTimeout caps one classification round trip. Classification sits on the
// task submission path, so a slow model must not stall intake.
const llmTimeout = 10 * time.Second

// llmPromptLimit truncates the user prompt embedded in the classification
// request.
const llmPromptLimit = 1000

const classifyTemplate = `Classify the difficulty of the following request as exactly one word: simple, complex, or advanced.

simple: short questions, translations, direct factual answers
complex: analysis, summaries, comparisons, explanations
advanced: code, math, proofs, multi-step reasoning

Request:
%s

Difficulty:`

// LLM asks a local model endpoint to classify, with a silent lexical
// fallback. It speaks the llama.cpp server completion API.
type LLM struct {
	endpoint string
	client   *http.Client
	fallback *Lexical
	logger   zerolog.Logger
}

// NewLLM creates an LLM classifier against a llama.cpp-style endpoint,
// e.g. http://127.0.0.1:8080.
func NewLLM(endpoint string, fallback *Lexical) *LLM {
	return &LLM{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: llmTimeout},
		fallback: fallback,
		logger:   log.WithComponent("classify"),
	}
}

// Classify consults the model; any failure falls back to lexical scoring
// without surfacing an error.
func (l *LLM) Classify(ctx context.Context, prompt string, subtaskCount int) domain.Difficulty {
	verdict, err := l.ask(ctx, prompt)
	if err != nil {
		l.logger.Debug().Err(err).Msg("llm classification failed, using lexical")
		return l.fallback.Classify(ctx, prompt, subtaskCount)
	}
	return verdict
}

func (l *LLM) ask(ctx context.Context, prompt string) (domain.Difficulty, error) {
	truncated := prompt
	if len(truncated) > llmPromptLimit {
		truncated = truncated[:llmPromptLimit]
	}

	body, err := json.Marshal(map[string]any{
		"prompt":      fmt.Sprintf(classifyTemplate, truncated),
		"n_predict":   8,
		"temperature": 0,
	})
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, llmTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "POST", l.endpoint+"/completion", strings.NewReader(string(body)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("classification endpoint returned %d", resp.StatusCode)
	}

	var result struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return ParseVerdict(result.Content)
}

// ParseVerdict extracts a difficulty from free-form model output. The
// strongest class mentioned wins, so "not simple, this is advanced" parses
// as advanced.
func ParseVerdict(output string) (domain.Difficulty, error) {
	lowered := strings.ToLower(output)
	switch {
	case strings.Contains(lowered, "advanced"):
		return domain.Advanced, nil
	case strings.Contains(lowered, "complex"):
		return domain.Complex, nil
	case strings.Contains(lowered, "simple"):
		return domain.Simple, nil
	}
	return "", fmt.Errorf("no difficulty in model output %q", output)
}
