// Package multimodal turns PDF attachments into text a worker can handle.
// Workers never see raw documents; the coordinator extracts a summary
// through an external vision-capable model and enriches the prompt with it.
package multimodal

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/iris-network/iris/internal/domain"
	"github.com/iris-network/iris/internal/log"
)

const requestTimeout = 120 * time.Second

// Summarizer extracts PDF content through an OpenAI-compatible chat
// endpoint. Without credentials, or when the upstream call fails, it
// degrades to a prompt that names the attachments instead of failing the
// task.
type Summarizer struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
	logger   zerolog.Logger
}

// NewSummarizer creates a PDF summarizer. An empty apiKey disables the
// upstream call entirely.
func NewSummarizer(endpoint, apiKey, model string) *Summarizer {
	return &Summarizer{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		model:    model,
		client:   &http.Client{Timeout: requestTimeout},
		logger:   log.WithComponent("multimodal"),
	}
}

// Summarize returns the user prompt enriched with extracted document
// content. Prompts without PDF attachments pass through untouched.
func (s *Summarizer) Summarize(ctx context.Context, prompt string, files []domain.TaskFile) (string, error) {
	var pdfs []domain.TaskFile
	for _, f := range files {
		if f.Kind == domain.FilePDF {
			pdfs = append(pdfs, f)
		}
	}
	if len(pdfs) == 0 {
		return prompt, nil
	}

	if s.apiKey == "" {
		s.logger.Warn().Msg("no api key configured, degrading pdf handling")
		return fallbackPrompt(prompt, pdfs), nil
	}

	extracted, err := s.extract(ctx, prompt, pdfs)
	if err != nil {
		s.logger.Error().Err(err).Int("files", len(pdfs)).Msg("pdf extraction failed")
		return fallbackPrompt(prompt, pdfs), nil
	}

	return enrichedPrompt(prompt, extracted, pdfs), nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// extract sends the documents to the upstream model and returns its reading.
func (s *Summarizer) extract(ctx context.Context, prompt string, pdfs []domain.TaskFile) (string, error) {
	content := []map[string]any{
		{"type": "text", "text": "Extract and summarize the content of the attached documents so the following request can be answered from text alone:\n\n" + prompt},
	}
	for _, pdf := range pdfs {
		content = append(content, map[string]any{
			"type": "file",
			"file": map[string]string{
				"filename":  pdf.Name,
				"file_data": "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(pdf.Data),
			},
		})
	}

	body, err := json.Marshal(map[string]any{
		"model":      s.model,
		"messages":   []chatMessage{{Role: "user", Content: content}},
		"max_tokens": 8192,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.endpoint+"/chat/completions", strings.NewReader(string(body)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("document endpoint returned %d", resp.StatusCode)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("empty response from document endpoint")
	}
	return result.Choices[0].Message.Content, nil
}

func enrichedPrompt(prompt, extracted string, pdfs []domain.TaskFile) string {
	var b strings.Builder
	b.WriteString("Document content (")
	b.WriteString(fileNames(pdfs))
	b.WriteString("):\n\n")
	b.WriteString(strings.TrimSpace(extracted))
	b.WriteString("\n\n---\n\nUsing the document content above, answer the following request:\n")
	b.WriteString(prompt)
	return b.String()
}

func fallbackPrompt(prompt string, pdfs []domain.TaskFile) string {
	return fmt.Sprintf(
		"The user attached documents that could not be processed (%s). Answer the request as well as possible and note that the documents were not readable:\n%s",
		fileNames(pdfs), prompt,
	)
}

func fileNames(pdfs []domain.TaskFile) string {
	names := make([]string, len(pdfs))
	for i, f := range pdfs {
		names[i] = f.Name
	}
	return strings.Join(names, ", ")
}
