package quizengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPGenerator calls a remote generation endpoint
type HTTPGenerator struct {
	url    string
	client *http.Client
}

// NewHTTPGenerator creates a generator posting to url
func NewHTTPGenerator(url string, timeout time.Duration) *HTTPGenerator {
	return &HTTPGenerator{url: url, client: &http.Client{Timeout: timeout}}
}

type generationRequest struct {
	Flashcards []RawQuestionRecord `json:"flashcards"`
}

// Generate posts the flashcards and expects {"output": [...]}
func (g *HTTPGenerator) Generate(ctx context.Context, flashcards []RawQuestionRecord) ([]RawQuestionRecord, error) {
	body, err := postJSON(ctx, g.client, g.url, generationRequest{Flashcards: flashcards})
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Output json.RawMessage `json:"output"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse generation response: %w", err)
	}
	trimmed := bytes.TrimSpace(envelope.Output)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("generation response has no output array")
	}

	var records []RawQuestionRecord
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, fmt.Errorf("failed to parse generation output: %w", err)
	}
	return records, nil
}

// HTTPJudge calls a remote semantic comparison endpoint
type HTTPJudge struct {
	url    string
	client *http.Client
}

// NewHTTPJudge creates a judge posting to url
func NewHTTPJudge(url string, timeout time.Duration) *HTTPJudge {
	return &HTTPJudge{url: url, client: &http.Client{Timeout: timeout}}
}

type comparisonRequest struct {
	UserAnswer    string `json:"userAnswer"`
	CorrectAnswer string `json:"correctAnswer"`
}

// Compare posts both answers and expects {"correct": bool}
func (j *HTTPJudge) Compare(ctx context.Context, userAnswer, correctAnswer string) (bool, error) {
	body, err := postJSON(ctx, j.client, j.url, comparisonRequest{UserAnswer: userAnswer, CorrectAnswer: correctAnswer})
	if err != nil {
		return false, err
	}

	var verdict struct {
		Correct *bool `json:"correct"`
	}
	if err := json.Unmarshal(body, &verdict); err != nil {
		return false, fmt.Errorf("failed to parse comparison response: %w", err)
	}
	if verdict.Correct == nil {
		return false, fmt.Errorf("comparison response missing correct field")
	}
	return *verdict.Correct, nil
}

func postJSON(ctx context.Context, client *http.Client, url string, payload interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
