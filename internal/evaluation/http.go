// Package evaluation provides trade.Scorer implementations: a JSON client for
// an external scoring service and an offline heuristic.
package evaluation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sudo-init-do/skillswap/internal/trade"
)

// HTTPScorer posts the evaluation input to baseURL + "/evaluate".
type HTTPScorer struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
}

type Option func(*HTTPScorer)

func WithHTTPClient(c *http.Client) Option {
	return func(s *HTTPScorer) { s.httpClient = c }
}

func WithAPIKey(key string) Option {
	return func(s *HTTPScorer) { s.apiKey = key }
}

func NewHTTPScorer(baseURL string, timeout time.Duration, opts ...Option) *HTTPScorer {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	s := &HTTPScorer{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   strings.TrimSuffix(baseURL, "/") + "/evaluate",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// scoreResponse is the scoring service's wire shape.
type scoreResponse struct {
	Score     float64 `json:"score"`
	Breakdown struct {
		TaskComplexity float64 `json:"task_complexity"`
		TimeCommitment float64 `json:"time_commitment"`
		SkillLevel     float64 `json:"skill_level"`
	} `json:"breakdown"`
	Feedback string `json:"feedback"`
}

func (s *HTTPScorer) Score(ctx context.Context, in trade.EvaluationInput) (trade.Assessment, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return trade.Assessment{}, fmt.Errorf("encode evaluation input: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return trade.Assessment{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return trade.Assessment{}, fmt.Errorf("%w: scoring request failed: %v", trade.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return trade.Assessment{}, fmt.Errorf("%w: scoring service returned %d: %s",
			trade.ErrNetwork, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return trade.Assessment{}, fmt.Errorf("%w: decode scoring response: %v", trade.ErrNetwork, err)
	}
	return trade.Assessment{
		Overall:        out.Score,
		TaskComplexity: out.Breakdown.TaskComplexity,
		TimeCommitment: out.Breakdown.TimeCommitment,
		SkillLevel:     out.Breakdown.SkillLevel,
		Feedback:       out.Feedback,
	}, nil
}
