package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cnap-oss/actorflow/internal/models"
	"github.com/cnap-oss/actorflow/internal/tooling"
	"go.uber.org/zap"
)

// provider별 기본 API 주소
var defaultBaseURLs = map[string]string{
	"openai":   "https://api.openai.com/v1",
	"opencode": "https://opencode.ai/zen/v1",
	"ollama":   "http://localhost:11434/v1",
}

// chatRequest는 OpenAI 호환 /chat/completions 요청입니다.
type chatRequest struct {
	Model    string           `json:"model"`
	Messages []models.Message `json:"messages"`
	Tools    []tooling.Schema `json:"tools,omitempty"`
}

// chatResponse는 OpenAI 호환 /chat/completions 응답입니다.
type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int            `json:"index"`
		Message      models.Message `json:"message"`
		FinishReason string         `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int      `json:"prompt_tokens"`
		CompletionTokens int      `json:"completion_tokens"`
		TotalTokens      int      `json:"total_tokens"`
		Cost             *float64 `json:"cost,omitempty"`
	} `json:"usage,omitempty"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Type    string `json:"type"`
	Code    any    `json:"code"`
	Message string `json:"message"`
}

// OpenAIGenerator는 OpenAI 호환 API를 호출하는 Generator입니다.
type OpenAIGenerator struct {
	spec       GeneratorSpec
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// OpenAIOption은 OpenAIGenerator 설정 함수입니다.
type OpenAIOption func(*OpenAIGenerator)

// WithAPIKey는 API 키를 설정합니다.
func WithAPIKey(key string) OpenAIOption {
	return func(g *OpenAIGenerator) {
		g.apiKey = key
	}
}

// WithBaseURL은 generator ID에 api_base가 없을 때 사용할 주소를 설정합니다.
func WithBaseURL(url string) OpenAIOption {
	return func(g *OpenAIGenerator) {
		if url != "" {
			g.baseURL = url
		}
	}
}

// WithHTTPClient는 HTTP 클라이언트를 설정합니다.
func WithHTTPClient(client *http.Client) OpenAIOption {
	return func(g *OpenAIGenerator) {
		g.httpClient = client
	}
}

// WithGeneratorLogger는 logger를 설정합니다.
func WithGeneratorLogger(logger *zap.Logger) OpenAIOption {
	return func(g *OpenAIGenerator) {
		g.logger = logger
	}
}

// NewOpenAIGenerator는 generator ID로 OpenAIGenerator를 생성합니다.
func NewOpenAIGenerator(id string, opts ...OpenAIOption) (*OpenAIGenerator, error) {
	spec, err := ParseGeneratorID(id)
	if err != nil {
		return nil, err
	}

	g := &OpenAIGenerator{
		spec:       spec,
		baseURL:    defaultBaseURLs[spec.Provider],
		httpClient: &http.Client{Timeout: 300 * time.Second},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if spec.APIBase != "" {
		g.baseURL = spec.APIBase
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}
	if g.baseURL == "" {
		return nil, fmt.Errorf("generation: unknown provider %q (set api_base)", spec.Provider)
	}
	g.baseURL = strings.TrimRight(g.baseURL, "/")
	return g, nil
}

// Spec은 해석된 generator ID를 반환합니다.
func (g *OpenAIGenerator) Spec() GeneratorSpec {
	return g.spec
}

// Generate는 /chat/completions를 호출합니다.
func (g *OpenAIGenerator) Generate(ctx context.Context, conversation []models.Message, tools []tooling.Schema) (models.Usage, *models.Message, error) {
	body, err := g.requestBody(conversation, tools)
	if err != nil {
		return models.Usage{}, nil, NewGeneratorError("Generate", g.spec.ID, 0, fmt.Errorf("%w: %w", ErrBadRequest, err))
	}

	endpoint := g.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return models.Usage{}, nil, NewGeneratorError("Generate", g.spec.ID, 0, fmt.Errorf("요청 생성 실패: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	g.logger.Debug("generator 요청",
		zap.String("generator", g.spec.ID),
		zap.String("endpoint", endpoint),
		zap.Int("message_count", len(conversation)),
		zap.Int("tool_count", len(tools)),
	)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return models.Usage{}, nil, NewGeneratorError("Generate", g.spec.ID, 0, fmt.Errorf("API 요청 실패: %w", err))
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Usage{}, nil, NewGeneratorError("Generate", g.spec.ID, resp.StatusCode, fmt.Errorf("응답 읽기 실패: %w", err))
	}

	if resp.StatusCode/100 != 2 {
		return models.Usage{}, nil, NewGeneratorError("Generate", g.spec.ID, resp.StatusCode, classifyStatus(resp.StatusCode, bodyBytes))
	}

	var apiResp chatResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return models.Usage{}, nil, NewGeneratorError("Generate", g.spec.ID, resp.StatusCode,
			fmt.Errorf("응답 파싱 실패: %w (%s)", err, summarizeBody(bodyBytes)))
	}
	if apiResp.Error != nil {
		return models.Usage{}, nil, NewGeneratorError("Generate", g.spec.ID, resp.StatusCode,
			fmt.Errorf("API 에러: %s - %s", apiResp.Error.Type, apiResp.Error.Message))
	}

	var usage models.Usage
	if apiResp.Usage != nil {
		usage = models.Usage{
			PromptTokens:     apiResp.Usage.PromptTokens,
			CompletionTokens: apiResp.Usage.CompletionTokens,
			TotalTokens:      apiResp.Usage.TotalTokens,
			Cost:             apiResp.Usage.Cost,
		}
	}
	if len(apiResp.Choices) == 0 {
		g.logger.Warn("빈 응답", zap.String("generator", g.spec.ID))
		return usage, nil, nil
	}

	msg := apiResp.Choices[0].Message
	g.logger.Debug("generator 응답",
		zap.String("generator", g.spec.ID),
		zap.String("finish_reason", apiResp.Choices[0].FinishReason),
		zap.Int("tool_calls", len(msg.ToolCalls)),
		zap.Int("total_tokens", usage.TotalTokens),
	)
	return usage, &msg, nil
}

func (g *OpenAIGenerator) requestBody(conversation []models.Message, tools []tooling.Schema) ([]byte, error) {
	base, err := json.Marshal(chatRequest{Model: g.spec.Model, Messages: conversation, Tools: tools})
	if err != nil {
		return nil, fmt.Errorf("요청 바디 직렬화 실패: %w", err)
	}
	if len(g.spec.Params) == 0 {
		return base, nil
	}

	var merged map[string]any
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for _, k := range g.spec.ParamKeys() {
		if _, reserved := merged[k]; reserved {
			continue
		}
		merged[k] = g.spec.Params[k]
	}
	return json.Marshal(merged)
}

// classifyStatus는 HTTP 에러 응답을 sentinel 에러로 분류합니다.
func classifyStatus(status int, body []byte) error {
	detail := summarizeBody(body)
	var envelope struct {
		Error *apiError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil && envelope.Error.Message != "" {
		detail = envelope.Error.Message
		if isContextOverflow(envelope.Error) {
			return fmt.Errorf("%w: %s", ErrContextWindowExceeded, detail)
		}
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrAuthentication, detail)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, detail)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, detail)
	case status == http.StatusRequestEntityTooLarge:
		return fmt.Errorf("%w: %s", ErrContextWindowExceeded, detail)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		if strings.Contains(strings.ToLower(detail), "context length") || strings.Contains(strings.ToLower(detail), "context window") {
			return fmt.Errorf("%w: %s", ErrContextWindowExceeded, detail)
		}
		return fmt.Errorf("%w: %s", ErrBadRequest, detail)
	default:
		return fmt.Errorf("HTTP 에러 [%d]: %s", status, detail)
	}
}

func isContextOverflow(e *apiError) bool {
	if code, ok := e.Code.(string); ok && code == "context_length_exceeded" {
		return true
	}
	return false
}

func summarizeBody(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return "<empty>"
	}
	if len(trimmed) > 200 {
		return trimmed[:200] + "..."
	}
	return trimmed
}
