package tooling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// RemoteSpec은 HTTP endpoint로 위임되는 도구 정의입니다.
type RemoteSpec struct {
	Name        string            `yaml:"name" json:"name"`
	Description string            `yaml:"description" json:"description"`
	URL         string            `yaml:"url" json:"url"`
	Parameters  json.RawMessage   `yaml:"-" json:"parameters,omitempty"`
	Headers     map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
}

// remoteRequest는 endpoint로 보내는 요청 바디입니다.
type remoteRequest struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// remoteResponse는 endpoint 응답입니다. JSON이 아니면 본문 전체를 텍스트 결과로 사용합니다.
type remoteResponse struct {
	Content string `json:"content"`
	Image   *struct {
		Mime string `json:"mime"`
		Data []byte `json:"data"`
	} `json:"image,omitempty"`
	IsError bool `json:"is_error"`
}

// RemoteTool은 도구 호출을 HTTP POST로 전달합니다.
type RemoteTool struct {
	spec       RemoteSpec
	httpClient *http.Client
	logger     *zap.Logger
}

// RemoteOption은 RemoteTool 옵션입니다.
type RemoteOption func(*RemoteTool)

// WithRemoteHTTPClient는 HTTP 클라이언트를 설정합니다.
func WithRemoteHTTPClient(client *http.Client) RemoteOption {
	return func(r *RemoteTool) {
		r.httpClient = client
	}
}

// WithRemoteLogger는 logger를 설정합니다.
func WithRemoteLogger(logger *zap.Logger) RemoteOption {
	return func(r *RemoteTool) {
		r.logger = logger
	}
}

// NewRemoteTool은 RemoteTool을 생성합니다.
func NewRemoteTool(spec RemoteSpec, opts ...RemoteOption) (*RemoteTool, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("tooling: remote tool without name")
	}
	if spec.URL == "" {
		return nil, fmt.Errorf("tooling: remote tool %s has no url", spec.Name)
	}
	r := &RemoteTool{
		spec:       spec,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *RemoteTool) Name() string        { return r.spec.Name }
func (r *RemoteTool) Description() string { return r.spec.Description }

func (r *RemoteTool) Schema() json.RawMessage {
	if len(r.spec.Parameters) == 0 {
		return json.RawMessage(`{"type":"object","properties":{}}`)
	}
	return r.spec.Parameters
}

// Invoke는 endpoint를 호출합니다.
func (r *RemoteTool) Invoke(ctx context.Context, args json.RawMessage) (Result, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	body, err := json.Marshal(remoteRequest{Name: r.spec.Name, Arguments: args})
	if err != nil {
		return Result{}, fmt.Errorf("요청 바디 직렬화 실패: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.spec.URL, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("요청 생성 실패: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range r.spec.Headers {
		req.Header.Set(k, v)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("요청 실패: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("응답 읽기 실패: %w", err)
	}
	r.logger.Debug("remote tool 응답 수신",
		zap.String("tool", r.spec.Name),
		zap.Int("status", resp.StatusCode),
	)

	if resp.StatusCode/100 != 2 {
		return Result{}, fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}

	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		return BytesResult(respBody), nil
	}

	var parsed remoteResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Result{}, fmt.Errorf("응답 파싱 실패: %w", err)
	}
	if parsed.IsError {
		return Result{}, fmt.Errorf("%s", parsed.Content)
	}
	if parsed.Image != nil {
		return ImageResult(parsed.Image.Data, parsed.Image.Mime), nil
	}
	return TextResult(parsed.Content), nil
}
