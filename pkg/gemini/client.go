// Package gemini 提供了调用 Gemini 生成接口的客户端。
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"gemini-chat-go/internal/config"
	"gemini-chat-go/internal/model"
)

// ErrRemoteCall 表示远端模型调用失败：网络错误、非 2xx 状态码或响应体无法解析。
var ErrRemoteCall = errors.New("gemini api call failed")

// Client 定义了 Gemini 客户端的接口。
type Client interface {
	// GenerateContent 将完整的多轮对话发送给模型并返回回复文本。
	// 响应可解析但不含任何文本时返回空字符串与 nil，由上层决定占位文案。
	GenerateContent(ctx context.Context, contents []model.Message) (string, error)
}

type geminiClient struct {
	cfg    config.GeminiConfig
	client *http.Client
}

// NewClient 根据配置创建一个 Gemini 客户端。
func NewClient(cfg config.GeminiConfig) Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &geminiClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// generateContentRequest 对应 v1beta generateContent 的请求体 {contents: [{role, parts}]}。
type generateContentRequest struct {
	Contents []model.Message `json:"contents"`
}

// generateContentResponse 只解出我们关心的 candidates[].content.parts[].text。
type generateContentResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (c *geminiClient) GenerateContent(ctx context.Context, contents []model.Message) (string, error) {
	reqBytes, err := json.Marshal(generateContentRequest{Contents: contents})
	if err != nil {
		return "", fmt.Errorf("failed to marshal generate request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.cfg.BaseURL, c.cfg.Model, c.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRemoteCall, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: non-200 status %s, body: %s", ErrRemoteCall, resp.Status, string(bodyBytes))
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response body: %v", ErrRemoteCall, err)
	}

	var parsed generateContentResponse
	if err := json.Unmarshal(bodyBytes, &parsed); err != nil {
		return "", fmt.Errorf("%w: malformed response body: %v", ErrRemoteCall, err)
	}

	// 响应结构合法但没有文本候选：交由上层替换为固定占位文案
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", nil
	}
	return parsed.Candidates[0].Content.Parts[0].Text, nil
}
