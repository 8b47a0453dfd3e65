package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"dinoscan/src/configs"
	"dinoscan/src/core/utils"

	"github.com/sashabaranov/go-openai"
)

// Client 上游多模态API客户端。请求体复用go-openai的消息结构，
// 但自己发HTTP以保留原始响应字节，交给提取器探测多种响应形态。
type Client struct {
	config     *configs.UpstreamConfig
	logger     *utils.Logger
	httpClient *http.Client
}

// NewClient 创建上游客户端。超时由调用方的context控制。
func NewClient(config *configs.UpstreamConfig, logger *utils.Logger) *Client {
	return &Client{
		config:     config,
		logger:     logger,
		httpClient: &http.Client{},
	}
}

// ChatWithImage 携带一张base64图片调用上游，返回原始响应字节
func (c *Client) ChatWithImage(ctx context.Context, prompt, imageBase64, mimeType string) ([]byte, error) {
	request := openai.ChatCompletionRequest{
		Model:       c.config.ModelName,
		Temperature: float32(c.config.Temperature),
		MaxTokens:   c.config.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: prompt,
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL: fmt.Sprintf("data:%s;base64,%s", mimeType, imageBase64),
						},
					},
				},
			},
		},
	}
	return c.post(ctx, request)
}

// ChatWithText 纯文本调用上游，返回原始响应字节
func (c *Client) ChatWithText(ctx context.Context, system, user string) ([]byte, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: user,
	})

	request := openai.ChatCompletionRequest{
		Model:       c.config.ModelName,
		Temperature: float32(c.config.Temperature),
		MaxTokens:   c.config.MaxTokens,
		Messages:    messages,
	}
	return c.post(ctx, request)
}

// post 发送请求到上游的chat/completions端点
func (c *Client) post(ctx context.Context, request openai.ChatCompletionRequest) ([]byte, error) {
	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("上游请求序列化失败: %v", err)
	}

	url := c.config.BaseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("创建上游请求失败: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取上游响应失败: %v", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{
			StatusCode: resp.StatusCode,
			Body:       Truncate(string(body), 2000),
		}
	}

	if !json.Valid(body) {
		return nil, &ExtractError{Code: CodeUpstreamNotJSON, Snippet: Truncate(string(body), 2000)}
	}

	return body, nil
}
