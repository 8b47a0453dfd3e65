package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"dinoscan/src/core/image"
	"dinoscan/src/core/upstream"

	"github.com/go-resty/resty/v2"
)

// APIError 网关返回的类型化失败，携带HTTP状态码与截断后的细节
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("网关返回 %d: %s", e.StatusCode, e.Detail)
}

// Client 推理客户端：把压缩好的载荷交给网关，拿回规整后的结果
type Client struct {
	http       *resty.Client
	gatewayURL string
}

// NewClient 创建客户端，gatewayURL指向网关API前缀（如 http://host:8090/api）
func NewClient(gatewayURL string) *Client {
	return &Client{
		http:       resty.New().SetTimeout(30 * time.Second),
		gatewayURL: strings.TrimSuffix(gatewayURL, "/"),
	}
}

// Analyze 提交图片载荷并返回鉴定结果。非2xx转为*APIError；
// 结果逐字段补齐默认值，调用方永远看不到空字段。
func (c *Client) Analyze(ctx context.Context, payload image.EncodedPayload) (*upstream.AnalysisResult, error) {
	body := map[string]string{
		"imageBase64": payload.Base64,
		"mimeType":    payload.MimeType,
	}

	resp, err := c.post(ctx, body)
	if err != nil {
		return nil, err
	}

	result := &upstream.AnalysisResult{}
	if err := json.Unmarshal(resp, result); err != nil {
		return nil, fmt.Errorf("解析网关响应失败: %v", err)
	}
	result.FillDefaults()
	return result, nil
}

// AnalyzeText 文本模式：提交问题与可选上下文，返回{title, content}
func (c *Client) AnalyzeText(ctx context.Context, prompt, contextText string) (*upstream.TextResult, error) {
	body := map[string]string{
		"mode":   "text",
		"prompt": prompt,
	}
	if contextText != "" {
		body["context"] = contextText
	}

	resp, err := c.post(ctx, body)
	if err != nil {
		return nil, err
	}

	result := &upstream.TextResult{}
	if err := json.Unmarshal(resp, result); err != nil {
		return nil, fmt.Errorf("解析网关响应失败: %v", err)
	}
	result.FillDefaults()
	return result, nil
}

// post 发送请求并把非2xx响应转为类型化错误
func (c *Client) post(ctx context.Context, body interface{}) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(c.gatewayURL + "/analyze")
	if err != nil {
		return nil, fmt.Errorf("请求网关失败: %v", err)
	}

	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return nil, &APIError{
			StatusCode: resp.StatusCode(),
			Detail:     errorDetail(resp.Body()),
		}
	}

	return resp.Body(), nil
}

// errorDetail 从错误响应体提取细节：优先JSON的detail/error字段，否则原文截断
func errorDetail(body []byte) string {
	parsed := struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}{}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Detail != "" {
			if parsed.Error != "" {
				return parsed.Error + ": " + parsed.Detail
			}
			return parsed.Detail
		}
		if parsed.Error != "" {
			return parsed.Error
		}
	}
	return upstream.Truncate(string(body), 500)
}
