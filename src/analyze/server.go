package analyze

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"dinoscan/src/configs"
	"dinoscan/src/core/image"
	"dinoscan/src/core/upstream"
	"dinoscan/src/core/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Service 推理网关：无状态HTTP服务，一次请求一次上游调用，不做重试
type Service struct {
	logger   *utils.Logger
	config   *configs.Config
	upstream *upstream.Client
}

// NewService 构造函数
func NewService(config *configs.Config, logger *utils.Logger) *Service {
	return &Service{
		logger:   logger,
		config:   config,
		upstream: upstream.NewClient(&config.Upstream, logger),
	}
}

// Start 实现 AnalyzeService 接口，注册所有分析相关路由
func (s *Service) Start(ctx context.Context, engine *gin.Engine, apiGroup *gin.RouterGroup) error {
	apiGroup.Any("/analyze", s.handleAnalyze)
	apiGroup.Any("/ping", s.handlePing)

	s.logger.Info("Analyze HTTP服务路由注册完成")
	return nil
}

// handlePing 存活探针
func (s *Service) handlePing(c *gin.Context) {
	s.addCORSHeaders(c)

	switch c.Request.Method {
	case http.MethodOptions:
		c.Status(http.StatusNoContent)
	case http.MethodGet, http.MethodPost:
		c.String(http.StatusOK, "pong")
	default:
		s.respondError(c, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "仅支持GET/POST")
	}
}

// handleAnalyze 分析主接口。预检永远成功，与配置状态无关。
func (s *Service) handleAnalyze(c *gin.Context) {
	s.addCORSHeaders(c)

	switch c.Request.Method {
	case http.MethodOptions:
		c.Status(http.StatusNoContent)
		return
	case http.MethodPost:
	default:
		s.respondError(c, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "仅支持POST")
		return
	}

	requestID := uuid.New().String()[:8]
	start := time.Now()

	// 缺少密钥或模型是部署错误，不是请求错误
	if s.config.Upstream.APIKey == "" || s.config.Upstream.ModelName == "" {
		s.respondError(c, http.StatusInternalServerError, CodeConfigMissing, "缺少上游API密钥或模型配置，请检查部署环境")
		return
	}

	req, ok := s.readRequest(c)
	if !ok {
		return
	}

	switch req.Mode {
	case "", "image":
		s.processImage(c, requestID, req)
	case "text":
		s.processText(c, requestID, req)
	default:
		s.respondError(c, http.StatusBadRequest, CodeBadRequest, fmt.Sprintf("未知的mode: %s", req.Mode))
		return
	}

	s.logger.Info(fmt.Sprintf("[%s] 分析请求处理完成，耗时%dms", requestID, time.Since(start).Milliseconds()))
}

// readRequest 流式读取并解析请求体。超过硬上限时在完整缓冲前中止，
// 防止超大请求体耗尽内存。
func (s *Service) readRequest(c *gin.Context) (*AnalyzeRequest, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.config.Limits.MaxRequestBody)

	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			s.respondError(c, http.StatusRequestEntityTooLarge, CodeRequestTooLarge,
				fmt.Sprintf("请求体超过%.1fMB上限", float64(s.config.Limits.MaxRequestBody)/1024/1024))
		} else {
			s.respondError(c, http.StatusBadRequest, CodeBadRequest, "读取请求体失败: "+err.Error())
		}
		return nil, false
	}

	req := &AnalyzeRequest{}
	if err := json.Unmarshal(data, req); err != nil {
		s.respondError(c, http.StatusBadRequest, CodeBadJSON, "请求体不是有效的JSON: "+err.Error())
		return nil, false
	}

	return req, true
}

// processImage 图片模式：大小复核、魔数嗅探、调上游、规整结果
func (s *Service) processImage(c *gin.Context, requestID string, req *AnalyzeRequest) {
	if req.ImageBase64 == "" {
		s.respondError(c, http.StatusBadRequest, CodeBadRequest, "缺少imageBase64字段")
		return
	}
	if req.Prompt != "" {
		s.respondError(c, http.StatusBadRequest, CodeBadRequest, "图片模式不接受prompt字段")
		return
	}

	// 服务端复核图片大小，这里才是权威的预算执行点
	estimated := image.EstimateBase64Bytes(req.ImageBase64)
	if int64(estimated) > s.config.Limits.MaxImageBytes {
		detail := fmt.Sprintf("图片约%.2fMB，超过%.2fMB上限，请压缩后重试",
			float64(estimated)/1024/1024, float64(s.config.Limits.MaxImageBytes)/1024/1024)
		s.logger.Warn(fmt.Sprintf("[%s] 图片超限: %s", requestID, detail))
		s.respondError(c, http.StatusRequestEntityTooLarge, CodeImageTooLarge, detail)
		return
	}

	// 只解码前缀做魔数嗅探，垃圾数据不值得一次上游调用
	head := req.ImageBase64
	if len(head) > 64 {
		head = head[:64]
	}
	prefix, err := base64.StdEncoding.DecodeString(head)
	if err != nil {
		s.respondError(c, http.StatusBadRequest, CodeBadImage, "imageBase64不是有效的base64数据")
		return
	}
	if !image.LooksLikeImage(prefix) {
		s.respondError(c, http.StatusBadRequest, CodeBadImage, "数据不是可识别的图片格式（支持JPEG/PNG/WEBP）")
		return
	}

	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = image.MimeTypeOf(prefix)
	}

	s.logger.Debug(fmt.Sprintf("[%s] 图片请求: %s, 约%d字节", requestID, mimeType, estimated))

	envelope, ok := s.callUpstream(c, func(ctx context.Context) ([]byte, error) {
		return s.upstream.ChatWithImage(ctx, ImagePrompt, req.ImageBase64, mimeType)
	})
	if !ok {
		return
	}

	text, err := upstream.ExtractText(envelope)
	if err != nil {
		s.respondUpstreamError(c, err)
		return
	}

	result := upstream.AnalysisResult{}
	if err := upstream.ExtractJSON(text, &result); err != nil {
		s.respondUpstreamError(c, err)
		return
	}
	result.FillDefaults()

	s.logger.Info(fmt.Sprintf("[%s] 鉴定结果: %s (%s, 置信度%d)", requestID, result.Name, result.Rarity, result.Confidence))
	c.JSON(http.StatusOK, result)
}

// processText 文本模式：同一套上游与提取机制，契约换成{title, content}
func (s *Service) processText(c *gin.Context, requestID string, req *AnalyzeRequest) {
	if req.Prompt == "" {
		s.respondError(c, http.StatusBadRequest, CodeBadRequest, "缺少prompt字段")
		return
	}
	if req.ImageBase64 != "" {
		s.respondError(c, http.StatusBadRequest, CodeBadRequest, "文本模式不接受imageBase64字段")
		return
	}

	userPrompt := req.Prompt
	if req.Context != "" {
		userPrompt = fmt.Sprintf("背景信息：%s\n\n问题：%s", req.Context, req.Prompt)
	}

	envelope, ok := s.callUpstream(c, func(ctx context.Context) ([]byte, error) {
		return s.upstream.ChatWithText(ctx, TextSystemPrompt, userPrompt)
	})
	if !ok {
		return
	}

	text, err := upstream.ExtractText(envelope)
	if err != nil {
		s.respondUpstreamError(c, err)
		return
	}

	result := upstream.TextResult{}
	if err := upstream.ExtractJSON(text, &result); err != nil {
		s.respondUpstreamError(c, err)
		return
	}
	result.FillDefaults()

	s.logger.Info(fmt.Sprintf("[%s] 文本结果: %s", requestID, result.Title))
	c.JSON(http.StatusOK, result)
}

// callUpstream 带超时调用上游；超时要和其他上游失败区分开
func (s *Service) callUpstream(c *gin.Context, call func(ctx context.Context) ([]byte, error)) ([]byte, bool) {
	timeout := time.Duration(s.config.Upstream.TimeoutMs) * time.Millisecond
	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	envelope, err := call(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			s.respondError(c, http.StatusBadGateway, CodeUpstreamTimeout,
				fmt.Sprintf("Timeout after %dms", timeout.Milliseconds()))
			return nil, false
		}
		s.respondUpstreamError(c, err)
		return nil, false
	}
	return envelope, true
}

// respondUpstreamError 把上游错误映射为502响应，保留可诊断的细节
func (s *Service) respondUpstreamError(c *gin.Context, err error) {
	var upstreamErr *upstream.UpstreamError
	if errors.As(err, &upstreamErr) {
		s.respondError(c, http.StatusBadGateway, CodeUpstreamError, upstreamErr.Error())
		return
	}

	var extractErr *upstream.ExtractError
	if errors.As(err, &extractErr) {
		s.respondError(c, http.StatusBadGateway, extractErr.Code, extractErr.Snippet)
		return
	}

	s.respondError(c, http.StatusBadGateway, CodeUpstreamError, err.Error())
}

// addCORSHeaders 每个响应都带CORS头
func (s *Service) addCORSHeaders(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "POST, OPTIONS")
	c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
}

// respondError 返回结构化错误响应
func (s *Service) respondError(c *gin.Context, statusCode int, code, detail string) {
	c.JSON(statusCode, ErrorResponse{Error: code, Detail: detail})
}
