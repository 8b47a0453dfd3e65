package analyze

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	stdimage "image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dinoscan/src/configs"
	"dinoscan/src/core/utils"

	"github.com/gin-gonic/gin"
)

func newTestService(t *testing.T, mutate func(c *configs.Config)) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	config := &configs.Config{}
	config.Log.LogDir = t.TempDir()
	config.Log.LogFile = "test.log"
	config.Upstream = configs.UpstreamConfig{
		ModelName:   "test-vision-model",
		BaseURL:     "http://127.0.0.1:1/v1", // 默认不可达，用例需要时覆盖
		APIKey:      "test-key",
		Temperature: 0.2,
		MaxTokens:   1200,
		TimeoutMs:   2000,
	}
	config.Limits.MaxRequestBody = 4404019
	config.Limits.MaxImageBytes = 1887436
	if mutate != nil {
		mutate(config)
	}

	logger, err := utils.NewLogger(config)
	if err != nil {
		t.Fatalf("创建日志器失败: %v", err)
	}
	t.Cleanup(func() { logger.Close() })

	engine := gin.New()
	apiGroup := engine.Group("/api")
	service := NewService(config, logger)
	if err := service.Start(context.Background(), engine, apiGroup); err != nil {
		t.Fatalf("注册路由失败: %v", err)
	}
	return engine
}

func doRequest(engine *gin.Engine, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

// tinyJPEGBase64 生成一张能通过魔数嗅探的真实JPEG
func tinyJPEGBase64(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, stdimage.NewRGBA(stdimage.Rect(0, 0, 8, 8)), &jpeg.Options{Quality: 60}); err != nil {
		t.Fatalf("生成测试JPEG失败: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func imageBody(t *testing.T, b64 string) []byte {
	t.Helper()
	data, err := json.Marshal(map[string]string{"imageBase64": b64, "mimeType": "image/jpeg"})
	if err != nil {
		t.Fatalf("构造请求体失败: %v", err)
	}
	return data
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	resp := ErrorResponse{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("错误响应不是JSON: %v (%s)", err, w.Body.String())
	}
	return resp
}

func TestOptionsAlwaysSucceeds(t *testing.T) {
	// 缺少全部配置时预检也必须成功
	engine := newTestService(t, func(c *configs.Config) {
		c.Upstream.APIKey = ""
		c.Upstream.ModelName = ""
	})

	for _, path := range []string{"/api/analyze", "/api/ping"} {
		w := doRequest(engine, http.MethodOptions, path, nil)
		if w.Code != http.StatusNoContent {
			t.Errorf("OPTIONS %s = %d, want 204", path, w.Code)
		}
		if w.Header().Get("Access-Control-Allow-Origin") != "*" {
			t.Errorf("OPTIONS %s 缺少CORS头", path)
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	engine := newTestService(t, nil)

	w := doRequest(engine, http.MethodGet, "/api/analyze", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/analyze = %d, want 405", w.Code)
	}
	w = doRequest(engine, http.MethodDelete, "/api/ping", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("DELETE /api/ping = %d, want 405", w.Code)
	}
}

func TestPing(t *testing.T) {
	engine := newTestService(t, nil)

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		w := doRequest(engine, method, "/api/ping", nil)
		if w.Code != http.StatusOK || w.Body.String() != "pong" {
			t.Errorf("%s /api/ping = %d %q, want 200 pong", method, w.Code, w.Body.String())
		}
	}
}

func TestMissingConfigIs500(t *testing.T) {
	engine := newTestService(t, func(c *configs.Config) {
		c.Upstream.APIKey = ""
	})

	w := doRequest(engine, http.MethodPost, "/api/analyze", imageBody(t, tinyJPEGBase64(t)))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("状态码 = %d, want 500", w.Code)
	}
	if resp := errorCode(t, w); resp.Error != CodeConfigMissing {
		t.Errorf("错误码 = %q, want %q", resp.Error, CodeConfigMissing)
	}
}

func TestBadRequestBodies(t *testing.T) {
	engine := newTestService(t, nil)

	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"非JSON请求体", "不是JSON", CodeBadJSON},
		{"缺少图片字段", `{}`, CodeBadRequest},
		{"未知模式", `{"mode":"audio"}`, CodeBadRequest},
		{"图片模式混入prompt", `{"imageBase64":"QUJD","prompt":"多余"}`, CodeBadRequest},
		{"文本模式缺prompt", `{"mode":"text"}`, CodeBadRequest},
		{"文本模式混入图片", `{"mode":"text","prompt":"问","imageBase64":"QUJD"}`, CodeBadRequest},
		{"无效base64", `{"imageBase64":"!!!!"}`, CodeBadImage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(engine, http.MethodPost, "/api/analyze", []byte(tt.body))
			if w.Code != http.StatusBadRequest {
				t.Fatalf("状态码 = %d, want 400", w.Code)
			}
			if resp := errorCode(t, w); resp.Error != tt.wantCode {
				t.Errorf("错误码 = %q, want %q", resp.Error, tt.wantCode)
			}
		})
	}
}

func TestNonImagePayloadRejected(t *testing.T) {
	engine := newTestService(t, nil)

	b64 := base64.StdEncoding.EncodeToString([]byte("this is definitely not an image payload"))
	w := doRequest(engine, http.MethodPost, "/api/analyze", imageBody(t, b64))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("状态码 = %d, want 400", w.Code)
	}
	if resp := errorCode(t, w); resp.Error != CodeBadImage {
		t.Errorf("错误码 = %q, want %q", resp.Error, CodeBadImage)
	}
}

func TestOversizedImageRejectedWithMegabytes(t *testing.T) {
	engine := newTestService(t, nil)

	// 估算约2.0MB，超过1.8MB上限
	b64 := strings.Repeat("A", 2*1024*1024*4/3+4)
	w := doRequest(engine, http.MethodPost, "/api/analyze", imageBody(t, b64))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("状态码 = %d, want 413", w.Code)
	}
	resp := errorCode(t, w)
	if resp.Error != CodeImageTooLarge {
		t.Errorf("错误码 = %q, want %q", resp.Error, CodeImageTooLarge)
	}
	if !strings.Contains(resp.Detail, "2.00") {
		t.Errorf("detail应包含计算出的MB值: %q", resp.Detail)
	}
}

func TestOversizedRequestBodyRejected(t *testing.T) {
	// 压小整体上限，验证请求体在完整缓冲前就被拦下
	engine := newTestService(t, func(c *configs.Config) {
		c.Limits.MaxRequestBody = 1024 * 1024
	})

	body := imageBody(t, strings.Repeat("A", 1200*1024))
	w := doRequest(engine, http.MethodPost, "/api/analyze", body)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("状态码 = %d, want 413", w.Code)
	}
	resp := errorCode(t, w)
	if resp.Error != CodeRequestTooLarge {
		t.Errorf("错误码 = %q, want %q", resp.Error, CodeRequestTooLarge)
	}
	if !strings.Contains(resp.Detail, "1.0MB") {
		t.Errorf("detail应包含上限MB值: %q", resp.Detail)
	}
}

func TestUpstreamTimeoutIs502(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.Write([]byte(`{}`))
	}))
	defer upstream.Close()

	engine := newTestService(t, func(c *configs.Config) {
		c.Upstream.BaseURL = upstream.URL + "/v1"
		c.Upstream.TimeoutMs = 100
	})

	w := doRequest(engine, http.MethodPost, "/api/analyze", imageBody(t, tinyJPEGBase64(t)))
	if w.Code != http.StatusBadGateway {
		t.Fatalf("状态码 = %d, want 502", w.Code)
	}
	resp := errorCode(t, w)
	if resp.Error != CodeUpstreamTimeout {
		t.Errorf("错误码 = %q, want %q", resp.Error, CodeUpstreamTimeout)
	}
	if resp.Detail != "Timeout after 100ms" {
		t.Errorf("detail = %q, want Timeout after 100ms", resp.Detail)
	}
}

func TestUpstreamFailurePassedThrough(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer upstream.Close()

	engine := newTestService(t, func(c *configs.Config) {
		c.Upstream.BaseURL = upstream.URL + "/v1"
	})

	w := doRequest(engine, http.MethodPost, "/api/analyze", imageBody(t, tinyJPEGBase64(t)))
	if w.Code != http.StatusBadGateway {
		t.Fatalf("状态码 = %d, want 502", w.Code)
	}
	resp := errorCode(t, w)
	if !strings.Contains(resp.Detail, "429") || !strings.Contains(resp.Detail, "rate limited") {
		t.Errorf("detail应携带上游状态与响应体: %q", resp.Detail)
	}
}

func TestUpstreamNotJSONIs502(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>gateway error</html>"))
	}))
	defer upstream.Close()

	engine := newTestService(t, func(c *configs.Config) {
		c.Upstream.BaseURL = upstream.URL + "/v1"
	})

	w := doRequest(engine, http.MethodPost, "/api/analyze", imageBody(t, tinyJPEGBase64(t)))
	if w.Code != http.StatusBadGateway {
		t.Fatalf("状态码 = %d, want 502", w.Code)
	}
	if resp := errorCode(t, w); resp.Error != "UPSTREAM_NOT_JSON" {
		t.Errorf("错误码 = %q, want UPSTREAM_NOT_JSON", resp.Error)
	}
}

func TestModelNotJSONIs502(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		envelope := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "这只是普通的一句话，没有任何JSON"}},
			},
		}
		json.NewEncoder(w).Encode(envelope)
	}))
	defer upstream.Close()

	engine := newTestService(t, func(c *configs.Config) {
		c.Upstream.BaseURL = upstream.URL + "/v1"
	})

	w := doRequest(engine, http.MethodPost, "/api/analyze", imageBody(t, tinyJPEGBase64(t)))
	if w.Code != http.StatusBadGateway {
		t.Fatalf("状态码 = %d, want 502", w.Code)
	}
	if resp := errorCode(t, w); resp.Error != "MODEL_NOT_JSON" {
		t.Errorf("错误码 = %q, want MODEL_NOT_JSON", resp.Error)
	}
}

func TestAnalyzeImageSuccess(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("上游路径 = %q, want /v1/chat/completions", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}
		// 模型只回了部分字段，其余靠网关补默认值
		answer := `{"name":"霸王龙","rarity":"传说","confidence":90}`
		envelope := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": answer}},
			},
		}
		json.NewEncoder(w).Encode(envelope)
	}))
	defer upstream.Close()

	engine := newTestService(t, func(c *configs.Config) {
		c.Upstream.BaseURL = upstream.URL + "/v1"
	})

	w := doRequest(engine, http.MethodPost, "/api/analyze", imageBody(t, tinyJPEGBase64(t)))
	if w.Code != http.StatusOK {
		t.Fatalf("状态码 = %d: %s", w.Code, w.Body.String())
	}

	result := struct {
		Name       string `json:"name"`
		Era        string `json:"era"`
		Rarity     string `json:"rarity"`
		Confidence int    `json:"confidence"`
		Note       string `json:"note"`
	}{}
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("响应不是JSON: %v", err)
	}
	if result.Name != "霸王龙" || result.Rarity != "传说" || result.Confidence != 90 {
		t.Errorf("模型字段丢失: %+v", result)
	}
	if result.Era != "未知年代" || result.Note == "" {
		t.Errorf("缺失字段未补默认值: %+v", result)
	}
}

func TestAnalyzeTextSuccess(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		envelope := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": `{"title":"白垩纪","content":"恐龙最繁盛的时代"}`}},
			},
		}
		json.NewEncoder(w).Encode(envelope)
	}))
	defer upstream.Close()

	engine := newTestService(t, func(c *configs.Config) {
		c.Upstream.BaseURL = upstream.URL + "/v1"
	})

	body, _ := json.Marshal(map[string]string{"mode": "text", "prompt": "介绍一下白垩纪", "context": "面向儿童"})
	w := doRequest(engine, http.MethodPost, "/api/analyze", body)
	if w.Code != http.StatusOK {
		t.Fatalf("状态码 = %d: %s", w.Code, w.Body.String())
	}

	result := struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	}{}
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("响应不是JSON: %v", err)
	}
	if result.Title != "白垩纪" || result.Content == "" {
		t.Errorf("文本结果不对: %+v", result)
	}
}

func TestCORSHeadersOnEveryResponse(t *testing.T) {
	engine := newTestService(t, nil)

	w := doRequest(engine, http.MethodPost, "/api/analyze", []byte("bad"))
	if w.Header().Get("Access-Control-Allow-Origin") != "*" ||
		w.Header().Get("Access-Control-Allow-Methods") != "POST, OPTIONS" ||
		w.Header().Get("Access-Control-Allow-Headers") != "Content-Type, Authorization" {
		t.Errorf("错误响应也必须带全套CORS头: %v", w.Header())
	}
}
