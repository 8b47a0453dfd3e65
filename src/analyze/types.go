package analyze

// AnalyzeRequest 分析请求结构，双模式：图片鉴定或纯文本问答。
// 两种模式的必填字段必须恰好出现一种。
type AnalyzeRequest struct {
	Mode        string `json:"mode,omitempty"`        // "image"（默认）或 "text"
	ImageBase64 string `json:"imageBase64,omitempty"` // 图片模式必填
	MimeType    string `json:"mimeType,omitempty"`    // 可选，缺省按魔数推断
	Prompt      string `json:"prompt,omitempty"`      // 文本模式必填
	Context     string `json:"context,omitempty"`     // 文本模式的可选上下文
}

// ErrorResponse 统一错误响应体
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// 错误码：客户端输入、上游传输、上游内容、部署配置四类
const (
	CodeBadRequest       = "BAD_REQUEST"
	CodeBadJSON          = "BAD_JSON"
	CodeBadImage         = "BAD_IMAGE"
	CodeRequestTooLarge  = "REQUEST_TOO_LARGE"
	CodeImageTooLarge    = "IMAGE_TOO_LARGE"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeConfigMissing    = "CONFIG_MISSING"
	CodeUpstreamTimeout  = "UPSTREAM_TIMEOUT"
	CodeUpstreamError    = "UPSTREAM_ERROR"
)
