package upstream

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// AnalysisResult 图片鉴定结果契约。所有字段必填，模型缺字段时由
// FillDefaults 补齐默认值，调用方永远不会看到空字段。
type AnalysisResult struct {
	Name           string `json:"name"`           // 名称
	Era            string `json:"era"`            // 年代
	Classification string `json:"classification"` // 分类
	Length         string `json:"length"`         // 体长
	Rarity         string `json:"rarity"`         // 稀有度：普通/稀有/传说
	Confidence     int    `json:"confidence"`     // 置信度 0..100
	Note           string `json:"note"`           // 补充说明
}

// UnmarshalJSON 宽容解码。模型经常把字段类型写松，比如置信度给成
// 字符串"90"或体长给成数字12，这些都不该整单失败，逐字段取值后
// 把剩下的缺口留给 FillDefaults 补齐。
func (r *AnalysisResult) UnmarshalJSON(data []byte) error {
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return errors.New("不是JSON对象")
	}
	r.Name = looseString(doc.Get("name"))
	r.Era = looseString(doc.Get("era"))
	r.Classification = looseString(doc.Get("classification"))
	r.Length = looseString(doc.Get("length"))
	r.Rarity = looseString(doc.Get("rarity"))
	r.Confidence = int(doc.Get("confidence").Int())
	r.Note = looseString(doc.Get("note"))
	return nil
}

// TextResult 文本模式的结果契约
type TextResult struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// UnmarshalJSON 文本模式同样宽容解码
func (t *TextResult) UnmarshalJSON(data []byte) error {
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return errors.New("不是JSON对象")
	}
	t.Title = looseString(doc.Get("title"))
	t.Content = looseString(doc.Get("content"))
	return nil
}

// looseString 字符串原样返回，数字转成字面量，其他类型视为缺失
func looseString(v gjson.Result) string {
	switch v.Type {
	case gjson.String:
		return v.Str
	case gjson.Number:
		return v.Raw
	}
	return ""
}

// 提取失败的错误码
const (
	CodeEmptyModelText  = "EMPTY_MODEL_TEXT"
	CodeModelNotJSON    = "MODEL_NOT_JSON"
	CodeUpstreamNotJSON = "UPSTREAM_NOT_JSON"
)

// ExtractError 上游内容错误：响应里提取不出文本，或文本不是可修复的JSON
type ExtractError struct {
	Code    string
	Snippet string // 用于诊断的原文片段
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Snippet)
}

// UpstreamError 上游传输错误：非2xx响应，原样携带状态码与截断后的响应体
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("上游返回 %d: %s", e.StatusCode, e.Body)
}

// FillDefaults 逐字段补齐缺省值，保证结果完整可用
func (r *AnalysisResult) FillDefaults() {
	if r.Name == "" {
		r.Name = "未知标本"
	}
	if r.Era == "" {
		r.Era = "未知年代"
	}
	if r.Classification == "" {
		r.Classification = "未知类别"
	}
	if r.Length == "" {
		r.Length = "未知"
	}
	switch r.Rarity {
	case "普通", "稀有", "传说":
	default:
		r.Rarity = "普通"
	}
	if r.Confidence <= 0 || r.Confidence > 100 {
		r.Confidence = 50
	}
	if r.Note == "" {
		r.Note = "暂无更多说明"
	}
}

// FillDefaults 文本模式的缺省值
func (t *TextResult) FillDefaults() {
	if t.Title == "" {
		t.Title = "鉴定结果"
	}
	if t.Content == "" {
		t.Content = "暂无内容"
	}
}
