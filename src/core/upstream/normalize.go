package upstream

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

// ExtractText 从上游响应中提取可用文本。上游至少存在三种响应形态，
// 按固定优先级逐一探测并收集所有非空片段：
//  1. chat-completion形态: choices[0].message.content
//  2. 结构化输出形态: output[].content[]的text/content字段，以及顶层output_text
//  3. 兜底: output[].summary[].text（可能是推理痕迹而非最终答案）
// 片段按换行拼接后去除首尾空白；三种形态都探不到时报 EMPTY_MODEL_TEXT。
func ExtractText(envelope []byte) (string, error) {
	doc := gjson.ParseBytes(envelope)
	var parts []string

	if content := doc.Get("choices.0.message.content"); content.Type == gjson.String && content.Str != "" {
		parts = append(parts, content.Str)
	}

	doc.Get("output").ForEach(func(_, item gjson.Result) bool {
		item.Get("content").ForEach(func(_, frag gjson.Result) bool {
			if text := frag.Get("text"); text.Type == gjson.String && text.Str != "" {
				parts = append(parts, text.Str)
			} else if content := frag.Get("content"); content.Type == gjson.String && content.Str != "" {
				parts = append(parts, content.Str)
			}
			return true
		})
		return true
	})

	if text := doc.Get("output_text"); text.Type == gjson.String && text.Str != "" {
		parts = append(parts, text.Str)
	}

	// 没有任何直接答案时才翻推理摘要，降级的答案好过没有答案
	if len(parts) == 0 {
		doc.Get("output").ForEach(func(_, item gjson.Result) bool {
			item.Get("summary").ForEach(func(_, entry gjson.Result) bool {
				if text := entry.Get("text"); text.Type == gjson.String && text.Str != "" {
					parts = append(parts, text.Str)
				}
				return true
			})
			return true
		})
	}

	result := strings.TrimSpace(strings.Join(parts, "\n"))
	if result == "" {
		return "", &ExtractError{Code: CodeEmptyModelText, Snippet: Truncate(string(envelope), 2000)}
	}
	return result, nil
}

// ExtractJSON 把模型文本解析为JSON对象。先整体解析；失败后取第一个
// '{'到最后一个'}'的区间再试，处理模型在JSON外包了一圈文字说明的情况；
// 仍失败时报 MODEL_NOT_JSON，携带原文前240字符。
func ExtractJSON(text string, v interface{}) error {
	trimmed := strings.TrimSpace(text)
	if json.Unmarshal([]byte(trimmed), v) == nil {
		return nil
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		if json.Unmarshal([]byte(trimmed[start:end+1]), v) == nil {
			return nil
		}
	}

	return &ExtractError{Code: CodeModelNotJSON, Snippet: Truncate(trimmed, 240)}
}

// Truncate 截断诊断文本到不超过max字节，回退到字符边界避免切出半个字
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
