package image

import (
	"bytes"
)

// 图片格式魔数签名
var imageSignatures = map[string][]byte{
	"jpeg": {0xFF, 0xD8, 0xFF},
	"png":  {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
	"gif":  {0x47, 0x49, 0x46, 0x38},
	"webp": {0x52, 0x49, 0x46, 0x46}, // RIFF，需进一步检查WEBP标识
	"bmp":  {0x42, 0x4D},
}

// LooksLikeImage 检查字节前缀是否像已知图片格式（JPEG/PNG/WEBP）。
// 网关用它在调用上游前拦截非图片数据。
func LooksLikeImage(data []byte) bool {
	return hasSignature(data, "jpeg") || hasSignature(data, "png") || hasSignature(data, "webp")
}

// DetectFormat 按文件头检测图片格式，未知时返回空字符串
func DetectFormat(data []byte) string {
	for _, format := range []string{"jpeg", "png", "gif", "webp", "bmp"} {
		if hasSignature(data, format) {
			return format
		}
	}
	return ""
}

// MimeTypeOf 按文件头推断MIME类型，未知时默认image/jpeg
func MimeTypeOf(data []byte) string {
	format := DetectFormat(data)
	if format == "" {
		format = "jpeg"
	}
	return "image/" + format
}

func hasSignature(data []byte, format string) bool {
	signature, ok := imageSignatures[format]
	if !ok || len(data) < len(signature) {
		return false
	}
	if !bytes.HasPrefix(data, signature) {
		return false
	}

	// WEBP需要额外验证RIFF容器里的WEBP标识
	if format == "webp" {
		return len(data) >= 12 && bytes.Equal(data[8:12], []byte("WEBP"))
	}
	return true
}
