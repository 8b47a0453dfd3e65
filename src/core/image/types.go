package image

// CompressionPreset 压缩档位：最长边上限 + JPEG质量
type CompressionPreset struct {
	MaxDimension int     // 最长边像素上限
	Quality      float64 // JPEG质量，(0,1]
}

// EncodedPayload 压缩后的图片载荷，一经产生不再修改
type EncodedPayload struct {
	Base64      string `json:"base64"`
	ApproxBytes int    `json:"approximate_bytes"`
	MimeType    string `json:"mime_type"`
}

// ShapeResult 压缩梯子的执行结果
type ShapeResult struct {
	Payload      EncodedPayload
	Preset       CompressionPreset
	Attempts     int  // 实际编码次数
	WithinBudget bool // 是否在预算内（梯子耗尽时为false）
}
