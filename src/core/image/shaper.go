package image

import (
	"fmt"
	"image"
)

// CaptureLadder 实时取景帧的压缩梯子，档位从大到小
var CaptureLadder = []CompressionPreset{
	{MaxDimension: 1280, Quality: 0.75},
	{MaxDimension: 1024, Quality: 0.68},
	{MaxDimension: 864, Quality: 0.62},
	{MaxDimension: 704, Quality: 0.58},
	{MaxDimension: 560, Quality: 0.54},
	{MaxDimension: 420, Quality: 0.50},
}

// FileLadder 用户上传文件的压缩梯子，源图质量更高，档位更宽松
var FileLadder = []CompressionPreset{
	{MaxDimension: 1600, Quality: 0.78},
	{MaxDimension: 1344, Quality: 0.72},
	{MaxDimension: 1120, Quality: 0.66},
	{MaxDimension: 960, Quality: 0.62},
	{MaxDimension: 800, Quality: 0.58},
	{MaxDimension: 640, Quality: 0.55},
	{MaxDimension: 480, Quality: 0.52},
}

// AdvisoryBudget 客户端侧的建议预算（约1.2MB）。服务端的上限才是权威值。
const AdvisoryBudget = 1258291

// EstimateBase64Bytes 估算base64数据解码后的字节数。
// 对无填充的base64是精确值，有填充时最多偏差2字节。
func EstimateBase64Bytes(b64 string) int {
	return len(b64) * 3 / 4
}

// Shaper 压缩梯子驱动器：逐档尝试直到载荷落入预算
type Shaper struct {
	encoder Encoder
}

// NewShaper 创建Shaper
func NewShaper(encoder Encoder) *Shaper {
	return &Shaper{encoder: encoder}
}

// Shape 按梯子顺序逐档编码，返回第一个估算大小不超过budget的载荷。
// 梯子耗尽时返回最后一档（最小）的结果而不报错，由调用方决定是否拒绝。
func (s *Shaper) Shape(m image.Image, ladder []CompressionPreset, budget int) (ShapeResult, error) {
	if len(ladder) == 0 {
		return ShapeResult{}, fmt.Errorf("压缩梯子为空")
	}

	var last ShapeResult
	for i, preset := range ladder {
		payload, err := s.encoder.Encode(m, preset)
		if err != nil {
			return ShapeResult{}, fmt.Errorf("第%d档编码失败(%dpx/%.2f): %v", i+1, preset.MaxDimension, preset.Quality, err)
		}

		last = ShapeResult{
			Payload:  payload,
			Preset:   preset,
			Attempts: i + 1,
		}
		if EstimateBase64Bytes(payload.Base64) <= budget {
			last.WithinBudget = true
			return last, nil
		}
	}

	// 梯子耗尽，返回最小的一次尝试
	return last, nil
}
