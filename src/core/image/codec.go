package image

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"math"

	"golang.org/x/image/draw"

	_ "image/gif" // 注册GIF解码器
	_ "image/png" // 注册PNG解码器

	_ "golang.org/x/image/bmp"  // 注册BMP解码器
	_ "golang.org/x/image/webp" // 注册WEBP解码器
)

// Encoder 把一帧图像按档位编码为JPEG载荷
type Encoder interface {
	Encode(m image.Image, preset CompressionPreset) (EncodedPayload, error)
}

// JPEGCodec 图片编解码器：解码任意支持格式，按档位缩放后重编码为JPEG
type JPEGCodec struct{}

// NewJPEGCodec 创建编解码器
func NewJPEGCodec() *JPEGCodec {
	return &JPEGCodec{}
}

// Decode 解码图片字节为内存图像，返回实际格式
func (c *JPEGCodec) Decode(data []byte) (image.Image, string, error) {
	m, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("图片解码失败: %v", err)
	}
	return m, format, nil
}

// Encode 按档位等比缩放并编码为JPEG。最长边不超过档位上限，
// 短边按比例取整；每次编码使用独立的目标画布。
func (c *JPEGCodec) Encode(m image.Image, preset CompressionPreset) (EncodedPayload, error) {
	if preset.MaxDimension <= 0 || preset.Quality <= 0 || preset.Quality > 1 {
		return EncodedPayload{}, fmt.Errorf("无效的压缩档位: %dpx/%.2f", preset.MaxDimension, preset.Quality)
	}

	width, height := targetSize(m.Bounds().Dx(), m.Bounds().Dy(), preset.MaxDimension)

	scaled := m
	if width != m.Bounds().Dx() || height != m.Bounds().Dy() {
		dst := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.CatmullRom.Scale(dst, dst.Bounds(), m, m.Bounds(), draw.Over, nil)
		scaled = dst
	}

	var buf bytes.Buffer
	quality := int(math.Round(preset.Quality * 100))
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: quality}); err != nil {
		return EncodedPayload{}, fmt.Errorf("JPEG编码失败: %v", err)
	}

	encoded := base64.StdEncoding.EncodeToString(buf.Bytes())
	return EncodedPayload{
		Base64:      encoded,
		ApproxBytes: buf.Len(),
		MimeType:    "image/jpeg",
	}, nil
}

// targetSize 计算等比缩放后的尺寸：最长边取min(原最长边, maxDim)，不放大
func targetSize(width, height, maxDim int) (int, int) {
	longest := width
	if height > longest {
		longest = height
	}
	if longest <= maxDim {
		return width, height
	}

	scale := float64(maxDim) / float64(longest)
	w := int(math.Round(float64(width) * scale))
	h := int(math.Round(float64(height) * scale))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	// 取整不能破坏最长边上限
	if width >= height {
		w = maxDim
	} else {
		h = maxDim
	}
	return w, h
}
