package client

import (
	"context"
	"fmt"
	"time"

	"dinoscan/src/core/image"
	"dinoscan/src/core/upstream"
)

// Record 一次扫描的最终记录：鉴定结果加上拍摄坐标与时间
type Record struct {
	upstream.AnalysisResult
	Location   Location  `json:"location"`
	CapturedAt time.Time `json:"captured_at"`
}

// Scanner 客户端完整流水线：解码、压缩梯子、提交网关、附定位
type Scanner struct {
	codec  *image.JPEGCodec
	shaper *image.Shaper
	client *Client
	budget int
}

// NewScanner 创建扫描器，budget<=0时使用建议预算
func NewScanner(gatewayURL string, budget int) *Scanner {
	codec := image.NewJPEGCodec()
	if budget <= 0 {
		budget = image.AdvisoryBudget
	}
	return &Scanner{
		codec:  codec,
		shaper: image.NewShaper(codec),
		client: NewClient(gatewayURL),
		budget: budget,
	}
}

// ScanFrame 处理实时取景帧，用更紧的压缩梯子
func (s *Scanner) ScanFrame(ctx context.Context, data []byte) (*Record, error) {
	return s.scan(ctx, data, image.CaptureLadder)
}

// ScanFile 处理用户上传的文件，源图质量更高，梯子更宽松
func (s *Scanner) ScanFile(ctx context.Context, data []byte) (*Record, error) {
	return s.scan(ctx, data, image.FileLadder)
}

func (s *Scanner) scan(ctx context.Context, data []byte, ladder []image.CompressionPreset) (*Record, error) {
	m, _, err := s.codec.Decode(data)
	if err != nil {
		return nil, err
	}

	shaped, err := s.shaper.Shape(m, ladder, s.budget)
	if err != nil {
		return nil, fmt.Errorf("压缩图片失败: %v", err)
	}

	// 梯子耗尽也照样提交，预算由网关权威执行
	result, err := s.client.Analyze(ctx, shaped.Payload)
	if err != nil {
		return nil, err
	}

	return &Record{
		AnalysisResult: *result,
		Location:       LookupLocation(ctx),
		CapturedAt:     time.Now(),
	}, nil
}
