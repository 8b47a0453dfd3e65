package client

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
)

// Location 经纬度坐标
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// FallbackLocation 定位失败时使用的固定坐标（北京）
var FallbackLocation = Location{Latitude: 39.9042, Longitude: 116.4074}

// geoEndpoint 在测试里可替换
var geoEndpoint = "http://ip-api.com/json/?fields=status,lat,lon"

const geoTimeout = 5 * time.Second

// 多次扫描复用同一个客户端与底层连接
var geoClient = resty.New()

// LookupLocation 尽力而为的定位：短超时，任何失败都退回固定坐标。
// 坐标只附在最终记录上，不属于推理契约本身。
func LookupLocation(ctx context.Context) Location {
	lookupCtx, cancel := context.WithTimeout(ctx, geoTimeout)
	defer cancel()

	result := struct {
		Status string  `json:"status"`
		Lat    float64 `json:"lat"`
		Lon    float64 `json:"lon"`
	}{}

	resp, err := geoClient.R().
		SetContext(lookupCtx).
		SetResult(&result).
		Get(geoEndpoint)
	if err != nil || !resp.IsSuccess() || result.Status != "success" {
		return FallbackLocation
	}

	return Location{Latitude: result.Lat, Longitude: result.Lon}
}
