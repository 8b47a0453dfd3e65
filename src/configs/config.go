package configs

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config 主配置结构
type Config struct {
	Server struct {
		IP   string `yaml:"ip"`
		Port int    `yaml:"port"`
	} `yaml:"server"`

	Log struct {
		LogLevel string `yaml:"log_level"`
		LogDir   string `yaml:"log_dir"`
		LogFile  string `yaml:"log_file"`
	} `yaml:"log"`

	Upstream UpstreamConfig `yaml:"upstream"`
	Limits   LimitsConfig   `yaml:"limits"`
}

// UpstreamConfig 上游多模态模型配置
type UpstreamConfig struct {
	ModelName   string  `yaml:"model_name"`  // 模型名称，使用支持视觉的模型
	BaseURL     string  `yaml:"url"`         // API地址，缺省时使用默认地址
	APIKey      string  `yaml:"api_key"`     // API密钥
	Temperature float64 `yaml:"temperature"` // 温度参数，压低以减少格式漂移
	MaxTokens   int     `yaml:"max_tokens"`  // 最大输出令牌数
	TimeoutMs   int     `yaml:"timeout_ms"`  // 上游调用超时（毫秒）
}

// LimitsConfig 请求体与图片的大小限制
type LimitsConfig struct {
	MaxRequestBody int64 `yaml:"max_request_body"` // 请求体硬上限（字节）
	MaxImageBytes  int64 `yaml:"max_image_bytes"`  // 图片解码后估算大小上限（字节）
}

const (
	// DefaultBaseURL 默认上游地址，末尾需带API版本段
	DefaultBaseURL = "https://api.openai.com/v1"

	defaultTemperature    = 0.2
	defaultMaxTokens      = 1200
	defaultTimeoutMs      = 20000
	defaultMaxRequestBody = 4404019 // 约4.2MB
	defaultMaxImageBytes  = 1887436 // 约1.8MB
)

// LoadConfig 从文件加载配置，环境变量覆盖密钥等敏感项
func LoadConfig() (*Config, string, error) {
	path := ".config.yaml"
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path = "config.yaml"
	}

	config := &Config{}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, path, err
		}
	}

	config.applyEnv()
	config.applyDefaults()
	return config, path, nil
}

// applyEnv 环境变量优先于配置文件
func (c *Config) applyEnv() {
	if v := os.Getenv("DINOSCAN_API_KEY"); v != "" {
		c.Upstream.APIKey = v
	}
	if v := os.Getenv("DINOSCAN_MODEL"); v != "" {
		c.Upstream.ModelName = v
	}
	if v := os.Getenv("DINOSCAN_UPSTREAM_URL"); v != "" {
		c.Upstream.BaseURL = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8090
	}
	if c.Log.LogDir == "" {
		c.Log.LogDir = "logs"
	}
	if c.Log.LogFile == "" {
		c.Log.LogFile = "server.log"
	}
	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = DefaultBaseURL
	}
	c.Upstream.BaseURL = NormalizeBaseURL(c.Upstream.BaseURL)
	if c.Upstream.Temperature == 0 {
		c.Upstream.Temperature = defaultTemperature
	}
	if c.Upstream.MaxTokens == 0 {
		c.Upstream.MaxTokens = defaultMaxTokens
	}
	if c.Upstream.TimeoutMs == 0 {
		c.Upstream.TimeoutMs = defaultTimeoutMs
	}
	if c.Limits.MaxRequestBody == 0 {
		c.Limits.MaxRequestBody = defaultMaxRequestBody
	}
	if c.Limits.MaxImageBytes == 0 {
		c.Limits.MaxImageBytes = defaultMaxImageBytes
	}
}

// NormalizeBaseURL 规范化上游地址：去掉末尾斜杠，缺少API版本段时补上/v1
func NormalizeBaseURL(raw string) string {
	url := strings.TrimSuffix(strings.TrimSpace(raw), "/")
	if url == "" {
		return DefaultBaseURL
	}
	if !strings.HasSuffix(url, "/v1") {
		url += "/v1"
	}
	return url
}
