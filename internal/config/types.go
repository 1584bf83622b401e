package config

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if seconds, err := time.ParseDuration(raw); err == nil {
		*d = Duration(seconds)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述全局运行时行为：存储、日志、下载节奏与索引输出。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFormat       string   `mapstructure:"LogFormat"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	StoragePath     string   `mapstructure:"StoragePath"`
	IndexPath       string   `mapstructure:"IndexPath"`
	Schemas         []string `mapstructure:"Schemas"`
	Workers         int      `mapstructure:"Workers"`
	MaxRetries      int      `mapstructure:"MaxRetries"`
	InitialBackoff  Duration `mapstructure:"InitialBackoff"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
	DownloadDelay   Duration `mapstructure:"DownloadDelay"`
	MaxRedirects    int      `mapstructure:"MaxRedirects"`

	TrustAnchorDir    string   `mapstructure:"TrustAnchorDir"`
	ExtraTrustAnchors []string `mapstructure:"ExtraTrustAnchors"`
}

// RemoteConfig 描述正文所在的 S3 兼容对象存储；Endpoint 为空表示仅使用本地存储。
type RemoteConfig struct {
	Endpoint  string `mapstructure:"Endpoint"`
	Bucket    string `mapstructure:"Bucket"`
	AccessKey string `mapstructure:"AccessKey"`
	SecretKey string `mapstructure:"SecretKey"`
	Region    string `mapstructure:"Region"`
	UseSSL    bool   `mapstructure:"UseSSL"`
}

// Enabled 表示是否配置了远端正文存储。
func (r RemoteConfig) Enabled() bool {
	return strings.TrimSpace(r.Endpoint) != ""
}

// HasCredentials 表示是否配置了完整的访问凭证。
func (r RemoteConfig) HasCredentials() bool {
	return r.AccessKey != "" && r.SecretKey != ""
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global         GlobalConfig      `mapstructure:",squash"`
	Remote         RemoteConfig      `mapstructure:"Remote"`
	RequestHeaders map[string]string `mapstructure:"RequestHeaders"`
}

// Headers 将 RequestHeaders 转为 http.Header，附加到每次上游请求。
func (c *Config) Headers() http.Header {
	headers := http.Header{}
	for key, value := range c.RequestHeaders {
		headers.Set(key, value)
	}
	return headers
}

// StorageMode 输出 `local` 或 `remote`，供日志字段使用。
func (c *Config) StorageMode() string {
	if c.Remote.Enabled() {
		return "remote"
	}
	return "local"
}
