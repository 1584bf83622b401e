package config

import (
	"errors"
	"strings"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动下载或服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.LogFormat != "" && g.LogFormat != "json" && g.LogFormat != "text" {
		return newFieldError("Global.LogFormat", "仅支持 json 或 text")
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if g.Workers < 1 {
		return newFieldError("Global.Workers", "至少为 1")
	}
	if g.MaxRetries < 0 {
		return newFieldError("Global.MaxRetries", "不能为负数")
	}
	if g.MaxRedirects < 1 {
		return newFieldError("Global.MaxRedirects", "至少为 1")
	}
	if g.InitialBackoff.DurationValue() <= 0 {
		return newFieldError("Global.InitialBackoff", "必须大于 0")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if g.DownloadDelay.DurationValue() < 0 {
		return newFieldError("Global.DownloadDelay", "不能为负数")
	}

	if len(g.Schemas) == 0 {
		return newFieldError("Global.Schemas", "至少需要一个协议")
	}
	seen := map[string]struct{}{}
	for _, schema := range g.Schemas {
		if schema == "" || strings.ContainsAny(schema, "/\\") {
			return newFieldError("Global.Schemas", "协议名不合法: "+schema)
		}
		if _, exists := seen[schema]; exists {
			return newFieldError("Global.Schemas", "重复: "+schema)
		}
		seen[schema] = struct{}{}
	}

	if c.Remote.Enabled() {
		if strings.Contains(c.Remote.Endpoint, "://") {
			return newFieldError("Remote.Endpoint", "不应包含协议头，使用 UseSSL 控制")
		}
		if strings.TrimSpace(c.Remote.Bucket) == "" {
			return newFieldError("Remote.Bucket", "配置 Endpoint 时不能为空")
		}
	}
	if (c.Remote.AccessKey == "") != (c.Remote.SecretKey == "") {
		return newFieldError("Remote.AccessKey/SecretKey", "必须同时提供或同时留空")
	}

	for key := range c.RequestHeaders {
		if strings.TrimSpace(key) == "" || strings.ContainsAny(key, " :\r\n") {
			return newFieldError("RequestHeaders", "非法头部名: "+key)
		}
	}

	return nil
}
