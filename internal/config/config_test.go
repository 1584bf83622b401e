package config

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	cfgPath := testConfigPath(t, "valid.toml")

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if !filepath.IsAbs(cfg.Global.StoragePath) {
		t.Fatalf("StoragePath 应该被转换为绝对路径: %s", cfg.Global.StoragePath)
	}
	if cfg.Global.IndexPath != filepath.Join(cfg.Global.StoragePath, "index.json") {
		t.Fatalf("IndexPath 应默认位于存储目录: %s", cfg.Global.IndexPath)
	}
	if cfg.Global.UpstreamTimeout.DurationValue() != 30*time.Second {
		t.Fatalf("UpstreamTimeout 应该自动填充默认值")
	}
	if cfg.Global.Workers != 1 {
		t.Fatalf("Workers 默认应为 1，得到 %d", cfg.Global.Workers)
	}
	if cfg.Global.DownloadDelay.DurationValue() != 0 {
		t.Fatalf("DownloadDelay 应被显式关闭")
	}
	if len(cfg.Global.Schemas) != 2 || cfg.Global.Schemas[0] != "https" {
		t.Fatalf("Schemas 解析错误: %v", cfg.Global.Schemas)
	}
	if got := cfg.Headers().Get("User-Agent"); got == "" {
		t.Fatalf("RequestHeaders 应被解析")
	}
	if !cfg.Remote.Enabled() || cfg.Remote.Bucket != "datasets" || cfg.StorageMode() != "remote" {
		t.Fatalf("Remote 配置解析错误: %+v", cfg.Remote)
	}
}

func TestValidateRejectsMissingFields(t *testing.T) {
	cfgPath := testConfigPath(t, "missing.toml")

	if _, err := Load(cfgPath); err == nil {
		t.Fatalf("不合法的配置应返回错误")
	}
}

func TestValidateEnforcesListenPortRange(t *testing.T) {
	cfg := validConfig()
	cfg.Global.ListenPort = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatalf("ListenPort 超出范围应当报错")
	}
}

func TestValidateSchemas(t *testing.T) {
	testCases := []struct {
		name      string
		schemas   []string
		shouldErr bool
	}{
		{"default ok", []string{"https", "http"}, false},
		{"ftp ok", []string{"https", "http", "ftp"}, false},
		{"empty", nil, true},
		{"duplicate", []string{"http", "http"}, true},
		{"slash", []string{"http/x"}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Global.Schemas = tc.schemas
			err := cfg.Validate()
			if tc.shouldErr && err == nil {
				t.Fatalf("expected error for schemas %v", tc.schemas)
			}
			if !tc.shouldErr && err != nil {
				t.Fatalf("unexpected error for schemas %v: %v", tc.schemas, err)
			}
		})
	}
}

func TestValidateRemoteRequiresBucket(t *testing.T) {
	cfg := validConfig()
	cfg.Remote.Endpoint = "s3.example.org"
	err := cfg.Validate()
	var fieldErr FieldError
	if !errors.As(err, &fieldErr) || fieldErr.Field != "Remote.Bucket" {
		t.Fatalf("缺少 Bucket 时应返回 Remote.Bucket 字段错误，得到 %v", err)
	}

	cfg.Remote.Endpoint = "https://s3.example.org"
	cfg.Remote.Bucket = "datasets"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("Endpoint 带协议头时应报错")
	}
}

func TestValidateRequiresCredentialPairs(t *testing.T) {
	cfg := validConfig()
	cfg.Remote.AccessKey = "foo"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("仅提供 AccessKey 时应报错")
	}
}

func TestValidateRejectsBadHeaderName(t *testing.T) {
	cfg := validConfig()
	cfg.RequestHeaders = map[string]string{"Bad Header": "x"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("非法头部名应报错")
	}
}

func validConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			ListenPort:      5000,
			StoragePath:     "./data",
			Workers:         1,
			MaxRetries:      1,
			MaxRedirects:    20,
			InitialBackoff:  Duration(time.Second),
			UpstreamTimeout: Duration(time.Second),
			Schemas:         []string{"https", "http"},
		},
	}
}
