package config

import (
	"testing"
	"time"
)

func TestLoadFailsWithMissingFields(t *testing.T) {
	if _, err := Load(testConfigPath(t, "missing.toml")); err == nil {
		t.Fatalf("缺失字段的配置应返回错误")
	}
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	cfg := `
LogLevel = "info"
StoragePath = "./data"
UpstreamTimeout = "boom"
`
	path := writeTempConfig(t, cfg)
	if _, err := Load(path); err == nil {
		t.Fatalf("无效 Duration 应失败")
	}
}

func TestLoadAcceptsSecondsDuration(t *testing.T) {
	cfg := `
StoragePath = "./data"
UpstreamTimeout = 45
DownloadDelay = "250ms"
Schemas = ["HTTPS", "http"]
`
	loaded, err := Load(writeTempConfig(t, cfg))
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if loaded.Global.UpstreamTimeout.DurationValue() != 45*time.Second {
		t.Fatalf("整数秒应被解析为 45s，得到 %s", loaded.Global.UpstreamTimeout.DurationValue())
	}
	if loaded.Global.DownloadDelay.DurationValue() != 250*time.Millisecond {
		t.Fatalf("DownloadDelay 解析错误: %s", loaded.Global.DownloadDelay.DurationValue())
	}
	if loaded.Global.Schemas[0] != "https" {
		t.Fatalf("协议名应被规范为小写: %v", loaded.Global.Schemas)
	}
	if loaded.StorageMode() != "local" {
		t.Fatalf("未配置 Remote 时应为 local")
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	storage := t.TempDir()
	t.Setenv("URL_CACHE_STORAGEPATH", storage)
	t.Setenv("URL_CACHE_WORKERS", "4")
	t.Setenv("URL_CACHE_REMOTE_SECRETKEY", "from-env")

	loaded, err := Load(testConfigPath(t, "valid.toml"))
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if loaded.Global.StoragePath != storage {
		t.Fatalf("StoragePath 应被环境变量覆盖，得到 %s", loaded.Global.StoragePath)
	}
	if loaded.Global.Workers != 4 {
		t.Fatalf("Workers 应被环境变量覆盖，得到 %d", loaded.Global.Workers)
	}
	if loaded.Remote.SecretKey != "from-env" || loaded.Remote.Bucket != "datasets" {
		t.Fatalf("Remote 凭据覆盖错误: %+v", loaded.Remote)
	}
}
