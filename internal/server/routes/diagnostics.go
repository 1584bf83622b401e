package routes

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StorageInfo 描述当前缓存布局，供 /-/storage 诊断接口输出。
type StorageInfo struct {
	Mode         string
	StoragePath  string
	IndexPath    string
	Schemas      []string
	RemoteBucket string
}

// RegisterDiagnostics 暴露 /-/metrics 与 /-/storage 诊断接口，供运维查询。
func RegisterDiagnostics(app *fiber.App, gatherer prometheus.Gatherer, info StorageInfo) {
	if app == nil {
		return
	}

	if gatherer != nil {
		app.Get("/-/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	app.Get("/-/storage", func(c fiber.Ctx) error {
		return c.JSON(encodeStorage(info))
	})
}

type storagePayload struct {
	Mode         string   `json:"mode"`
	StoragePath  string   `json:"storage_path"`
	IndexPath    string   `json:"index_path"`
	Schemas      []string `json:"schemas"`
	RemoteBucket string   `json:"remote_bucket,omitempty"`
}

func encodeStorage(info StorageInfo) storagePayload {
	// 保持配置顺序，顺序即优先级。
	schemas := append([]string(nil), info.Schemas...)
	if schemas == nil {
		schemas = []string{}
	}
	return storagePayload{
		Mode:         info.Mode,
		StoragePath:  info.StoragePath,
		IndexPath:    info.IndexPath,
		Schemas:      schemas,
		RemoteBucket: info.RemoteBucket,
	}
}
